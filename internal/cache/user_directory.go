package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/harentsoaR/dentalab-api/internal/models"
)

const usersKey = "dentalab:users:directory"

type UserSource interface {
	ListUsers(ctx context.Context) ([]models.User, error)
}

// UserDirectory serves the user list for notification fan-out from Redis,
// loading it from the source on a miss. Cached entries carry no password
// hashes. A nil client or an unreachable Redis means every call goes to the
// source.
type UserDirectory struct {
	client *redis.Client
	source UserSource
	ttl    time.Duration
	logger *zap.Logger
}

func NewUserDirectory(client *redis.Client, source UserSource, ttl time.Duration, logger *zap.Logger) *UserDirectory {
	return &UserDirectory{client: client, source: source, ttl: ttl, logger: logger}
}

func (d *UserDirectory) Users(ctx context.Context) ([]models.User, error) {
	if d.client != nil {
		val, err := d.client.Get(ctx, usersKey).Result()
		switch {
		case err == nil:
			var users []models.User
			if jerr := json.Unmarshal([]byte(val), &users); jerr == nil {
				return users, nil
			}
			d.logger.Warn("discarding corrupt user directory cache")
		case !errors.Is(err, redis.Nil):
			d.logger.Warn("user directory cache read failed", zap.Error(err))
		}
	}

	users, err := d.source.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	if d.client != nil {
		data, err := json.Marshal(users)
		if err == nil {
			err = d.client.Set(ctx, usersKey, data, d.ttl).Err()
		}
		if err != nil {
			d.logger.Warn("user directory cache write failed", zap.Error(err))
		}
	}
	return users, nil
}

// Invalidate drops the cached list. Called after every user write.
func (d *UserDirectory) Invalidate(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	return d.client.Del(ctx, usersKey).Err()
}
