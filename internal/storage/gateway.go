// Package storage holds the persistence contract used by the order services
// and its backends: MongoDB, the spreadsheet script proxy, and an in-memory
// store.
package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/harentsoaR/dentalab-api/internal/models"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrCounterConflict = errors.New("counter update conflict")
)

// CounterFunc computes the new counter value from the current one. Returning
// an error aborts the update without persisting anything.
type CounterFunc func(current int64) (int64, error)

func nextSequence(current int64) (int64, error) { return current + 1, nil }

type Gateway interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	PutUser(ctx context.Context, u models.User) error
	DeleteUser(ctx context.Context, id string) error

	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (models.Product, error)
	PutProduct(ctx context.Context, p models.Product) error
	DeleteProduct(ctx context.Context, id string) error

	ListOrders(ctx context.Context) ([]models.Order, error)
	GetOrder(ctx context.Context, id string) (models.Order, error)
	PutOrder(ctx context.Context, o models.Order) error
	DeleteOrder(ctx context.Context, id string) error

	PutNotification(ctx context.Context, n models.Notification) error
	// ListNotifications returns the user's notifications newest first. A
	// limit <= 0 returns all of them.
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error

	GetCounter(ctx context.Context, code string) (int64, error)
	// UpdateCounter atomically reads the counter for code (0 when absent),
	// applies fn and persists the result. Concurrent updates of one code
	// never observe the same current value.
	UpdateCounter(ctx context.Context, code string, fn CounterFunc) (int64, error)
	// IncrementCounter adds one to the counter for code, creating it at 1,
	// and returns the new value.
	IncrementCounter(ctx context.Context, code string) (int64, error)
}

const (
	retryBaseDelay = 5 * time.Millisecond
	retryMaxDelay  = 250 * time.Millisecond
)

// waitRetry sleeps a jittered, exponentially growing delay before retry
// number attempt. It returns early with the context error once ctx is done.
func waitRetry(ctx context.Context, attempt int) error {
	d := retryBaseDelay << min(attempt, 6)
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	d = d/2 + rand.N(d/2+1)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
