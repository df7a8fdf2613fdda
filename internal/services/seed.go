package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/harentsoaR/dentalab-api/internal/config"
	"github.com/harentsoaR/dentalab-api/internal/models"
	"github.com/harentsoaR/dentalab-api/internal/storage"
)

// ApplySeed creates the seed accounts and products that do not exist yet.
// Users are matched by email and products by name, so running it on every
// start is safe.
func ApplySeed(ctx context.Context, seed *config.Seed, users *UserService, products *ProductService, logger *zap.Logger) error {
	if seed == nil {
		return nil
	}
	for _, su := range seed.Users {
		_, err := users.store.GetUserByEmail(ctx, normalizeEmail(su.Email))
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("seed user %s: %w", su.Email, err)
		}
		if _, err := users.Create(ctx, UserInput{
			FullName:      su.FullName,
			Email:         su.Email,
			Password:      su.Password,
			Role:          models.Role(strings.ToUpper(su.Role)),
			RelatedEntity: su.RelatedEntity,
		}); err != nil {
			return fmt.Errorf("seed user %s: %w", su.Email, err)
		}
	}

	existing, err := products.List(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[strings.ToLower(p.Name)] = true
	}
	for _, sp := range seed.Products {
		if have[strings.ToLower(strings.TrimSpace(sp.Name))] {
			continue
		}
		if _, err := products.Create(ctx, ProductInput{Name: sp.Name, Code: sp.Code, Active: sp.Active}); err != nil {
			return fmt.Errorf("seed product %s: %w", sp.Name, err)
		}
		have[strings.ToLower(strings.TrimSpace(sp.Name))] = true
	}
	logger.Info("seed applied", zap.Int("users", len(seed.Users)), zap.Int("products", len(seed.Products)))
	return nil
}
