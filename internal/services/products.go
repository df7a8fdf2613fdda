package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harentsoaR/dentalab-api/internal/models"
	"github.com/harentsoaR/dentalab-api/internal/storage"
)

type ProductStore interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (models.Product, error)
	PutProduct(ctx context.Context, p models.Product) error
	DeleteProduct(ctx context.Context, id string) error
	ListOrders(ctx context.Context) ([]models.Order, error)
	PutOrder(ctx context.Context, o models.Order) error
}

type ProductInput struct {
	Name   string `json:"name"`
	Code   string `json:"code"`
	Active *bool  `json:"active"`
}

type ProductService struct {
	store  ProductStore
	logger *zap.Logger
}

func NewProductService(store ProductStore, logger *zap.Logger) *ProductService {
	return &ProductService{store: store, logger: logger}
}

func (s *ProductService) List(ctx context.Context) ([]models.Product, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if products == nil {
		products = []models.Product{}
	}
	return products, nil
}

func (s *ProductService) Create(ctx context.Context, in ProductInput) (models.Product, error) {
	p := models.Product{
		ID:     uuid.NewString(),
		Name:   strings.TrimSpace(in.Name),
		Code:   normalizeCode(in.Code),
		Active: true,
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	if err := s.validate(ctx, p); err != nil {
		return models.Product{}, err
	}
	if err := s.store.PutProduct(ctx, p); err != nil {
		return models.Product{}, fmt.Errorf("save product: %w", err)
	}
	s.logger.Info("product created", zap.String("name", p.Name), zap.String("code", p.Code))
	return p, nil
}

// Update changes a product in place. Renaming does not touch orders that
// carry the old name as their work type.
func (s *ProductService) Update(ctx context.Context, id string, in ProductInput) (models.Product, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return models.Product{}, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		p.Name = name
	}
	if in.Code != "" {
		p.Code = normalizeCode(in.Code)
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	if err := s.validate(ctx, p); err != nil {
		return models.Product{}, err
	}
	if err := s.store.PutProduct(ctx, p); err != nil {
		return models.Product{}, fmt.Errorf("save product: %w", err)
	}
	return p, nil
}

// Delete removes the product after rewriting the work type of every order
// that references it to models.ProductNotFound. It returns how many orders
// were rewritten.
func (s *ProductService) Delete(ctx context.Context, id string) (int, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return 0, err
	}
	orders, err := s.store.ListOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list orders: %w", err)
	}
	rewritten := 0
	for _, o := range orders {
		if o.WorkType != p.Name {
			continue
		}
		o.WorkType = models.ProductNotFound
		if err := s.store.PutOrder(ctx, o); err != nil {
			return rewritten, fmt.Errorf("detach order %s: %w", o.ID, err)
		}
		rewritten++
	}
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return rewritten, fmt.Errorf("delete product: %w", err)
	}
	s.logger.Info("product deleted",
		zap.String("name", p.Name),
		zap.Int("orders_detached", rewritten),
	)
	return rewritten, nil
}

func (s *ProductService) get(ctx context.Context, id string) (models.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Product{}, ErrProductNotFound
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("load product %s: %w", id, err)
	}
	return p, nil
}

func (s *ProductService) validate(ctx context.Context, p models.Product) error {
	if p.Name == "" {
		return validationError("name is required")
	}
	if p.Name == models.ProductNotFound {
		return validationError("%q is reserved", models.ProductNotFound)
	}
	if p.Code == "" {
		return validationError("code is required")
	}
	existing, err := s.store.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	for _, other := range existing {
		if other.ID == p.ID {
			continue
		}
		if strings.EqualFold(other.Name, p.Name) {
			return fmt.Errorf("%w: product %q", ErrConflict, p.Name)
		}
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
