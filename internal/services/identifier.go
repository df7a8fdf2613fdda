package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/harentsoaR/dentalab-api/internal/models"
)

// FallbackCode namespaces orders whose work type is empty.
const FallbackCode = "GEN"

type ProductLister interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
}

// ResolveCode maps a work type to its product code. A product with that exact
// name and a code wins; otherwise the first two characters of the work type,
// upper-cased; otherwise FallbackCode.
func ResolveCode(products []models.Product, workType string) string {
	for _, p := range products {
		if p.Name == workType {
			if code := strings.TrimSpace(p.Code); code != "" {
				return code
			}
			break
		}
	}
	trimmed := strings.TrimSpace(workType)
	if trimmed == "" {
		return FallbackCode
	}
	r := []rune(trimmed)
	if len(r) > 2 {
		r = r[:2]
	}
	return strings.ToUpper(string(r))
}

// FormatID renders an order id. Sequences past 9999 widen the id.
func FormatID(code string, seq int64) string {
	return fmt.Sprintf("%s-%04d", code, seq)
}

type IdentifierFormatter struct {
	products  ProductLister
	allocator *SequenceAllocator
}

func NewIdentifierFormatter(products ProductLister, allocator *SequenceAllocator) *IdentifierFormatter {
	return &IdentifierFormatter{products: products, allocator: allocator}
}

// Format allocates the next id for workType.
func (f *IdentifierFormatter) Format(ctx context.Context, workType string) (string, error) {
	products, err := f.products.ListProducts(ctx)
	if err != nil {
		return "", fmt.Errorf("load products: %w", err)
	}
	code := ResolveCode(products, workType)
	seq, err := f.allocator.Allocate(ctx, code)
	if err != nil {
		return "", err
	}
	return FormatID(code, seq), nil
}
