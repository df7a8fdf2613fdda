package services

import (
	"context"
	"fmt"
)

type CounterStore interface {
	IncrementCounter(ctx context.Context, code string) (int64, error)
}

// SequenceAllocator hands out per product code sequence numbers. Each call is
// one atomic counter update in the store; a failed update issues nothing and
// the caller decides whether to retry.
type SequenceAllocator struct {
	counters CounterStore
}

func NewSequenceAllocator(counters CounterStore) *SequenceAllocator {
	return &SequenceAllocator{counters: counters}
}

func (a *SequenceAllocator) Allocate(ctx context.Context, code string) (int64, error) {
	if code == "" {
		return 0, validationError("product code is empty")
	}
	next, err := a.counters.IncrementCounter(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("%w for %s: %w", ErrAllocation, code, err)
	}
	if next < 1 {
		return 0, fmt.Errorf("%w for %s: counter holds %d", ErrAllocation, code, next)
	}
	return next, nil
}
