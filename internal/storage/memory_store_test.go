package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/harentsoaR/dentalab-api/internal/models"
)

func increment(current int64) (int64, error) { return current + 1, nil }

func TestMemoryStore_UpdateCounterConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.UpdateCounter(ctx, "ZC", func(int64) (int64, error) { return 10, nil })
	require.NoError(t, err)

	const n = 50
	var mu sync.Mutex
	got := make([]int64, 0, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			v, err := s.UpdateCounter(gctx, "ZC", increment)
			if err != nil {
				return err
			}
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i, v := range got {
		assert.Equal(t, int64(11+i), v)
	}
	last, err := s.GetCounter(ctx, "ZC")
	require.NoError(t, err)
	assert.Equal(t, int64(10+n), last)
}

func TestMemoryStore_UpdateCounterFnErrorPersistsNothing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := s.UpdateCounter(ctx, "EMV", func(int64) (int64, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	v, err := s.GetCounter(ctx, "EMV")
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestMemoryStore_Notifications(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.PutNotification(ctx, models.Notification{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.PutNotification(ctx, models.Notification{ID: "x", UserID: "u2", CreatedAt: base}))

	list, err := s.ListNotifications(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	require.NoError(t, s.MarkNotificationRead(ctx, "a"))
	all, err := s.ListNotifications(ctx, "u1", 0)
	require.NoError(t, err)
	assert.True(t, all[2].Read)

	assert.ErrorIs(t, s.MarkNotificationRead(ctx, "missing"), ErrNotFound)
}

func TestMemoryStore_OrdersAreCopied(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	o := models.Order{ID: "ZC-0001", TechnicianHistory: []string{"A"}}
	require.NoError(t, s.PutOrder(ctx, o))

	o.TechnicianHistory[0] = "B"
	got, err := s.GetOrder(ctx, "ZC-0001")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, got.TechnicianHistory)

	require.NoError(t, s.DeleteOrder(ctx, "ZC-0001"))
	_, err = s.GetOrder(ctx, "ZC-0001")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_IncrementCounter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const racers = 64
	var mu sync.Mutex
	seen := map[int64]bool{}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < racers; i++ {
		g.Go(func() error {
			v, err := s.IncrementCounter(gctx, "PFB")
			if err != nil {
				return err
			}
			mu.Lock()
			seen[v] = true
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, seen, racers)
	for v := int64(1); v <= racers; v++ {
		assert.True(t, seen[v], "missing %d", v)
	}
}

func TestWaitRetry(t *testing.T) {
	require.NoError(t, waitRetry(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, waitRetry(ctx, 20), context.Canceled)
	assert.Less(t, time.Since(start), retryMaxDelay)
}
