package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harentsoaR/dentalab-api/internal/models"
)

// fakeScript is an in-memory stand-in for the spreadsheet web app.
type fakeScript struct {
	mu          sync.Mutex
	sheets      map[string]map[string]json.RawMessage
	failWrites  bool
	rejectSwaps bool
}

func newFakeScript() *fakeScript {
	return &fakeScript{sheets: map[string]map[string]json.RawMessage{}}
}

func (f *fakeScript) setFailWrites(v bool) {
	f.mu.Lock()
	f.failWrites = v
	f.mu.Unlock()
}

func (f *fakeScript) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string          `json:"action"`
		Sheet  string          `json:"sheet"`
		ID     string          `json:"id"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	sheet := f.sheets[req.Sheet]
	if sheet == nil {
		sheet = map[string]json.RawMessage{}
		f.sheets[req.Sheet] = sheet
	}

	reply := func(resp SheetResponse) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}

	switch req.Action {
	case ActionList:
		keys := make([]string, 0, len(sheet))
		for k := range sheet {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rows := make([]json.RawMessage, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, sheet[k])
		}
		data, _ := json.Marshal(rows)
		reply(SheetResponse{Success: true, Data: data})
	case ActionGet:
		row, ok := sheet[req.ID]
		if !ok {
			reply(SheetResponse{NotFound: true})
			return
		}
		reply(SheetResponse{Success: true, Data: row})
	case ActionUpsert:
		if f.failWrites {
			http.Error(w, "quota exceeded", http.StatusInternalServerError)
			return
		}
		sheet[req.ID] = req.Data
		reply(SheetResponse{Success: true})
	case ActionPatch:
		row, ok := sheet[req.ID]
		if !ok {
			reply(SheetResponse{NotFound: true})
			return
		}
		merged := map[string]any{}
		_ = json.Unmarshal(row, &merged)
		_ = json.Unmarshal(req.Data, &merged)
		sheet[req.ID], _ = json.Marshal(merged)
		reply(SheetResponse{Success: true})
	case ActionDelete:
		if _, ok := sheet[req.ID]; !ok {
			reply(SheetResponse{NotFound: true})
			return
		}
		delete(sheet, req.ID)
		reply(SheetResponse{Success: true})
	case ActionCAS:
		var cas CASData
		_ = json.Unmarshal(req.Data, &cas)
		var current models.SequenceCounter
		if row, ok := sheet[req.ID]; ok {
			_ = json.Unmarshal(row, &current)
		}
		if f.rejectSwaps || current.LastSequence != cas.Expected {
			reply(SheetResponse{Conflict: true})
			return
		}
		sheet[req.ID], _ = json.Marshal(models.SequenceCounter{Code: req.ID, LastSequence: cas.Value})
		reply(SheetResponse{Success: true})
	default:
		reply(SheetResponse{Error: "unknown action " + req.Action})
	}
}

func setupSheetStore(t *testing.T) (*fakeScript, *SheetStore) {
	script := newFakeScript()
	srv := httptest.NewServer(script)
	t.Cleanup(srv.Close)
	return script, NewSheetStore(srv.URL, 5*time.Second, zap.NewNop())
}

func TestSheetStore_OrderRoundTrip(t *testing.T) {
	script, store := setupSheetStore(t)
	ctx := context.Background()

	order := models.Order{
		ID:                "ZC-0001",
		PatientName:       "Jane Roe",
		WorkType:          "Zirconia Crown",
		Status:            models.StatusSubmitted,
		TechnicianHistory: []string{"Tech Mike"},
	}
	require.NoError(t, store.PutOrder(ctx, order))
	assert.Contains(t, script.sheets[SheetOrders], "ZC-0001")

	// a second client has no mirror and must read from the sheet
	srv := httptest.NewServer(script)
	defer srv.Close()
	other := NewSheetStore(srv.URL, 5*time.Second, zap.NewNop())
	got, err := other.GetOrder(ctx, "ZC-0001")
	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", got.PatientName)
	assert.Equal(t, []string{"Tech Mike"}, got.TechnicianHistory)

	list, err := other.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteOrder(ctx, "ZC-0001"))
	_, err = store.GetOrder(ctx, "ZC-0001")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteOrder(ctx, "ZC-0001"), ErrNotFound)
}

func TestSheetStore_FailedWriteRollsBackMirror(t *testing.T) {
	script, store := setupSheetStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutOrder(ctx, models.Order{ID: "ZC-0001", Shade: "A1"}))

	script.setFailWrites(true)
	err := store.PutOrder(ctx, models.Order{ID: "ZC-0001", Shade: "B2"})
	require.Error(t, err)
	err = store.PutOrder(ctx, models.Order{ID: "ZC-0002", Shade: "C3"})
	require.Error(t, err)

	got, err := store.GetOrder(ctx, "ZC-0001")
	require.NoError(t, err)
	assert.Equal(t, "A1", got.Shade)

	_, err = store.GetOrder(ctx, "ZC-0002")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSheetStore_UpdateCounter(t *testing.T) {
	_, store := setupSheetStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.UpdateCounter(ctx, "ZC", increment)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	const racers = 40
	var mu sync.Mutex
	seen := map[int64]bool{}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < racers; i++ {
		g.Go(func() error {
			v, err := store.IncrementCounter(gctx, "ZC")
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
	want := map[int64]bool{}
	for v := int64(4); v < 4+racers; v++ {
		want[v] = true
	}
	assert.Equal(t, want, seen)

	last, err := store.GetCounter(ctx, "ZC")
	require.NoError(t, err)
	assert.Equal(t, int64(3+racers), last)

	other, err := store.UpdateCounter(ctx, "EMV", increment)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}

func TestSheetStore_UpdateCounterGivesUpWhenContextEnds(t *testing.T) {
	script, store := setupSheetStore(t)
	script.mu.Lock()
	script.rejectSwaps = true
	script.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := store.IncrementCounter(ctx, "ZC")
	assert.ErrorIs(t, err, ErrCounterConflict)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got, err := store.GetCounter(context.Background(), "ZC")
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestSheetStore_GetOrderSeesOtherClients(t *testing.T) {
	script, first := setupSheetStore(t)
	ctx := context.Background()
	srv := httptest.NewServer(script)
	defer srv.Close()
	second := NewSheetStore(srv.URL, 5*time.Second, zap.NewNop())

	require.NoError(t, first.PutOrder(ctx, models.Order{ID: "ZC-0001", Status: models.StatusSubmitted}))
	got, err := first.GetOrder(ctx, "ZC-0001")
	require.NoError(t, err)
	require.Equal(t, models.StatusSubmitted, got.Status)

	theirs, err := second.GetOrder(ctx, "ZC-0001")
	require.NoError(t, err)
	theirs.Status = models.StatusDelivered
	require.NoError(t, second.PutOrder(ctx, theirs))

	got, err = first.GetOrder(ctx, "ZC-0001")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)

	require.NoError(t, second.DeleteOrder(ctx, "ZC-0001"))
	_, err = first.GetOrder(ctx, "ZC-0001")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSheetStore_UsersKeepPasswordHash(t *testing.T) {
	_, store := setupSheetStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutUser(ctx, models.User{
		ID:       "u1",
		FullName: "Dr. Smith",
		Email:    "smith@example.com",
		Password: "$2a$hash",
		Role:     models.RoleDoctor,
	}))

	u, err := store.GetUserByEmail(ctx, "smith@example.com")
	require.NoError(t, err)
	assert.Equal(t, "$2a$hash", u.Password)
	assert.Equal(t, models.RoleDoctor, u.Role)

	_, err = store.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSheetStore_Notifications(t *testing.T) {
	_, store := setupSheetStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.PutNotification(ctx, models.Notification{ID: "n1", UserID: "u1", CreatedAt: base}))
	require.NoError(t, store.PutNotification(ctx, models.Notification{ID: "n2", UserID: "u1", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, store.PutNotification(ctx, models.Notification{ID: "n3", UserID: "u2", CreatedAt: base}))

	list, err := store.ListNotifications(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n2", list[0].ID)

	require.NoError(t, store.MarkNotificationRead(ctx, "n1"))
	list, err = store.ListNotifications(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Read)

	list, err = store.ListNotifications(ctx, "u1", 0)
	require.NoError(t, err)
	assert.True(t, list[1].Read)
}
