package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/harentsoaR/dentalab-api/internal/models"
)

// Sheet names used by the spreadsheet script.
const (
	SheetUsers         = "Users"
	SheetProducts      = "Products"
	SheetOrders        = "Orders"
	SheetNotifications = "Notifications"
	SheetCounters      = "Counters"
)

// Envelope actions understood by the spreadsheet script.
const (
	ActionList   = "list"
	ActionGet    = "get"
	ActionUpsert = "upsert"
	ActionPatch  = "patch"
	ActionDelete = "delete"
	ActionCAS    = "cas"
)

var _ Gateway = (*SheetStore)(nil)

// SheetRequest is the JSON envelope POSTed to the script endpoint.
type SheetRequest struct {
	Action string `json:"action"`
	Sheet  string `json:"sheet"`
	Data   any    `json:"data,omitempty"`
	ID     string `json:"id,omitempty"`
}

type SheetResponse struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	NotFound bool            `json:"notFound,omitempty"`
	Conflict bool            `json:"conflict,omitempty"`
}

// CASData is the payload of a counter compare-and-swap.
type CASData struct {
	Expected int64 `json:"expected"`
	Value    int64 `json:"value"`
}

// SheetStore talks to a spreadsheet-backed script over HTTP. The mirror holds
// the last order state this process saw or wrote. Writes are applied to it
// before the remote call and a failed remote write restores the previous
// entry. Reads always go to the sheet.
type SheetStore struct {
	httpClient *resty.Client
	endpoint   string
	logger     *zap.Logger

	mu     sync.RWMutex
	mirror map[string]models.Order
}

func NewSheetStore(endpoint string, timeout time.Duration, logger *zap.Logger) *SheetStore {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &SheetStore{
		httpClient: client,
		endpoint:   endpoint,
		logger:     logger,
		mirror:     map[string]models.Order{},
	}
}

func (s *SheetStore) call(ctx context.Context, req SheetRequest, out any) error {
	var resp SheetResponse
	r, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)
	if err != nil {
		return fmt.Errorf("sheets %s %s: %w", req.Action, req.Sheet, err)
	}
	if r.IsError() {
		return fmt.Errorf("sheets %s %s: http status %d", req.Action, req.Sheet, r.StatusCode())
	}
	if resp.NotFound {
		return ErrNotFound
	}
	if !resp.Success {
		if resp.Conflict {
			return ErrCounterConflict
		}
		return fmt.Errorf("sheets %s %s: %s", req.Action, req.Sheet, resp.Error)
	}
	if out == nil || len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("sheets %s %s: decode: %w", req.Action, req.Sheet, err)
	}
	return nil
}

// ---- users ----

// sheetUser carries the password hash, which models.User keeps out of JSON.
type sheetUser struct {
	models.User
	Password string `json:"password"`
}

func (u sheetUser) user() models.User {
	out := u.User
	out.Password = u.Password
	return out
}

func (s *SheetStore) ListUsers(ctx context.Context) ([]models.User, error) {
	var rows []sheetUser
	if err := s.call(ctx, SheetRequest{Action: ActionList, Sheet: SheetUsers}, &rows); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (s *SheetStore) GetUser(ctx context.Context, id string) (models.User, error) {
	var row sheetUser
	if err := s.call(ctx, SheetRequest{Action: ActionGet, Sheet: SheetUsers, ID: id}, &row); err != nil {
		return models.User{}, err
	}
	return row.user(), nil
}

// GetUserByEmail scans the user sheet; the script has no secondary lookups.
func (s *SheetStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return models.User{}, err
	}
	for _, u := range users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (s *SheetStore) PutUser(ctx context.Context, u models.User) error {
	row := sheetUser{User: u, Password: u.Password}
	return s.call(ctx, SheetRequest{Action: ActionUpsert, Sheet: SheetUsers, ID: u.ID, Data: row}, nil)
}

func (s *SheetStore) DeleteUser(ctx context.Context, id string) error {
	return s.call(ctx, SheetRequest{Action: ActionDelete, Sheet: SheetUsers, ID: id}, nil)
}

// ---- products ----

func (s *SheetStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.call(ctx, SheetRequest{Action: ActionList, Sheet: SheetProducts}, &products)
	return products, err
}

func (s *SheetStore) GetProduct(ctx context.Context, id string) (models.Product, error) {
	var p models.Product
	err := s.call(ctx, SheetRequest{Action: ActionGet, Sheet: SheetProducts, ID: id}, &p)
	return p, err
}

func (s *SheetStore) PutProduct(ctx context.Context, p models.Product) error {
	return s.call(ctx, SheetRequest{Action: ActionUpsert, Sheet: SheetProducts, ID: p.ID, Data: p}, nil)
}

func (s *SheetStore) DeleteProduct(ctx context.Context, id string) error {
	return s.call(ctx, SheetRequest{Action: ActionDelete, Sheet: SheetProducts, ID: id}, nil)
}

// ---- orders ----

// ListOrders always goes to the sheet and refreshes the mirror.
func (s *SheetStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := s.call(ctx, SheetRequest{Action: ActionList, Sheet: SheetOrders}, &orders); err != nil {
		return nil, err
	}
	sortOrders(orders)

	s.mu.Lock()
	s.mirror = make(map[string]models.Order, len(orders))
	for _, o := range orders {
		s.mirror[o.ID] = o.Clone()
	}
	s.mu.Unlock()
	return orders, nil
}

// GetOrder always reads the sheet. Other processes and people editing the
// sheet by hand write to it too, so the mirror is never served.
func (s *SheetStore) GetOrder(ctx context.Context, id string) (models.Order, error) {
	var o models.Order
	err := s.call(ctx, SheetRequest{Action: ActionGet, Sheet: SheetOrders, ID: id}, &o)
	s.mu.Lock()
	switch {
	case err == nil:
		s.mirror[id] = o.Clone()
	case errors.Is(err, ErrNotFound):
		delete(s.mirror, id)
	}
	s.mu.Unlock()
	if err != nil {
		return models.Order{}, err
	}
	return o, nil
}

func (s *SheetStore) PutOrder(ctx context.Context, o models.Order) error {
	s.mu.Lock()
	prev, had := s.mirror[o.ID]
	s.mirror[o.ID] = o.Clone()
	s.mu.Unlock()

	err := s.call(ctx, SheetRequest{Action: ActionUpsert, Sheet: SheetOrders, ID: o.ID, Data: o}, nil)
	if err != nil {
		s.mu.Lock()
		if had {
			s.mirror[o.ID] = prev
		} else {
			delete(s.mirror, o.ID)
		}
		s.mu.Unlock()
		s.logger.Warn("sheet order write failed, mirror rolled back", zap.String("order_id", o.ID), zap.Error(err))
		return err
	}
	return nil
}

func (s *SheetStore) DeleteOrder(ctx context.Context, id string) error {
	s.mu.Lock()
	prev, had := s.mirror[id]
	delete(s.mirror, id)
	s.mu.Unlock()

	err := s.call(ctx, SheetRequest{Action: ActionDelete, Sheet: SheetOrders, ID: id}, nil)
	if err != nil && !errors.Is(err, ErrNotFound) && had {
		s.mu.Lock()
		s.mirror[id] = prev
		s.mu.Unlock()
		s.logger.Warn("sheet order delete failed, mirror rolled back", zap.String("order_id", id), zap.Error(err))
	}
	return err
}

// ---- notifications ----

func (s *SheetStore) PutNotification(ctx context.Context, n models.Notification) error {
	return s.call(ctx, SheetRequest{Action: ActionUpsert, Sheet: SheetNotifications, ID: n.ID, Data: n}, nil)
}

func (s *SheetStore) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var all []models.Notification
	filter := map[string]string{"userId": userID}
	if err := s.call(ctx, SheetRequest{Action: ActionList, Sheet: SheetNotifications, Data: filter}, &all); err != nil {
		return nil, err
	}
	out := all[:0]
	for _, n := range all {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SheetStore) MarkNotificationRead(ctx context.Context, id string) error {
	return s.call(ctx, SheetRequest{Action: ActionPatch, Sheet: SheetNotifications, ID: id, Data: map[string]any{"read": true}}, nil)
}

// ---- counters ----

func (s *SheetStore) GetCounter(ctx context.Context, code string) (int64, error) {
	var c models.SequenceCounter
	err := s.call(ctx, SheetRequest{Action: ActionGet, Sheet: SheetCounters, ID: code}, &c)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	return c.LastSequence, err
}

// UpdateCounter relies on the script's cas action, which holds the sheet lock
// and rejects the write when the stored value is no longer Expected. A
// rejected write re-reads the counter and tries again after a short backoff
// until ctx is done.
func (s *SheetStore) UpdateCounter(ctx context.Context, code string, fn CounterFunc) (int64, error) {
	gaveUp := func() error { return fmt.Errorf("%w: %s: %w", ErrCounterConflict, code, ctx.Err()) }
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if waitRetry(ctx, attempt) != nil {
				return 0, gaveUp()
			}
		}
		current, err := s.GetCounter(ctx, code)
		if err != nil {
			if attempt > 0 && ctx.Err() != nil {
				return 0, gaveUp()
			}
			return 0, err
		}
		next, err := fn(current)
		if err != nil {
			return 0, err
		}
		err = s.call(ctx, SheetRequest{
			Action: ActionCAS,
			Sheet:  SheetCounters,
			ID:     code,
			Data:   CASData{Expected: current, Value: next},
		}, nil)
		if errors.Is(err, ErrCounterConflict) {
			s.logger.Debug("counter cas lost race", zap.String("code", code), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			if attempt > 0 && ctx.Err() != nil {
				return 0, gaveUp()
			}
			return 0, err
		}
		return next, nil
	}
}

func (s *SheetStore) IncrementCounter(ctx context.Context, code string) (int64, error) {
	return s.UpdateCounter(ctx, code, nextSequence)
}
