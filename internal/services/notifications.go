package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harentsoaR/dentalab-api/internal/models"
	"github.com/harentsoaR/dentalab-api/internal/storage"
)

// InboxSize is how many notifications the bell shows per user.
const InboxSize = 20

type NotificationStore interface {
	PutNotification(ctx context.Context, n models.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// NotificationService writes per-user notification records and serves the
// user's inbox.
type NotificationService struct {
	store  NotificationStore
	logger *zap.Logger
	now    func() time.Time
}

func NewNotificationService(store NotificationStore, logger *zap.Logger) *NotificationService {
	return &NotificationService{store: store, logger: logger, now: time.Now}
}

// Notify stores an unread notification for userID. It never reads back what
// it wrote.
func (s *NotificationService) Notify(ctx context.Context, userID, title, message string, kind models.NotificationKind, link string) error {
	n := models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Kind:      kind,
		Read:      false,
		CreatedAt: s.now().UTC(),
		Link:      link,
	}
	if err := s.store.PutNotification(ctx, n); err != nil {
		return fmt.Errorf("store notification for %s: %w", userID, err)
	}
	s.logger.Debug("notification stored",
		zap.String("user_id", userID),
		zap.String("title", title),
	)
	return nil
}

// List returns the newest notifications of userID, at most limit (InboxSize
// when limit <= 0).
func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = InboxSize
	}
	list, err := s.store.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if list == nil {
		list = make([]models.Notification, 0)
	}
	return list, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	all, err := s.store.ListNotifications(ctx, userID, 0)
	if err != nil {
		return 0, fmt.Errorf("list notifications: %w", err)
	}
	count := 0
	for _, n := range all {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

// MarkRead flips one notification to read. Only the owner may do so.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	all, err := s.store.ListNotifications(ctx, userID, 0)
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}
	for _, n := range all {
		if n.ID != id {
			continue
		}
		if n.Read {
			return nil
		}
		err := s.store.MarkNotificationRead(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	return ErrNotificationNotFound
}

// MarkAllRead marks every unread notification of userID and returns how many
// changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	all, err := s.store.ListNotifications(ctx, userID, 0)
	if err != nil {
		return 0, fmt.Errorf("list notifications: %w", err)
	}
	marked := 0
	for _, n := range all {
		if n.Read {
			continue
		}
		if err := s.store.MarkNotificationRead(ctx, n.ID); err != nil {
			return marked, fmt.Errorf("mark notification %s read: %w", n.ID, err)
		}
		marked++
	}
	return marked, nil
}
