package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harentsoaR/dentalab-api/internal/events"
	"github.com/harentsoaR/dentalab-api/internal/models"
	"github.com/harentsoaR/dentalab-api/internal/storage"
)

type OrderStore interface {
	ListOrders(ctx context.Context) ([]models.Order, error)
	GetOrder(ctx context.Context, id string) (models.Order, error)
	PutOrder(ctx context.Context, o models.Order) error
	DeleteOrder(ctx context.Context, id string) error
}

type Notifier interface {
	Notify(ctx context.Context, userID, title, message string, kind models.NotificationKind, link string) error
}

// UserDirectory resolves notification recipients.
type UserDirectory interface {
	Users(ctx context.Context) ([]models.User, error)
}

// doctorVisible are the statuses the ordering doctor is told about.
var doctorVisible = map[models.Status]bool{
	models.StatusReceived:   true,
	models.StatusDispatched: true,
	models.StatusDelivered:  true,
}

// OrderFilter narrows ListOrders. Empty fields match everything.
type OrderFilter struct {
	Status       models.Status
	Priority     models.Priority
	DoctorName   string
	AssignedTech string
}

func (f OrderFilter) match(o models.Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.Priority != "" && o.Priority != f.Priority {
		return false
	}
	if f.DoctorName != "" && o.DoctorName != f.DoctorName {
		return false
	}
	if f.AssignedTech != "" && o.AssignedTech != f.AssignedTech {
		return false
	}
	return true
}

// OrderService runs the order lifecycle: creation with generated ids, field
// updates, work type migration, status moves and technician handover, with
// notifications as side effects. Notification and event failures are logged
// and never fail the order operation.
type OrderService struct {
	store     OrderStore
	ids       *IdentifierFormatter
	notifier  Notifier
	directory UserDirectory
	events    events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewOrderService(
	store OrderStore,
	ids *IdentifierFormatter,
	notifier Notifier,
	directory UserDirectory,
	publisher events.Publisher,
	logger *zap.Logger,
) *OrderService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &OrderService{
		store:     store,
		ids:       ids,
		notifier:  notifier,
		directory: directory,
		events:    publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (models.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Order{}, ErrOrderNotFound
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("load order %s: %w", id, err)
	}
	return o, nil
}

func (s *OrderService) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	all, err := s.store.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]models.Order, 0, len(all))
	for _, o := range all {
		if filter.match(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

// --- CREATE ---

func (s *OrderService) CreateOrder(ctx context.Context, d models.OrderDraft) (models.Order, error) {
	if err := validateDraft(&d); err != nil {
		return models.Order{}, err
	}
	submitted := d.SubmissionDate
	if submitted.IsZero() {
		submitted = s.now().UTC()
	}

	id, err := s.ids.Format(ctx, d.WorkType)
	if err != nil {
		return models.Order{}, err
	}

	history := []string{}
	if d.AssignedTech != "" {
		history = append(history, d.AssignedTech)
	}
	order := models.Order{
		ID:                id,
		PatientName:       d.PatientName,
		DoctorName:        d.DoctorName,
		ClinicName:        d.ClinicName,
		ToothNumber:       d.ToothNumber,
		Shade:             d.Shade,
		WorkType:          d.WorkType,
		Status:            models.StatusSubmitted,
		SubmissionDate:    submitted,
		DueDate:           d.DueDate,
		Priority:          d.Priority,
		Notes:             d.Notes,
		AssignedTech:      d.AssignedTech,
		TechnicianHistory: history,
		Attachments:       d.Attachments,
	}
	if err := s.store.PutOrder(ctx, order); err != nil {
		return models.Order{}, fmt.Errorf("save order %s: %w", id, err)
	}
	s.logger.Info("order created",
		zap.String("order_id", id),
		zap.String("doctor", order.DoctorName),
		zap.String("work_type", order.WorkType),
	)

	if users, ok := s.recipients(ctx); ok {
		msg := fmt.Sprintf("%s submitted %s (%s) for patient %s.", order.DoctorName, order.ID, order.WorkType, order.PatientName)
		for _, admin := range usersWithRole(users, models.RoleAdmin) {
			s.notify(ctx, admin.ID, "New Order Received", msg, models.KindInfo, order.ID)
		}
	}
	s.publish(ctx, events.OrderCreated, order, "")
	return order, nil
}

func validateDraft(d *models.OrderDraft) error {
	d.PatientName = strings.TrimSpace(d.PatientName)
	d.DoctorName = strings.TrimSpace(d.DoctorName)
	d.WorkType = strings.TrimSpace(d.WorkType)
	d.AssignedTech = strings.TrimSpace(d.AssignedTech)

	if err := checkStruct(d); err != nil {
		return err
	}
	if d.Priority == "" {
		d.Priority = models.PriorityNormal
	}
	if !d.Priority.Valid() {
		return validationError("priority must be %q or %q", models.PriorityNormal, models.PriorityUrgent)
	}
	return nil
}

// --- UPDATE ---

// UpdateOrder applies patch to the order id. A changed work type moves the
// order to a freshly allocated id and the returned order carries it; callers
// must drop the old id. When the move wrote the new record but could not
// delete the old one, the new order is returned together with a
// *MigrationError.
func (s *OrderService) UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) (models.Order, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return models.Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, *patch.Status)
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return models.Order{}, validationError("priority must be %q or %q", models.PriorityNormal, models.PriorityUrgent)
	}
	if patch.WorkType != nil {
		trimmed := strings.TrimSpace(*patch.WorkType)
		if trimmed == "" {
			return models.Order{}, validationError("workType cannot be empty")
		}
		patch.WorkType = &trimmed
	}

	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return models.Order{}, err
	}

	updated := patch.Apply(current)

	techChanged := patch.AssignedTech != nil && *patch.AssignedTech != "" && *patch.AssignedTech != current.AssignedTech
	if techChanged {
		updated.TechnicianHistory = appendTechnician(updated.TechnicianHistory, *patch.AssignedTech)
	}
	statusChanged := patch.Status != nil && *patch.Status != current.Status

	var resultErr error
	if patch.WorkType != nil && *patch.WorkType != current.WorkType {
		updated, resultErr = s.migrate(ctx, current.ID, updated)
		if updated.ID == "" {
			return models.Order{}, resultErr
		}
	} else {
		if err := s.store.PutOrder(ctx, updated); err != nil {
			return models.Order{}, fmt.Errorf("update order %s: %w", id, err)
		}
		s.publish(ctx, events.OrderUpdated, updated, "")
	}

	s.notifyChanges(ctx, updated, current.Status, techChanged, statusChanged)
	return updated, resultErr
}

// migrate writes updated under a new id for its work type, then deletes
// oldID. A failed write leaves the old record untouched; a failed delete
// leaves both records in place.
func (s *OrderService) migrate(ctx context.Context, oldID string, updated models.Order) (models.Order, error) {
	newID, err := s.ids.Format(ctx, updated.WorkType)
	if err != nil {
		return models.Order{}, err
	}
	updated.ID = newID
	if err := s.store.PutOrder(ctx, updated); err != nil {
		return models.Order{}, fmt.Errorf("write migrated order %s: %w", newID, err)
	}

	s.publish(ctx, events.OrderMigrated, updated, oldID)

	if err := s.store.DeleteOrder(ctx, oldID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("order migration left a duplicate record",
			zap.String("old_id", oldID),
			zap.String("new_id", newID),
			zap.Error(err),
		)
		return updated, &MigrationError{OldID: oldID, NewID: newID, Err: err}
	}
	s.logger.Info("order migrated", zap.String("old_id", oldID), zap.String("new_id", newID))
	return updated, nil
}

// appendTechnician records a new assignee. Only a real change of assignee
// reaches here, so A -> B -> A yields [A B A]; the guard keeps a re-assign
// after an unassign from repeating the last name.
func appendTechnician(history []string, tech string) []string {
	if n := len(history); n > 0 && history[n-1] == tech {
		return history
	}
	return append(history, tech)
}

func (s *OrderService) notifyChanges(ctx context.Context, order models.Order, prevStatus models.Status, techChanged, statusChanged bool) {
	if !techChanged && !statusChanged {
		return
	}
	users, ok := s.recipients(ctx)
	if !ok {
		return
	}
	admins := usersWithRole(users, models.RoleAdmin)

	if techChanged {
		if tech, found := findUser(users, models.RoleTechnician, order.AssignedTech); found {
			msg := fmt.Sprintf("Case %s (%s) for patient %s has been assigned to you.", order.ID, order.WorkType, order.PatientName)
			s.notify(ctx, tech.ID, "New Case Assigned", msg, models.KindInfo, order.ID)
		} else {
			s.logger.Debug("assigned technician has no account", zap.String("technician", order.AssignedTech))
		}
		msg := fmt.Sprintf("%s was assigned to case %s.", order.AssignedTech, order.ID)
		for _, admin := range admins {
			s.notify(ctx, admin.ID, "Technician Assigned", msg, models.KindInfo, order.ID)
		}
	}

	if statusChanged {
		if doctorVisible[order.Status] {
			if doctor, found := findUser(users, models.RoleDoctor, order.DoctorName); found {
				msg := fmt.Sprintf("Case %s for patient %s is now %s.", order.ID, order.PatientName, order.Status)
				s.notify(ctx, doctor.ID, "Case "+string(order.Status), msg, models.KindSuccess, order.ID)
			}
		}
		msg := fmt.Sprintf("Case %s moved from %s to %s.", order.ID, prevStatus, order.Status)
		for _, admin := range admins {
			s.notify(ctx, admin.ID, "Status Update", msg, models.KindInfo, order.ID)
		}
	}
}

// --- STATUS & HANDOVER ---

// AdvanceStatus moves order to the next pipeline stage. A delivered order is
// returned unchanged.
func (s *OrderService) AdvanceStatus(ctx context.Context, order models.Order) (models.Order, error) {
	if order.Status.Terminal() {
		return order, nil
	}
	if !order.Status.Valid() {
		return models.Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, order.Status)
	}
	next := order.Status.Next()
	return s.UpdateOrder(ctx, order.ID, models.OrderPatch{Status: &next})
}

// ReassignTechnician hands the case to another technician.
func (s *OrderService) ReassignTechnician(ctx context.Context, id, technician string) (models.Order, error) {
	technician = strings.TrimSpace(technician)
	if technician == "" {
		return models.Order{}, validationError("technician is required")
	}
	return s.UpdateOrder(ctx, id, models.OrderPatch{AssignedTech: &technician})
}

// --- DELETE ---

func (s *OrderService) DeleteOrder(ctx context.Context, id string) error {
	err := s.store.DeleteOrder(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	s.logger.Info("order deleted", zap.String("order_id", id))
	s.publish(ctx, events.OrderDeleted, models.Order{ID: id}, "")
	return nil
}

// --- helpers ---

func (s *OrderService) recipients(ctx context.Context) ([]models.User, bool) {
	users, err := s.directory.Users(ctx)
	if err != nil {
		s.logger.Warn("cannot load users for notifications", zap.Error(err))
		return nil, false
	}
	return users, true
}

func (s *OrderService) notify(ctx context.Context, userID, title, message string, kind models.NotificationKind, orderID string) {
	if err := s.notifier.Notify(ctx, userID, title, message, kind, "/orders/"+orderID); err != nil {
		s.logger.Warn("notification not delivered",
			zap.String("user_id", userID),
			zap.String("title", title),
			zap.Error(err),
		)
	}
}

func (s *OrderService) publish(ctx context.Context, kind string, order models.Order, previousID string) {
	e := events.OrderEvent{
		Type:       kind,
		OrderID:    order.ID,
		PreviousID: previousID,
		OccurredAt: s.now().UTC(),
	}
	if kind != events.OrderDeleted {
		o := order
		e.Order = &o
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("order event not published", zap.String("type", kind), zap.String("order_id", order.ID), zap.Error(err))
	}
}

func usersWithRole(users []models.User, role models.Role) []models.User {
	var out []models.User
	for _, u := range users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out
}

// findUser matches by exact display name, the link orders carry.
func findUser(users []models.User, role models.Role, fullName string) (models.User, bool) {
	if fullName == "" {
		return models.User{}, false
	}
	for _, u := range users {
		if u.Role == role && u.FullName == fullName {
			return u, true
		}
	}
	return models.User{}, false
}
