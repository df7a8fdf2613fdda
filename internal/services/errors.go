package services

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrConflict             = errors.New("already exists")
	ErrOrderNotFound        = errors.New("order not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidStatus        = errors.New("invalid order status")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAllocation           = errors.New("sequence allocation failed")
	ErrPartialMigration     = errors.New("order migrated but old record was not removed")
)

// MigrationError reports a work type change whose new record was written but
// whose old record could not be deleted. Both ids resolve until an admin
// removes OldID.
type MigrationError struct {
	OldID string
	NewID string
	Err   error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("order %s migrated to %s but old record remains: %v", e.OldID, e.NewID, e.Err)
}

func (e *MigrationError) Is(target error) bool { return target == ErrPartialMigration }

func (e *MigrationError) Unwrap() error { return e.Err }

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
