package ledger

import (
	"errors"
	"fmt"

	"github.com/ukydev/trip-ledger/internal/models"
)

// Sentinel errors. Every typed error below matches one of them with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTripSettled       = errors.New("trip is settled")
	ErrNotFound          = errors.New("not found")
	ErrPersistence       = errors.New("persistence failure")
	ErrConflict          = errors.New("trip was changed by another request")
)

// ValidationError is a rejected input. Message is safe to show to users.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidTransitionError is a status move that is not one step away from
// the current status. A mutation on a settled trip is reported as a
// transition error too and additionally matches ErrTripSettled.
type InvalidTransitionError struct {
	From    models.Status
	To      models.Status
	Settled bool
}

func (e *InvalidTransitionError) Error() string {
	if e.Settled {
		return "trip is settled; no further changes are allowed"
	}
	return fmt.Sprintf("cannot move trip from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition || (e.Settled && target == ErrTripSettled)
}

// PersistenceError wraps a store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// ErrAmountExceedsBalance is returned when an advance would overpay the
// party balance.
var ErrAmountExceedsBalance = &ValidationError{Message: "amount exceeds pending balance"}

func tripSettled(status models.Status) error {
	return &InvalidTransitionError{From: status, To: status, Settled: true}
}
