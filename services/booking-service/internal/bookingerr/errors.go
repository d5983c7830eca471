// Package bookingerr is the caller-facing error taxonomy of the scheduling engine.
//
// Every error returned to a booking or modification caller wraps exactly one of
// the sentinel kinds below, so handlers can switch with errors.Is while still
// showing the specific message (which booking conflicts, which time is too soon).
package bookingerr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation                 = errors.New("validation error")
	ErrNotFound                   = errors.New("not found")
	ErrCapacityExhausted          = errors.New("capacity exhausted")
	ErrSlotUnbookable             = errors.New("slot unbookable")
	ErrConflict                   = errors.New("booking conflict")
	ErrModificationAlreadyPending = errors.New("modification already pending")
	ErrConcurrencyConflict        = errors.New("concurrency conflict")
	ErrInvalidTransition          = errors.New("invalid status transition")
	// ErrInventoryLeak means released capacity could not be restored. It is
	// never recoverable by the caller and must be alerted on.
	ErrInventoryLeak = errors.New("inventory leak")
)

type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Kind }

func newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error {
	return newf(ErrValidation, format, args...)
}

func NotFound(format string, args ...any) error {
	return newf(ErrNotFound, format, args...)
}

func CapacityExhausted(format string, args ...any) error {
	return newf(ErrCapacityExhausted, format, args...)
}

func SlotUnbookable(format string, args ...any) error {
	return newf(ErrSlotUnbookable, format, args...)
}

func Conflict(format string, args ...any) error {
	return newf(ErrConflict, format, args...)
}

func ModificationAlreadyPending(format string, args ...any) error {
	return newf(ErrModificationAlreadyPending, format, args...)
}

func ConcurrencyConflict(format string, args ...any) error {
	return newf(ErrConcurrencyConflict, format, args...)
}

func InvalidTransition(format string, args ...any) error {
	return newf(ErrInvalidTransition, format, args...)
}

// InventoryLeak wraps cause so the underlying storage failure stays inspectable.
func InventoryLeak(cause error, format string, args ...any) error {
	return errors.Join(newf(ErrInventoryLeak, format, args...), cause)
}

// HTTPStatus maps an error onto the status code the HTTP layer should return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInventoryLeak):
		return http.StatusInternalServerError
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSlotUnbookable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrCapacityExhausted),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrModificationAlreadyPending),
		errors.Is(err, ErrConcurrencyConflict),
		errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Code is a stable machine-readable name for the error kind.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInventoryLeak):
		return "inventory_leak"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCapacityExhausted):
		return "capacity_exhausted"
	case errors.Is(err, ErrSlotUnbookable):
		return "slot_unbookable"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrModificationAlreadyPending):
		return "modification_already_pending"
	case errors.Is(err, ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "internal_error"
	}
}

// IsCallerFacing reports whether err belongs to the recoverable taxonomy and
// its message can be shown to the caller verbatim.
func IsCallerFacing(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return !errors.Is(err, ErrInventoryLeak)
}
