// Package storage persists venues, templates, slots, bookings, modification
// requests and outbox events. Postgres is the production backend; Memory backs
// tests and single-process demos with the same atomicity guarantees.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
)

var (
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when a unique key (idempotency key, pending
	// modification, venue id) already exists.
	ErrDuplicate = errors.New("storage: duplicate")
	// ErrNoCapacity is returned by ReserveSlot when tables_booked already
	// equals available_tables.
	ErrNoCapacity = errors.New("storage: no capacity")
	// ErrRollbackFailed is joined into the error returned by RunInTx when the
	// transaction body failed and its writes could not be undone.
	ErrRollbackFailed = errors.New("storage: rollback failed")
)

// Store is the persistence surface of the engine. Every method may be called
// inside RunInTx, in which case it observes and joins that transaction.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	CreateVenue(ctx context.Context, v *model.Venue) error
	GetVenue(ctx context.Context, id string) (model.Venue, error)
	ListVenuesByRegion(ctx context.Context, region string) ([]model.Venue, error)
	UpdateVenueHours(ctx context.Context, id string, business, prime model.WeeklyHours, at time.Time) error

	GetTemplate(ctx context.Context, key model.TemplateKey) (model.ScheduleTemplate, bool, error)
	GetTemplateByID(ctx context.Context, id string) (model.ScheduleTemplate, error)
	ListTemplates(ctx context.Context, venueID string, day time.Weekday) ([]model.ScheduleTemplate, error)
	// UpsertTemplates inserts or overwrites rows by TemplateKey.
	UpsertTemplates(ctx context.Context, rows []model.ScheduleTemplate) error
	// InsertMissingTemplates inserts only rows whose key does not exist yet and
	// returns how many were created.
	InsertMissingTemplates(ctx context.Context, rows []model.ScheduleTemplate) (int, error)

	// GetOrCreateSlot returns the slot for (template, date), seeding it from
	// the template on first access.
	GetOrCreateSlot(ctx context.Context, t model.ScheduleTemplate, date time.Time) (model.VenueTimeSlot, error)
	GetSlot(ctx context.Context, id string) (model.VenueTimeSlot, error)
	// ReserveSlot increments tables_booked only while it is below
	// available_tables, as one atomic step.
	ReserveSlot(ctx context.Context, id string) (model.VenueTimeSlot, error)
	// ReleaseSlot decrements tables_booked, never below zero.
	ReleaseSlot(ctx context.Context, id string) (model.VenueTimeSlot, error)
	SaveSlotFlags(ctx context.Context, s model.VenueTimeSlot) error

	// LockGuest serialises booking writes for one guest phone number until the
	// surrounding transaction ends.
	LockGuest(ctx context.Context, phone string) error
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	LockBooking(ctx context.Context, id string) (model.Booking, error)
	GetBookingByIdempotencyKey(ctx context.Context, key string) (model.Booking, bool, error)
	ListBookingsByPhone(ctx context.Context, phone string) ([]model.Booking, error)
	// ListActiveBookings returns the phone's bookings in an active status whose
	// booking_at falls in [from, to].
	ListActiveBookings(ctx context.Context, phone string, from, to time.Time) ([]model.Booking, error)
	UpdateBooking(ctx context.Context, b model.Booking) error
	// MarkCapacityReleased flips capacity_released to true and reports whether
	// this call was the one that flipped it.
	MarkCapacityReleased(ctx context.Context, bookingID string) (bool, error)
	// ClaimStaleBookings locks up to limit bookings still in checkout whose
	// last update is older than before.
	ClaimStaleBookings(ctx context.Context, before time.Time, limit int) ([]model.Booking, error)

	CreateModification(ctx context.Context, m *model.ModificationRequest) error
	GetModification(ctx context.Context, id string) (model.ModificationRequest, error)
	LockModification(ctx context.Context, id string) (model.ModificationRequest, error)
	ListModifications(ctx context.Context, bookingID string) ([]model.ModificationRequest, error)
	UpdateModification(ctx context.Context, m model.ModificationRequest) error

	InsertOutbox(ctx context.Context, evt model.OutboxEvent) error
	ClaimOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxPublished(ctx context.Context, ids []int64, at time.Time) error

	// RecordInbox stores a consumed event id and reports false when it was
	// already recorded.
	RecordInbox(ctx context.Context, eventID, eventType string) (bool, error)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)
