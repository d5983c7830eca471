// Package booking creates bookings and moves them through their lifecycle,
// reserving and releasing slot capacity along the way.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/primetable/libs/otel"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/capacity"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Deps struct {
	Store     storage.Store
	Resolver  *availability.Resolver
	Guard     *conflict.Guard
	Allocator *capacity.Allocator
	Clock     clock.Clock
	Logger    *slog.Logger
}

type Service struct {
	store    storage.Store
	resolver *availability.Resolver
	guard    *conflict.Guard
	alloc    *capacity.Allocator
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		store:    d.Store,
		resolver: d.Resolver,
		guard:    d.Guard,
		alloc:    d.Allocator,
		clock:    d.Clock,
		logger:   d.Logger,
		tracer:   otelx.Tracer("booking-service/booking"),
	}
}

type Guest struct {
	Name  string
	Phone string
	Email string
}

type CreateInput struct {
	VenueID        string
	Date           time.Time
	StartMinute    int
	PartySize      int
	Guest          Guest
	Source         model.Source
	ConciergeID    string
	IdempotencyKey string
}

var errReplay = errors.New("idempotent replay")

// Create validates the slot, checks the guest for clashing bookings, takes a
// table and writes the booking. Prime bookings start pending checkout;
// non-prime bookings are confirmed straight away. The second return value is
// true when an earlier booking with the same idempotency key was returned.
func (s *Service) Create(ctx context.Context, in CreateInput) (model.Booking, bool, error) {
	ctx, span := s.tracer.Start(ctx, "booking.create", trace.WithAttributes(
		attribute.String("venue.id", in.VenueID),
		attribute.Int("party_size", in.PartySize),
	))
	defer span.End()

	guest, err := normalizeGuest(in.Guest)
	if err != nil {
		return model.Booking{}, false, err
	}
	if in.Source == "" {
		in.Source = model.SourceGuest
	}
	if in.IdempotencyKey != "" {
		if prior, ok, err := s.store.GetBookingByIdempotencyKey(ctx, in.IdempotencyKey); err != nil {
			return model.Booking{}, false, err
		} else if ok {
			return prior, true, nil
		}
	}

	res, err := s.resolver.CheckSlot(ctx, availability.CheckRequest{
		VenueID:     in.VenueID,
		Date:        in.Date,
		StartMinute: in.StartMinute,
		PartySize:   in.PartySize,
	})
	if err != nil {
		return model.Booking{}, false, err
	}

	now := s.clock.Now().UTC()
	b := model.Booking{
		VenueID:            res.Venue.ID,
		ScheduleTemplateID: res.Template.ID,
		SlotID:             res.Slot.ID,
		BookingAt:          res.View.StartsAt,
		LocalDate:          res.View.Date,
		LocalTime:          res.View.Time,
		Timezone:           res.Location.String(),
		GuestName:          guest.Name,
		GuestPhone:         guest.Phone,
		GuestEmail:         guest.Email,
		GuestCount:         in.PartySize,
		Status:             model.StatusConfirmed,
		IsPrime:            res.View.Prime,
		Fee:                res.View.Fee,
		Source:             in.Source,
		ConciergeID:        in.ConciergeID,
		IdempotencyKey:     in.IdempotencyKey,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if b.IsPrime {
		b.Status = model.StatusPending
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Store) error {
		if err := tx.LockGuest(ctx, guest.Phone); err != nil {
			return err
		}
		if err := s.guard.In(tx).AssertNoConflict(ctx, conflict.Check{Phone: guest.Phone, BookingAt: b.BookingAt, IsPrime: b.IsPrime}); err != nil {
			return err
		}
		if _, err := s.alloc.In(tx).Reserve(ctx, b.SlotID); err != nil {
			return err
		}
		if err := tx.CreateBooking(ctx, &b); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return errReplay
			}
			return err
		}
		return outbox.Write(ctx, tx, outbox.AggregateBooking, b.ID, outbox.BookingCreated,
			outbox.NewBookingPayload(b, "", "", now))
	})
	if errors.Is(err, errReplay) {
		prior, ok, getErr := s.store.GetBookingByIdempotencyKey(ctx, in.IdempotencyKey)
		if getErr != nil || !ok {
			return model.Booking{}, false, errors.Join(err, getErr)
		}
		return prior, true, nil
	}
	if err != nil {
		return model.Booking{}, false, err
	}

	s.resolver.Invalidate(ctx, b.VenueID, b.LocalDate)
	s.logger.Info("booking created",
		"booking_id", b.ID,
		"venue_id", b.VenueID,
		"slot_id", b.SlotID,
		"booking_at", b.BookingAt,
		"prime", b.IsPrime,
		"status", b.Status,
	)
	return b, false, nil
}

func normalizeGuest(g Guest) (Guest, error) {
	g.Name = strings.TrimSpace(g.Name)
	g.Email = strings.TrimSpace(g.Email)
	g.Phone = conflict.NormalizePhone(g.Phone)
	if g.Name == "" {
		return Guest{}, bookingerr.Validation("guest name is required")
	}
	if len(strings.TrimPrefix(g.Phone, "+")) < 7 {
		return Guest{}, bookingerr.Validation("a valid guest phone number is required")
	}
	return g, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if storage.IsNotFound(err) {
		return model.Booking{}, bookingerr.NotFound("booking %s not found", id)
	}
	return b, err
}

func (s *Service) ListByPhone(ctx context.Context, phone string) ([]model.Booking, error) {
	p := conflict.NormalizePhone(phone)
	if p == "" {
		return nil, bookingerr.Validation("phone is required")
	}
	return s.store.ListBookingsByPhone(ctx, p)
}

// Cancel moves the booking to cancelled and returns its table. Cancelling an
// already cancelled booking is a no-op.
func (s *Service) Cancel(ctx context.Context, id, reason string) (model.Booking, error) {
	return s.Transition(ctx, id, model.StatusCancelled, reason, capacity.TriggerCancel)
}

// Transition applies a status change reported by a collaborator (payment,
// venue confirmation, the checkout sweeper) and releases capacity when the
// new status gives the table back.
func (s *Service) Transition(ctx context.Context, id string, to model.BookingStatus, reason, trigger string) (model.Booking, error) {
	var (
		b        model.Booking
		released bool
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Store) error {
		var err error
		b, released, err = s.TransitionTx(ctx, tx, id, to, reason, trigger)
		return err
	})
	if err != nil {
		return model.Booking{}, err
	}
	if released {
		s.resolver.Invalidate(ctx, b.VenueID, b.LocalDate)
	}
	return b, nil
}

// TransitionTx is Transition inside the caller's transaction. It reports
// whether a table was released so the caller can refresh cached availability
// after commit.
func (s *Service) TransitionTx(ctx context.Context, tx storage.Store, id string, to model.BookingStatus, reason, trigger string) (model.Booking, bool, error) {
	b, err := tx.LockBooking(ctx, id)
	if storage.IsNotFound(err) {
		return model.Booking{}, false, bookingerr.NotFound("booking %s not found", id)
	}
	if err != nil {
		return model.Booking{}, false, err
	}
	if b.Status == to {
		return b, false, nil
	}
	if !b.Status.CanTransition(to) {
		return model.Booking{}, false, bookingerr.InvalidTransition("booking %s cannot move from %s to %s", id, b.Status, to)
	}

	release := b.ReleasesOn(to)
	previous := b.Status
	now := s.clock.Now().UTC()
	b.Status = to
	b.UpdatedAt = now
	if to == model.StatusCompleted {
		b.Completed = true
	}
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return model.Booking{}, false, err
	}

	released := false
	if release {
		if released, err = s.alloc.In(tx).ReleaseForBooking(ctx, b, trigger); err != nil {
			return model.Booking{}, false, err
		}
		b.CapacityReleased = b.CapacityReleased || released
	}

	payload := outbox.NewBookingPayload(b, previous, reason, now)
	if err := outbox.Write(ctx, tx, outbox.AggregateBooking, b.ID, outbox.BookingStatusChanged, payload); err != nil {
		return model.Booking{}, false, err
	}
	if to == model.StatusCancelled {
		if err := outbox.Write(ctx, tx, outbox.AggregateBooking, b.ID, outbox.BookingCancelled, payload); err != nil {
			return model.Booking{}, false, err
		}
	}
	s.logger.Info("booking status changed",
		"booking_id", b.ID,
		"from", previous,
		"to", to,
		"trigger", trigger,
		"released", released,
	)
	return b, released, nil
}

// Invalidate refreshes cached availability for a booking's venue and date.
func (s *Service) Invalidate(ctx context.Context, b model.Booking) {
	s.resolver.Invalidate(ctx, b.VenueID, b.LocalDate)
}
