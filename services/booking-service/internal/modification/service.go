// Package modification lets a guest or venue move a confirmed non-prime
// booking to another date, time or party size through a request that the
// venue approves or rejects.
package modification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/metrics"
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
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outcomes recorded on the modifications metric.
const (
	OutcomeSubmitted = "submitted"
	OutcomeApproved  = "approved"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "concurrency_conflict"
	OutcomeLeak      = "inventory_leak"
)

// approveAttempts bounds how often Approve retries after losing the requested
// table to a concurrent booking.
const approveAttempts = 2

type Deps struct {
	Store     storage.Store
	Resolver  *availability.Resolver
	Guard     *conflict.Guard
	Allocator *capacity.Allocator
	Metrics   *metrics.Engine
	Clock     clock.Clock
	Logger    *slog.Logger
}

type Service struct {
	store    storage.Store
	resolver *availability.Resolver
	guard    *conflict.Guard
	alloc    *capacity.Allocator
	metrics  *metrics.Engine
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewService(d Deps) *Service {
	if d.Metrics == nil {
		d.Metrics = metrics.New("primetable")
	}
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
		metrics:  d.Metrics,
		clock:    d.Clock,
		logger:   d.Logger,
		tracer:   otelx.Tracer("booking-service/modification"),
	}
}

type SubmitInput struct {
	BookingID   string
	Date        time.Time
	StartMinute int
	GuestCount  int
	RequestedBy string
	Source      model.Source
	Now         *time.Time
}

// Submit records a pending request after checking that the requested slot is
// bookable right now. The booking's own table counts as free when the
// requested slot is the one it already holds.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (model.ModificationRequest, error) {
	ctx, span := s.tracer.Start(ctx, "modification.submit", trace.WithAttributes(attribute.String("booking.id", in.BookingID)))
	defer span.End()

	if in.Source == "" {
		in.Source = model.SourceGuest
	}
	b, err := s.store.GetBooking(ctx, in.BookingID)
	if storage.IsNotFound(err) {
		return model.ModificationRequest{}, bookingerr.NotFound("booking %s not found", in.BookingID)
	}
	if err != nil {
		return model.ModificationRequest{}, err
	}
	if b.Status.Terminal() {
		return model.ModificationRequest{}, bookingerr.InvalidTransition("booking %s is %s and can no longer be modified", b.ID, b.Status)
	}
	if b.IsPrime {
		return model.ModificationRequest{}, bookingerr.Validation("prime-time bookings cannot be modified; cancel and book again")
	}

	res, err := s.resolver.CheckSlot(ctx, availability.CheckRequest{
		VenueID:     b.VenueID,
		Date:        in.Date,
		StartMinute: in.StartMinute,
		PartySize:   in.GuestCount,
		Now:         in.Now,
		HeldSlotID:  b.SlotID,
	})
	if err != nil {
		return model.ModificationRequest{}, err
	}
	if res.View.Prime {
		return model.ModificationRequest{}, bookingerr.SlotUnbookable(
			"%s on %s is prime time; a booking can only be moved to a non-prime slot", res.View.Time, res.View.Date)
	}
	if res.Slot.ID == b.SlotID && in.GuestCount == b.GuestCount {
		return model.ModificationRequest{}, bookingerr.Validation("requested slot is the one already booked")
	}

	now := s.clock.Now().UTC()
	req := model.ModificationRequest{
		BookingID: b.ID,
		Original: model.SlotChoice{
			TemplateID: b.ScheduleTemplateID,
			SlotID:     b.SlotID,
			Date:       b.LocalDate,
			Time:       b.LocalTime,
			GuestCount: b.GuestCount,
		},
		Requested: model.SlotChoice{
			TemplateID: res.Template.ID,
			SlotID:     res.Slot.ID,
			Date:       res.View.Date,
			Time:       res.View.Time,
			GuestCount: in.GuestCount,
		},
		Status:      model.ModificationPending,
		RequestedBy: in.RequestedBy,
		Source:      in.Source,
		CreatedAt:   now,
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Store) error {
		if err := tx.CreateModification(ctx, &req); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return bookingerr.ModificationAlreadyPending("booking %s already has a pending modification request", b.ID)
			}
			return err
		}
		return outbox.Write(ctx, tx, outbox.AggregateModification, req.ID, outbox.ModificationRequested,
			outbox.NewModificationPayload(req, now))
	})
	if err != nil {
		return model.ModificationRequest{}, err
	}
	s.metrics.Modifications.WithLabelValues(OutcomeSubmitted).Inc()
	s.logger.Info("modification requested",
		"request_id", req.ID,
		"booking_id", b.ID,
		"from", req.Original.Date+" "+req.Original.Time,
		"to", req.Requested.Date+" "+req.Requested.Time,
		"guest_count", in.GuestCount,
	)
	return req, nil
}

// Approve moves the booking onto the requested slot. Releasing the original
// table and reserving the new one happen in one transaction: if the new table
// is gone the whole step rolls back and the caller gets ConcurrencyConflict.
// A rollback that itself fails is reported as an inventory leak.
func (s *Service) Approve(ctx context.Context, requestID, decidedBy string) (model.ModificationRequest, model.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "modification.approve", trace.WithAttributes(attribute.String("modification.id", requestID)))
	defer span.End()

	var err error
	for attempt := 1; attempt <= approveAttempts; attempt++ {
		var (
			req model.ModificationRequest
			b   model.Booking
			old model.SlotChoice
		)
		req, b, old, err = s.approveOnce(ctx, requestID, decidedBy)
		if err == nil {
			s.metrics.Modifications.WithLabelValues(OutcomeApproved).Inc()
			s.resolver.Invalidate(ctx, b.VenueID, old.Date)
			if old.Date != b.LocalDate {
				s.resolver.Invalidate(ctx, b.VenueID, b.LocalDate)
			}
			s.logger.Info("modification approved",
				"request_id", req.ID,
				"booking_id", b.ID,
				"slot_id", b.SlotID,
				"booking_at", b.BookingAt,
				"attempt", attempt,
			)
			return req, b, nil
		}
		if errors.Is(err, storage.ErrRollbackFailed) {
			s.metrics.Modifications.WithLabelValues(OutcomeLeak).Inc()
			s.metrics.InventoryLeaks.Inc()
			s.logger.Error("inventory leak: modification rollback failed",
				"request_id", requestID,
				"original_slot_id", old.SlotID,
				"err", err,
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, "inventory leak")
			return model.ModificationRequest{}, model.Booking{}, bookingerr.InventoryLeak(err,
				"modification %s failed and the original table could not be restored", requestID)
		}
		if !errors.Is(err, bookingerr.ErrConcurrencyConflict) {
			return model.ModificationRequest{}, model.Booking{}, err
		}
		s.logger.Warn("modification approval lost the requested table", "request_id", requestID, "attempt", attempt)
	}
	s.metrics.Modifications.WithLabelValues(OutcomeConflict).Inc()
	span.SetStatus(codes.Error, "concurrency conflict")
	return model.ModificationRequest{}, model.Booking{}, err
}

func (s *Service) approveOnce(ctx context.Context, requestID, decidedBy string) (model.ModificationRequest, model.Booking, model.SlotChoice, error) {
	req, err := s.store.GetModification(ctx, requestID)
	if storage.IsNotFound(err) {
		return req, model.Booking{}, model.SlotChoice{}, bookingerr.NotFound("modification request %s not found", requestID)
	}
	if err != nil {
		return req, model.Booking{}, model.SlotChoice{}, err
	}
	if !req.Pending() {
		return req, model.Booking{}, req.Original, bookingerr.InvalidTransition("modification request %s is already %s", req.ID, req.Status)
	}
	current, err := s.store.GetBooking(ctx, req.BookingID)
	if err != nil {
		return req, model.Booking{}, req.Original, err
	}

	// Re-check the requested slot: it may have closed or passed the cutoff
	// since the request was made.
	date, err := model.ParseDate(req.Requested.Date)
	if err != nil {
		return req, model.Booking{}, req.Original, err
	}
	minute, err := model.ParseMinute(req.Requested.Time)
	if err != nil {
		return req, model.Booking{}, req.Original, err
	}
	res, err := s.resolver.CheckSlot(ctx, availability.CheckRequest{
		VenueID:     current.VenueID,
		Date:        date,
		StartMinute: minute,
		PartySize:   req.Requested.GuestCount,
		HeldSlotID:  current.SlotID,
	})
	if errors.Is(err, bookingerr.ErrCapacityExhausted) {
		return req, model.Booking{}, req.Original, bookingerr.ConcurrencyConflict(
			"the %s slot on %s was taken while the request was pending; please choose another time",
			req.Requested.Time, req.Requested.Date)
	}
	if err != nil {
		return req, model.Booking{}, req.Original, err
	}

	now := s.clock.Now().UTC()
	var (
		b   model.Booking
		old model.SlotChoice
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Store) error {
		var err error
		if req, err = tx.LockModification(ctx, requestID); err != nil {
			return err
		}
		if !req.Pending() {
			return bookingerr.InvalidTransition("modification request %s is already %s", req.ID, req.Status)
		}
		if b, err = tx.LockBooking(ctx, req.BookingID); err != nil {
			return err
		}
		if b.Status.Terminal() {
			return bookingerr.InvalidTransition("booking %s is %s and can no longer be modified", b.ID, b.Status)
		}
		if err := tx.LockGuest(ctx, b.GuestPhone); err != nil {
			return err
		}
		if err := s.guard.In(tx).AssertNoConflict(ctx, conflict.Check{
			Phone:            b.GuestPhone,
			BookingAt:        res.View.StartsAt,
			ExcludeBookingID: b.ID,
		}); err != nil {
			return err
		}

		old = model.SlotChoice{TemplateID: b.ScheduleTemplateID, SlotID: b.SlotID, Date: b.LocalDate, Time: b.LocalTime, GuestCount: b.GuestCount}
		alloc := s.alloc.In(tx)
		if _, err := alloc.Release(ctx, b.SlotID, capacity.TriggerModify); err != nil {
			return err
		}
		if _, err := alloc.Reserve(ctx, res.Slot.ID); err != nil {
			if errors.Is(err, bookingerr.ErrCapacityExhausted) {
				return bookingerr.ConcurrencyConflict(
					"the %s slot on %s was taken while the request was being approved; please try again",
					res.View.Time, res.View.Date)
			}
			return err
		}

		b.ScheduleTemplateID = res.Template.ID
		b.SlotID = res.Slot.ID
		b.BookingAt = res.View.StartsAt
		b.LocalDate = res.View.Date
		b.LocalTime = res.View.Time
		b.GuestCount = req.Requested.GuestCount
		b.Fee = nil
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}

		req.Requested.TemplateID = res.Template.ID
		req.Requested.SlotID = res.Slot.ID
		req.Status = model.ModificationApproved
		req.DecidedBy = decidedBy
		req.DecidedAt = &now
		if err := tx.UpdateModification(ctx, req); err != nil {
			return err
		}
		return outbox.Write(ctx, tx, outbox.AggregateModification, req.ID, outbox.ModificationApproved,
			outbox.NewModificationPayload(req, now))
	})
	if err != nil {
		if old.SlotID == "" {
			old = req.Original
		}
		if bookingerr.IsCallerFacing(err) {
			return model.ModificationRequest{}, model.Booking{}, old, err
		}
		return model.ModificationRequest{}, model.Booking{}, old, fmt.Errorf("approve modification %s: %w", requestID, err)
	}
	return req, b, old, nil
}

// Reject closes a pending request without touching the booking.
func (s *Service) Reject(ctx context.Context, requestID, decidedBy, reason string) (model.ModificationRequest, error) {
	now := s.clock.Now().UTC()
	var req model.ModificationRequest
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Store) error {
		var err error
		req, err = tx.LockModification(ctx, requestID)
		if storage.IsNotFound(err) {
			return bookingerr.NotFound("modification request %s not found", requestID)
		}
		if err != nil {
			return err
		}
		if !req.Pending() {
			return bookingerr.InvalidTransition("modification request %s is already %s", req.ID, req.Status)
		}
		req.Status = model.ModificationRejected
		req.DecidedBy = decidedBy
		req.DecisionReason = reason
		req.DecidedAt = &now
		if err := tx.UpdateModification(ctx, req); err != nil {
			return err
		}
		return outbox.Write(ctx, tx, outbox.AggregateModification, req.ID, outbox.ModificationRejected,
			outbox.NewModificationPayload(req, now))
	})
	if err != nil {
		return model.ModificationRequest{}, err
	}
	s.metrics.Modifications.WithLabelValues(OutcomeRejected).Inc()
	s.logger.Info("modification rejected", "request_id", req.ID, "booking_id", req.BookingID, "reason", reason)
	return req, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.ModificationRequest, error) {
	req, err := s.store.GetModification(ctx, id)
	if storage.IsNotFound(err) {
		return model.ModificationRequest{}, bookingerr.NotFound("modification request %s not found", id)
	}
	return req, err
}

func (s *Service) ListForBooking(ctx context.Context, bookingID string) ([]model.ModificationRequest, error) {
	if bookingID == "" {
		return nil, bookingerr.Validation("booking_id is required")
	}
	return s.store.ListModifications(ctx, bookingID)
}
