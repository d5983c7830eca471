// Package capacity reserves and releases tables on materialized slots.
package capacity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/md-rashed-zaman/primetable/libs/metrics"
	otelx "github.com/md-rashed-zaman/primetable/libs/otel"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Release triggers, used as the metric label.
const (
	TriggerCancel     = "cancel"
	TriggerStatus     = "status"
	TriggerSweep      = "sweep"
	TriggerModify     = "modification"
	TriggerCompensate = "compensate"
)

type Allocator struct {
	store   storage.Store
	metrics *metrics.Engine
	tracer  trace.Tracer
	logger  *slog.Logger
}

func NewAllocator(store storage.Store, m *metrics.Engine, logger *slog.Logger) *Allocator {
	if m == nil {
		m = metrics.New("primetable")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{store: store, metrics: m, tracer: otelx.Tracer("booking-service/capacity"), logger: logger}
}

// In returns a copy bound to tx.
func (a *Allocator) In(tx storage.Store) *Allocator {
	cp := *a
	cp.store = tx
	return &cp
}

// Reserve takes one table from the slot. The check and the increment are a
// single conditional write in the store, so concurrent callers cannot both
// take the last table.
func (a *Allocator) Reserve(ctx context.Context, slotID string) (model.VenueTimeSlot, error) {
	ctx, span := a.tracer.Start(ctx, "capacity.reserve", trace.WithAttributes(attribute.String("slot.id", slotID)))
	defer span.End()

	s, err := a.store.ReserveSlot(ctx, slotID)
	switch {
	case err == nil:
		a.metrics.Reservations.WithLabelValues("ok").Inc()
		span.SetAttributes(attribute.Int("slot.remaining", s.Remaining()))
		return s, nil
	case errors.Is(err, storage.ErrNoCapacity):
		a.metrics.Reservations.WithLabelValues("exhausted").Inc()
		span.SetStatus(codes.Error, "exhausted")
		return model.VenueTimeSlot{}, bookingerr.CapacityExhausted("no tables left for this time; please choose another slot")
	case storage.IsNotFound(err):
		a.metrics.Reservations.WithLabelValues("error").Inc()
		return model.VenueTimeSlot{}, bookingerr.NotFound("slot %s not found", slotID)
	default:
		a.metrics.Reservations.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.VenueTimeSlot{}, err
	}
}

// Release gives one table back. It never pushes remaining capacity above the
// slot's available tables.
func (a *Allocator) Release(ctx context.Context, slotID, trigger string) (model.VenueTimeSlot, error) {
	ctx, span := a.tracer.Start(ctx, "capacity.release", trace.WithAttributes(
		attribute.String("slot.id", slotID),
		attribute.String("release.trigger", trigger),
	))
	defer span.End()

	s, err := a.store.ReleaseSlot(ctx, slotID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if storage.IsNotFound(err) {
			return model.VenueTimeSlot{}, bookingerr.NotFound("slot %s not found", slotID)
		}
		return model.VenueTimeSlot{}, err
	}
	a.metrics.Releases.WithLabelValues(trigger).Inc()
	return s, nil
}

// ReleaseForBooking returns the booking's table exactly once over the
// booking's lifetime. It reports whether this call did the release.
func (a *Allocator) ReleaseForBooking(ctx context.Context, b model.Booking, trigger string) (bool, error) {
	released := false
	err := a.store.RunInTx(ctx, func(ctx context.Context, tx storage.Store) error {
		flipped, err := tx.MarkCapacityReleased(ctx, b.ID)
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}
		if _, err := a.In(tx).Release(ctx, b.SlotID, trigger); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !released {
		a.logger.Debug("capacity already released", "booking_id", b.ID)
	}
	return released, nil
}
