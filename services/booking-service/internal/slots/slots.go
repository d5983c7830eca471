// Package slots projects schedule templates onto calendar dates. The slot row
// it returns is the only authoritative table count for that date.
package slots

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
)

const DefaultLowInventoryThreshold = 1

type Materializer struct {
	store        storage.Store
	lowThreshold int
}

func NewMaterializer(store storage.Store, lowInventoryThreshold int) *Materializer {
	if lowInventoryThreshold < 0 {
		lowInventoryThreshold = DefaultLowInventoryThreshold
	}
	return &Materializer{store: store, lowThreshold: lowInventoryThreshold}
}

// In returns a copy bound to tx.
func (m *Materializer) In(tx storage.Store) *Materializer {
	cp := *m
	cp.store = tx
	return &cp
}

func civil(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
}

// Resolve returns the slot for (template, date), creating it from the
// template's current inventory the first time the pair is seen.
func (m *Materializer) Resolve(ctx context.Context, t model.ScheduleTemplate, date time.Time) (model.VenueTimeSlot, error) {
	if t.ID == "" {
		return model.VenueTimeSlot{}, fmt.Errorf("resolve slot: template has no id")
	}
	s, err := m.store.GetOrCreateSlot(ctx, t, civil(date))
	if err != nil {
		return model.VenueTimeSlot{}, fmt.Errorf("resolve slot %s/%s: %w", t.ID, model.FormatDate(date), err)
	}
	return s, nil
}

func (m *Materializer) ResolveMany(ctx context.Context, templates []model.ScheduleTemplate, date time.Time) ([]model.VenueTimeSlot, error) {
	out := make([]model.VenueTimeSlot, 0, len(templates))
	for _, t := range templates {
		s, err := m.Resolve(ctx, t, date)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Materializer) Get(ctx context.Context, slotID string) (model.VenueTimeSlot, error) {
	s, err := m.store.GetSlot(ctx, slotID)
	if storage.IsNotFound(err) {
		return model.VenueTimeSlot{}, bookingerr.NotFound("slot %s not found", slotID)
	}
	return s, err
}

func (m *Materializer) Remaining(s model.VenueTimeSlot) int {
	return s.Remaining()
}

// LowInventory flags slots down to their last tables.
func (m *Materializer) LowInventory(s model.VenueTimeSlot) bool {
	return m.LowRemaining(s.Remaining())
}

// LowRemaining applies the low inventory threshold to a table count.
func (m *Materializer) LowRemaining(remaining int) bool {
	return remaining > 0 && remaining <= m.lowThreshold
}

// Close shuts one date of a template without touching the weekly definition.
func (m *Materializer) Close(ctx context.Context, templateID string, date time.Time) (model.VenueTimeSlot, error) {
	return m.setFlags(ctx, templateID, date, model.VenueTimeSlot.MarkClosed)
}

// Open lifts a date-specific closure. A template that is itself closed still
// keeps the slot closed.
func (m *Materializer) Open(ctx context.Context, templateID string, date time.Time) (model.VenueTimeSlot, error) {
	return m.setFlags(ctx, templateID, date, model.VenueTimeSlot.MarkOpen)
}

func (m *Materializer) setFlags(ctx context.Context, templateID string, date time.Time, fn func(model.VenueTimeSlot) model.VenueTimeSlot) (model.VenueTimeSlot, error) {
	t, err := m.store.GetTemplateByID(ctx, templateID)
	if storage.IsNotFound(err) {
		return model.VenueTimeSlot{}, bookingerr.NotFound("template %s not found", templateID)
	}
	if err != nil {
		return model.VenueTimeSlot{}, err
	}
	s, err := m.Resolve(ctx, t, date)
	if err != nil {
		return model.VenueTimeSlot{}, err
	}
	next := fn(s)
	if next == s {
		return s, nil
	}
	if err := m.store.SaveSlotFlags(ctx, next); err != nil {
		return model.VenueTimeSlot{}, err
	}
	return next, nil
}
