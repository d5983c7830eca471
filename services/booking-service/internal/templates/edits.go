package templates

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
)

// Selector picks template rows for a staff edit. Empty Days or StartMinutes
// match every day or time; a nil Tier matches every tier.
type Selector struct {
	VenueID      string
	Days         []time.Weekday
	StartMinutes []int
	Tier         *int
}

type AvailabilityEdit struct {
	Selector
	Open bool
	// Tables replaces available_tables when opening; negative keeps it.
	Tables int
}

type PrimeEdit struct {
	Selector
	Prime bool
}

func (sel Selector) days() []time.Weekday {
	if len(sel.Days) > 0 {
		return sel.Days
	}
	return []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}
}

func (sel Selector) matches(t model.ScheduleTemplate) bool {
	if sel.Tier != nil && t.PartySize != *sel.Tier {
		return false
	}
	if len(sel.StartMinutes) == 0 {
		return true
	}
	for _, m := range sel.StartMinutes {
		if m == t.StartMinute {
			return true
		}
	}
	return false
}

// apply runs fn over every selected row and writes back the ones it changed.
// Unknown combinations select nothing, so the edit is a no-op for them.
func (s *Service) apply(ctx context.Context, sel Selector, fn func(model.ScheduleTemplate) (model.ScheduleTemplate, bool)) (int, error) {
	if sel.VenueID == "" {
		return 0, bookingerr.Validation("venue_id is required")
	}
	var changed []model.ScheduleTemplate
	for _, day := range sel.days() {
		if day < time.Sunday || day > time.Saturday {
			return 0, bookingerr.Validation("day of week %d out of range", day)
		}
		rows, err := s.store.ListTemplates(ctx, sel.VenueID, day)
		if err != nil {
			return 0, err
		}
		for _, row := range rows {
			if !sel.matches(row) {
				continue
			}
			if next, ok := fn(row); ok && next != row {
				changed = append(changed, next)
			}
		}
	}
	if len(changed) == 0 {
		return 0, nil
	}
	if err := s.store.UpsertTemplates(ctx, changed); err != nil {
		return 0, err
	}
	return len(changed), nil
}

func (s *Service) SetAvailability(ctx context.Context, edit AvailabilityEdit) (int, error) {
	return s.apply(ctx, edit.Selector, func(t model.ScheduleTemplate) (model.ScheduleTemplate, bool) {
		if edit.Open {
			return t.MarkOpen(edit.Tables), true
		}
		return t.MarkClosed(), true
	})
}

// SetPrime only touches rows that are open; it never re-enables a closed row.
func (s *Service) SetPrime(ctx context.Context, edit PrimeEdit) (int, error) {
	return s.apply(ctx, edit.Selector, func(t model.ScheduleTemplate) (model.ScheduleTemplate, bool) {
		return t.MarkPrime(edit.Prime)
	})
}

// ApplyHours opens rows inside the venue's business hours, closes the rest,
// then marks open rows prime when they fall inside prime hours.
func (s *Service) ApplyHours(ctx context.Context, venue model.Venue) (int, error) {
	return s.apply(ctx, Selector{VenueID: venue.ID}, func(t model.ScheduleTemplate) (model.ScheduleTemplate, bool) {
		if venue.BusinessHours.Contains(t.DayOfWeek, t.StartMinute) {
			t = t.MarkOpen(-1)
		} else {
			t = t.MarkClosed()
		}
		next, _ := t.MarkPrime(venue.PrimeHours.Contains(t.DayOfWeek, t.StartMinute))
		return next, true
	})
}
