package availability

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
)

type CheckRequest struct {
	VenueID     string
	Date        time.Time
	StartMinute int
	PartySize   int
	Now         *time.Time
	// HeldSlotID is the slot the caller already holds a table in; that table
	// counts as free when the same slot is checked again.
	HeldSlotID string
}

// Resolution is a bookable slot together with the rows it came from.
type Resolution struct {
	View     SlotView
	Venue    model.Venue
	Template model.ScheduleTemplate
	Slot     model.VenueTimeSlot
	Location *time.Location
}

// CheckSlot validates one (venue, date, time, party size) as if it were about
// to be booked. Unbookable slots come back as typed errors whose message says
// what to change.
func (r *Resolver) CheckSlot(ctx context.Context, req CheckRequest) (Resolution, error) {
	tier, err := r.templates.Tiers().RoundUp(req.PartySize)
	if err != nil {
		return Resolution{}, err
	}
	if req.Date.IsZero() {
		return Resolution{}, bookingerr.Validation("date is required")
	}
	if req.StartMinute < 0 || req.StartMinute >= model.MinutesPerDay {
		return Resolution{}, bookingerr.Validation("invalid start time")
	}
	v, err := r.store.GetVenue(ctx, req.VenueID)
	if storage.IsNotFound(err) {
		return Resolution{}, bookingerr.NotFound("venue %s not found", req.VenueID)
	}
	if err != nil {
		return Resolution{}, err
	}
	if !v.Active() {
		return Resolution{}, bookingerr.SlotUnbookable("%s is not taking bookings", v.Name)
	}
	loc, err := v.Location()
	if err != nil {
		return Resolution{}, err
	}

	date := model.LocalDate(req.Date, time.UTC)
	when := model.FormatMinute(req.StartMinute) + " on " + model.FormatDate(date)
	t, ok, err := r.templates.Resolve(ctx, v.ID, date.Weekday(), req.StartMinute, tier)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		return Resolution{}, bookingerr.SlotUnbookable("%s has no tables for a party of %d at %s", v.Name, req.PartySize, when)
	}

	tm := timing{now: r.now(req.Now), loc: loc, minutesPast: r.cfg.MinutesPast}
	view, slot, err := r.evaluate(ctx, t, loc, date, tier, req.PartySize, tm, req.HeldSlotID)
	if err != nil {
		return Resolution{}, err
	}
	switch view.Reason {
	case "":
	case ReasonClosed:
		return Resolution{}, bookingerr.SlotUnbookable("%s is closed at %s", v.Name, when)
	case ReasonPast:
		return Resolution{}, bookingerr.SlotUnbookable("%s has already passed", model.FormatDate(date))
	case ReasonTooSoon:
		_, cutoff := tm.reason(date, view.StartsAt)
		return Resolution{}, bookingerr.SlotUnbookable(
			"%s is too soon; same-day bookings must start after %s (%s)",
			when, cutoff.In(loc).Format("15:04"), loc.String(),
		)
	case ReasonFull:
		return Resolution{}, bookingerr.CapacityExhausted("no tables left for a party of %d at %s", req.PartySize, when)
	}
	return Resolution{View: view, Venue: v, Template: t, Slot: slot, Location: loc}, nil
}
