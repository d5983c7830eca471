package model

import (
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
)

// VenueTimeSlot is the date-specific projection of a template and the only
// authoritative capacity counter for that date, time and tier.
type VenueTimeSlot struct {
	ID                 string
	ScheduleTemplateID string
	BookingDate        time.Time
	IsAvailable        bool
	PrimeTime          bool
	AvailableTables    int
	TablesBooked       int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SlotKey identifies a slot by its template and date.
type SlotKey struct {
	TemplateID string
	Date       string
}

func (s VenueTimeSlot) Key() SlotKey {
	return SlotKey{TemplateID: s.ScheduleTemplateID, Date: FormatDate(s.BookingDate)}
}

// NewSlotFromTemplate seeds a slot for date with the template's current inventory.
func NewSlotFromTemplate(t ScheduleTemplate, date time.Time) VenueTimeSlot {
	return VenueTimeSlot{
		ScheduleTemplateID: t.ID,
		BookingDate:        date,
		IsAvailable:        t.IsAvailable,
		PrimeTime:          t.PrimeTime,
		AvailableTables:    t.AvailableTables,
	}
}

func (s VenueTimeSlot) Remaining() int {
	r := s.AvailableTables - s.TablesBooked
	if r < 0 {
		return 0
	}
	return r
}

// Reserve takes one table or fails with CapacityExhausted.
func (s VenueTimeSlot) Reserve() (VenueTimeSlot, error) {
	if s.Remaining() <= 0 {
		return s, bookingerr.CapacityExhausted("no tables left for %s", FormatDate(s.BookingDate))
	}
	s.TablesBooked++
	return s, nil
}

// Release returns one table, never going above the available ceiling.
func (s VenueTimeSlot) Release() VenueTimeSlot {
	if s.TablesBooked > 0 {
		s.TablesBooked--
	}
	return s
}

func (s VenueTimeSlot) MarkClosed() VenueTimeSlot {
	s.IsAvailable = false
	return s
}

func (s VenueTimeSlot) MarkOpen() VenueTimeSlot {
	s.IsAvailable = true
	return s
}
