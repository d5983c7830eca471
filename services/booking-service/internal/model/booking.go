package model

import (
	"time"
)

type BookingStatus string

const (
	StatusPending           BookingStatus = "pending"
	StatusGuestOnPage       BookingStatus = "guest_on_page"
	StatusConfirmed         BookingStatus = "confirmed"
	StatusCompleted         BookingStatus = "completed"
	StatusCancelled         BookingStatus = "cancelled"
	StatusNoShow            BookingStatus = "no_show"
	StatusAbandoned         BookingStatus = "abandoned"
	StatusRefunded          BookingStatus = "refunded"
	StatusPartiallyRefunded BookingStatus = "partially_refunded"
)

var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:           {StatusGuestOnPage, StatusConfirmed, StatusCancelled, StatusAbandoned},
	StatusGuestOnPage:       {StatusConfirmed, StatusCancelled, StatusAbandoned},
	StatusConfirmed:         {StatusCompleted, StatusCancelled, StatusNoShow, StatusRefunded, StatusPartiallyRefunded},
	StatusCompleted:         {StatusRefunded, StatusPartiallyRefunded},
	StatusPartiallyRefunded: {StatusRefunded},
}

func ParseBookingStatus(s string) (BookingStatus, bool) {
	st := BookingStatus(s)
	switch st {
	case StatusPending, StatusGuestOnPage, StatusConfirmed, StatusCompleted, StatusCancelled,
		StatusNoShow, StatusAbandoned, StatusRefunded, StatusPartiallyRefunded:
		return st, true
	}
	return "", false
}

func (s BookingStatus) CanTransition(to BookingStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Active statuses still hold a claim on the guest's evening.
func (s BookingStatus) Active() bool {
	return s == StatusPending || s == StatusGuestOnPage || s == StatusConfirmed
}

func (s BookingStatus) Terminal() bool {
	return !s.Active()
}

// ActiveStatuses is the set the conflict guard and the sweeper look at.
func ActiveStatuses() []BookingStatus {
	return []BookingStatus{StatusPending, StatusGuestOnPage, StatusConfirmed}
}

type Source string

const (
	SourceGuest     Source = "guest"
	SourceVenue     Source = "venue"
	SourceConcierge Source = "concierge"
)

func ParseSource(s string) (Source, bool) {
	switch Source(s) {
	case SourceGuest, SourceVenue, SourceConcierge:
		return Source(s), true
	case "":
		return SourceGuest, true
	}
	return "", false
}

type Booking struct {
	ID                 string
	VenueID            string
	ScheduleTemplateID string
	SlotID             string
	BookingAt          time.Time
	LocalDate          string
	LocalTime          string
	Timezone           string
	GuestName          string
	GuestPhone         string
	GuestEmail         string
	GuestCount         int
	Status             BookingStatus
	IsPrime            bool
	Fee                *int64
	Source             Source
	ConciergeID        string
	IdempotencyKey     string
	// CapacityReleased flips to true the one time the slot gets its table back.
	CapacityReleased bool
	// Completed is sticky: once set, later refunds never return capacity.
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReleasesOn reports whether moving to status returns the booking's table.
func (b Booking) ReleasesOn(status BookingStatus) bool {
	if b.CapacityReleased || b.Completed {
		return false
	}
	switch status {
	case StatusCancelled, StatusAbandoned, StatusNoShow, StatusRefunded:
		return true
	}
	return false
}
