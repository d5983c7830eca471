package model

import (
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
)

func TestSlotReserveReleaseRoundTrip(t *testing.T) {
	s := VenueTimeSlot{AvailableTables: 3}
	for i := 0; i < 10; i++ {
		next, err := s.Reserve()
		if err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
		back := next.Release()
		if back.Remaining() != s.Remaining() {
			t.Fatalf("round trip changed remaining: %d -> %d", s.Remaining(), back.Remaining())
		}
		s = back
	}
	for i := 0; i < 5; i++ {
		s = s.Release()
	}
	if s.TablesBooked != 0 || s.Remaining() != 3 {
		t.Fatalf("release must not exceed available tables: %+v", s)
	}
}

func TestSlotReserveExhausted(t *testing.T) {
	s := VenueTimeSlot{AvailableTables: 1, TablesBooked: 1}
	if _, err := s.Reserve(); !errors.Is(err, bookingerr.ErrCapacityExhausted) {
		t.Fatalf("expected capacity exhausted, got %v", err)
	}
}

func TestTemplateMarkPrimeSkipsClosed(t *testing.T) {
	closed := ScheduleTemplate{IsAvailable: false}
	got, changed := closed.MarkPrime(true)
	if changed || got.PrimeTime || got.IsAvailable {
		t.Fatalf("prime edit must not touch a closed row: %+v", got)
	}

	open := closed.MarkOpen(4)
	got, changed = open.MarkPrime(true)
	if !changed || !got.PrimeTime || got.AvailableTables != 4 {
		t.Fatalf("unexpected prime result %+v", got)
	}
	if got.MarkClosed().PrimeTime != true {
		t.Fatal("closing keeps the prime flag for when it reopens")
	}
}

func TestStatusTransitions(t *testing.T) {
	allowed := [][2]BookingStatus{
		{StatusPending, StatusGuestOnPage},
		{StatusGuestOnPage, StatusConfirmed},
		{StatusConfirmed, StatusCompleted},
		{StatusConfirmed, StatusNoShow},
		{StatusCompleted, StatusRefunded},
		{StatusPartiallyRefunded, StatusRefunded},
	}
	for _, tr := range allowed {
		if !tr[0].CanTransition(tr[1]) {
			t.Fatalf("%s -> %s should be allowed", tr[0], tr[1])
		}
	}
	denied := [][2]BookingStatus{
		{StatusCompleted, StatusCancelled},
		{StatusCancelled, StatusConfirmed},
		{StatusPending, StatusCompleted},
		{StatusAbandoned, StatusPending},
	}
	for _, tr := range denied {
		if tr[0].CanTransition(tr[1]) {
			t.Fatalf("%s -> %s should be denied", tr[0], tr[1])
		}
	}
}

func TestReleasesOn(t *testing.T) {
	b := Booking{Status: StatusConfirmed}
	if !b.ReleasesOn(StatusCancelled) || !b.ReleasesOn(StatusNoShow) {
		t.Fatal("cancel and no-show release capacity")
	}
	if b.ReleasesOn(StatusCompleted) || b.ReleasesOn(StatusPartiallyRefunded) {
		t.Fatal("completion and partial refunds keep the table")
	}
	b.Completed = true
	if b.ReleasesOn(StatusRefunded) {
		t.Fatal("refund after completion must not release")
	}
	b = Booking{CapacityReleased: true}
	if b.ReleasesOn(StatusAbandoned) {
		t.Fatal("capacity is released at most once")
	}
}

func TestCalendarHelpers(t *testing.T) {
	m, err := ParseMinute("19:30")
	if err != nil || m != 19*60+30 {
		t.Fatalf("parse minute: %d %v", m, err)
	}
	if _, err := ParseMinute("25:00"); err == nil {
		t.Fatal("expected error for 25:00")
	}
	if FormatMinute(m) != "19:30" {
		t.Fatalf("unexpected format %q", FormatMinute(m))
	}
	d, err := ParseDate("2026-03-08")
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	ny, _ := time.LoadLocation("America/New_York")
	start := LocalStart(d, 19*60, ny)
	if start.UTC().Hour() != 23 {
		t.Fatalf("expected 19:00 EDT to be 23:00 UTC, got %s", start.UTC())
	}
	if FormatDate(LocalDate(time.Date(2026, 3, 9, 2, 0, 0, 0, time.UTC), ny)) != "2026-03-08" {
		t.Fatal("expected local date to lag UTC in New York")
	}
}

func TestHoursRange(t *testing.T) {
	h := HoursRange{Open: 17 * 60, Close: 22 * 60}
	if !h.Contains(17*60) || h.Contains(22*60) {
		t.Fatal("hours are half open")
	}
	if (HoursRange{Open: 600, Close: 600}).Validate() == nil {
		t.Fatal("empty range should be invalid")
	}
}
