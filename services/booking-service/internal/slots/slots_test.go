package slots

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
)

func seedTemplate(t *testing.T, store *storage.Memory, tables int) model.ScheduleTemplate {
	t.Helper()
	ctx := context.Background()
	row := model.ScheduleTemplate{VenueID: "v1", DayOfWeek: time.Friday, StartMinute: 19 * 60, PartySize: 2, IsAvailable: true, PrimeTime: true, AvailableTables: tables}
	if err := store.UpsertTemplates(ctx, []model.ScheduleTemplate{row}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _, err := store.GetTemplate(ctx, row.Key())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return got
}

func TestResolveCopiesTemplateOnce(t *testing.T) {
	store := storage.NewMemory()
	tmpl := seedTemplate(t, store, 3)
	m := NewMaterializer(store, 1)
	date := time.Date(2026, 1, 30, 18, 0, 0, 0, time.UTC)

	s, err := m.Resolve(context.Background(), tmpl, date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.AvailableTables != 3 || !s.PrimeTime || !s.IsAvailable || model.FormatDate(s.BookingDate) != "2026-01-30" {
		t.Fatalf("unexpected slot %+v", s)
	}
	if _, err := store.ReserveSlot(context.Background(), s.ID); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	tmpl.AvailableTables = 10
	again, err := m.Resolve(context.Background(), tmpl, date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if again.ID != s.ID || m.Remaining(again) != 2 {
		t.Fatalf("expected persisted counter with 2 remaining, got %+v", again)
	}
}

func TestLowInventory(t *testing.T) {
	m := NewMaterializer(storage.NewMemory(), 1)
	cases := []struct {
		slot model.VenueTimeSlot
		want bool
	}{
		{model.VenueTimeSlot{AvailableTables: 3}, false},
		{model.VenueTimeSlot{AvailableTables: 3, TablesBooked: 2}, true},
		{model.VenueTimeSlot{AvailableTables: 3, TablesBooked: 3}, false},
	}
	for _, tc := range cases {
		if got := m.LowInventory(tc.slot); got != tc.want {
			t.Fatalf("%+v: expected %v, got %v", tc.slot, tc.want, got)
		}
	}
	if m.LowRemaining(0) || !m.LowRemaining(1) || m.LowRemaining(2) {
		t.Fatal("threshold of 1 should flag exactly one remaining table")
	}
}

func TestCloseAndOpenOneDate(t *testing.T) {
	store := storage.NewMemory()
	tmpl := seedTemplate(t, store, 2)
	m := NewMaterializer(store, 1)
	date := time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)

	closed, err := m.Close(context.Background(), tmpl.ID, date)
	if err != nil || closed.IsAvailable {
		t.Fatalf("expected closed slot, got %+v %v", closed, err)
	}
	other, _ := m.Resolve(context.Background(), tmpl, date.AddDate(0, 0, 7))
	if !other.IsAvailable {
		t.Fatal("closing one date must not affect the next week")
	}
	opened, err := m.Open(context.Background(), tmpl.ID, date)
	if err != nil || !opened.IsAvailable {
		t.Fatalf("expected reopened slot, got %+v %v", opened, err)
	}
}
