package templates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
)

func newService(t *testing.T) (*Service, model.Venue) {
	t.Helper()
	store := storage.NewMemory()
	v := model.Venue{Name: "Test Bistro", Timezone: "UTC"}
	if err := store.CreateVenue(context.Background(), &v); err != nil {
		t.Fatalf("create venue: %v", err)
	}
	cfg := DefaultConfig()
	cfg.DefaultTables = 2
	return NewService(store, cfg, nil), v
}

func intPtr(v int) *int { return &v }

func TestSeedDefaultsBuildsClosedGrid(t *testing.T) {
	svc, v := newService(t)
	ctx := context.Background()

	created, err := svc.SeedDefaults(ctx, v)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	// 7 days x 24 half hours between 11:00 and 23:00 x (base + 4 tiers)
	if created != 7*24*5 {
		t.Fatalf("expected 840 rows, got %d", created)
	}
	again, err := svc.SeedDefaults(ctx, v)
	if err != nil || again != 0 {
		t.Fatalf("expected idempotent seed, got %d %v", again, err)
	}

	rows, _ := svc.ListDay(ctx, v.ID, time.Monday)
	for _, r := range rows {
		if r.IsAvailable || r.PrimeTime || r.AvailableTables != 2 {
			t.Fatalf("unexpected seeded row %+v", r)
		}
	}
	if rows[0].StartMinute != 11*60 || rows[len(rows)-1].StartMinute != 22*60+30 {
		t.Fatalf("unexpected grid bounds %s..%s", rows[0].StartTime(), rows[len(rows)-1].StartTime())
	}
}

func TestSetPrimeNeverReopensClosedRows(t *testing.T) {
	svc, v := newService(t)
	ctx := context.Background()
	if _, err := svc.SeedDefaults(ctx, v); err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := svc.SetAvailability(ctx, AvailabilityEdit{
		Selector: Selector{VenueID: v.ID, Days: []time.Weekday{time.Friday}, StartMinutes: []int{19 * 60}},
		Open:     true,
		Tables:   -1,
	})
	if err != nil || n != 5 {
		t.Fatalf("expected 5 rows opened, got %d %v", n, err)
	}

	n, err = svc.SetPrime(ctx, PrimeEdit{
		Selector: Selector{VenueID: v.ID, Days: []time.Weekday{time.Friday}, StartMinutes: []int{19 * 60, 20 * 60}},
		Prime:    true,
	})
	if err != nil {
		t.Fatalf("prime: %v", err)
	}
	if n != 5 {
		t.Fatalf("only the open 19:00 rows should turn prime, got %d", n)
	}
	closed, _, _ := svc.Get(ctx, v.ID, time.Friday, 20*60, 2)
	if closed.IsAvailable || closed.PrimeTime {
		t.Fatalf("20:00 must stay closed and non-prime: %+v", closed)
	}
}

func TestEditMissingCombinationIsNoop(t *testing.T) {
	svc, v := newService(t)
	n, err := svc.SetAvailability(context.Background(), AvailabilityEdit{
		Selector: Selector{VenueID: v.ID, Days: []time.Weekday{time.Tuesday}, StartMinutes: []int{3 * 60}, Tier: intPtr(4)},
		Open:     true,
	})
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got %d %v", n, err)
	}
}

func TestResolveFallsBackToBase(t *testing.T) {
	svc, v := newService(t)
	ctx := context.Background()
	rows := []model.ScheduleTemplate{
		{DayOfWeek: time.Friday, StartMinute: 19 * 60, PartySize: 0, IsAvailable: true, AvailableTables: 5},
		{DayOfWeek: time.Friday, StartMinute: 19 * 60, PartySize: 6, IsAvailable: false, AvailableTables: 1},
	}
	if _, err := svc.UpsertBulk(ctx, v.ID, rows); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, ok, err := svc.Resolve(ctx, v.ID, time.Friday, 19*60, 4)
	if err != nil || !ok || got.PartySize != 0 || got.AvailableTables != 5 {
		t.Fatalf("tier 4 should fall back to base, got %+v ok=%v err=%v", got, ok, err)
	}
	got, ok, _ = svc.Resolve(ctx, v.ID, time.Friday, 19*60, 6)
	if !ok || got.PartySize != 6 || got.IsAvailable {
		t.Fatalf("explicit tier 6 row should win even when closed, got %+v", got)
	}
	if _, ok, _ := svc.Resolve(ctx, v.ID, time.Friday, 20*60, 4); ok {
		t.Fatal("expected absent template at 20:00")
	}

	day, err := svc.ResolveDay(ctx, v.ID, time.Friday, 6)
	if err != nil || len(day) != 1 || day[0].PartySize != 6 {
		t.Fatalf("unexpected resolved day %+v %v", day, err)
	}
}

func TestUpsertBulkValidates(t *testing.T) {
	svc, v := newService(t)
	cases := []model.ScheduleTemplate{
		{DayOfWeek: 7, StartMinute: 600},
		{DayOfWeek: time.Monday, StartMinute: 615},
		{DayOfWeek: time.Monday, StartMinute: 600, PartySize: 3},
		{DayOfWeek: time.Monday, StartMinute: 600, AvailableTables: -1},
	}
	for _, row := range cases {
		_, err := svc.UpsertBulk(context.Background(), v.ID, []model.ScheduleTemplate{row})
		if !errors.Is(err, bookingerr.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", row, err)
		}
	}
	if _, err := svc.UpsertBulk(context.Background(), "missing", nil); !errors.Is(err, bookingerr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyHours(t *testing.T) {
	svc, v := newService(t)
	ctx := context.Background()
	if _, err := svc.SeedDefaults(ctx, v); err != nil {
		t.Fatalf("seed: %v", err)
	}
	v.BusinessHours = model.WeeklyHours{time.Saturday: {{Open: 17 * 60, Close: 22 * 60}}}
	v.PrimeHours = model.WeeklyHours{time.Saturday: {{Open: 19 * 60, Close: 21 * 60}}}
	if _, err := svc.ApplyHours(ctx, v); err != nil {
		t.Fatalf("apply: %v", err)
	}

	check := func(minute int, open, prime bool) {
		t.Helper()
		row, ok, _ := svc.Get(ctx, v.ID, time.Saturday, minute, 2)
		if !ok || row.IsAvailable != open || row.PrimeTime != prime {
			t.Fatalf("%s: expected open=%v prime=%v, got %+v", model.FormatMinute(minute), open, prime, row)
		}
	}
	check(16*60+30, false, false)
	check(17*60, true, false)
	check(19*60, true, true)
	check(21*60, true, false)
	check(22*60, false, false)

	if row, _, _ := svc.Get(ctx, v.ID, time.Sunday, 19*60, 2); row.IsAvailable {
		t.Fatal("days without hours stay closed")
	}
}

func TestOnboardSeedsAndAppliesHours(t *testing.T) {
	store := storage.NewMemory()
	svc := NewService(store, Config{SeedOpen: 17 * 60, SeedClose: 22 * 60, DefaultTables: 2}, nil)
	ctx := context.Background()

	v := model.Venue{
		Name:          " Test Bistro ",
		Timezone:      "America/New_York",
		BusinessHours: model.WeeklyHours{time.Friday: {{Open: 18 * 60, Close: 22 * 60}}},
		PrimeHours:    model.WeeklyHours{time.Friday: {{Open: 19 * 60, Close: 21 * 60}}},
	}
	seeded, err := svc.Onboard(ctx, &v)
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}
	// 7 days x 10 half hours x 5 tiers including base.
	if seeded != 7*10*5 {
		t.Fatalf("unexpected seeded count %d", seeded)
	}
	if v.Name != "Test Bistro" || v.Status != model.VenueActive {
		t.Fatalf("unexpected venue %+v", v)
	}

	check := func(hhmm string, open, prime bool) {
		t.Helper()
		m, _ := model.ParseMinute(hhmm)
		row, ok, err := svc.Get(ctx, v.ID, time.Friday, m, 2)
		if err != nil || !ok {
			t.Fatalf("get %s: %v %v", hhmm, ok, err)
		}
		if row.IsAvailable != open || row.PrimeTime != prime {
			t.Fatalf("%s: open=%v prime=%v", hhmm, row.IsAvailable, row.PrimeTime)
		}
	}
	check("17:30", false, false)
	check("18:00", true, false)
	check("19:30", true, true)
	check("21:30", true, false)

	changed, err := svc.UpdateHours(ctx, v.ID, model.WeeklyHours{time.Friday: {{Open: 17 * 60, Close: 19 * 60}}}, nil)
	if err != nil || changed == 0 {
		t.Fatalf("update hours: %d %v", changed, err)
	}
	check("17:30", true, false)
	// Closing keeps the prime flag; it only matters once the row reopens.
	check("19:30", false, true)
}

func TestOnboardRejectsBadVenue(t *testing.T) {
	svc := NewService(storage.NewMemory(), DefaultConfig(), nil)
	lat := 40.7
	for _, v := range []model.Venue{
		{Name: "", Timezone: "UTC"},
		{Name: "Nowhere", Timezone: "Mars/Olympus"},
		{Name: "Half", Timezone: "UTC", Latitude: &lat},
	} {
		if _, err := svc.Onboard(context.Background(), &v); !errors.Is(err, bookingerr.ErrValidation) {
			t.Fatalf("%+v: expected validation error, got %v", v, err)
		}
	}
}
