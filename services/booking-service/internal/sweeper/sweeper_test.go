package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/metrics"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/capacity"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/slots"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/templates"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSweepAbandonsStaleCheckouts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	clk := clock.NewFixed(time.Date(2026, 1, 30, 12, 0, 0, 0, time.UTC))
	m := metrics.New("test")
	tmpl := templates.NewService(store, templates.DefaultConfig(), nil)
	resolver := availability.NewResolver(availability.Deps{
		Store:     store,
		Templates: tmpl,
		Slots:     slots.NewMaterializer(store, 1),
		Clock:     clk,
	}, availability.DefaultConfig())
	bookings := booking.NewService(booking.Deps{
		Store:     store,
		Resolver:  resolver,
		Guard:     conflict.NewGuard(store, conflict.Config{}),
		Allocator: capacity.NewAllocator(store, m, nil),
		Clock:     clk,
	})

	v := model.Venue{Name: "Test Bistro", Timezone: "UTC"}
	if err := store.CreateVenue(ctx, &v); err != nil {
		t.Fatalf("venue: %v", err)
	}
	rows := []model.ScheduleTemplate{
		{DayOfWeek: time.Friday, StartMinute: 20 * 60, PartySize: 2, IsAvailable: true, PrimeTime: true, AvailableTables: 1},
		{DayOfWeek: time.Friday, StartMinute: 21 * 60, PartySize: 2, IsAvailable: true, AvailableTables: 1},
	}
	if _, err := tmpl.UpsertBulk(ctx, v.ID, rows); err != nil {
		t.Fatalf("templates: %v", err)
	}
	create := func(minute int, phone string) model.Booking {
		b, _, err := bookings.Create(ctx, booking.CreateInput{
			VenueID:     v.ID,
			Date:        time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC),
			StartMinute: minute,
			PartySize:   2,
			Guest:       booking.Guest{Name: "Lin", Phone: phone},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		return b
	}
	prime := create(20*60, "+15552220000")
	confirmed := create(21*60, "+15552220001")
	if prime.Status != model.StatusPending {
		t.Fatalf("prime booking should wait in checkout, got %s", prime.Status)
	}

	w := NewWorker(store, bookings, clk, m, nil, Config{Window: 15 * time.Minute})
	if n, err := w.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("nothing is stale yet: n=%d err=%v", n, err)
	}

	clk.Advance(16 * time.Minute)
	n, err := w.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one abandoned booking, got n=%d err=%v", n, err)
	}
	got, _ := bookings.Get(ctx, prime.ID)
	if got.Status != model.StatusAbandoned || !got.CapacityReleased {
		t.Fatalf("unexpected swept booking %+v", got)
	}
	slot, _ := store.GetSlot(ctx, prime.SlotID)
	if slot.Remaining() != 1 {
		t.Fatalf("expected the table back on sale, got %+v", slot)
	}
	if still, _ := bookings.Get(ctx, confirmed.ID); still.Status != model.StatusConfirmed {
		t.Fatalf("confirmed bookings are never swept, got %s", still.Status)
	}
	if got := testutil.ToFloat64(m.SweptBookings); got != 1 {
		t.Fatalf("expected swept counter 1, got %v", got)
	}
	if n, _ := w.Sweep(ctx); n != 0 {
		t.Fatalf("second sweep should find nothing, got %d", n)
	}
}
