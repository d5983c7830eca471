package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
)

func seedSlot(t *testing.T, m *Memory, tables int) model.VenueTimeSlot {
	t.Helper()
	ctx := context.Background()
	tmpl := model.ScheduleTemplate{VenueID: "v1", DayOfWeek: time.Friday, StartMinute: 19 * 60, PartySize: 2, IsAvailable: true, AvailableTables: tables}
	if err := m.UpsertTemplates(ctx, []model.ScheduleTemplate{tmpl}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	stored, ok, err := m.GetTemplate(ctx, tmpl.Key())
	if err != nil || !ok {
		t.Fatalf("get template: ok=%v err=%v", ok, err)
	}
	slot, err := m.GetOrCreateSlot(ctx, stored, time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("slot: %v", err)
	}
	return slot
}

func TestMemoryReserveNeverOverbooks(t *testing.T) {
	m := NewMemory()
	slot := seedSlot(t, m, 3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, exhausted := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.ReserveSlot(context.Background(), slot.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrNoCapacity):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 3 || exhausted != 7 {
		t.Fatalf("expected 3 successes and 7 exhausted, got %d/%d", ok, exhausted)
	}
}

func TestMemoryGetOrCreateSlotKeepsCounter(t *testing.T) {
	m := NewMemory()
	slot := seedSlot(t, m, 2)
	if _, err := m.ReserveSlot(context.Background(), slot.ID); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	tmpl, _ := m.GetTemplateByID(context.Background(), slot.ScheduleTemplateID)
	tmpl.AvailableTables = 9
	again, err := m.GetOrCreateSlot(context.Background(), tmpl, slot.BookingDate)
	if err != nil {
		t.Fatalf("slot: %v", err)
	}
	if again.ID != slot.ID || again.TablesBooked != 1 || again.AvailableTables != 2 {
		t.Fatalf("expected persisted counter, got %+v", again)
	}
}

func TestMemoryRunInTxRestoresOnError(t *testing.T) {
	m := NewMemory()
	slot := seedSlot(t, m, 1)
	boom := errors.New("boom")

	err := m.RunInTx(context.Background(), func(ctx context.Context, tx Store) error {
		if _, err := tx.ReserveSlot(ctx, slot.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := m.GetSlot(context.Background(), slot.ID)
	if got.TablesBooked != 0 {
		t.Fatalf("expected rollback to restore the table, got %d booked", got.TablesBooked)
	}
}

func TestMemoryReleaseFloorsAtZero(t *testing.T) {
	m := NewMemory()
	slot := seedSlot(t, m, 1)
	got, err := m.ReleaseSlot(context.Background(), slot.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if got.TablesBooked != 0 || got.Remaining() != 1 {
		t.Fatalf("unexpected slot after release %+v", got)
	}
}

func TestMemorySinglePendingModification(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	first := &model.ModificationRequest{BookingID: "b1", Status: model.ModificationPending}
	if err := m.CreateModification(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.CreateModification(ctx, &model.ModificationRequest{BookingID: "b1", Status: model.ModificationPending}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	first.Status = model.ModificationRejected
	if err := m.UpdateModification(ctx, *first); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := m.CreateModification(ctx, &model.ModificationRequest{BookingID: "b1", Status: model.ModificationPending}); err != nil {
		t.Fatalf("expected new request after rejection, got %v", err)
	}
}

func TestMemoryMarkCapacityReleasedOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	b := &model.Booking{GuestPhone: "+15550100", Status: model.StatusConfirmed}
	if err := m.CreateBooking(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}
	first, err := m.MarkCapacityReleased(ctx, b.ID)
	if err != nil || !first {
		t.Fatalf("expected first flip, got %v %v", first, err)
	}
	second, err := m.MarkCapacityReleased(ctx, b.ID)
	if err != nil || second {
		t.Fatalf("expected second flip to be a no-op, got %v %v", second, err)
	}
}

func TestMemoryIdempotencyKeyUnique(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.CreateBooking(ctx, &model.Booking{IdempotencyKey: "k1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.CreateBooking(ctx, &model.Booking{IdempotencyKey: "k1"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if _, ok, _ := m.GetBookingByIdempotencyKey(ctx, "k1"); !ok {
		t.Fatal("expected lookup by key")
	}
}
