package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/capacity"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/modification"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/slots"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/templates"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	store := storage.NewMemory()
	clk := clock.NewFixed(time.Date(2026, 1, 30, 12, 0, 0, 0, time.UTC))
	tmpl := templates.NewService(store, templates.Config{SeedOpen: 17 * 60, SeedClose: 22 * 60}, nil)
	materializer := slots.NewMaterializer(store, 1)
	resolver := availability.NewResolver(availability.Deps{Store: store, Templates: tmpl, Slots: materializer, Clock: clk}, availability.DefaultConfig())
	guard := conflict.NewGuard(store, conflict.Config{})
	alloc := capacity.NewAllocator(store, nil, nil)
	h := New(Deps{
		Store:         store,
		Templates:     tmpl,
		Slots:         materializer,
		Resolver:      resolver,
		Bookings:      booking.NewService(booking.Deps{Store: store, Resolver: resolver, Guard: guard, Allocator: alloc, Clock: clk}),
		Modifications: modification.NewService(modification.Deps{Store: store, Resolver: resolver, Guard: guard, Allocator: alloc, Clock: clk}),
	})
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func do(t *testing.T, h http.Handler, method, target string, body any, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	var out map[string]any
	_ = json.Unmarshal(rw.Body.Bytes(), &out)
	return rw, out
}

// onboard creates a venue open 18:00-22:00 on Fridays with one table per
// tier and prime time from 20:00.
func onboard(t *testing.T, h http.Handler) string {
	t.Helper()
	rw, out := do(t, h, http.MethodPost, "/api/v1/venues", map[string]any{
		"name":           "Test Bistro",
		"region":         "nyc",
		"timezone":       "UTC",
		"business_hours": map[string]any{"friday": []map[string]string{{"open": "18:00", "close": "22:00"}}},
		"prime_hours":    map[string]any{"friday": []map[string]string{{"open": "20:00", "close": "22:00"}}},
	})
	if rw.Code != http.StatusCreated {
		t.Fatalf("create venue: %d %s", rw.Code, rw.Body.String())
	}
	id := out["id"].(string)
	rw, _ = do(t, h, http.MethodPost, "/api/v1/templates/availability", map[string]any{
		"venue_id": id, "days": []string{"friday"}, "open": true, "tables": 1,
	})
	if rw.Code != http.StatusOK {
		t.Fatalf("open tables: %d %s", rw.Code, rw.Body.String())
	}
	return id
}

func TestBookingFlowOverHTTP(t *testing.T) {
	h := newTestServer(t)
	venueID := onboard(t, h)

	rw, out := do(t, h, http.MethodGet, "/api/v1/availability?venue_id="+venueID+"&date=2026-01-30&party_size=2&from=18:00&to=19:00", nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("availability: %d %s", rw.Code, rw.Body.String())
	}
	venues := out["venues"].([]any)
	slotsOut := venues[0].(map[string]any)["slots"].([]any)
	if len(slotsOut) != 3 {
		t.Fatalf("expected 18:00, 18:30 and 19:00, got %d slots", len(slotsOut))
	}

	body := map[string]any{
		"venue_id": venueID, "date": "2026-01-30", "time": "19:00", "party_size": 2,
		"guest_name": "Ada", "guest_phone": "+1 555 000 1111",
	}
	rw, created := do(t, h, http.MethodPost, "/api/v1/bookings", body, "Idempotency-Key", "k-1")
	if rw.Code != http.StatusCreated || created["status"] != "confirmed" || created["guest_phone"] != "+15550001111" {
		t.Fatalf("create: %d %s", rw.Code, rw.Body.String())
	}
	rw, replay := do(t, h, http.MethodPost, "/api/v1/bookings", body, "Idempotency-Key", "k-1")
	if rw.Code != http.StatusOK || replay["booking_id"] != created["booking_id"] {
		t.Fatalf("replay: %d %s", rw.Code, rw.Body.String())
	}

	body["guest_phone"] = "+15550002222"
	rw, out = do(t, h, http.MethodPost, "/api/v1/bookings", body)
	if rw.Code != http.StatusConflict || out["code"] != "capacity_exhausted" {
		t.Fatalf("expected capacity error, got %d %s", rw.Code, rw.Body.String())
	}

	body["time"] = "12:30"
	rw, out = do(t, h, http.MethodPost, "/api/v1/bookings", body)
	if rw.Code != http.StatusUnprocessableEntity || out["code"] != "slot_unbookable" {
		t.Fatalf("expected unbookable, got %d %s", rw.Code, rw.Body.String())
	}

	rw, out = do(t, h, http.MethodPost, "/api/v1/bookings/cancel", map[string]any{"booking_id": created["booking_id"], "reason": "sick"})
	if rw.Code != http.StatusOK || out["status"] != "cancelled" {
		t.Fatalf("cancel: %d %s", rw.Code, rw.Body.String())
	}
	rw, out = do(t, h, http.MethodPost, "/api/v1/bookings/status", map[string]any{"booking_id": created["booking_id"], "status": "confirmed"})
	if rw.Code != http.StatusConflict || out["code"] != "invalid_transition" {
		t.Fatalf("expected invalid transition, got %d %s", rw.Code, rw.Body.String())
	}

	rw, out = do(t, h, http.MethodGet, "/api/v1/bookings?phone=%2B15550001111", nil)
	if rw.Code != http.StatusOK || len(out["bookings"].([]any)) != 1 {
		t.Fatalf("list: %d %s", rw.Code, rw.Body.String())
	}
}

func TestBookingIgnoresCallerClock(t *testing.T) {
	h := newTestServer(t)
	venueID := onboard(t, h)

	// A week ago, well before the server clock.
	body := map[string]any{
		"venue_id": venueID, "date": "2026-01-23", "time": "19:00", "party_size": 2,
		"guest_name": "Ada", "guest_phone": "+15550003333", "now": "2026-01-23T10:00:00Z",
	}
	rw, _ := do(t, h, http.MethodPost, "/api/v1/bookings", body)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("now is not a booking field, got %d %s", rw.Code, rw.Body.String())
	}

	delete(body, "now")
	rw, out := do(t, h, http.MethodPost, "/api/v1/bookings", body)
	if rw.Code != http.StatusUnprocessableEntity || out["code"] != "slot_unbookable" {
		t.Fatalf("past date should be unbookable by the server clock, got %d %s", rw.Code, rw.Body.String())
	}
}

func TestModificationFlowOverHTTP(t *testing.T) {
	h := newTestServer(t)
	venueID := onboard(t, h)

	rw, created := do(t, h, http.MethodPost, "/api/v1/bookings", map[string]any{
		"venue_id": venueID, "date": "2026-01-30", "time": "18:00", "party_size": 2,
		"guest_name": "Ada", "guest_phone": "+15550003333",
	})
	if rw.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rw.Code, rw.Body.String())
	}
	bookingID := created["booking_id"].(string)

	rw, out := do(t, h, http.MethodPost, "/api/v1/modifications", map[string]any{
		"booking_id": bookingID, "date": "2026-01-30", "time": "20:00", "guest_count": 2,
	})
	if rw.Code != http.StatusUnprocessableEntity {
		t.Fatalf("prime target should be refused, got %d %s", rw.Code, rw.Body.String())
	}

	rw, out = do(t, h, http.MethodPost, "/api/v1/modifications", map[string]any{
		"booking_id": bookingID, "date": "2026-01-30", "time": "19:30", "guest_count": 3, "requested_by": "guest",
	})
	if rw.Code != http.StatusCreated || out["status"] != "pending" {
		t.Fatalf("submit: %d %s", rw.Code, rw.Body.String())
	}
	requestID := out["request_id"].(string)

	rw, out = do(t, h, http.MethodPost, "/api/v1/modifications/approve", map[string]any{"request_id": requestID, "decided_by": "host"})
	if rw.Code != http.StatusOK || out["status"] != "approved" {
		t.Fatalf("approve: %d %s", rw.Code, rw.Body.String())
	}
	moved := out["booking"].(map[string]any)
	if moved["time"] != "19:30" || moved["guest_count"].(float64) != 3 {
		t.Fatalf("unexpected booking %v", moved)
	}

	rw, out = do(t, h, http.MethodGet, "/api/v1/modifications?booking_id="+bookingID, nil)
	if rw.Code != http.StatusOK || len(out["modifications"].([]any)) != 1 {
		t.Fatalf("list: %d %s", rw.Code, rw.Body.String())
	}
}

func TestMethodAndBodyChecks(t *testing.T) {
	h := newTestServer(t)
	if rw, _ := do(t, h, http.MethodGet, "/api/v1/bookings/cancel", nil); rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(`{"venue_id": 5}`))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rw.Code)
	}
	if rw, out := do(t, h, http.MethodGet, "/api/v1/availability?date=2026-01-30&party_size=2", nil); rw.Code != http.StatusBadRequest || out["code"] != "validation_error" {
		t.Fatalf("expected validation error, got %d", rw.Code)
	}
	if rw, _ := do(t, h, http.MethodGet, "/api/v1/bookings/get?id=missing", nil); rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	h := New(Deps{})

	rw := httptest.NewRecorder()
	h.writeError(rw, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: connection refused at 10.0.0.3"))
	if rw.Code != http.StatusInternalServerError || strings.Contains(rw.Body.String(), "10.0.0.3") {
		t.Fatalf("internal details leaked: %d %s", rw.Code, rw.Body.String())
	}

	rw = httptest.NewRecorder()
	h.writeError(rw, httptest.NewRequest(http.MethodGet, "/", nil), bookingerr.ConcurrencyConflict("slot taken; please try again"))
	if rw.Code != http.StatusConflict || rw.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected 409 with Retry-After, got %d %v", rw.Code, rw.Header())
	}
	if !strings.Contains(rw.Body.String(), "slot taken") {
		t.Fatalf("caller-facing message missing: %s", rw.Body.String())
	}
}
