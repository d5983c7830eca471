package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesEngineCounters(t *testing.T) {
	m := New("primetable")
	m.Reservations.WithLabelValues("ok").Inc()
	m.InventoryLeaks.Inc()

	rw := httptest.NewRecorder()
	m.Handler().ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	body := rw.Body.String()
	for _, want := range []string{
		`primetable_reservations_total{result="ok"} 1`,
		"primetable_inventory_leak_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestNewUsesPrivateRegistry(t *testing.T) {
	// Two instances must not collide on registration.
	_ = New("a")
	_ = New("a")
}
