package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	fixed := time.Date(2026, 1, 28, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }

	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		codes = append(codes, rw.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("expected first two requests to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third request, got %d", codes[2])
	}

	other := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, other)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected separate bucket per client, got %d", rw.Code)
	}
}

func TestChainOrderAndRequestID(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestIDFromContext(r.Context()) == "" {
			t.Fatal("expected request id in context")
		}
		w.WriteHeader(http.StatusNoContent)
	}), WithRequestID, mk("a"), mk("b"))

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	if rw.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected middleware order %v", order)
	}
}

func TestWithCORSPreflight(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://concierge.example.com"},
		AllowedMethods: []string{"GET", "POST"},
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "http://example.com/api/v1/bookings", nil)
	req.Header.Set("Origin", "https://concierge.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rw.Code)
	}
	if rw.Header().Get("Access-Control-Allow-Origin") != "https://concierge.example.com" {
		t.Fatalf("unexpected allow origin %q", rw.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRateLimiterSkipsProbesAndAnswersJSON(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	fixed := time.Date(2026, 1, 28, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "http://example.com"+path, nil)
		req.RemoteAddr = "10.0.0.3:1234"
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		return rw
	}
	if rw := send("/api/v1/availability"); rw.Code != http.StatusOK {
		t.Fatalf("expected first request through, got %d", rw.Code)
	}
	rw := send("/api/v1/availability")
	if rw.Code != http.StatusTooManyRequests || rw.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected 429 with Retry-After, got %d %q", rw.Code, rw.Header().Get("Retry-After"))
	}
	if ct := rw.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json error body, got %q", ct)
	}
	for _, p := range []string{"/healthz", "/readyz", "/metrics"} {
		if rw := send(p); rw.Code != http.StatusOK {
			t.Fatalf("%s must not be limited, got %d", p, rw.Code)
		}
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	cases := map[time.Duration]int{
		0:                       1,
		300 * time.Millisecond:  1,
		1500 * time.Millisecond: 2,
		42 * time.Second:        42,
	}
	for in, want := range cases {
		if got := retryAfterSeconds(in); got != want {
			t.Fatalf("%v: expected %d, got %d", in, want, got)
		}
	}
}
