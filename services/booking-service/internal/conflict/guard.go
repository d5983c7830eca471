// Package conflict blocks a guest from holding two non-prime bookings too
// close together.
package conflict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
)

const DefaultWindow = 2 * time.Hour

type Config struct {
	Window time.Duration
	// Inclusive makes bookings exactly Window apart conflict as well.
	Inclusive bool
}

type Guard struct {
	store storage.Store
	cfg   Config
}

func NewGuard(store storage.Store, cfg Config) *Guard {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Guard{store: store, cfg: cfg}
}

// In returns a copy bound to tx.
func (g *Guard) In(tx storage.Store) *Guard {
	cp := *g
	cp.store = tx
	return &cp
}

type Check struct {
	Phone     string
	BookingAt time.Time
	IsPrime   bool
	// ExcludeBookingID skips the booking being modified.
	ExcludeBookingID string
}

// AssertNoConflict returns a Conflict error naming the clashing booking's
// local date and time. Prime bookings are never checked.
func (g *Guard) AssertNoConflict(ctx context.Context, c Check) error {
	if c.IsPrime {
		return nil
	}
	phone := NormalizePhone(c.Phone)
	if phone == "" {
		return bookingerr.Validation("guest phone is required")
	}
	existing, err := g.store.ListActiveBookings(ctx, phone, c.BookingAt.Add(-g.cfg.Window), c.BookingAt.Add(g.cfg.Window))
	if err != nil {
		return fmt.Errorf("list guest bookings: %w", err)
	}
	for _, b := range existing {
		if b.ID == c.ExcludeBookingID || b.IsPrime || !b.Status.Active() {
			continue
		}
		if g.tooClose(b.BookingAt.Sub(c.BookingAt)) {
			return bookingerr.Conflict(
				"guest already has a booking on %s at %s (%s); non-prime bookings must be at least %s apart",
				b.LocalDate, b.LocalTime, b.Timezone, formatWindow(g.cfg.Window),
			)
		}
	}
	return nil
}

func (g *Guard) tooClose(d time.Duration) bool {
	if d < 0 {
		d = -d
	}
	if g.cfg.Inclusive {
		return d <= g.cfg.Window
	}
	return d < g.cfg.Window
}

// NormalizePhone keeps digits and a leading plus sign.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "+" {
		return ""
	}
	return out
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return fmt.Sprintf("%d minutes", int(d/time.Minute))
}
