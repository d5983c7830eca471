// Package sweeper abandons bookings that sat in checkout too long so their
// tables go back on sale.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/metrics"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/capacity"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
)

// Bookings is the part of the booking service the sweeper drives.
type Bookings interface {
	TransitionTx(ctx context.Context, tx storage.Store, id string, to model.BookingStatus, reason, trigger string) (model.Booking, bool, error)
	Invalidate(ctx context.Context, b model.Booking)
}

type Worker struct {
	store     storage.Store
	bookings  Bookings
	clock     clock.Clock
	metrics   *metrics.Engine
	logger    *slog.Logger
	interval  time.Duration
	window    time.Duration
	batchSize int
}

type Config struct {
	Interval time.Duration
	// Window is how long a booking may stay pending or guest_on_page.
	Window    time.Duration
	BatchSize int
}

func NewWorker(store storage.Store, bookings Bookings, clk clock.Clock, m *metrics.Engine, logger *slog.Logger, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if clk == nil {
		clk = clock.System{}
	}
	if m == nil {
		m = metrics.New("primetable")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:     store,
		bookings:  bookings,
		clock:     clk,
		metrics:   m,
		logger:    logger,
		interval:  cfg.Interval,
		window:    cfg.Window,
		batchSize: cfg.BatchSize,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.Error("checkout sweep failed", "err", err)
			}
		}
	}
}

// Sweep abandons one batch of stale checkouts and returns how many it moved.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	before := w.clock.Now().UTC().Add(-w.window)
	var swept []model.Booking
	err := w.store.RunInTx(ctx, func(ctx context.Context, tx storage.Store) error {
		stale, err := tx.ClaimStaleBookings(ctx, before, w.batchSize)
		if err != nil {
			return err
		}
		for _, b := range stale {
			moved, _, err := w.bookings.TransitionTx(ctx, tx, b.ID, model.StatusAbandoned, "checkout window expired", capacity.TriggerSweep)
			if err != nil {
				return err
			}
			swept = append(swept, moved)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, b := range swept {
		w.bookings.Invalidate(ctx, b)
		w.logger.Info("abandoned stale checkout", "booking_id", b.ID, "venue_id", b.VenueID, "booking_at", b.BookingAt)
	}
	w.metrics.SweptBookings.Add(float64(len(swept)))
	return len(swept), nil
}
