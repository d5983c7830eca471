// Package payments applies payment outcome events from the payment collaborator
// to booking status. Each event is deduplicated through the inbox in the same
// transaction as the status change.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/capacity"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
)

const (
	EventCaptured = "payment.captured.v1"
	EventFailed   = "payment.failed.v1"
	EventRefunded = "payment.refunded.v1"
)

// Topics is every event type the handler understands.
func Topics() []string {
	return []string{EventCaptured, EventFailed, EventRefunded}
}

type Payload struct {
	BookingID string `json:"booking_id"`
	Amount    int64  `json:"amount,omitempty"`
	Partial   bool   `json:"partial,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Bookings is the part of the booking service the handler drives.
type Bookings interface {
	TransitionTx(ctx context.Context, tx storage.Store, id string, to model.BookingStatus, reason, trigger string) (model.Booking, bool, error)
	Invalidate(ctx context.Context, b model.Booking)
}

type Handler struct {
	store    storage.Store
	bookings Bookings
	logger   *slog.Logger
}

func NewHandler(store storage.Store, bookings Bookings, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, bookings: bookings, logger: logger}
}

// target maps an event onto the status it moves a booking to.
func target(eventType string, p Payload) (model.BookingStatus, string, bool) {
	switch eventType {
	case EventCaptured:
		return model.StatusConfirmed, "payment_captured", true
	case EventFailed:
		return model.StatusCancelled, "payment_failed", true
	case EventRefunded:
		if p.Partial {
			return model.StatusPartiallyRefunded, "partial_refund", true
		}
		return model.StatusRefunded, "refund", true
	}
	return "", "", false
}

// Handle applies one event. It returns applied=false for duplicates and for
// events that cannot change the booking (unknown type, bad payload, booking
// gone, transition not allowed); those are logged and must not be retried.
func (h *Handler) Handle(ctx context.Context, eventID, eventType string, value []byte) (bool, error) {
	var p Payload
	if err := json.Unmarshal(value, &p); err != nil || p.BookingID == "" {
		h.logger.Error("invalid payment event payload", "event_id", eventID, "event_type", eventType, "err", err)
		return false, nil
	}
	to, reason, ok := target(eventType, p)
	if !ok {
		h.logger.Warn("unsupported payment event", "event_id", eventID, "event_type", eventType)
		return false, nil
	}
	if p.Reason != "" {
		reason = p.Reason
	}

	var (
		b         model.Booking
		released  bool
		duplicate bool
	)
	err := h.store.RunInTx(ctx, func(ctx context.Context, tx storage.Store) error {
		fresh, err := tx.RecordInbox(ctx, eventID, eventType)
		if err != nil {
			return fmt.Errorf("record inbox: %w", err)
		}
		if !fresh {
			duplicate = true
			return nil
		}
		b, released, err = h.bookings.TransitionTx(ctx, tx, p.BookingID, to, reason, capacity.TriggerStatus)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, bookingerr.ErrNotFound), errors.Is(err, bookingerr.ErrInvalidTransition):
		h.logger.Warn("payment event not applied",
			"event_id", eventID,
			"event_type", eventType,
			"booking_id", p.BookingID,
			"err", err,
		)
		return false, nil
	default:
		return false, err
	}
	if duplicate {
		h.logger.Info("duplicate event ignored", "event_id", eventID, "event_type", eventType)
		return false, nil
	}
	if released {
		h.bookings.Invalidate(ctx, b)
	}
	h.logger.Info("payment event applied",
		"event_id", eventID,
		"event_type", eventType,
		"booking_id", b.ID,
		"status", b.Status,
	)
	return true, nil
}
