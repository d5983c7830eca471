// Package outbox records domain events in the same transaction as the state
// change they describe, and relays them to a broker afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/primetable/libs/otel"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
)

// Event types double as Kafka topics and RabbitMQ queue names.
const (
	BookingCreated        = "booking.created.v1"
	BookingStatusChanged  = "booking.status_changed.v1"
	BookingCancelled      = "booking.cancelled.v1"
	ModificationRequested = "booking.modification.requested.v1"
	ModificationApproved  = "booking.modification.approved.v1"
	ModificationRejected  = "booking.modification.rejected.v1"

	AggregateBooking      = "booking"
	AggregateModification = "booking_modification"
)

// BookingPayload is the body of every booking.* event.
type BookingPayload struct {
	BookingID      string    `json:"booking_id"`
	VenueID        string    `json:"venue_id"`
	SlotID         string    `json:"slot_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	BookingAt      time.Time `json:"booking_at"`
	LocalDate      string    `json:"local_date"`
	LocalTime      string    `json:"local_time"`
	Timezone       string    `json:"timezone"`
	GuestCount     int       `json:"guest_count"`
	GuestPhone     string    `json:"guest_phone"`
	IsPrime        bool      `json:"is_prime"`
	Fee            *int64    `json:"fee,omitempty"`
	Source         string    `json:"source"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func NewBookingPayload(b model.Booking, previous model.BookingStatus, reason string, at time.Time) BookingPayload {
	return BookingPayload{
		BookingID:      b.ID,
		VenueID:        b.VenueID,
		SlotID:         b.SlotID,
		Status:         string(b.Status),
		PreviousStatus: string(previous),
		BookingAt:      b.BookingAt,
		LocalDate:      b.LocalDate,
		LocalTime:      b.LocalTime,
		Timezone:       b.Timezone,
		GuestCount:     b.GuestCount,
		GuestPhone:     b.GuestPhone,
		IsPrime:        b.IsPrime,
		Fee:            b.Fee,
		Source:         string(b.Source),
		Reason:         reason,
		OccurredAt:     at,
	}
}

type ModificationPayload struct {
	RequestID   string           `json:"request_id"`
	BookingID   string           `json:"booking_id"`
	Status      string           `json:"status"`
	Original    model.SlotChoice `json:"original"`
	Requested   model.SlotChoice `json:"requested"`
	RequestedBy string           `json:"requested_by"`
	Source      string           `json:"source"`
	DecidedBy   string           `json:"decided_by,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

func NewModificationPayload(m model.ModificationRequest, at time.Time) ModificationPayload {
	return ModificationPayload{
		RequestID:   m.ID,
		BookingID:   m.BookingID,
		Status:      string(m.Status),
		Original:    m.Original,
		Requested:   m.Requested,
		RequestedBy: m.RequestedBy,
		Source:      string(m.Source),
		DecidedBy:   m.DecidedBy,
		Reason:      m.DecisionReason,
		OccurredAt:  at,
	}
}

// Write appends one event to the outbox through store, which should be the
// transaction that made the change. The current trace context travels with it.
func Write(ctx context.Context, store storage.Store, aggregateType, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	return store.InsertOutbox(ctx, model.OutboxEvent{
		EventID:       uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		Traceparent:   traceparent,
		Tracestate:    tracestate,
	})
}
