package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
)

const bookingColumns = `id::text, venue_id::text, schedule_template_id::text, slot_id::text, booking_at,
	local_date, local_time, timezone, guest_name, guest_phone, guest_email, guest_count, status, is_prime, fee,
	source, concierge_id, COALESCE(idempotency_key, ''), capacity_released, completed, created_at, updated_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var status, source string
	err := row.Scan(&b.ID, &b.VenueID, &b.ScheduleTemplateID, &b.SlotID, &b.BookingAt,
		&b.LocalDate, &b.LocalTime, &b.Timezone, &b.GuestName, &b.GuestPhone, &b.GuestEmail, &b.GuestCount,
		&status, &b.IsPrime, &b.Fee, &source, &b.ConciergeID, &b.IdempotencyKey, &b.CapacityReleased,
		&b.Completed, &b.CreatedAt, &b.UpdatedAt)
	b.Status = model.BookingStatus(status)
	b.Source = model.Source(source)
	return b, err
}

func collectBookings(rows pgx.Rows, err error) ([]model.Booking, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LockGuest takes a transaction-scoped advisory lock keyed on the phone.
func (p *Postgres) LockGuest(ctx context.Context, phone string) error {
	if p.tx == nil {
		return errors.New("LockGuest requires a transaction")
	}
	_, err := p.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, phone)
	return err
}

func (p *Postgres) CreateBooking(ctx context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	var idem *string
	if b.IdempotencyKey != "" {
		idem = &b.IdempotencyKey
	}
	_, err := p.q.Exec(ctx, `
		INSERT INTO bookings
			(id, venue_id, schedule_template_id, slot_id, booking_at, local_date, local_time, timezone,
			 guest_name, guest_phone, guest_email, guest_count, status, is_prime, fee, source, concierge_id,
			 idempotency_key, capacity_released, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`, b.ID, b.VenueID, b.ScheduleTemplateID, b.SlotID, b.BookingAt, b.LocalDate, b.LocalTime, b.Timezone,
		b.GuestName, b.GuestPhone, b.GuestEmail, b.GuestCount, string(b.Status), b.IsPrime, b.Fee, string(b.Source),
		b.ConciergeID, idem, b.CapacityReleased, b.Completed, b.CreatedAt, b.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(p.q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	return b, notFound(err)
}

func (p *Postgres) LockBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(p.q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	return b, notFound(err)
}

func (p *Postgres) GetBookingByIdempotencyKey(ctx context.Context, key string) (model.Booking, bool, error) {
	b, err := scanBooking(p.q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE idempotency_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Booking{}, false, nil
	}
	if err != nil {
		return model.Booking{}, false, err
	}
	return b, true, nil
}

func (p *Postgres) ListBookingsByPhone(ctx context.Context, phone string) ([]model.Booking, error) {
	return collectBookings(p.q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE guest_phone = $1
		ORDER BY booking_at, id
	`, phone))
}

func (p *Postgres) ListActiveBookings(ctx context.Context, phone string, from, to time.Time) ([]model.Booking, error) {
	return collectBookings(p.q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE guest_phone = $1
			AND status IN ('pending', 'guest_on_page', 'confirmed')
			AND booking_at BETWEEN $2 AND $3
		ORDER BY booking_at, id
	`, phone, from, to))
}

func (p *Postgres) UpdateBooking(ctx context.Context, b model.Booking) error {
	tag, err := p.q.Exec(ctx, `
		UPDATE bookings
		SET schedule_template_id = $2,
			slot_id = $3,
			booking_at = $4,
			local_date = $5,
			local_time = $6,
			guest_count = $7,
			status = $8,
			is_prime = $9,
			fee = $10,
			completed = $11,
			updated_at = $12
		WHERE id = $1
	`, b.ID, b.ScheduleTemplateID, b.SlotID, b.BookingAt, b.LocalDate, b.LocalTime, b.GuestCount,
		string(b.Status), b.IsPrime, b.Fee, b.Completed, b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) MarkCapacityReleased(ctx context.Context, bookingID string) (bool, error) {
	tag, err := p.q.Exec(ctx, `
		UPDATE bookings SET capacity_released = true WHERE id = $1 AND NOT capacity_released
	`, bookingID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) ClaimStaleBookings(ctx context.Context, before time.Time, limit int) ([]model.Booking, error) {
	return collectBookings(p.q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status IN ('pending', 'guest_on_page') AND updated_at < $1
		ORDER BY booking_at, id
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, before, limit))
}

// ---- modification requests ----

const modificationColumns = `id::text, booking_id::text,
	original_template_id::text, original_slot_id::text, original_date, original_time, original_guest_count,
	requested_template_id::text, requested_date, requested_time, requested_guest_count,
	status, requested_by, source, decided_by, decision_reason, created_at, decided_at`

func scanModification(row pgx.Row) (model.ModificationRequest, error) {
	var m model.ModificationRequest
	var status, source string
	err := row.Scan(&m.ID, &m.BookingID,
		&m.Original.TemplateID, &m.Original.SlotID, &m.Original.Date, &m.Original.Time, &m.Original.GuestCount,
		&m.Requested.TemplateID, &m.Requested.Date, &m.Requested.Time, &m.Requested.GuestCount,
		&status, &m.RequestedBy, &source, &m.DecidedBy, &m.DecisionReason, &m.CreatedAt, &m.DecidedAt)
	m.Status = model.ModificationStatus(status)
	m.Source = model.Source(source)
	return m, err
}

func (p *Postgres) CreateModification(ctx context.Context, m *model.ModificationRequest) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := p.q.Exec(ctx, `
		INSERT INTO booking_modification_requests
			(id, booking_id, original_template_id, original_slot_id, original_date, original_time, original_guest_count,
			 requested_template_id, requested_date, requested_time, requested_guest_count,
			 status, requested_by, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, m.ID, m.BookingID, m.Original.TemplateID, m.Original.SlotID, m.Original.Date, m.Original.Time, m.Original.GuestCount,
		m.Requested.TemplateID, m.Requested.Date, m.Requested.Time, m.Requested.GuestCount,
		string(m.Status), m.RequestedBy, string(m.Source), m.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) GetModification(ctx context.Context, id string) (model.ModificationRequest, error) {
	m, err := scanModification(p.q.QueryRow(ctx, `SELECT `+modificationColumns+` FROM booking_modification_requests WHERE id = $1`, id))
	return m, notFound(err)
}

func (p *Postgres) LockModification(ctx context.Context, id string) (model.ModificationRequest, error) {
	m, err := scanModification(p.q.QueryRow(ctx, `SELECT `+modificationColumns+` FROM booking_modification_requests WHERE id = $1 FOR UPDATE`, id))
	return m, notFound(err)
}

func (p *Postgres) ListModifications(ctx context.Context, bookingID string) ([]model.ModificationRequest, error) {
	rows, err := p.q.Query(ctx, `
		SELECT `+modificationColumns+`
		FROM booking_modification_requests
		WHERE booking_id = $1
		ORDER BY created_at, id
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ModificationRequest
	for rows.Next() {
		m, err := scanModification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateModification(ctx context.Context, m model.ModificationRequest) error {
	tag, err := p.q.Exec(ctx, `
		UPDATE booking_modification_requests
		SET status = $2, decided_by = $3, decision_reason = $4, decided_at = $5
		WHERE id = $1
	`, m.ID, string(m.Status), m.DecidedBy, m.DecisionReason, m.DecidedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- outbox ----

func (p *Postgres) InsertOutbox(ctx context.Context, evt model.OutboxEvent) error {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	_, err := p.q.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, evt.EventID, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, evt.Traceparent, evt.Tracestate)
	return err
}

func (p *Postgres) ClaimOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	rows, err := p.q.Query(ctx, `
		SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OutboxEvent
	for rows.Next() {
		var e model.OutboxEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.Traceparent, &e.Tracestate, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkOutboxPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.q.Exec(ctx, `UPDATE outbox_events SET published_at = $2 WHERE id = ANY($1)`, ids, at)
	return err
}

func (p *Postgres) RecordInbox(ctx context.Context, eventID, eventType string) (bool, error) {
	_, err := p.q.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, err
}
