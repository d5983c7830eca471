package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/primetable/libs/db"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store on a pgx pool. Inside RunInTx the same type is
// rebound to the open transaction.
type Postgres struct {
	pool *db.Pool
	q    querier
	tx   pgx.Tx
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool, q: pool}
}

func (p *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if p.tx != nil {
		return fn(ctx, p)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(ctx, &Postgres{pool: p.pool, q: tx, tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, ErrRollbackFailed, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// ---- venues ----

const venueColumns = `id::text, name, region, timezone, latitude, longitude, business_hours, prime_hours, status, created_at, updated_at`

func scanVenue(row pgx.Row) (model.Venue, error) {
	var v model.Venue
	var business, prime []byte
	var status string
	if err := row.Scan(&v.ID, &v.Name, &v.Region, &v.Timezone, &v.Latitude, &v.Longitude, &business, &prime, &status, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return model.Venue{}, err
	}
	v.Status = model.VenueStatus(status)
	if err := decodeHours(business, &v.BusinessHours); err != nil {
		return model.Venue{}, err
	}
	if err := decodeHours(prime, &v.PrimeHours); err != nil {
		return model.Venue{}, err
	}
	return v, nil
}

func encodeHours(h model.WeeklyHours) ([]byte, error) {
	if h == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(h)
}

func decodeHours(raw []byte, dst *model.WeeklyHours) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode hours: %w", err)
	}
	return nil
}

func (p *Postgres) CreateVenue(ctx context.Context, v *model.Venue) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.Status == "" {
		v.Status = model.VenueActive
	}
	business, err := encodeHours(v.BusinessHours)
	if err != nil {
		return err
	}
	prime, err := encodeHours(v.PrimeHours)
	if err != nil {
		return err
	}
	err = p.q.QueryRow(ctx, `
		INSERT INTO venues (id, name, region, timezone, latitude, longitude, business_hours, prime_hours, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, v.ID, v.Name, v.Region, v.Timezone, v.Latitude, v.Longitude, business, prime, string(v.Status)).Scan(&v.CreatedAt, &v.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) GetVenue(ctx context.Context, id string) (model.Venue, error) {
	v, err := scanVenue(p.q.QueryRow(ctx, `SELECT `+venueColumns+` FROM venues WHERE id = $1`, id))
	return v, notFound(err)
}

func (p *Postgres) ListVenuesByRegion(ctx context.Context, region string) ([]model.Venue, error) {
	rows, err := p.q.Query(ctx, `
		SELECT `+venueColumns+`
		FROM venues
		WHERE region = $1 AND status = 'active'
		ORDER BY id
	`, region)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var venues []model.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, err
		}
		venues = append(venues, v)
	}
	return venues, rows.Err()
}

func (p *Postgres) UpdateVenueHours(ctx context.Context, id string, business, prime model.WeeklyHours, at time.Time) error {
	b, err := encodeHours(business)
	if err != nil {
		return err
	}
	pr, err := encodeHours(prime)
	if err != nil {
		return err
	}
	tag, err := p.q.Exec(ctx, `
		UPDATE venues SET business_hours = $2, prime_hours = $3, updated_at = $4 WHERE id = $1
	`, id, b, pr, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- templates ----

const templateColumns = `id::text, venue_id::text, day_of_week, start_minute, party_size, is_available, prime_time,
	price_per_head, minimum_spend_per_guest, available_tables, created_at, updated_at`

func scanTemplate(row pgx.Row) (model.ScheduleTemplate, error) {
	var t model.ScheduleTemplate
	var day int
	err := row.Scan(&t.ID, &t.VenueID, &day, &t.StartMinute, &t.PartySize, &t.IsAvailable, &t.PrimeTime,
		&t.PricePerHead, &t.MinimumSpendPerGuest, &t.AvailableTables, &t.CreatedAt, &t.UpdatedAt)
	t.DayOfWeek = time.Weekday(day)
	return t, err
}

func (p *Postgres) GetTemplate(ctx context.Context, key model.TemplateKey) (model.ScheduleTemplate, bool, error) {
	t, err := scanTemplate(p.q.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM schedule_templates
		WHERE venue_id = $1 AND day_of_week = $2 AND start_minute = $3 AND party_size = $4
	`, key.VenueID, int(key.DayOfWeek), key.StartMinute, key.PartySize))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ScheduleTemplate{}, false, nil
	}
	if err != nil {
		return model.ScheduleTemplate{}, false, err
	}
	return t, true, nil
}

func (p *Postgres) GetTemplateByID(ctx context.Context, id string) (model.ScheduleTemplate, error) {
	t, err := scanTemplate(p.q.QueryRow(ctx, `SELECT `+templateColumns+` FROM schedule_templates WHERE id = $1`, id))
	return t, notFound(err)
}

func (p *Postgres) ListTemplates(ctx context.Context, venueID string, day time.Weekday) ([]model.ScheduleTemplate, error) {
	rows, err := p.q.Query(ctx, `
		SELECT `+templateColumns+`
		FROM schedule_templates
		WHERE venue_id = $1 AND day_of_week = $2
		ORDER BY start_minute, party_size
	`, venueID, int(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScheduleTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertTemplates(ctx context.Context, rows []model.ScheduleTemplate) error {
	batch := &pgx.Batch{}
	for _, t := range rows {
		id := t.ID
		if id == "" {
			id = uuid.NewString()
		}
		batch.Queue(`
			INSERT INTO schedule_templates
				(id, venue_id, day_of_week, start_minute, party_size, is_available, prime_time,
				 price_per_head, minimum_spend_per_guest, available_tables)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (venue_id, day_of_week, start_minute, party_size) DO UPDATE
			SET is_available = EXCLUDED.is_available,
				prime_time = EXCLUDED.prime_time,
				price_per_head = EXCLUDED.price_per_head,
				minimum_spend_per_guest = EXCLUDED.minimum_spend_per_guest,
				available_tables = EXCLUDED.available_tables,
				updated_at = now()
		`, id, t.VenueID, int(t.DayOfWeek), t.StartMinute, t.PartySize, t.IsAvailable, t.PrimeTime,
			t.PricePerHead, t.MinimumSpendPerGuest, t.AvailableTables)
	}
	return p.sendBatch(ctx, batch, nil)
}

func (p *Postgres) InsertMissingTemplates(ctx context.Context, rows []model.ScheduleTemplate) (int, error) {
	batch := &pgx.Batch{}
	for _, t := range rows {
		batch.Queue(`
			INSERT INTO schedule_templates
				(id, venue_id, day_of_week, start_minute, party_size, is_available, prime_time,
				 price_per_head, minimum_spend_per_guest, available_tables)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (venue_id, day_of_week, start_minute, party_size) DO NOTHING
		`, uuid.NewString(), t.VenueID, int(t.DayOfWeek), t.StartMinute, t.PartySize, t.IsAvailable, t.PrimeTime,
			t.PricePerHead, t.MinimumSpendPerGuest, t.AvailableTables)
	}
	created := 0
	err := p.sendBatch(ctx, batch, func(tag pgconn.CommandTag) { created += int(tag.RowsAffected()) })
	return created, err
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func (p *Postgres) sendBatch(ctx context.Context, batch *pgx.Batch, each func(pgconn.CommandTag)) error {
	if batch.Len() == 0 {
		return nil
	}
	var sender batchSender = p.pool
	if p.tx != nil {
		sender = p.tx
	}
	br := sender.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return err
		}
		if each != nil {
			each(tag)
		}
	}
	return br.Close()
}

// ---- slots ----

const slotColumns = `id::text, schedule_template_id::text, booking_date, is_available, prime_time,
	available_tables, tables_booked, created_at, updated_at`

func scanSlot(row pgx.Row) (model.VenueTimeSlot, error) {
	var s model.VenueTimeSlot
	err := row.Scan(&s.ID, &s.ScheduleTemplateID, &s.BookingDate, &s.IsAvailable, &s.PrimeTime,
		&s.AvailableTables, &s.TablesBooked, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (p *Postgres) GetOrCreateSlot(ctx context.Context, t model.ScheduleTemplate, date time.Time) (model.VenueTimeSlot, error) {
	seed := model.NewSlotFromTemplate(t, date)
	_, err := p.q.Exec(ctx, `
		INSERT INTO venue_time_slots (id, schedule_template_id, booking_date, is_available, prime_time, available_tables)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (schedule_template_id, booking_date) DO NOTHING
	`, uuid.NewString(), t.ID, date, seed.IsAvailable, seed.PrimeTime, seed.AvailableTables)
	if err != nil {
		return model.VenueTimeSlot{}, err
	}
	return scanSlot(p.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM venue_time_slots
		WHERE schedule_template_id = $1 AND booking_date = $2
	`, t.ID, date))
}

func (p *Postgres) GetSlot(ctx context.Context, id string) (model.VenueTimeSlot, error) {
	s, err := scanSlot(p.q.QueryRow(ctx, `SELECT `+slotColumns+` FROM venue_time_slots WHERE id = $1`, id))
	return s, notFound(err)
}

func (p *Postgres) ReserveSlot(ctx context.Context, id string) (model.VenueTimeSlot, error) {
	s, err := scanSlot(p.q.QueryRow(ctx, `
		UPDATE venue_time_slots
		SET tables_booked = tables_booked + 1, updated_at = now()
		WHERE id = $1 AND tables_booked < available_tables
		RETURNING `+slotColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := p.GetSlot(ctx, id); getErr != nil {
			return model.VenueTimeSlot{}, getErr
		}
		return model.VenueTimeSlot{}, ErrNoCapacity
	}
	return s, err
}

func (p *Postgres) ReleaseSlot(ctx context.Context, id string) (model.VenueTimeSlot, error) {
	s, err := scanSlot(p.q.QueryRow(ctx, `
		UPDATE venue_time_slots
		SET tables_booked = GREATEST(tables_booked - 1, 0), updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns, id))
	return s, notFound(err)
}

func (p *Postgres) SaveSlotFlags(ctx context.Context, s model.VenueTimeSlot) error {
	tag, err := p.q.Exec(ctx, `
		UPDATE venue_time_slots SET is_available = $2, prime_time = $3, updated_at = now() WHERE id = $1
	`, s.ID, s.IsAvailable, s.PrimeTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
