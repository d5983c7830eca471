package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
)

type memState struct {
	venues        map[string]model.Venue
	templates     map[string]model.ScheduleTemplate
	templateByKey map[model.TemplateKey]string
	slots         map[string]model.VenueTimeSlot
	slotByKey     map[model.SlotKey]string
	bookings      map[string]model.Booking
	modifications map[string]model.ModificationRequest
	outbox        []model.OutboxEvent
	outboxSeq     int64
	inbox         map[string]string
}

func newMemState() *memState {
	return &memState{
		venues:        map[string]model.Venue{},
		templates:     map[string]model.ScheduleTemplate{},
		templateByKey: map[model.TemplateKey]string{},
		slots:         map[string]model.VenueTimeSlot{},
		slotByKey:     map[model.SlotKey]string{},
		bookings:      map[string]model.Booking{},
		modifications: map[string]model.ModificationRequest{},
		inbox:         map[string]string{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.venues {
		c.venues[k] = v
	}
	for k, v := range s.templates {
		c.templates[k] = v
	}
	for k, v := range s.templateByKey {
		c.templateByKey[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.slotByKey {
		c.slotByKey[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.modifications {
		c.modifications[k] = v
	}
	c.outbox = append([]model.OutboxEvent(nil), s.outbox...)
	c.outboxSeq = s.outboxSeq
	for k, v := range s.inbox {
		c.inbox[k] = v
	}
	return c
}

// Memory is an in-process Store. A single mutex serialises all access, and
// RunInTx holds it for the whole body, restoring a snapshot if the body fails.
type Memory struct {
	mu   *sync.Mutex
	st   **memState
	inTx bool
	now  func() time.Time
}

func NewMemory() *Memory {
	st := newMemState()
	return &Memory{mu: &sync.Mutex{}, st: &st, now: time.Now}
}

func (m *Memory) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) state() *memState { return *m.st }

func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if m.inTx {
		return fn(ctx, m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state().clone()
	tx := &Memory{mu: m.mu, st: m.st, inTx: true, now: m.now}
	if err := fn(ctx, tx); err != nil {
		*m.st = snapshot
		return err
	}
	return nil
}

func (m *Memory) CreateVenue(_ context.Context, v *model.Venue) error {
	defer m.lock()()
	st := m.state()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if _, ok := st.venues[v.ID]; ok {
		return ErrDuplicate
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = m.now().UTC()
	}
	v.UpdatedAt = v.CreatedAt
	st.venues[v.ID] = *v
	return nil
}

func (m *Memory) GetVenue(_ context.Context, id string) (model.Venue, error) {
	defer m.lock()()
	v, ok := m.state().venues[id]
	if !ok {
		return model.Venue{}, ErrNotFound
	}
	return v, nil
}

func (m *Memory) ListVenuesByRegion(_ context.Context, region string) ([]model.Venue, error) {
	defer m.lock()()
	var out []model.Venue
	for _, v := range m.state().venues {
		if v.Region == region && v.Active() {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateVenueHours(_ context.Context, id string, business, prime model.WeeklyHours, at time.Time) error {
	defer m.lock()()
	st := m.state()
	v, ok := st.venues[id]
	if !ok {
		return ErrNotFound
	}
	v.BusinessHours = business
	v.PrimeHours = prime
	v.UpdatedAt = at
	st.venues[id] = v
	return nil
}

func (m *Memory) GetTemplate(_ context.Context, key model.TemplateKey) (model.ScheduleTemplate, bool, error) {
	defer m.lock()()
	st := m.state()
	id, ok := st.templateByKey[key]
	if !ok {
		return model.ScheduleTemplate{}, false, nil
	}
	return st.templates[id], true, nil
}

func (m *Memory) GetTemplateByID(_ context.Context, id string) (model.ScheduleTemplate, error) {
	defer m.lock()()
	t, ok := m.state().templates[id]
	if !ok {
		return model.ScheduleTemplate{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ListTemplates(_ context.Context, venueID string, day time.Weekday) ([]model.ScheduleTemplate, error) {
	defer m.lock()()
	var out []model.ScheduleTemplate
	for _, t := range m.state().templates {
		if t.VenueID == venueID && t.DayOfWeek == day {
			out = append(out, t)
		}
	}
	sortTemplates(out)
	return out, nil
}

func (m *Memory) UpsertTemplates(_ context.Context, rows []model.ScheduleTemplate) error {
	defer m.lock()()
	st := m.state()
	now := m.now().UTC()
	for _, t := range rows {
		key := t.Key()
		if id, ok := st.templateByKey[key]; ok {
			prev := st.templates[id]
			t.ID = id
			t.CreatedAt = prev.CreatedAt
		} else {
			if t.ID == "" {
				t.ID = uuid.NewString()
			}
			t.CreatedAt = now
			st.templateByKey[key] = t.ID
		}
		t.UpdatedAt = now
		st.templates[t.ID] = t
	}
	return nil
}

func (m *Memory) InsertMissingTemplates(_ context.Context, rows []model.ScheduleTemplate) (int, error) {
	defer m.lock()()
	st := m.state()
	now := m.now().UTC()
	created := 0
	for _, t := range rows {
		key := t.Key()
		if _, ok := st.templateByKey[key]; ok {
			continue
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.CreatedAt, t.UpdatedAt = now, now
		st.templates[t.ID] = t
		st.templateByKey[key] = t.ID
		created++
	}
	return created, nil
}

func (m *Memory) GetOrCreateSlot(_ context.Context, t model.ScheduleTemplate, date time.Time) (model.VenueTimeSlot, error) {
	defer m.lock()()
	st := m.state()
	fresh := model.NewSlotFromTemplate(t, date)
	if id, ok := st.slotByKey[fresh.Key()]; ok {
		return st.slots[id], nil
	}
	fresh.ID = uuid.NewString()
	fresh.CreatedAt = m.now().UTC()
	fresh.UpdatedAt = fresh.CreatedAt
	st.slots[fresh.ID] = fresh
	st.slotByKey[fresh.Key()] = fresh.ID
	return fresh, nil
}

func (m *Memory) GetSlot(_ context.Context, id string) (model.VenueTimeSlot, error) {
	defer m.lock()()
	s, ok := m.state().slots[id]
	if !ok {
		return model.VenueTimeSlot{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) ReserveSlot(_ context.Context, id string) (model.VenueTimeSlot, error) {
	defer m.lock()()
	st := m.state()
	s, ok := st.slots[id]
	if !ok {
		return model.VenueTimeSlot{}, ErrNotFound
	}
	next, err := s.Reserve()
	if err != nil {
		return s, ErrNoCapacity
	}
	next.UpdatedAt = m.now().UTC()
	st.slots[id] = next
	return next, nil
}

func (m *Memory) ReleaseSlot(_ context.Context, id string) (model.VenueTimeSlot, error) {
	defer m.lock()()
	st := m.state()
	s, ok := st.slots[id]
	if !ok {
		return model.VenueTimeSlot{}, ErrNotFound
	}
	next := s.Release()
	next.UpdatedAt = m.now().UTC()
	st.slots[id] = next
	return next, nil
}

func (m *Memory) SaveSlotFlags(_ context.Context, s model.VenueTimeSlot) error {
	defer m.lock()()
	st := m.state()
	cur, ok := st.slots[s.ID]
	if !ok {
		return ErrNotFound
	}
	cur.IsAvailable = s.IsAvailable
	cur.PrimeTime = s.PrimeTime
	cur.UpdatedAt = m.now().UTC()
	st.slots[s.ID] = cur
	return nil
}

// LockGuest is a no-op: the store mutex already serialises transactions.
func (m *Memory) LockGuest(context.Context, string) error { return nil }

func (m *Memory) CreateBooking(_ context.Context, b *model.Booking) error {
	defer m.lock()()
	st := m.state()
	if b.IdempotencyKey != "" {
		for _, existing := range st.bookings {
			if existing.IdempotencyKey == b.IdempotencyKey {
				return ErrDuplicate
			}
		}
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	st.bookings[b.ID] = *b
	return nil
}

func (m *Memory) GetBooking(_ context.Context, id string) (model.Booking, error) {
	defer m.lock()()
	b, ok := m.state().bookings[id]
	if !ok {
		return model.Booking{}, ErrNotFound
	}
	return b, nil
}

func (m *Memory) LockBooking(ctx context.Context, id string) (model.Booking, error) {
	return m.GetBooking(ctx, id)
}

func (m *Memory) GetBookingByIdempotencyKey(_ context.Context, key string) (model.Booking, bool, error) {
	defer m.lock()()
	for _, b := range m.state().bookings {
		if key != "" && b.IdempotencyKey == key {
			return b, true, nil
		}
	}
	return model.Booking{}, false, nil
}

func (m *Memory) ListBookingsByPhone(_ context.Context, phone string) ([]model.Booking, error) {
	defer m.lock()()
	var out []model.Booking
	for _, b := range m.state().bookings {
		if b.GuestPhone == phone {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (m *Memory) ListActiveBookings(_ context.Context, phone string, from, to time.Time) ([]model.Booking, error) {
	defer m.lock()()
	var out []model.Booking
	for _, b := range m.state().bookings {
		if b.GuestPhone != phone || !b.Status.Active() {
			continue
		}
		if b.BookingAt.Before(from) || b.BookingAt.After(to) {
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	return out, nil
}

func (m *Memory) UpdateBooking(_ context.Context, b model.Booking) error {
	defer m.lock()()
	st := m.state()
	cur, ok := st.bookings[b.ID]
	if !ok {
		return ErrNotFound
	}
	b.CapacityReleased = cur.CapacityReleased
	b.IdempotencyKey = cur.IdempotencyKey
	b.CreatedAt = cur.CreatedAt
	st.bookings[b.ID] = b
	return nil
}

func (m *Memory) MarkCapacityReleased(_ context.Context, bookingID string) (bool, error) {
	defer m.lock()()
	st := m.state()
	b, ok := st.bookings[bookingID]
	if !ok {
		return false, ErrNotFound
	}
	if b.CapacityReleased {
		return false, nil
	}
	b.CapacityReleased = true
	st.bookings[bookingID] = b
	return true, nil
}

func (m *Memory) ClaimStaleBookings(_ context.Context, before time.Time, limit int) ([]model.Booking, error) {
	defer m.lock()()
	var out []model.Booking
	for _, b := range m.state().bookings {
		if (b.Status == model.StatusPending || b.Status == model.StatusGuestOnPage) && b.UpdatedAt.Before(before) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CreateModification(_ context.Context, req *model.ModificationRequest) error {
	defer m.lock()()
	st := m.state()
	for _, existing := range st.modifications {
		if existing.BookingID == req.BookingID && existing.Pending() {
			return ErrDuplicate
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	st.modifications[req.ID] = *req
	return nil
}

func (m *Memory) GetModification(_ context.Context, id string) (model.ModificationRequest, error) {
	defer m.lock()()
	req, ok := m.state().modifications[id]
	if !ok {
		return model.ModificationRequest{}, ErrNotFound
	}
	return req, nil
}

func (m *Memory) LockModification(ctx context.Context, id string) (model.ModificationRequest, error) {
	return m.GetModification(ctx, id)
}

func (m *Memory) ListModifications(_ context.Context, bookingID string) ([]model.ModificationRequest, error) {
	defer m.lock()()
	var out []model.ModificationRequest
	for _, req := range m.state().modifications {
		if req.BookingID == bookingID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateModification(_ context.Context, req model.ModificationRequest) error {
	defer m.lock()()
	st := m.state()
	if _, ok := st.modifications[req.ID]; !ok {
		return ErrNotFound
	}
	st.modifications[req.ID] = req
	return nil
}

func (m *Memory) InsertOutbox(_ context.Context, evt model.OutboxEvent) error {
	defer m.lock()()
	st := m.state()
	st.outboxSeq++
	evt.ID = st.outboxSeq
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = m.now().UTC()
	}
	st.outbox = append(st.outbox, evt)
	return nil
}

func (m *Memory) ClaimOutbox(_ context.Context, limit int) ([]model.OutboxEvent, error) {
	defer m.lock()()
	var out []model.OutboxEvent
	for _, evt := range m.state().outbox {
		if evt.PublishedAt != nil {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkOutboxPublished(_ context.Context, ids []int64, at time.Time) error {
	defer m.lock()()
	st := m.state()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range st.outbox {
		if want[st.outbox[i].ID] {
			ts := at
			st.outbox[i].PublishedAt = &ts
		}
	}
	return nil
}

func (m *Memory) RecordInbox(_ context.Context, eventID, eventType string) (bool, error) {
	defer m.lock()()
	st := m.state()
	if _, ok := st.inbox[eventID]; ok {
		return false, nil
	}
	st.inbox[eventID] = eventType
	return true, nil
}

// Outbox returns every recorded event in insertion order.
func (m *Memory) Outbox() []model.OutboxEvent {
	defer m.lock()()
	return append([]model.OutboxEvent(nil), m.state().outbox...)
}

func sortTemplates(rows []model.ScheduleTemplate) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StartMinute != rows[j].StartMinute {
			return rows[i].StartMinute < rows[j].StartMinute
		}
		return rows[i].PartySize < rows[j].PartySize
	})
}

func sortBookings(rows []model.Booking) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].BookingAt.Equal(rows[j].BookingAt) {
			return rows[i].BookingAt.Before(rows[j].BookingAt)
		}
		return rows[i].ID < rows[j].ID
	})
}
