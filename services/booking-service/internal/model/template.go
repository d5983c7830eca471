package model

import "time"

// ScheduleTemplate is one cell of a venue's recurring weekly inventory.
// Flag changes go through the transition methods so the invariants live here.
type ScheduleTemplate struct {
	ID                   string
	VenueID              string
	DayOfWeek            time.Weekday
	StartMinute          int
	PartySize            int
	IsAvailable          bool
	PrimeTime            bool
	PricePerHead         *int64
	MinimumSpendPerGuest int64
	AvailableTables      int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TemplateKey identifies a template cell independent of its row id.
type TemplateKey struct {
	VenueID     string
	DayOfWeek   time.Weekday
	StartMinute int
	PartySize   int
}

func (t ScheduleTemplate) Key() TemplateKey {
	return TemplateKey{VenueID: t.VenueID, DayOfWeek: t.DayOfWeek, StartMinute: t.StartMinute, PartySize: t.PartySize}
}

func (t ScheduleTemplate) StartTime() string {
	return FormatMinute(t.StartMinute)
}

func (t ScheduleTemplate) MarkClosed() ScheduleTemplate {
	t.IsAvailable = false
	return t
}

// MarkOpen opens the cell; tables < 0 keeps the current table count.
func (t ScheduleTemplate) MarkOpen(tables int) ScheduleTemplate {
	t.IsAvailable = true
	if tables >= 0 {
		t.AvailableTables = tables
	}
	return t
}

// MarkPrime sets the prime flag on open cells only. The second return value
// is false when the cell was closed and therefore left untouched.
func (t ScheduleTemplate) MarkPrime(prime bool) (ScheduleTemplate, bool) {
	if !t.IsAvailable {
		return t, false
	}
	t.PrimeTime = prime
	return t, true
}

func (t ScheduleTemplate) WithPricing(pricePerHead *int64, minimumSpendPerGuest int64) ScheduleTemplate {
	t.PricePerHead = pricePerHead
	t.MinimumSpendPerGuest = minimumSpendPerGuest
	return t
}

func (t ScheduleTemplate) WithTables(n int) ScheduleTemplate {
	if n >= 0 {
		t.AvailableTables = n
	}
	return t
}
