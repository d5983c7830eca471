// Package templates owns each venue's recurring weekly inventory: one row per
// day of week, start time and party-size tier.
package templates

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/tiers"
)

type Config struct {
	Tiers tiers.Set
	// SeedOpen and SeedClose bound the seeded grid in minutes of day; the
	// close minute itself is not seeded.
	SeedOpen      int
	SeedClose     int
	DefaultTables int
}

func DefaultConfig() Config {
	return Config{Tiers: tiers.Default, SeedOpen: 11 * 60, SeedClose: 23 * 60, DefaultTables: 0}
}

type Service struct {
	store  storage.Store
	cfg    Config
	logger *slog.Logger
}

func NewService(store storage.Store, cfg Config, logger *slog.Logger) *Service {
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = tiers.Default
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cfg: cfg, logger: logger}
}

func (s *Service) Tiers() tiers.Set { return s.cfg.Tiers }

func (s *Service) Get(ctx context.Context, venueID string, day time.Weekday, startMinute, tier int) (model.ScheduleTemplate, bool, error) {
	return s.store.GetTemplate(ctx, model.TemplateKey{VenueID: venueID, DayOfWeek: day, StartMinute: startMinute, PartySize: tier})
}

// ResolveTier picks the row for tier, falling back to the base row. An
// explicit row always wins, even when it is closed.
func ResolveTier(rows []model.ScheduleTemplate, tier int) (model.ScheduleTemplate, bool) {
	var base *model.ScheduleTemplate
	for i := range rows {
		switch rows[i].PartySize {
		case tier:
			return rows[i], true
		case tiers.Base:
			base = &rows[i]
		}
	}
	if base != nil {
		return *base, true
	}
	return model.ScheduleTemplate{}, false
}

// Resolve is ResolveTier against the store.
func (s *Service) Resolve(ctx context.Context, venueID string, day time.Weekday, startMinute, tier int) (model.ScheduleTemplate, bool, error) {
	var candidates []model.ScheduleTemplate
	for _, t := range []int{tier, tiers.Base} {
		row, ok, err := s.Get(ctx, venueID, day, startMinute, t)
		if err != nil {
			return model.ScheduleTemplate{}, false, err
		}
		if ok {
			candidates = append(candidates, row)
		}
		if tier == tiers.Base {
			break
		}
	}
	row, ok := ResolveTier(candidates, tier)
	return row, ok, nil
}

// ListDay returns a weekday's rows ordered by start time then tier.
func (s *Service) ListDay(ctx context.Context, venueID string, day time.Weekday) ([]model.ScheduleTemplate, error) {
	return s.store.ListTemplates(ctx, venueID, day)
}

// ResolveDay groups a weekday's rows by start minute and applies ResolveTier
// to each group. The result is ordered by start minute.
func (s *Service) ResolveDay(ctx context.Context, venueID string, day time.Weekday, tier int) ([]model.ScheduleTemplate, error) {
	rows, err := s.ListDay(ctx, venueID, day)
	if err != nil {
		return nil, err
	}
	var out []model.ScheduleTemplate
	for start := 0; start < len(rows); {
		end := start
		for end < len(rows) && rows[end].StartMinute == rows[start].StartMinute {
			end++
		}
		if row, ok := ResolveTier(rows[start:end], tier); ok {
			out = append(out, row)
		}
		start = end
	}
	return out, nil
}

func (s *Service) validate(venueID string, t model.ScheduleTemplate) error {
	switch {
	case t.VenueID != venueID:
		return bookingerr.Validation("template belongs to venue %s, not %s", t.VenueID, venueID)
	case t.DayOfWeek < time.Sunday || t.DayOfWeek > time.Saturday:
		return bookingerr.Validation("day of week %d out of range", t.DayOfWeek)
	case t.StartMinute < 0 || t.StartMinute >= model.MinutesPerDay:
		return bookingerr.Validation("start time %d out of range", t.StartMinute)
	case t.StartMinute%model.SlotIncrement != 0:
		return bookingerr.Validation("start time %s is not on the %d-minute grid", model.FormatMinute(t.StartMinute), model.SlotIncrement)
	case !s.cfg.Tiers.Contains(t.PartySize):
		return bookingerr.Validation("party size tier %d is not one of %v", t.PartySize, s.cfg.Tiers.WithBase())
	case t.AvailableTables < 0:
		return bookingerr.Validation("available tables must not be negative")
	case t.MinimumSpendPerGuest < 0 || (t.PricePerHead != nil && *t.PricePerHead < 0):
		return bookingerr.Validation("prices must not be negative")
	}
	return nil
}

// UpsertBulk validates every row before writing any of them.
func (s *Service) UpsertBulk(ctx context.Context, venueID string, rows []model.ScheduleTemplate) (int, error) {
	if _, err := s.store.GetVenue(ctx, venueID); err != nil {
		if storage.IsNotFound(err) {
			return 0, bookingerr.NotFound("venue %s not found", venueID)
		}
		return 0, err
	}
	for i := range rows {
		if rows[i].VenueID == "" {
			rows[i].VenueID = venueID
		}
		if err := s.validate(venueID, rows[i]); err != nil {
			return 0, err
		}
	}
	if err := s.store.UpsertTemplates(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// SeedDefaults creates the full weekly grid for every tier, closed and
// non-prime. Rows that already exist are left alone.
func (s *Service) SeedDefaults(ctx context.Context, venue model.Venue) (int, error) {
	var rows []model.ScheduleTemplate
	for day := time.Sunday; day <= time.Saturday; day++ {
		for m := s.cfg.SeedOpen; m < s.cfg.SeedClose; m += model.SlotIncrement {
			for _, tier := range s.cfg.Tiers.WithBase() {
				rows = append(rows, model.ScheduleTemplate{
					VenueID:         venue.ID,
					DayOfWeek:       day,
					StartMinute:     m,
					PartySize:       tier,
					AvailableTables: s.cfg.DefaultTables,
				})
			}
		}
	}
	created, err := s.store.InsertMissingTemplates(ctx, rows)
	if err != nil {
		return 0, err
	}
	s.logger.Info("seeded schedule templates", "venue_id", venue.ID, "created", created, "grid", len(rows))
	return created, nil
}
