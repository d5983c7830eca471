package templates

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
)

// Onboard creates the venue, seeds its weekly grid and, when hours are given,
// opens the grid to match them. It returns the number of seeded rows.
func (s *Service) Onboard(ctx context.Context, v *model.Venue) (int, error) {
	v.Name = strings.TrimSpace(v.Name)
	v.Region = strings.TrimSpace(v.Region)
	if v.Timezone == "" {
		v.Timezone = "UTC"
	}
	if v.Status == "" {
		v.Status = model.VenueActive
	}
	if err := v.Validate(); err != nil {
		return 0, bookingerr.Validation("%s", err.Error())
	}
	if err := s.store.CreateVenue(ctx, v); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return 0, bookingerr.Validation("venue %s already exists", v.ID)
		}
		return 0, err
	}
	seeded, err := s.SeedDefaults(ctx, *v)
	if err != nil {
		return 0, err
	}
	if len(v.BusinessHours) > 0 {
		if _, err := s.ApplyHours(ctx, *v); err != nil {
			return seeded, err
		}
	}
	return seeded, nil
}

// UpdateHours stores new business and prime hours and re-applies them to the
// venue's templates. It returns how many rows changed.
func (s *Service) UpdateHours(ctx context.Context, venueID string, business, prime model.WeeklyHours) (int, error) {
	v, err := s.store.GetVenue(ctx, venueID)
	if storage.IsNotFound(err) {
		return 0, bookingerr.NotFound("venue %s not found", venueID)
	}
	if err != nil {
		return 0, err
	}
	v.BusinessHours = business
	v.PrimeHours = prime
	if err := v.Validate(); err != nil {
		return 0, bookingerr.Validation("%s", err.Error())
	}
	if err := s.store.UpdateVenueHours(ctx, v.ID, business, prime, time.Now().UTC()); err != nil {
		return 0, err
	}
	changed, err := s.ApplyHours(ctx, v)
	if err != nil {
		return 0, err
	}
	s.logger.Info("venue hours updated", "venue_id", v.ID, "templates_changed", changed)
	return changed, nil
}
