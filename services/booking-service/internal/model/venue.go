package model

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/geo"
)

type VenueStatus string

const (
	VenueActive   VenueStatus = "active"
	VenueArchived VenueStatus = "archived"
)

// HoursRange is a half-open [Open, Close) window in minutes of the venue-local day.
type HoursRange struct {
	Open  int `json:"open"`
	Close int `json:"close"`
}

func (h HoursRange) Contains(minute int) bool {
	return minute >= h.Open && minute < h.Close
}

func (h HoursRange) Validate() error {
	if h.Open < 0 || h.Close > MinutesPerDay || h.Open >= h.Close {
		return fmt.Errorf("invalid hours %s-%s", FormatMinute(h.Open), FormatMinute(h.Close))
	}
	return nil
}

// WeeklyHours maps a weekday to the ranges a venue is open (or prime) that day.
type WeeklyHours map[time.Weekday][]HoursRange

func (w WeeklyHours) Contains(day time.Weekday, minute int) bool {
	for _, r := range w[day] {
		if r.Contains(minute) {
			return true
		}
	}
	return false
}

type Venue struct {
	ID            string
	Name          string
	Region        string
	Timezone      string
	Latitude      *float64
	Longitude     *float64
	BusinessHours WeeklyHours
	PrimeHours    WeeklyHours
	Status        VenueStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Location returns the venue's IANA zone; an unknown zone is a data error.
func (v Venue) Location() (*time.Location, error) {
	tz := v.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("venue %s has invalid timezone %q: %w", v.ID, v.Timezone, err)
	}
	return loc, nil
}

// Point is nil unless both coordinates are set.
func (v Venue) Point() *geo.Point {
	if v.Latitude == nil || v.Longitude == nil {
		return nil
	}
	return &geo.Point{Lat: *v.Latitude, Lng: *v.Longitude}
}

func (v Venue) Active() bool {
	return v.Status == "" || v.Status == VenueActive
}

// Validate checks the fields a venue needs before it can hold inventory.
func (v Venue) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("venue name is required")
	}
	if _, err := time.LoadLocation(v.Timezone); err != nil || v.Timezone == "" {
		return fmt.Errorf("unknown timezone %q", v.Timezone)
	}
	if (v.Latitude == nil) != (v.Longitude == nil) {
		return fmt.Errorf("latitude and longitude must be set together")
	}
	if p := v.Point(); p != nil && !p.Valid() {
		return fmt.Errorf("coordinates %.6f,%.6f out of range", p.Lat, p.Lng)
	}
	for _, hours := range []WeeklyHours{v.BusinessHours, v.PrimeHours} {
		for day, ranges := range hours {
			if day < time.Sunday || day > time.Saturday {
				return fmt.Errorf("day of week %d out of range", day)
			}
			for _, r := range ranges {
				if err := r.Validate(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
