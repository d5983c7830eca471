package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	MinutesPerDay = 24 * 60
	// SlotIncrement is the spacing of the weekly template grid.
	SlotIncrement = 30
	DateLayout    = "2006-01-02"
)

// FormatMinute renders a minute of day as HH:MM.
func FormatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseMinute accepts HH:MM (or HH:MM:SS with zero seconds) and returns the minute of day.
func ParseMinute(s string) (int, error) {
	s = strings.TrimSpace(s)
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil || t.Second() != 0 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ParseDate parses YYYY-MM-DD into midnight UTC; only the calendar fields are meaningful.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return d, nil
}

// LocalStart is the instant a slot starts: the calendar date and minute of day read in loc.
func LocalStart(date time.Time, minute int, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), minute/60, minute%60, 0, 0, loc)
}

// LocalDate truncates t to its calendar date in loc, returned as midnight UTC.
func LocalDate(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.UTC)
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}
