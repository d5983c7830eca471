package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
)

func TestParseWeeklyHours(t *testing.T) {
	w, err := parseWeeklyHours("fri-mon=17:00-24:00; wed=12:00-14:00,18:00-22:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, d := range []time.Weekday{time.Friday, time.Saturday, time.Sunday, time.Monday} {
		if len(w[d]) != 1 || w[d][0] != (model.HoursRange{Open: 17 * 60, Close: model.MinutesPerDay}) {
			t.Fatalf("%s: unexpected %v", d, w[d])
		}
	}
	if len(w[time.Tuesday]) != 0 || len(w[time.Thursday]) != 0 {
		t.Fatalf("expected tue and thu closed, got %v", w)
	}
	if len(w[time.Wednesday]) != 2 || !w.Contains(time.Wednesday, 19*60) || w.Contains(time.Wednesday, 15*60) {
		t.Fatalf("unexpected wednesday %v", w[time.Wednesday])
	}
}

func TestParseWeeklyHoursRejectsBadInput(t *testing.T) {
	for _, raw := range []string{
		"mon 17:00-22:00",
		"funday=17:00-22:00",
		"mon=22:00-17:00",
		"mon=17:00",
	} {
		if _, err := parseWeeklyHours(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
	if w, err := parseWeeklyHours(""); err != nil || w != nil {
		t.Fatalf("empty input should mean no hours, got %v %v", w, err)
	}
}

func TestMigrateListNeedsNoDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"migrate", "--list"})
	if err := root.Execute(); err != nil {
		t.Fatalf("migrate --list: %v", err)
	}
	if !strings.Contains(out.String(), "0001_init.sql") {
		t.Fatalf("expected init migration listed, got %q", out.String())
	}
}

func TestSeedAgainstMemoryStore(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"seed", "--name", "Test Bistro", "--hours", "mon-sun=17:00-23:00"})
	if err := root.Execute(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !strings.Contains(out.String(), "Test Bistro") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
