package app

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Availability.MinutesPast != 35*time.Minute {
		t.Fatalf("unexpected cutoff %v", cfg.Availability.MinutesPast)
	}
	if cfg.Conflict.Window != 2*time.Hour || cfg.Conflict.Inclusive {
		t.Fatalf("unexpected conflict config %+v", cfg.Conflict)
	}
	if len(cfg.Templates.Tiers) != 4 || cfg.Templates.Tiers.Max() != 8 {
		t.Fatalf("unexpected tiers %v", cfg.Templates.Tiers)
	}
	if cfg.Templates.SeedOpen != 11*60 || cfg.Templates.SeedClose != 23*60 || cfg.LowInventory != 1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !cfg.SweeperEnabled || cfg.Sweeper.Window != 15*time.Minute {
		t.Fatalf("unexpected sweeper config %+v", cfg.Sweeper)
	}
	if cfg.RateLimitPerMinute != 120 || cfg.BodyLimitBytes != 1<<20 || cfg.RequestTimeout != 10*time.Second || cfg.RedisDB != 0 {
		t.Fatalf("unexpected http defaults %+v", cfg)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("PARTY_SIZE_TIERS", "10,2,6")
	t.Setenv("MINUTES_PAST", "60")
	t.Setenv("CONFLICT_WINDOW", "90m")
	t.Setenv("CONFLICT_WINDOW_INCLUSIVE", "true")
	t.Setenv("SEED_OPEN", "17:00")
	t.Setenv("SEED_CLOSE", "22:30")
	t.Setenv("SWEEPER_ENABLED", "false")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "3")
	t.Setenv("REDIS_DB", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Templates.Tiers; len(got) != 3 || got[0] != 2 || got[2] != 10 {
		t.Fatalf("tiers should be sorted, got %v", got)
	}
	if cfg.Availability.MinutesPast != time.Hour || cfg.Conflict.Window != 90*time.Minute || !cfg.Conflict.Inclusive {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Availability, cfg.Conflict)
	}
	if cfg.Templates.SeedOpen != 17*60 || cfg.Templates.SeedClose != 22*60+30 || cfg.SweeperEnabled {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.RateLimitPerMinute != 30 || cfg.RequestTimeout != 3*time.Second || cfg.RedisDB != 2 {
		t.Fatalf("http overrides not applied: %+v", cfg)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"driver":   {"STORAGE_DRIVER": "sqlite"},
		"postgres": {"STORAGE_DRIVER": "postgres", "DATABASE_URL": ""},
		"seed":     {"STORAGE_DRIVER": "memory", "SEED_OPEN": "23:00", "SEED_CLOSE": "11:00"},
		"tiers":    {"STORAGE_DRIVER": "memory", "PARTY_SIZE_TIERS": "2,-4"},
		"limit":    {"STORAGE_DRIVER": "memory", "RATE_LIMIT_PER_MINUTE": "0"},
		"timeout":  {"STORAGE_DRIVER": "memory", "REQUEST_TIMEOUT_SECONDS": "ten"},
		"redis":    {"STORAGE_DRIVER": "memory", "REDIS_DB": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestBuildWiresOneStore(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	store := storage.NewMemory()
	e := Build(store, cfg, Options{Clock: clock.NewFixed(time.Date(2026, 1, 30, 12, 0, 0, 0, time.UTC))})
	if e.Resolver == nil || e.Bookings == nil || e.Modifications == nil || e.Sweeper == nil {
		t.Fatalf("incomplete engine %+v", e)
	}
	if n, err := e.Sweeper.Sweep(context.Background()); err != nil || n != 0 {
		t.Fatalf("empty sweep: %d %v", n, err)
	}
}
