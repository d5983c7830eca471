// Package app loads the engine's configuration from the environment and wires
// its components together for the server and the CLI.
package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/config"
	"github.com/md-rashed-zaman/primetable/libs/db"
	"github.com/md-rashed-zaman/primetable/libs/metrics"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/capacity"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/modification"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/slots"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/sweeper"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/templates"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/tiers"
)

type Config struct {
	StorageDriver string
	DatabaseURL   string
	DBPool        db.Options

	Templates    templates.Config
	Availability availability.Config
	Conflict     conflict.Config
	LowInventory int

	Sweeper        sweeper.Config
	SweeperEnabled bool

	CacheTTL time.Duration
	RedisDB  int

	RateLimitPerMinute int
	BodyLimitBytes     int64
	RequestTimeout     time.Duration
}

// LoadConfig reads every engine setting, falling back to the documented
// defaults.
func LoadConfig() (Config, error) {
	var (
		cfg Config
		err error
	)
	cfg.StorageDriver = strings.ToLower(config.String("STORAGE_DRIVER", "postgres"))
	switch cfg.StorageDriver {
	case "postgres":
		if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
			return cfg, err
		}
		cfg.DBPool = db.DefaultOptions()
		maxConns, err := config.Int("DB_MAX_CONNS", int(cfg.DBPool.MaxConns))
		if err != nil {
			return cfg, err
		}
		cfg.DBPool.MaxConns = int32(maxConns)
	case "memory":
	default:
		return cfg, fmt.Errorf("STORAGE_DRIVER must be postgres or memory, got %q", cfg.StorageDriver)
	}

	sizes, err := config.IntList("PARTY_SIZE_TIERS", []int(tiers.Default))
	if err != nil {
		return cfg, err
	}
	if cfg.Templates.Tiers, err = tiers.New(sizes); err != nil {
		return cfg, err
	}
	def := templates.DefaultConfig()
	if cfg.Templates.SeedOpen, err = minuteEnv("SEED_OPEN", def.SeedOpen); err != nil {
		return cfg, err
	}
	if cfg.Templates.SeedClose, err = minuteEnv("SEED_CLOSE", def.SeedClose); err != nil {
		return cfg, err
	}
	if cfg.Templates.SeedOpen >= cfg.Templates.SeedClose {
		return cfg, fmt.Errorf("SEED_OPEN must be before SEED_CLOSE")
	}
	if cfg.Templates.DefaultTables, err = config.Int("DEFAULT_TABLES", def.DefaultTables); err != nil {
		return cfg, err
	}

	if cfg.LowInventory, err = config.Int("LOW_INVENTORY_THRESHOLD", slots.DefaultLowInventoryThreshold); err != nil {
		return cfg, err
	}

	cfg.Availability = availability.DefaultConfig()
	minutesPast, err := config.Int("MINUTES_PAST", int(availability.DefaultMinutesPast/time.Minute))
	if err != nil {
		return cfg, err
	}
	cfg.Availability.MinutesPast = time.Duration(minutesPast) * time.Minute
	speed, err := config.Int("AVERAGE_SPEED_MPH", int(cfg.Availability.SpeedMPH))
	if err != nil {
		return cfg, err
	}
	cfg.Availability.SpeedMPH = float64(speed)

	if cfg.Conflict.Window, err = config.Duration("CONFLICT_WINDOW", conflict.DefaultWindow); err != nil {
		return cfg, err
	}
	cfg.Conflict.Inclusive = config.Bool("CONFLICT_WINDOW_INCLUSIVE", false)

	cfg.SweeperEnabled = config.Bool("SWEEPER_ENABLED", true)
	if cfg.Sweeper.Window, err = config.Duration("CHECKOUT_WINDOW", 15*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.Sweeper.Interval, err = config.Duration("SWEEPER_INTERVAL", 30*time.Second); err != nil {
		return cfg, err
	}

	if cfg.CacheTTL, err = config.Duration("AVAILABILITY_CACHE_TTL", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.RedisDB, err = config.Int("REDIS_DB", 0); err != nil {
		return cfg, err
	}
	if cfg.RedisDB < 0 {
		return cfg, fmt.Errorf("REDIS_DB must not be negative")
	}

	if cfg.RateLimitPerMinute, err = positiveInt("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return cfg, err
	}
	bodyLimit, err := positiveInt("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		return cfg, err
	}
	cfg.BodyLimitBytes = int64(bodyLimit)
	timeoutSeconds, err := positiveInt("REQUEST_TIMEOUT_SECONDS", 10)
	if err != nil {
		return cfg, err
	}
	cfg.RequestTimeout = time.Duration(timeoutSeconds) * time.Second
	return cfg, nil
}

func positiveInt(key string, fallback int) (int, error) {
	n, err := config.Int(key, fallback)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive (got %d)", key, n)
	}
	return n, nil
}

// minuteEnv reads an HH:MM value as minutes of day.
func minuteEnv(key string, fallback int) (int, error) {
	raw := config.String(key, "")
	if raw == "" {
		return fallback, nil
	}
	m, err := model.ParseMinute(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return m, nil
}

// Engine is every component of the scheduling engine, wired to one store.
type Engine struct {
	Store         storage.Store
	Templates     *templates.Service
	Slots         *slots.Materializer
	Resolver      *availability.Resolver
	Allocator     *capacity.Allocator
	Guard         *conflict.Guard
	Bookings      *booking.Service
	Modifications *modification.Service
	Sweeper       *sweeper.Worker
	Metrics       *metrics.Engine
}

type Options struct {
	Cache   availability.Cache
	Metrics *metrics.Engine
	Clock   clock.Clock
	Logger  *slog.Logger
}

func Build(store storage.Store, cfg Config, opts Options) *Engine {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New("primetable")
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	e := &Engine{Store: store, Metrics: opts.Metrics}
	e.Templates = templates.NewService(store, cfg.Templates, opts.Logger.With("component", "templates"))
	e.Slots = slots.NewMaterializer(store, cfg.LowInventory)
	e.Resolver = availability.NewResolver(availability.Deps{
		Store:     store,
		Templates: e.Templates,
		Slots:     e.Slots,
		Clock:     opts.Clock,
		Cache:     opts.Cache,
		Metrics:   opts.Metrics,
		Logger:    opts.Logger.With("component", "availability"),
	}, cfg.Availability)
	e.Allocator = capacity.NewAllocator(store, opts.Metrics, opts.Logger.With("component", "capacity"))
	e.Guard = conflict.NewGuard(store, cfg.Conflict)
	e.Bookings = booking.NewService(booking.Deps{
		Store:     store,
		Resolver:  e.Resolver,
		Guard:     e.Guard,
		Allocator: e.Allocator,
		Clock:     opts.Clock,
		Logger:    opts.Logger.With("component", "booking"),
	})
	e.Modifications = modification.NewService(modification.Deps{
		Store:     store,
		Resolver:  e.Resolver,
		Guard:     e.Guard,
		Allocator: e.Allocator,
		Metrics:   opts.Metrics,
		Clock:     opts.Clock,
		Logger:    opts.Logger.With("component", "modification"),
	})
	e.Sweeper = sweeper.NewWorker(store, e.Bookings, opts.Clock, opts.Metrics, opts.Logger.With("component", "sweeper"), cfg.Sweeper)
	return e
}
