package main

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/config"
	"github.com/md-rashed-zaman/primetable/libs/db"
	"github.com/md-rashed-zaman/primetable/libs/httpx"
	"github.com/md-rashed-zaman/primetable/libs/kafkax"
	"github.com/md-rashed-zaman/primetable/libs/metrics"
	otelx "github.com/md-rashed-zaman/primetable/libs/otel"
	"github.com/md-rashed-zaman/primetable/libs/runtime"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/app"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/grpcserver"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		panic(err)
	}

	var (
		store  storage.Store
		checks []runtime.ReadyCheck
	)
	switch cfg.StorageDriver {
	case "postgres":
		pool, err := db.OpenWithOptions(ctx, cfg.DatabaseURL, cfg.DBPool)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		if config.Bool("AUTO_MIGRATE", true) {
			applied, err := storage.Migrate(ctx, pool)
			if err != nil {
				logger.Error("migrations failed", "err", err)
				panic(err)
			}
			if len(applied) > 0 {
				logger.Info("migrations applied", "files", applied)
			}
		}
		store = storage.NewPostgres(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	default:
		logger.Warn("using in-memory storage; data is lost on restart")
		store = storage.NewMemory()
	}

	m := metrics.New("primetable")

	limitPerMinute := cfg.RateLimitPerMinute

	var (
		cache       availability.Cache
		rateLimitMW httpx.Middleware
	)
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		rc := availability.NewRedisCache(rdb, cfg.CacheTTL, logger.With("component", "availability-cache"))
		cache = rc
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: rc.ReadyCheck()})

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:booking"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("availability cache and rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory); availability cache disabled", "per_minute", limitPerMinute)
	}

	engine := app.Build(store, cfg, app.Options{
		Cache:   cache,
		Metrics: m,
		Logger:  logger,
	})

	sinkKind := strings.ToLower(config.String("EVENT_SINK", "kafka"))
	brokers := config.String("KAFKA_BROKERS", "")
	sink, err := outbox.NewSink(sinkKind, brokers, config.String("AMQP_URL", ""))
	if err != nil {
		logger.Error("event sink init failed", "err", err)
		panic(err)
	}
	if sink != nil {
		defer func() { _ = sink.Close() }()
		if sinkKind == "" || sinkKind == "kafka" {
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
	}
	publisher := outbox.NewPublisher(store, sink, m, logger.With("component", "outbox"), outbox.PublisherConfig{
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	paymentTopics := parseList(config.String("PAYMENT_TOPICS", strings.Join(payments.Topics(), ",")))
	if consumer := payments.NewConsumer(
		payments.NewHandler(store, engine.Bookings, logger.With("component", "payments")),
		payments.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
			Topics:  paymentTopics,
		},
		logger,
	); consumer != nil {
		go consumer.Run(ctx)
	} else {
		logger.Info("payment event consumer disabled (no KAFKA_BROKERS)")
	}

	if cfg.SweeperEnabled {
		go engine.Sweeper.Run(ctx)
	} else {
		logger.Info("checkout sweeper disabled")
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", m.Handler())
	handlers.New(handlers.Deps{
		Store:         store,
		Templates:     engine.Templates,
		Slots:         engine.Slots,
		Resolver:      engine.Resolver,
		Bookings:      engine.Bookings,
		Modifications: engine.Modifications,
		Logger:        logger,
	}).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,Idempotency-Key")),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
		rateLimitMW,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	if grpcPort, err := config.Port("GRPC_PORT", "9093"); err != nil {
		logger.Error("invalid grpc port", "err", err)
	} else {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
		} else {
			gs := grpcserver.New(logger, 10*time.Second, checks...)
			go func() {
				if err := gs.Serve(ctx, lis); err != nil {
					logger.Error("grpc server error", "err", err)
				}
			}()
		}
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
