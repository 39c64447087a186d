package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/legalaid-connect/legalaid/libs/config"
	"github.com/legalaid-connect/legalaid/libs/db"
	"github.com/legalaid-connect/legalaid/libs/grpcx"
	"github.com/legalaid-connect/legalaid/libs/httpx"
	"github.com/legalaid-connect/legalaid/libs/kafkax"
	otelx "github.com/legalaid-connect/legalaid/libs/otel"
	"github.com/legalaid-connect/legalaid/libs/reqid"
	"github.com/legalaid-connect/legalaid/libs/runtime"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/assignment"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/availability"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/booking"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/cases"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/directory"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/handlers"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/matching"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/notify"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/outbox"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/store/pgstore"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/unavailability"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	dbOpts, err := db.OptionsFromEnv()
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, dbOpts)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		applied, err := pgstore.Migrator(pool).Up(ctx)
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied", "count", applied)
	}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			panic(err)
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()
	}

	var dir directory.Directory = directory.NewPostgres(pool)
	if rdb != nil {
		ttl, err := config.Duration("DIRECTORY_CACHE_TTL", 5*time.Minute)
		if err != nil {
			panic(err)
		}
		dir = directory.NewCached(dir, rdb, ttl, logger)
		logger.Info("directory cache enabled", "ttl", ttl)
	}
	caseRepo := cases.NewPostgres(pool)

	queueSize, err := config.Int("NOTIFY_QUEUE_SIZE", 256)
	if err != nil {
		panic(err)
	}
	outboxRepo := outbox.NewRepository()
	sink := notify.NewOutboxSink(pool, outboxRepo)
	dispatcher := notify.NewDispatcher(sink, sink, dir, logger, notify.DispatcherConfig{QueueSize: queueSize})
	// The dispatcher outlives the signal context so requests finishing
	// during shutdown still get their notifications out.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		dispatcher.Run(dispatchCtx)
	}()

	brokers := config.String("KAFKA_BROKERS", "")
	retention, err := config.Duration("OUTBOX_RETENTION", 7*24*time.Hour)
	if err != nil {
		panic(err)
	}
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
		Retention: retention,
	})
	go publisher.Run(ctx)

	gridCfg, err := availability.ConfigFromEnv()
	if err != nil {
		panic(err)
	}
	st := pgstore.New(pool)
	grid, err := availability.NewGrid(st, gridCfg)
	if err != nil {
		panic(err)
	}
	bookingSvc := booking.NewService(st, dir, dispatcher, logger, booking.WithLocation(gridCfg.Location))
	matcher := matching.NewEngine(st, caseRepo, dir, dispatcher, logger)
	assigner := assignment.NewService(st, caseRepo, bookingSvc, dir, dispatcher, logger)
	periods := unavailability.NewService(st, logger)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(kafkax.SplitBrokers(brokers))},
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Optional: true, Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.Routes{
		Appointments:   handlers.NewAppointmentHandler(bookingSvc, logger),
		Availability:   handlers.NewAvailabilityHandler(grid, logger),
		Unavailability: handlers.NewUnavailabilityHandler(periods, logger),
		Cases:          handlers.NewCaseHandler(matcher, assigner, logger),
	}.Register(mux)

	handlerTimeout, err := config.Duration("HTTP_HANDLER_TIMEOUT", 15*time.Second)
	if err != nil {
		panic(err)
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", reqid.Header, httpx.UserIDHeader, httpx.RoleHeader},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		rateLimit(rdb, logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(handlerTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	health := grpcx.NewHealthServer(logger)
	health.SetServing(true)
	go func() {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			return
		}
		if err := health.Serve(ctx, lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	health.SetServing(false)
	runtime.Shutdown(logger, 10*time.Second,
		runtime.Stopper{Name: "http", Stop: srv.Shutdown},
		runtime.Stopper{Name: "notify", Stop: func(ctx context.Context) error {
			stopDispatch()
			select {
			case <-dispatched:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
		runtime.Stopper{Name: "otel", Stop: otelShutdown},
	)
	logger.Info("http server stopped", "notify", dispatcher.Stats())
}

func rateLimit(rdb *redis.Client, logger *slog.Logger) httpx.Middleware {
	perMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		panic(err)
	}
	var limiter httpx.Limiter = httpx.NewMemoryLimiter(perMinute, time.Minute)
	backend := "memory"
	if rdb != nil {
		limiter = httpx.NewRedisLimiter(rdb, perMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:scheduling"))
		backend = "redis"
	}
	logger.Info("rate limiting enabled", "backend", backend, "per_minute", perMinute)
	return httpx.WithRateLimit(limiter, logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
}
