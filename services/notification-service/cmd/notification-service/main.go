package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/legalaid-connect/legalaid/libs/config"
	"github.com/legalaid-connect/legalaid/libs/db"
	"github.com/legalaid-connect/legalaid/libs/events"
	"github.com/legalaid-connect/legalaid/libs/httpx"
	"github.com/legalaid-connect/legalaid/libs/kafkax"
	otelx "github.com/legalaid-connect/legalaid/libs/otel"
	"github.com/legalaid-connect/legalaid/libs/runtime"
	"github.com/legalaid-connect/legalaid/services/notification-service/internal/consumer"
	"github.com/legalaid-connect/legalaid/services/notification-service/internal/delivery"
	"github.com/legalaid-connect/legalaid/services/notification-service/internal/email"
	"github.com/legalaid-connect/legalaid/services/notification-service/internal/handlers"
	"github.com/legalaid-connect/legalaid/services/notification-service/internal/inbox"
	"github.com/legalaid-connect/legalaid/services/notification-service/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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
		applied, err := storage.Migrator(pool).Up(ctx)
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied", "count", applied)
	}

	loc := time.UTC
	if tz := config.String("BUSINESS_TIMEZONE", ""); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			panic(err)
		}
	}

	repo := storage.NewRepository(pool)
	mailer, err := email.NewSMTPSender(email.SMTPConfig{
		Host:     config.String("SMTP_HOST", "mailpit"),
		Port:     config.String("SMTP_PORT", "1025"),
		From:     config.String("SMTP_FROM", ""),
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
	})
	if err != nil {
		panic(err)
	}
	handler := delivery.NewHandler(repo, mailer, logger, loc)

	brokers := config.String("KAFKA_BROKERS", "")
	inboxRepo := inbox.NewRepository(pool)
	retention, err := config.Duration("INBOX_RETENTION", 7*24*time.Hour)
	if err != nil {
		panic(err)
	}
	go pruneInbox(ctx, inboxRepo, retention, logger)

	eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topics:  []string{events.TopicNotificationRequested, events.TopicEmailRequested},
	}, handler.Handle)
	go eventConsumer.Run(ctx)

	notifications := handlers.NewNotificationHandler(repo, logger)
	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkax.SplitBrokers(brokers))},
	)
	mux.HandleFunc("/api/v1/notifications", notifications.List)
	mux.HandleFunc("/api/v1/notifications/read", notifications.MarkRead)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "notification")
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

	<-ctx.Done()
	runtime.Shutdown(logger, 10*time.Second,
		runtime.Stopper{Name: "http", Stop: srv.Shutdown},
		runtime.Stopper{Name: "otel", Stop: otelShutdown},
	)
	logger.Info("http server stopped")
}

// pruneInbox drops de-duplication rows older than retention once an hour.
func pruneInbox(ctx context.Context, repo *inbox.Repository, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.Prune(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Error("inbox prune failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("inbox pruned", "rows", n)
			}
		}
	}
}
