package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gigroute_backend/internal/events"
	apphttp "gigroute_backend/internal/http"
	"gigroute_backend/internal/http/router"
	"gigroute_backend/internal/notification"
	"gigroute_backend/internal/performers"
	"gigroute_backend/internal/routing"
	"gigroute_backend/internal/routing/ports"
	"gigroute_backend/internal/scheduler"
	"gigroute_backend/platform/config"
	"gigroute_backend/platform/db"
	"gigroute_backend/platform/logger"
	"gigroute_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	phaseTimers, closeTimers := initPhaseTimers(cfg, log)
	if closeTimers != nil {
		defer closeTimers()
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	performersModule := performers.NewModule(pool, cfg, eventBus, val, log)
	performersAdapter := performersModule.RoutingAdapter()

	routingModule := routing.NewModule(
		pool,
		cfg,
		performersAdapter,
		performersAdapter,
		phaseTimers,
		eventBus,
		val,
		log,
	)

	// Notification module subscribes to domain events (not HTTP-facing)
	contacts := performers.NewContactAdapter(performersModule.Service())
	notificationModule := notification.NewModule(pool, cfg, contacts, log)
	notificationModule.RegisterHandlers(eventBus)

	// Outbox dispatcher keeps offer emails flowing even when the scheduler
	// binary is down; claims are SKIP LOCKED so both can run.
	if cfg.GetRedisURL() != "" {
		dispatcher, err := scheduler.NewNotificationOutboxDispatcher(cfg, pool, log)
		if err != nil {
			log.Error("failed to initialize outbox dispatcher", "error", err)
		} else {
			defer func() { _ = dispatcher.Close() }()
			go dispatcher.Run(ctx)
		}
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			routingModule,
			performersModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initPhaseTimers(cfg config.SchedulerConfig, log *logger.Logger) (ports.PhaseTimerScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; phase expiry relies on the sweep only")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize phase timer client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
