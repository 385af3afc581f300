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
	"gigroute_backend/internal/notification"
	"gigroute_backend/internal/notification/sender"
	"gigroute_backend/internal/performers"
	"gigroute_backend/internal/routing"
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

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	// Timer client so phase advancement inside the worker can schedule the
	// next window's expiry.
	phaseTimers, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize phase timer client", "error", err)
		panic("failed to initialize phase timer client: " + err.Error())
	}
	defer func() { _ = phaseTimers.Close() }()

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

	contacts := performers.NewContactAdapter(performersModule.Service())
	notificationModule := notification.NewModule(pool, cfg, contacts, log)
	notificationModule.RegisterHandlers(eventBus)

	snd, err := sender.FromConfig(cfg, log)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	dispatcher, err := scheduler.NewNotificationOutboxDispatcher(cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize outbox dispatcher", "error", err)
		panic("failed to initialize outbox dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()
	go dispatcher.Run(ctx)

	sweeper := scheduler.NewSweeper(cfg, routingModule.Service(), log)
	go sweeper.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, routingModule.Service(), notificationModule.Outbox(), snd, routingModule.Repository(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
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
