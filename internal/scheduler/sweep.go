package scheduler

import (
	"context"
	"time"

	routingservice "gigroute_backend/internal/routing/service"
	"gigroute_backend/platform/config"
	"gigroute_backend/platform/logger"
)

const sweepBatchSize = 100

// Sweeper periodically expires lapsed phase windows. It backstops the asynq
// timers: a dropped queue or missed task delays expiry by at most one tick.
type Sweeper struct {
	routing  *routingservice.Service
	interval time.Duration
	log      *logger.Logger
}

func NewSweeper(cfg config.SchedulerConfig, routing *routingservice.Service, log *logger.Logger) *Sweeper {
	interval := cfg.GetSweepInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{routing: routing, interval: interval, log: log}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		processed, err := s.routing.SweepExpired(ctx, sweepBatchSize)
		if err != nil {
			s.log.Warn("phase sweep failed", "error", err)
			continue
		}
		if processed > 0 {
			s.log.Info("phase sweep processed leads", "count", processed)
		}
	}
}
