// Package scheduler provides the durable timer side of routing: asynq tasks
// for phase expiry and outbox delivery, the worker that runs them, and the
// sweep that backstops both.
package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"gigroute_backend/internal/routing/domain"
	"gigroute_backend/internal/routing/ports"
	"gigroute_backend/platform/config"
)

type Client struct {
	client *asynq.Client
	queue  string
}

// Compile-time check that Client satisfies the routing port.
var _ ports.PhaseTimerScheduler = (*Client)(nil)

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// SchedulePhaseExpiry enqueues the timer that closes the phase window. The
// handler re-checks lead state, so duplicates and stale timers are harmless.
func (c *Client) SchedulePhaseExpiry(ctx context.Context, leadID uuid.UUID, phase domain.Phase, runAt time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewPhaseExpiryTask(PhaseExpiryPayload{
		LeadID: leadID.String(),
		Phase:  string(phase),
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.ProcessAt(runAt), asynq.Queue(c.queue))
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
