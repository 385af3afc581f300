package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"gigroute_backend/internal/notification"
	"gigroute_backend/internal/notification/outbox"
	"gigroute_backend/internal/notification/sender"
	routingdomain "gigroute_backend/internal/routing/domain"
	routingservice "gigroute_backend/internal/routing/service"
	"gigroute_backend/platform/config"
	"gigroute_backend/platform/logger"
)

const maxDeliveryAttempts = 5

// AssignmentStamper records when an offer notification actually went out.
type AssignmentStamper interface {
	StampNotified(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	routing *routingservice.Service
	outbox  *outbox.Repository
	sender  sender.Sender
	stamper AssignmentStamper
	log     *logger.Logger
}

func NewWorker(
	cfg config.SchedulerConfig,
	routing *routingservice.Service,
	outboxRepo *outbox.Repository,
	snd sender.Sender,
	stamper AssignmentStamper,
	log *logger.Logger,
) (*Worker, error) {
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

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		routing: routing,
		outbox:  outboxRepo,
		sender:  snd,
		stamper: stamper,
		log:     log,
	}

	mux.HandleFunc(TaskPhaseExpiry, w.handlePhaseExpiry)
	mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handlePhaseExpiry(ctx context.Context, task *asynq.Task) error {
	payload, err := ParsePhaseExpiryPayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	return w.routing.ExpirePhase(ctx, leadID, routingdomain.Phase(payload.Phase))
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	rec, err := w.outbox.GetByID(ctx, outboxID)
	if err != nil {
		return err
	}
	if rec.Status == outbox.StatusSucceeded || rec.Status == outbox.StatusFailed {
		return nil
	}

	if err := w.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return err
	}

	if err := w.deliver(ctx, rec); err != nil {
		if rec.Attempts+1 >= maxDeliveryAttempts {
			_ = w.outbox.MarkFailed(ctx, rec.ID, err.Error())
			w.log.Error("notification permanently failed", "outbox_id", rec.ID, "error", err)
			return nil
		}
		msg := err.Error()
		_ = w.outbox.MarkPending(ctx, rec.ID, &msg)
		return err
	}

	return w.outbox.MarkSucceeded(ctx, rec.ID)
}

func (w *Worker) deliver(ctx context.Context, rec outbox.Record) error {
	switch rec.Kind {
	case notification.KindOfferEmail:
		var payload notification.OfferEmailPayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return fmt.Errorf("decode offer email payload: %w", err)
		}

		if err := w.sender.Send(ctx, notification.BuildOfferEmail(payload)); err != nil {
			return err
		}

		if w.stamper != nil {
			if err := w.stamper.StampNotified(ctx, []uuid.UUID{payload.AssignmentID}, time.Now().UTC()); err != nil {
				w.log.Warn("stamp notified failed", "assignment_id", payload.AssignmentID, "error", err)
			}
		}
		return nil
	default:
		w.log.Warn("unknown outbox kind", "outbox_id", rec.ID, "kind", rec.Kind)
		return nil
	}
}
