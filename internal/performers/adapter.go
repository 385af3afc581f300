package performers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gigroute_backend/internal/notification"
	"gigroute_backend/internal/performers/domain"
	"gigroute_backend/internal/performers/repository"
	"gigroute_backend/internal/performers/service"
	"gigroute_backend/internal/routing/ports"
)

// RoutingAdapter exposes the performers service through the routing context's
// ports without leaking repository types across the boundary.
type RoutingAdapter struct {
	svc *service.Service
}

// NewRoutingAdapter wraps the performers service for the routing engine.
func NewRoutingAdapter(svc *service.Service) *RoutingAdapter {
	return &RoutingAdapter{svc: svc}
}

var (
	_ ports.PerformerDirectory = (*RoutingAdapter)(nil)
	_ ports.MetricsRecorder    = (*RoutingAdapter)(nil)
)

// ListEligible answers the selector's candidate query.
func (a *RoutingAdapter) ListEligible(ctx context.Context, q ports.EligibilityQuery) ([]domain.RoutingMetrics, error) {
	return a.svc.ListEligible(ctx, repository.EligibilityFilter{
		EventType: q.EventType,
		City:      q.City,
		State:     q.State,
		Now:       q.Now,
	})
}

// MarkRouted stamps the fairness marker after dispatch.
func (a *RoutingAdapter) MarkRouted(ctx context.Context, performerIDs []uuid.UUID, at time.Time) error {
	return a.svc.MarkRouted(ctx, performerIDs, at)
}

// RecordOutcome feeds an assignment outcome into the metrics store.
func (a *RoutingAdapter) RecordOutcome(ctx context.Context, performerID uuid.UUID, outcome domain.Outcome, responseSeconds *float64) (bool, error) {
	return a.svc.RecordOutcome(ctx, performerID, outcome, responseSeconds)
}

// ContactAdapter resolves performer delivery addresses for the notification
// module.
type ContactAdapter struct {
	svc *service.Service
}

// NewContactAdapter wraps the performers service for notifications.
func NewContactAdapter(svc *service.Service) *ContactAdapter {
	return &ContactAdapter{svc: svc}
}

var _ notification.ContactSource = (*ContactAdapter)(nil)

// PerformerContact returns the performer's name and email.
func (a *ContactAdapter) PerformerContact(ctx context.Context, performerID uuid.UUID) (notification.PerformerContact, error) {
	profile, err := a.svc.GetPerformer(ctx, performerID)
	if err != nil {
		return notification.PerformerContact{}, err
	}
	return notification.PerformerContact{Name: profile.Name, Email: profile.Email}, nil
}
