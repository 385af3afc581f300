// Package service implements performer profile management and the routing
// metrics feedback loop.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gigroute_backend/internal/events"
	"gigroute_backend/internal/performers/domain"
	"gigroute_backend/internal/performers/repository"
	"gigroute_backend/platform/apperr"
	"gigroute_backend/platform/config"
	"gigroute_backend/platform/logger"
	"gigroute_backend/platform/phone"
)

// The rolling window size is fixed; the tunables around it come from config.
const outcomeWindowSize = 50

// Service coordinates the performers context.
type Service struct {
	repo   repository.Repository
	bus    events.Bus
	log    *logger.Logger
	params repository.RecordParams
}

// New creates the performers service.
func New(repo repository.Repository, cfg config.RoutingConfig, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		bus:  bus,
		log:  log,
		params: repository.RecordParams{
			WindowSize:             outcomeWindowSize,
			IgnorePenaltyIncrement: cfg.GetIgnorePenaltyIncrement(),
			IgnoreSuspendThreshold: cfg.GetIgnoreSuspendThreshold(),
			PenaltyDecayRate:       cfg.GetPenaltyDecayRate(),
		},
	}
}

// CreatePerformerParams carries a validated performer registration.
type CreatePerformerParams struct {
	Name             string
	Email            string
	Phone            string
	City             string
	State            string
	ServesStatewide  bool
	EventTypes       []string
	PriceMin         float64
	PriceMax         float64
	AcceptsLeads     bool
	MaxLeadsPerMonth int
}

// CreatePerformer registers a performer profile with a fresh metrics record.
func (s *Service) CreatePerformer(ctx context.Context, params CreatePerformerParams) (repository.Profile, error) {
	normalizedPhone := ""
	if params.Phone != "" {
		p, err := phone.NormalizeE164(params.Phone)
		if err != nil {
			return repository.Profile{}, apperr.Validation("invalid phone number")
		}
		normalizedPhone = p
	}

	return s.repo.CreateProfile(ctx, repository.Profile{
		Name:             params.Name,
		Email:            params.Email,
		Phone:            normalizedPhone,
		City:             params.City,
		State:            params.State,
		ServesStatewide:  params.ServesStatewide,
		EventTypes:       params.EventTypes,
		PriceMin:         params.PriceMin,
		PriceMax:         params.PriceMax,
		AcceptsLeads:     params.AcceptsLeads,
		MaxLeadsPerMonth: params.MaxLeadsPerMonth,
	})
}

// GetPerformer returns a performer profile.
func (s *Service) GetPerformer(ctx context.Context, id uuid.UUID) (repository.Profile, error) {
	return s.repo.GetProfile(ctx, id)
}

// GetMetrics returns the performer's routing metrics with the penalty decayed
// to its present value.
func (s *Service) GetMetrics(ctx context.Context, id uuid.UUID) (domain.RoutingMetrics, error) {
	m, err := s.repo.GetMetrics(ctx, id)
	if err != nil {
		return domain.RoutingMetrics{}, err
	}
	now := time.Now().UTC()
	m.RecentLeadPenalty = m.DecayedPenalty(now)
	if m.RecentLeadPenalty > 0 {
		m.LastPenaltyAppliedAt = &now
	}
	return m, nil
}

// UpdatePriceRange updates the performer's price range.
func (s *Service) UpdatePriceRange(ctx context.Context, id uuid.UUID, min, max float64) error {
	if min < 0 || max < min {
		return apperr.Validation("invalid price range")
	}
	return s.repo.UpdatePriceRange(ctx, id, min, max)
}

// SetAcceptsLeads toggles offer delivery for the performer.
func (s *Service) SetAcceptsLeads(ctx context.Context, id uuid.UUID, accepts bool) error {
	return s.repo.SetAcceptsLeads(ctx, id, accepts)
}

// Deactivate soft-deactivates the performer.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.Deactivate(ctx, id)
}

// RecordOutcome applies an assignment outcome to the performer's metrics.
// Returns true when the outcome newly tripped automatic suspension.
func (s *Service) RecordOutcome(ctx context.Context, performerID uuid.UUID, outcome domain.Outcome, responseSeconds *float64) (bool, error) {
	if !outcome.Valid() {
		return false, apperr.Validation("unknown outcome")
	}

	result, err := s.repo.RecordOutcome(ctx, performerID, outcome, responseSeconds, s.params)
	if err != nil {
		return false, err
	}

	if result.NewlySuspended {
		s.bus.Publish(ctx, events.PerformerSuspended{
			BaseEvent:   events.NewBaseEvent(),
			PerformerID: performerID,
			Reason:      domain.SuspensionReasonExcessiveIgnores,
		})
		s.log.Warn("performer auto-suspended",
			"performer_id", performerID,
			"consecutive_ignores", result.Metrics.ConsecutiveIgnores,
		)
	}

	return result.NewlySuspended, nil
}

// Suspend flags the performer with an operator-supplied reason.
func (s *Service) Suspend(ctx context.Context, performerID uuid.UUID, reason string) error {
	if err := s.repo.Suspend(ctx, performerID, reason); err != nil {
		return err
	}
	s.bus.Publish(ctx, events.PerformerSuspended{
		BaseEvent:   events.NewBaseEvent(),
		PerformerID: performerID,
		Reason:      reason,
	})
	return nil
}

// ClearSuspension lifts a suspension and resets the ignore streak.
func (s *Service) ClearSuspension(ctx context.Context, performerID uuid.UUID) error {
	return s.repo.ClearSuspension(ctx, performerID)
}

// SetCooldown keeps the performer out of candidate lists until the deadline.
func (s *Service) SetCooldown(ctx context.Context, performerID uuid.UUID, until time.Time) error {
	if !until.After(time.Now().UTC()) {
		return apperr.Validation("cooldown deadline must be in the future")
	}
	return s.repo.SetCooldown(ctx, performerID, until)
}

// ListEligible answers candidate queries for the routing engine.
func (s *Service) ListEligible(ctx context.Context, filter repository.EligibilityFilter) ([]domain.RoutingMetrics, error) {
	return s.repo.ListEligible(ctx, filter)
}

// MarkRouted stamps the fairness marker after offers go out.
func (s *Service) MarkRouted(ctx context.Context, performerIDs []uuid.UUID, at time.Time) error {
	return s.repo.MarkRouted(ctx, performerIDs, at)
}
