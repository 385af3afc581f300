package repository

import (
	"context"
	"time"

	"gigroute_backend/internal/performers/domain"

	"github.com/google/uuid"
)

// Profile is a performer's published routing profile. Profiles are never
// hard-deleted; deactivation flips is_active.
type Profile struct {
	ID              uuid.UUID
	Name            string
	Email           string
	Phone           string
	City            string
	State           string
	ServesStatewide bool
	EventTypes      []string
	PriceMin        float64
	PriceMax        float64
	AcceptsLeads    bool
	IsActive        bool
	MaxLeadsPerMonth int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EligibilityFilter narrows the performer directory to candidates for a lead.
type EligibilityFilter struct {
	EventType string
	City      string
	State     string
	Now       time.Time
}

// RecordParams carries the tunables the outcome recorder applies.
type RecordParams struct {
	WindowSize             int
	IgnorePenaltyIncrement float64
	IgnoreSuspendThreshold int
	PenaltyDecayRate       float64
}

// RecordResult reports the state after an outcome was applied.
type RecordResult struct {
	Metrics      domain.RoutingMetrics
	NewlySuspended bool
}

// ProfileStore manages performer profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p Profile) (Profile, error)
	GetProfile(ctx context.Context, id uuid.UUID) (Profile, error)
	UpdatePriceRange(ctx context.Context, id uuid.UUID, min, max float64) error
	SetAcceptsLeads(ctx context.Context, id uuid.UUID, accepts bool) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// MetricsStore manages per-performer routing metrics.
type MetricsStore interface {
	GetMetrics(ctx context.Context, performerID uuid.UUID) (domain.RoutingMetrics, error)
	RecordOutcome(ctx context.Context, performerID uuid.UUID, outcome domain.Outcome, responseSeconds *float64, params RecordParams) (RecordResult, error)
	Suspend(ctx context.Context, performerID uuid.UUID, reason string) error
	ClearSuspension(ctx context.Context, performerID uuid.UUID) error
	SetCooldown(ctx context.Context, performerID uuid.UUID, until time.Time) error
}

// Directory answers eligibility queries for the candidate selector.
type Directory interface {
	ListEligible(ctx context.Context, filter EligibilityFilter) ([]domain.RoutingMetrics, error)
	MarkRouted(ctx context.Context, performerIDs []uuid.UUID, at time.Time) error
}

// Repository is the full data access surface of the performers context.
type Repository interface {
	ProfileStore
	MetricsStore
	Directory
}
