// Package repository provides PostgreSQL persistence for the routing context.
package repository

import (
	"context"
	"time"

	"gigroute_backend/internal/routing/domain"

	"github.com/google/uuid"
)

// ExpiredOffer identifies one assignment closed out by a bulk expiry, with
// the terminal status it received.
type ExpiredOffer struct {
	AssignmentID uuid.UUID
	PerformerID  uuid.UUID
	Status       domain.ResponseStatus
}

// LeadStore manages lead rows and their routing-state transitions. Every
// state-changing method commits conditionally on the current state, so two
// racing writers cannot both succeed.
type LeadStore interface {
	CreateLead(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ListLeads(ctx context.Context, state *domain.RoutingState, limit, offset int) ([]domain.Lead, error)

	// BeginRouting moves pending or exhausted into routing with the first
	// phase. Returns false when the lead was not in a routable state.
	BeginRouting(ctx context.Context, id uuid.UUID, phase domain.Phase, expiresAt, routedAt time.Time) (bool, error)

	// SetPhase advances the current phase while still routing.
	SetPhase(ctx context.Context, id uuid.UUID, phase domain.Phase, expiresAt time.Time) (bool, error)

	// MarkAssigned is the win commit: it succeeds for exactly one performer
	// because it requires routing_state = 'routing'.
	MarkAssigned(ctx context.Context, id uuid.UUID, performerID uuid.UUID) (bool, error)

	// MarkExhausted closes a lead that ran out of candidates or phases.
	MarkExhausted(ctx context.Context, id uuid.UUID, reason string) (bool, error)

	// MarkWithdrawn cancels any non-terminal lead.
	MarkWithdrawn(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkConverted records a booking on an assigned lead.
	MarkConverted(ctx context.Context, id uuid.UUID) (bool, error)

	SetMultiInquiryID(ctx context.Context, id, multiInquiryID uuid.UUID) error

	// ListDuePhaseExpiries returns routing leads whose phase window has
	// lapsed, for the sweep backstop.
	ListDuePhaseExpiries(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error)
}

// AssignmentStore manages per-(lead, performer, phase) offers.
type AssignmentStore interface {
	CreateAssignments(ctx context.Context, assignments []domain.Assignment) error
	GetAssignment(ctx context.Context, id uuid.UUID) (domain.Assignment, error)
	GetAssignmentByToken(ctx context.Context, token string) (domain.Assignment, error)
	ListAssignmentsByLead(ctx context.Context, leadID uuid.UUID) ([]domain.Assignment, error)
	ListAssignedPerformerIDs(ctx context.Context, leadID uuid.UUID) ([]uuid.UUID, error)
	ListAssignmentsByPerformer(ctx context.Context, performerID uuid.UUID, pendingOnly bool, limit int) ([]domain.Assignment, error)
	CountOutstanding(ctx context.Context, leadID uuid.UUID) (int, error)

	// MarkResponded records the performer's answer once; a second write on
	// the same assignment returns false.
	MarkResponded(ctx context.Context, id uuid.UUID, status domain.ResponseStatus, respondedAt time.Time, responseSeconds float64) (bool, error)

	// ExpireOutstanding closes every pending assignment on the lead except
	// the one given (pass uuid.Nil to close all). Assignments the performer
	// viewed become ignored, unseen ones expired.
	ExpireOutstanding(ctx context.Context, leadID uuid.UUID, except uuid.UUID, now time.Time) ([]ExpiredOffer, error)

	StampNotified(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// DistributionStore maintains the coarse per-(lead, performer) audit trail.
type DistributionStore interface {
	EnsureContacted(ctx context.Context, leadID uuid.UUID, performerIDs []uuid.UUID, at time.Time) error
	MarkViewed(ctx context.Context, leadID, performerID uuid.UUID, at time.Time) error
	MarkDistributionAccepted(ctx context.Context, leadID, performerID uuid.UUID, at time.Time) error
	MarkDistributionDeclined(ctx context.Context, leadID, performerID uuid.UUID, at time.Time, reason *string) error
	ListDistributionsByLead(ctx context.Context, leadID uuid.UUID) ([]domain.Distribution, error)
}

// MultiInquiryStore manages planner multi-inquiries and their counters.
type MultiInquiryStore interface {
	CreateMultiInquiry(ctx context.Context, mi domain.MultiInquiry) (domain.MultiInquiry, error)
	GetMultiInquiry(ctx context.Context, id uuid.UUID) (domain.MultiInquiry, error)
	IncrementMultiInquiryResponse(ctx context.Context, id uuid.UUID, available bool) error
}

// Repository is the full data access surface of the routing context.
type Repository interface {
	LeadStore
	AssignmentStore
	DistributionStore
	MultiInquiryStore
}
