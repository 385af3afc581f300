package domain

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the exclusivity tier an assignment belongs to.
type Phase string

const (
	PhaseExclusive Phase = "exclusive"
	PhaseBroadcast Phase = "broadcast"
	PhaseOpen      Phase = "open"
)

// NextPhase returns the successor phase, or false after the last one.
func NextPhase(p Phase) (Phase, bool) {
	switch p {
	case PhaseExclusive:
		return PhaseBroadcast, true
	case PhaseBroadcast:
		return PhaseOpen, true
	default:
		return "", false
	}
}

// ResponseStatus is the performer's response state on one assignment.
type ResponseStatus string

const (
	ResponsePending  ResponseStatus = "pending"
	ResponseAccepted ResponseStatus = "accepted"
	ResponseDeclined ResponseStatus = "declined"
	ResponseIgnored  ResponseStatus = "ignored"
	ResponseExpired  ResponseStatus = "expired"
)

// Terminal reports whether the assignment can still change.
func (s ResponseStatus) Terminal() bool {
	return s != ResponsePending
}

// ScoreSnapshot is the scoring breakdown frozen at assignment time. It must
// never change retroactively; the audit trail depends on it.
type ScoreSnapshot struct {
	Reliability   float64
	Acceptance    float64
	Conversion    float64
	BudgetFit     float64
	ResponseSpeed float64
	Penalty       float64
	Raw           float64
	Effective     float64
	Version       string
}

// Assignment is one (lead, performer, phase) offer. At most one assignment
// per (lead, performer) is non-terminal at a time; an exclusive phase has at
// most one outstanding assignment per lead.
type Assignment struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	PerformerID uuid.UUID

	Phase       Phase
	IsExclusive bool
	Priority    int // tie-break order within the phase, 0 = top-ranked

	PhaseStartedAt time.Time
	PhaseExpiresAt time.Time
	ExclusiveUntil *time.Time

	NotifiedAt  *time.Time
	RespondedAt *time.Time

	ResponseStatus  ResponseStatus
	ResponseSeconds *float64
	ResponseToken   string

	Score ScoreSnapshot

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResponseLatency returns the seconds between notification (falling back to
// phase start) and the response time.
func ResponseLatency(a Assignment, respondedAt time.Time) float64 {
	start := a.PhaseStartedAt
	if a.NotifiedAt != nil {
		start = *a.NotifiedAt
	}
	latency := respondedAt.Sub(start).Seconds()
	if latency < 0 {
		return 0
	}
	return latency
}

// Distribution is the coarse per-(lead, performer) audit trail used for
// reporting, independent of phase granularity.
type Distribution struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	PerformerID uuid.UUID

	ContactedAt   *time.Time
	ViewedAt      *time.Time
	AcceptedAt    *time.Time
	DeclinedAt    *time.Time
	DeclineReason *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MultiInquiry is a planner inquiry fanned out to an explicit performer list,
// bypassing phased routing. Read-only after creation except for the counters.
type MultiInquiry struct {
	ID     uuid.UUID
	LeadID uuid.UUID

	PerformersContacted   int
	PerformersAvailable   int
	PerformersUnavailable int

	CreatedAt time.Time
}
