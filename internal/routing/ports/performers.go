// Package ports defines the consumer-driven interfaces the routing engine
// needs from other contexts. Adapters are wired in the composition root.
package ports

import (
	"context"
	"time"

	perfdomain "gigroute_backend/internal/performers/domain"
	"gigroute_backend/internal/routing/domain"

	"github.com/google/uuid"
)

// EligibilityQuery narrows the performer directory to candidates for a lead.
type EligibilityQuery struct {
	EventType string
	City      string
	State     string
	Now       time.Time
}

// PerformerDirectory answers candidate queries against the performers context.
type PerformerDirectory interface {
	ListEligible(ctx context.Context, q EligibilityQuery) ([]perfdomain.RoutingMetrics, error)
	MarkRouted(ctx context.Context, performerIDs []uuid.UUID, at time.Time) error
}

// MetricsRecorder feeds assignment outcomes back into the metrics store.
type MetricsRecorder interface {
	// RecordOutcome returns true when the outcome newly suspended the performer.
	RecordOutcome(ctx context.Context, performerID uuid.UUID, outcome perfdomain.Outcome, responseSeconds *float64) (bool, error)
}

// PhaseTimerScheduler schedules the durable wall-clock timer that fires when
// a phase window lapses. Implementations must tolerate duplicate firings;
// expiry handling is guarded by conditional commits either way.
type PhaseTimerScheduler interface {
	SchedulePhaseExpiry(ctx context.Context, leadID uuid.UUID, phase domain.Phase, runAt time.Time) error
}
