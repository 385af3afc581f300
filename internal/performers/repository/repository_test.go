package repository

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"gigroute_backend/internal/performers/domain"
)

func recordParams() RecordParams {
	return RecordParams{
		WindowSize:             50,
		IgnorePenaltyIncrement: 0.15,
		IgnoreSuspendThreshold: 5,
		PenaltyDecayRate:       0.094,
	}
}

func TestConsecutiveIgnoresTripSuspensionAtThreshold(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	params := recordParams()
	m := domain.RoutingMetrics{PerformerID: uuid.New()}

	for i := 1; i <= 4; i++ {
		if applyOutcome(&m, domain.OutcomeIgnored, params, now) {
			t.Fatalf("suspension tripped after %d ignores, threshold is %d", i, params.IgnoreSuspendThreshold)
		}
	}
	if m.IsSuspended {
		t.Fatal("performer suspended below the threshold")
	}

	if !applyOutcome(&m, domain.OutcomeIgnored, params, now) {
		t.Fatal("fifth consecutive ignore should trip suspension")
	}
	if !m.IsSuspended {
		t.Fatal("is_suspended not set")
	}
	if m.SuspensionReason == nil || *m.SuspensionReason != domain.SuspensionReasonExcessiveIgnores {
		t.Fatalf("suspension reason = %v, want %s", m.SuspensionReason, domain.SuspensionReasonExcessiveIgnores)
	}
	if m.ConsecutiveIgnores != 5 {
		t.Fatalf("consecutive ignores = %d, want 5", m.ConsecutiveIgnores)
	}
	if m.IgnoredCount != 5 {
		t.Fatalf("ignored count = %d, want 5", m.IgnoredCount)
	}

	// Further ignores while suspended must not report a fresh suspension.
	if applyOutcome(&m, domain.OutcomeIgnored, params, now) {
		t.Fatal("already-suspended performer reported as newly suspended")
	}
}

func TestIgnorePenaltyStacksAndCapsAtOne(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	params := recordParams()
	m := domain.RoutingMetrics{PerformerID: uuid.New()}

	for i := 1; i <= 5; i++ {
		applyOutcome(&m, domain.OutcomeIgnored, params, now)
		want := float64(i) * params.IgnorePenaltyIncrement
		if math.Abs(m.RecentLeadPenalty-want) > 1e-9 {
			t.Fatalf("penalty after %d ignores = %f, want %f", i, m.RecentLeadPenalty, want)
		}
	}
	if m.LastPenaltyAppliedAt == nil || !m.LastPenaltyAppliedAt.Equal(now) {
		t.Fatalf("last penalty applied at = %v, want %v", m.LastPenaltyAppliedAt, now)
	}

	// Two more increments would reach 1.05; the cap holds it at 1.0.
	applyOutcome(&m, domain.OutcomeIgnored, params, now)
	applyOutcome(&m, domain.OutcomeIgnored, params, now)
	if m.RecentLeadPenalty != 1.0 {
		t.Fatalf("penalty = %f, want capped at 1.0", m.RecentLeadPenalty)
	}
}

func TestResponsesResetIgnoreStreak(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	params := recordParams()

	for _, outcome := range []domain.Outcome{domain.OutcomeAccepted, domain.OutcomeDeclined} {
		m := domain.RoutingMetrics{PerformerID: uuid.New()}
		for i := 0; i < 4; i++ {
			applyOutcome(&m, domain.OutcomeIgnored, params, now)
		}

		applyOutcome(&m, outcome, params, now)
		if m.ConsecutiveIgnores != 0 {
			t.Fatalf("%s: consecutive ignores = %d, want 0", outcome, m.ConsecutiveIgnores)
		}

		// The streak restarts, so the next ignore is one of five, not five of five.
		if applyOutcome(&m, domain.OutcomeIgnored, params, now) {
			t.Fatalf("%s: suspension tripped on first ignore after reset", outcome)
		}
		if m.IsSuspended {
			t.Fatalf("%s: performer suspended after streak reset", outcome)
		}
	}
}

func TestNaturalExpiryLeavesStreakAndPenaltyAlone(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	params := recordParams()
	m := domain.RoutingMetrics{PerformerID: uuid.New()}

	applyOutcome(&m, domain.OutcomeIgnored, params, now)
	applyOutcome(&m, domain.OutcomeExpired, params, now)

	if m.ExpiredCount != 1 {
		t.Fatalf("expired count = %d, want 1", m.ExpiredCount)
	}
	if m.ConsecutiveIgnores != 1 {
		t.Fatalf("consecutive ignores = %d, want 1", m.ConsecutiveIgnores)
	}
	if math.Abs(m.RecentLeadPenalty-params.IgnorePenaltyIncrement) > 1e-9 {
		t.Fatalf("penalty = %f, want %f", m.RecentLeadPenalty, params.IgnorePenaltyIncrement)
	}
}
