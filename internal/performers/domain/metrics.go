// Package domain provides core business rules for the performers bounded context.
package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal result of a lead assignment, or a later conversion
// signal, as seen from a single performer's perspective.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDeclined  Outcome = "declined"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeExpired   Outcome = "expired"
	OutcomeConverted Outcome = "converted"
	OutcomeLeadLost  Outcome = "lead_lost"
)

// Valid reports whether the outcome is a known value.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeAccepted, OutcomeDeclined, OutcomeIgnored, OutcomeExpired, OutcomeConverted, OutcomeLeadLost:
		return true
	}
	return false
}

// SuspensionReasonExcessiveIgnores is set when the consecutive-ignore
// threshold trips automatic suspension.
const SuspensionReasonExcessiveIgnores = "excessive_ignores"

// RoutingMetrics is the per-performer reliability/performance record read by
// the scoring model and candidate selector and mutated by the outcome
// recorder. Counters are monotonically non-decreasing; rates are recomputed
// from the rolling outcome window, never hand-edited.
type RoutingMetrics struct {
	PerformerID uuid.UUID

	AcceptedCount  int
	DeclinedCount  int
	IgnoredCount   int
	ExpiredCount   int
	ConvertedCount int
	LostCount      int

	AcceptanceRate     float64
	DeclineRate        float64
	IgnoreRate         float64
	ConversionRate     float64
	AvgResponseSeconds float64
	ReliabilityScore   float64

	RecentLeadPenalty    float64
	LastPenaltyAppliedAt *time.Time
	PenaltyDecayRate     float64 // fraction removed per day
	ConsecutiveIgnores   int

	CooldownUntil    *time.Time
	IsSuspended      bool
	SuspensionReason *string

	PriceMin float64
	PriceMax float64

	LastRoutedAt *time.Time
	UpdatedAt    time.Time
}

// PriceMidpoint returns the midpoint of the performer's price range.
func (m RoutingMetrics) PriceMidpoint() float64 {
	return (m.PriceMin + m.PriceMax) / 2
}

// DecayedPenalty returns the penalty in effect at now. The stored value is
// the penalty at LastPenaltyAppliedAt; decay is recomputed on every read so
// no background job has to rewrite the row.
func (m RoutingMetrics) DecayedPenalty(now time.Time) float64 {
	return DecayPenalty(m.RecentLeadPenalty, m.LastPenaltyAppliedAt, m.PenaltyDecayRate, now)
}

// EligibleAt reports whether the performer may receive offers at now.
// Suspended or cooling-down performers are never candidates, regardless of
// how few alternatives exist.
func (m RoutingMetrics) EligibleAt(now time.Time) bool {
	if m.IsSuspended {
		return false
	}
	if m.CooldownUntil != nil && m.CooldownUntil.After(now) {
		return false
	}
	return true
}

// DecayPenalty applies exponential per-day decay to a stored penalty value.
// ratePerDay is the fraction removed per elapsed day; the default config
// value halves a penalty roughly every 7 days.
func DecayPenalty(stored float64, appliedAt *time.Time, ratePerDay float64, now time.Time) float64 {
	if stored <= 0 {
		return 0
	}
	if appliedAt == nil {
		return stored
	}

	days := now.Sub(*appliedAt).Hours() / 24
	if days <= 0 {
		return stored
	}
	if ratePerDay <= 0 || ratePerDay >= 1 {
		return stored
	}

	decayed := stored * math.Pow(1-ratePerDay, days)
	if decayed < 1e-9 {
		return 0
	}
	return decayed
}

// OutcomeSample is one entry of the rolling outcome window.
type OutcomeSample struct {
	Outcome         Outcome
	ResponseSeconds *float64
	RecordedAt      time.Time
}

// Rates is the derived view over a rolling outcome window.
type Rates struct {
	AcceptanceRate     float64
	DeclineRate        float64
	IgnoreRate         float64
	ConversionRate     float64
	AvgResponseSeconds float64
	ReliabilityScore   float64
}

// ComputeRates derives rolling rates from the outcome window (most recent
// first or last, order does not matter). Pure function so the feedback loop
// is testable without a database.
func ComputeRates(window []OutcomeSample) Rates {
	var accepted, declined, ignored, expired, converted, lost int
	var latencySum float64
	var latencyCount int

	for _, s := range window {
		switch s.Outcome {
		case OutcomeAccepted:
			accepted++
		case OutcomeDeclined:
			declined++
		case OutcomeIgnored:
			ignored++
		case OutcomeExpired:
			expired++
		case OutcomeConverted:
			converted++
		case OutcomeLeadLost:
			lost++
		}
		if s.ResponseSeconds != nil {
			latencySum += *s.ResponseSeconds
			latencyCount++
		}
	}

	offers := accepted + declined + ignored + expired
	var r Rates
	if offers > 0 {
		r.AcceptanceRate = float64(accepted) / float64(offers)
		r.DeclineRate = float64(declined) / float64(offers)
		r.IgnoreRate = float64(ignored+expired) / float64(offers)

		// Reliability tracks whether the performer responds at all;
		// conversions that fall through knock it down.
		responded := float64(accepted+declined) / float64(offers)
		r.ReliabilityScore = clamp01(responded - 0.1*float64(lost))
	}
	if accepted > 0 {
		r.ConversionRate = math.Min(1, float64(converted)/float64(accepted))
	}
	if latencyCount > 0 {
		r.AvgResponseSeconds = latencySum / float64(latencyCount)
	}

	return r
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
