// Package scoring implements the pure routing score model. No I/O: given the
// same metrics snapshot, lead, and clock, the score is identical, which keeps
// candidate ranking reproducible and testable.
package scoring

import (
	"math"
	"time"

	perfdomain "gigroute_backend/internal/performers/domain"
	"gigroute_backend/internal/routing/domain"
)

// Version tags the scoring model in assignment snapshots for debugging and
// analysis. Bump this when changing scoring logic significantly.
const Version = "2026-v1"

// Weights holds the weighted-sum coefficients.
type Weights struct {
	Reliability   float64
	Acceptance    float64
	Conversion    float64
	BudgetFit     float64
	ResponseSpeed float64
}

// DefaultWeights returns the documented defaults.
func DefaultWeights() Weights {
	return Weights{
		Reliability:   0.30,
		Acceptance:    0.20,
		Conversion:    0.20,
		BudgetFit:     0.15,
		ResponseSpeed: 0.15,
	}
}

// Input is everything the model needs for one performer.
type Input struct {
	Metrics        perfdomain.RoutingMetrics
	BudgetMidpoint float64

	// ResponseSpeedPercentile is this performer's speed rank among the
	// candidate set, 1.0 = fastest. Computed by the selector because
	// "relative to peers" only makes sense against a concrete peer set.
	ResponseSpeedPercentile float64

	Now time.Time
}

// Result is the scoring outcome. Ineligible performers carry no comparable
// score at all: they are excluded, not ranked last.
type Result struct {
	Eligible   bool
	Effective  float64
	Components domain.ScoreSnapshot
}

// Score computes the effective routing score with a full component breakdown.
func Score(in Input, w Weights) Result {
	m := in.Metrics

	if !m.EligibleAt(in.Now) {
		return Result{Eligible: false, Components: domain.ScoreSnapshot{Version: Version}}
	}

	budgetFit := BudgetFit(in.BudgetMidpoint, m.PriceMin, m.PriceMax)
	penalty := m.DecayedPenalty(in.Now)

	raw := w.Reliability*m.ReliabilityScore +
		w.Acceptance*m.AcceptanceRate +
		w.Conversion*m.ConversionRate +
		w.BudgetFit*budgetFit +
		w.ResponseSpeed*in.ResponseSpeedPercentile

	effective := raw * (1 - penalty)
	if effective < 0 {
		effective = 0
	}

	return Result{
		Eligible:  true,
		Effective: effective,
		Components: domain.ScoreSnapshot{
			Reliability:   m.ReliabilityScore,
			Acceptance:    m.AcceptanceRate,
			Conversion:    m.ConversionRate,
			BudgetFit:     budgetFit,
			ResponseSpeed: in.ResponseSpeedPercentile,
			Penalty:       penalty,
			Raw:           raw,
			Effective:     effective,
			Version:       Version,
		},
	}
}

// BudgetFit is a triangular fit between the lead's budget midpoint and the
// performer's price range: 1.0 inside the range, decaying linearly to 0 at
// twice the range width outside either bound.
func BudgetFit(leadMidpoint, priceMin, priceMax float64) float64 {
	if priceMax <= 0 {
		// Unpriced profile: neutral fit rather than a spurious perfect match.
		return 0.5
	}
	if leadMidpoint <= 0 {
		return 0.5
	}
	if leadMidpoint >= priceMin && leadMidpoint <= priceMax {
		return 1.0
	}

	width := priceMax - priceMin
	if width <= 0 {
		width = priceMax
	}

	var dist float64
	if leadMidpoint < priceMin {
		dist = priceMin - leadMidpoint
	} else {
		dist = leadMidpoint - priceMax
	}

	fit := 1 - dist/(2*width)
	return math.Max(0, fit)
}
