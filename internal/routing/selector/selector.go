// Package selector ranks eligible performers for a lead. Filtering happens
// in the performer directory query; scoring and fairness ordering happen here.
package selector

import (
	"context"
	"sort"
	"time"

	perfdomain "gigroute_backend/internal/performers/domain"
	"gigroute_backend/internal/routing/domain"
	"gigroute_backend/internal/routing/ports"
	"gigroute_backend/internal/routing/scoring"
	"gigroute_backend/platform/logger"

	"github.com/google/uuid"
)

// Candidate is one ranked performer with its frozen score breakdown.
type Candidate struct {
	PerformerID  uuid.UUID
	Metrics      perfdomain.RoutingMetrics
	Score        scoring.Result
	LastRoutedAt *time.Time
}

// Selector produces ordered candidate lists.
type Selector struct {
	directory ports.PerformerDirectory
	weights   scoring.Weights
	log       *logger.Logger
}

// New creates a candidate selector.
func New(directory ports.PerformerDirectory, weights scoring.Weights, log *logger.Logger) *Selector {
	return &Selector{directory: directory, weights: weights, log: log}
}

// Select returns up to limit candidates for the lead, best first, excluding
// the given performer ids (already-offered assignments). An empty result is
// a valid terminal condition for the caller, not an error.
func (s *Selector) Select(ctx context.Context, lead domain.Lead, exclude map[uuid.UUID]bool, limit int) ([]Candidate, error) {
	now := time.Now().UTC()

	eligible, err := s.directory.ListEligible(ctx, ports.EligibilityQuery{
		EventType: lead.EventType,
		City:      lead.City,
		State:     lead.State,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}

	pool := make([]perfdomain.RoutingMetrics, 0, len(eligible))
	for _, m := range eligible {
		if exclude[m.PerformerID] {
			continue
		}
		// The directory query already filters suspension and cooldown;
		// re-checking here keeps the invariant local.
		if !m.EligibleAt(now) {
			continue
		}
		pool = append(pool, m)
	}
	if len(pool) == 0 {
		return nil, nil
	}

	percentiles := speedPercentiles(pool)

	candidates := make([]Candidate, 0, len(pool))
	for _, m := range pool {
		result := scoring.Score(scoring.Input{
			Metrics:                 m,
			BudgetMidpoint:          lead.BudgetMidpoint,
			ResponseSpeedPercentile: percentiles[m.PerformerID],
			Now:                     now,
		}, s.weights)
		if !result.Eligible {
			continue
		}
		candidates = append(candidates, Candidate{
			PerformerID:  m.PerformerID,
			Metrics:      m,
			Score:        result,
			LastRoutedAt: m.LastRoutedAt,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score.Effective != candidates[j].Score.Effective {
			return candidates[i].Score.Effective > candidates[j].Score.Effective
		}
		// Fairness tie-break: least-recently-routed first, never-routed
		// before everyone.
		li, lj := candidates[i].LastRoutedAt, candidates[j].LastRoutedAt
		switch {
		case li == nil && lj == nil:
			return candidates[i].PerformerID.String() < candidates[j].PerformerID.String()
		case li == nil:
			return true
		case lj == nil:
			return false
		default:
			return li.Before(*lj)
		}
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// speedPercentiles ranks average response latency within the candidate pool:
// 1.0 = fastest peer, 0.0 = slowest. Performers without latency history get
// a neutral 0.5 so newcomers are neither favored nor buried.
func speedPercentiles(pool []perfdomain.RoutingMetrics) map[uuid.UUID]float64 {
	out := make(map[uuid.UUID]float64, len(pool))

	withData := make([]perfdomain.RoutingMetrics, 0, len(pool))
	for _, m := range pool {
		if m.AvgResponseSeconds > 0 {
			withData = append(withData, m)
		} else {
			out[m.PerformerID] = 0.5
		}
	}

	if len(withData) == 0 {
		return out
	}
	if len(withData) == 1 {
		out[withData[0].PerformerID] = 1.0
		return out
	}

	sort.SliceStable(withData, func(i, j int) bool {
		return withData[i].AvgResponseSeconds < withData[j].AvgResponseSeconds
	})
	n := len(withData)
	for rank, m := range withData {
		out[m.PerformerID] = 1 - float64(rank)/float64(n-1)
	}
	return out
}
