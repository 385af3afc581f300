// Package phase maps routing phases to their configured window and fan-out.
package phase

import (
	"time"

	"gigroute_backend/internal/routing/domain"
	"gigroute_backend/platform/config"
)

// Plan resolves per-phase parameters from configuration.
type Plan struct {
	cfg config.RoutingConfig
}

// NewPlan creates a phase plan over the routing configuration.
func NewPlan(cfg config.RoutingConfig) Plan {
	return Plan{cfg: cfg}
}

// First returns the entry phase of the ladder.
func (p Plan) First() domain.Phase {
	return domain.PhaseExclusive
}

// Window returns how long the phase stays open before expiring.
func (p Plan) Window(ph domain.Phase) time.Duration {
	switch ph {
	case domain.PhaseExclusive:
		return p.cfg.GetExclusiveWindow()
	case domain.PhaseBroadcast:
		return p.cfg.GetBroadcastWindow()
	case domain.PhaseOpen:
		return p.cfg.GetOpenWindow()
	default:
		return p.cfg.GetOpenWindow()
	}
}

// Fanout returns how many performers receive offers in the phase.
func (p Plan) Fanout(ph domain.Phase) int {
	switch ph {
	case domain.PhaseExclusive:
		return 1
	case domain.PhaseBroadcast:
		return p.cfg.GetBroadcastFanout()
	case domain.PhaseOpen:
		return p.cfg.GetOpenFanout()
	default:
		return 1
	}
}

// Next returns the successor phase, or false when the ladder is exhausted.
func (p Plan) Next(ph domain.Phase) (domain.Phase, bool) {
	return domain.NextPhase(ph)
}
