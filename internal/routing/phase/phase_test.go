package phase

import (
	"testing"
	"time"

	"gigroute_backend/internal/routing/domain"
	"gigroute_backend/platform/config"
)

type stubRoutingConfig struct{}

func (stubRoutingConfig) GetExclusiveWindow() time.Duration { return 30 * time.Minute }
func (stubRoutingConfig) GetBroadcastWindow() time.Duration { return 4 * time.Hour }
func (stubRoutingConfig) GetOpenWindow() time.Duration      { return 48 * time.Hour }
func (stubRoutingConfig) GetBroadcastFanout() int           { return 3 }
func (stubRoutingConfig) GetOpenFanout() int                { return 10 }
func (stubRoutingConfig) GetIgnoreSuspendThreshold() int    { return 5 }
func (stubRoutingConfig) GetIgnorePenaltyIncrement() float64 {
	return 0.15
}
func (stubRoutingConfig) GetPenaltyDecayRate() float64 { return 0.094 }
func (stubRoutingConfig) GetLastMinuteDays() int       { return 14 }
func (stubRoutingConfig) GetScoringWeights() config.ScoringWeights {
	return config.DefaultScoringWeights()
}

func TestPlanLadder(t *testing.T) {
	p := NewPlan(stubRoutingConfig{})

	if p.First() != domain.PhaseExclusive {
		t.Fatalf("expected the ladder to start exclusive, got %s", p.First())
	}

	next, ok := p.Next(domain.PhaseExclusive)
	if !ok || next != domain.PhaseBroadcast {
		t.Fatalf("expected exclusive -> broadcast, got %s ok=%v", next, ok)
	}
	next, ok = p.Next(domain.PhaseBroadcast)
	if !ok || next != domain.PhaseOpen {
		t.Fatalf("expected broadcast -> open, got %s ok=%v", next, ok)
	}
	if _, ok := p.Next(domain.PhaseOpen); ok {
		t.Fatal("expected the ladder to end after open")
	}
}

func TestPlanWindows(t *testing.T) {
	p := NewPlan(stubRoutingConfig{})

	if got := p.Window(domain.PhaseExclusive); got != 30*time.Minute {
		t.Fatalf("exclusive window = %v", got)
	}
	if got := p.Window(domain.PhaseBroadcast); got != 4*time.Hour {
		t.Fatalf("broadcast window = %v", got)
	}
	if got := p.Window(domain.PhaseOpen); got != 48*time.Hour {
		t.Fatalf("open window = %v", got)
	}
}

func TestPlanFanout(t *testing.T) {
	p := NewPlan(stubRoutingConfig{})

	if got := p.Fanout(domain.PhaseExclusive); got != 1 {
		t.Fatalf("exclusive fanout = %d, want 1", got)
	}
	if got := p.Fanout(domain.PhaseBroadcast); got != 3 {
		t.Fatalf("broadcast fanout = %d, want 3", got)
	}
	if got := p.Fanout(domain.PhaseOpen); got != 10 {
		t.Fatalf("open fanout = %d, want 10", got)
	}
}
