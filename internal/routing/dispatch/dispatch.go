// Package dispatch turns a ranked candidate list into persisted assignments
// and offer notifications.
package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gigroute_backend/internal/events"
	"gigroute_backend/internal/routing/domain"
	"gigroute_backend/internal/routing/ports"
	"gigroute_backend/internal/routing/scoring"
	"gigroute_backend/internal/routing/selector"
	"gigroute_backend/platform/logger"
)

// Store is the slice of the routing repository the dispatcher writes to.
type Store interface {
	CreateAssignments(ctx context.Context, assignments []domain.Assignment) error
	EnsureContacted(ctx context.Context, leadID uuid.UUID, performerIDs []uuid.UUID, at time.Time) error
}

// Dispatcher creates assignments for a phase and fans out the offer events.
type Dispatcher struct {
	store     Store
	directory ports.PerformerDirectory
	bus       events.Bus
	log       *logger.Logger
}

// New creates an assignment dispatcher.
func New(store Store, directory ports.PerformerDirectory, bus events.Bus, log *logger.Logger) *Dispatcher {
	return &Dispatcher{store: store, directory: directory, bus: bus, log: log}
}

// Dispatch persists one assignment per candidate for the given phase, stamps
// the audit trail and routing fairness markers, and publishes an offer event
// per assignment. Candidates arrive pre-ranked; index order becomes priority.
func (d *Dispatcher) Dispatch(ctx context.Context, lead domain.Lead, ph domain.Phase, phaseStart, phaseExpires time.Time, candidates []selector.Candidate) ([]domain.Assignment, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	assignments := make([]domain.Assignment, 0, len(candidates))
	performerIDs := make([]uuid.UUID, 0, len(candidates))
	for i, c := range candidates {
		token, err := newResponseToken()
		if err != nil {
			return nil, fmt.Errorf("dispatch: token: %w", err)
		}

		a := domain.Assignment{
			ID:             uuid.New(),
			LeadID:         lead.ID,
			PerformerID:    c.PerformerID,
			Phase:          ph,
			IsExclusive:    ph == domain.PhaseExclusive,
			Priority:       i,
			PhaseStartedAt: phaseStart,
			PhaseExpiresAt: phaseExpires,
			ResponseStatus: domain.ResponsePending,
			ResponseToken:  token,
			Score:          c.Score.Components,
		}
		if a.IsExclusive {
			until := phaseExpires
			a.ExclusiveUntil = &until
		}
		assignments = append(assignments, a)
		performerIDs = append(performerIDs, c.PerformerID)
	}

	if err := d.store.CreateAssignments(ctx, assignments); err != nil {
		return nil, err
	}
	if err := d.store.EnsureContacted(ctx, lead.ID, performerIDs, phaseStart); err != nil {
		return nil, err
	}
	if err := d.directory.MarkRouted(ctx, performerIDs, phaseStart); err != nil {
		// Fairness stamp only; the offers are already committed.
		d.log.Warn("mark routed failed", "lead_id", lead.ID, "error", err)
	}

	// Subscribers (outbox writer, stats) run synchronously per offer; fan out
	// across offers with bounded concurrency.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, a := range assignments {
		g.Go(func() error {
			return d.bus.PublishSync(gctx, events.AssignmentOffered{
				BaseEvent:      events.NewBaseEvent(),
				AssignmentID:   a.ID,
				LeadID:         lead.ID,
				PerformerID:    a.PerformerID,
				Phase:          string(ph),
				ExpiresAt:      phaseExpires,
				ResponseToken:  a.ResponseToken,
				EventType:      lead.EventType,
				EventDate:      lead.EventDate,
				City:           lead.City,
				State:          lead.State,
				BudgetMidpoint: lead.BudgetMidpoint,
				GuestCount:     lead.GuestCount,
			})
		})
	}
	if err := g.Wait(); err != nil {
		// Offers stand even when a notification write fails; the sweep will
		// still expire them on time.
		d.log.Error("offer event fan-out failed", "lead_id", lead.ID, "error", err)
	}

	d.log.RoutingEvent("assignments_dispatched", lead.ID.String(),
		slog.String("phase", string(ph)),
		slog.Int("count", len(assignments)),
		slog.String("scoring_version", scoring.Version),
	)
	return assignments, nil
}

// newResponseToken returns an unguessable token for unauthenticated respond
// links in offer notifications.
func newResponseToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
