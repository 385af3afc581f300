// Package service implements lead lifecycle orchestration for the routing
// engine: submission, phased distribution, expiry, cancellation, conversion,
// and operator re-injection.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gigroute_backend/internal/events"
	"gigroute_backend/internal/routing/dispatch"
	"gigroute_backend/internal/routing/domain"
	"gigroute_backend/internal/routing/phase"
	"gigroute_backend/internal/routing/ports"
	"gigroute_backend/internal/routing/repository"
	"gigroute_backend/internal/routing/selector"
	"gigroute_backend/platform/apperr"
	"gigroute_backend/platform/logger"
	"gigroute_backend/platform/phone"
)

const (
	exhaustReasonNoCandidates = "no_candidates"
	exhaustReasonNoResponse   = "no_response"
	exhaustReasonAllDeclined  = "all_declined"
)

// Service coordinates the routing engine.
type Service struct {
	repo       repository.Repository
	selector   *selector.Selector
	dispatcher *dispatch.Dispatcher
	plan       phase.Plan
	metrics    ports.MetricsRecorder
	timers     ports.PhaseTimerScheduler
	bus        events.Bus
	log        *logger.Logger

	lastMinuteDays int
}

// New creates the routing service.
func New(
	repo repository.Repository,
	sel *selector.Selector,
	dispatcher *dispatch.Dispatcher,
	plan phase.Plan,
	metrics ports.MetricsRecorder,
	timers ports.PhaseTimerScheduler,
	bus events.Bus,
	log *logger.Logger,
	lastMinuteDays int,
) *Service {
	return &Service{
		repo:           repo,
		selector:       sel,
		dispatcher:     dispatcher,
		plan:           plan,
		metrics:        metrics,
		timers:         timers,
		bus:            bus,
		log:            log,
		lastMinuteDays: lastMinuteDays,
	}
}

// SubmitLeadParams carries a validated planner inquiry.
type SubmitLeadParams struct {
	EventType  string
	EventDate  time.Time
	City       string
	State      string
	VenueName  string
	GuestCount int

	BudgetMin float64
	BudgetMax float64

	PlannerName     string
	PlannerEmail    string
	PlannerPhone    string
	SpecialRequests string
}

// SubmitLead scores and persists a new inquiry, then starts phased routing.
func (s *Service) SubmitLead(ctx context.Context, params SubmitLeadParams) (domain.Lead, error) {
	normalizedPhone := ""
	if params.PlannerPhone != "" {
		if p, err := phone.NormalizeE164(params.PlannerPhone); err == nil {
			normalizedPhone = p
		} else {
			return domain.Lead{}, apperr.Validation("invalid planner phone number")
		}
	}

	now := time.Now().UTC()
	isLastMinute := params.EventDate.After(now) &&
		params.EventDate.Before(now.Add(time.Duration(s.lastMinuteDays)*24*time.Hour))

	midpoint := domain.Midpoint(params.BudgetMin, params.BudgetMax)
	lead := domain.Lead{
		EventType:       params.EventType,
		EventDate:       params.EventDate,
		City:            params.City,
		State:           params.State,
		VenueName:       params.VenueName,
		GuestCount:      params.GuestCount,
		BudgetMin:       params.BudgetMin,
		BudgetMax:       params.BudgetMax,
		BudgetMidpoint:  midpoint,
		PlannerName:     params.PlannerName,
		PlannerEmail:    params.PlannerEmail,
		PlannerPhone:    normalizedPhone,
		SpecialRequests: params.SpecialRequests,
		IsLastMinute:    isLastMinute,
		LeadScore: domain.ComputeLeadScore(domain.ScoreInput{
			Budget:       midpoint,
			EventType:    params.EventType,
			HasDate:      !params.EventDate.IsZero(),
			HasVenue:     params.VenueName != "",
			HasPhone:     normalizedPhone != "",
			GuestCount:   params.GuestCount,
			IsLastMinute: isLastMinute,
		}),
		FormCompleteness: domain.ComputeFormCompleteness(
			!params.EventDate.IsZero(),
			params.VenueName != "",
			normalizedPhone != "",
			midpoint > 0,
			params.GuestCount > 0,
		),
	}

	created, err := s.repo.CreateLead(ctx, lead)
	if err != nil {
		return domain.Lead{}, err
	}

	s.bus.Publish(ctx, events.LeadSubmitted{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    created.ID,
		EventType: created.EventType,
		City:      created.City,
		State:     created.State,
		LeadScore: created.LeadScore,
	})

	if err := s.StartRouting(ctx, created.ID); err != nil {
		// The lead is stored; routing can be retried by the sweep or an
		// operator re-injection. Surface the submission as successful.
		s.log.Error("initial routing failed", "lead_id", created.ID, "error", err)
	}

	return s.repo.GetLead(ctx, created.ID)
}

// StartRouting moves a pending or exhausted lead into the first phase.
func (s *Service) StartRouting(ctx context.Context, leadID uuid.UUID) error {
	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	first := s.plan.First()
	ok, err := s.repo.BeginRouting(ctx, leadID, first, now.Add(s.plan.Window(first)), now)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("lead is not in a routable state")
	}

	s.publishStateChange(ctx, leadID, string(lead.RoutingState), string(domain.StateRouting), string(first))
	return s.runPhase(ctx, leadID, first)
}

// runPhase dispatches offers for the given phase, falling through to later
// phases when no candidates exist, and exhausting the lead when the ladder
// runs out.
func (s *Service) runPhase(ctx context.Context, leadID uuid.UUID, ph domain.Phase) error {
	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	if lead.RoutingState != domain.StateRouting {
		return nil
	}

	for {
		now := time.Now().UTC()
		expiresAt := now.Add(s.plan.Window(ph))

		ok, err := s.repo.SetPhase(ctx, leadID, ph, expiresAt)
		if err != nil {
			return err
		}
		if !ok {
			// A concurrent win or withdrawal took the lead out of routing.
			return nil
		}

		exclude, err := s.excludedPerformers(ctx, leadID)
		if err != nil {
			return err
		}

		candidates, err := s.selector.Select(ctx, lead, exclude, s.plan.Fanout(ph))
		if err != nil {
			return err
		}

		if len(candidates) == 0 {
			s.log.RoutingEvent("phase_skipped_no_candidates", leadID.String(), slog.String("phase", string(ph)))
			next, more := s.plan.Next(ph)
			if !more {
				return s.exhaust(ctx, leadID, exhaustReasonNoCandidates)
			}
			ph = next
			continue
		}

		if _, err := s.dispatcher.Dispatch(ctx, lead, ph, now, expiresAt, candidates); err != nil {
			return err
		}
		if s.timers != nil {
			if err := s.timers.SchedulePhaseExpiry(ctx, leadID, ph, expiresAt); err != nil {
				// The periodic sweep catches leads whose timer never fired.
				s.log.Warn("phase expiry schedule failed", "lead_id", leadID, "phase", string(ph), "error", err)
			}
		}

		s.log.RoutingEvent("phase_entered", leadID.String(),
			slog.String("phase", string(ph)),
			slog.Time("expires_at", expiresAt),
			slog.Int("offers", len(candidates)),
		)
		return nil
	}
}

// ExpirePhase closes out a lapsed phase window: outstanding offers become
// ignored or expired, performer metrics absorb the outcome, and the lead
// advances to the next phase or exhausts. Safe to call more than once and
// from both the timer task and the sweep.
func (s *Service) ExpirePhase(ctx context.Context, leadID uuid.UUID, expected domain.Phase) error {
	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	if lead.RoutingState != domain.StateRouting || lead.CurrentPhase == nil || *lead.CurrentPhase != expected {
		// Stale timer: the lead moved on already.
		return nil
	}
	if lead.PhaseExpiresAt != nil && lead.PhaseExpiresAt.After(time.Now().UTC()) {
		return nil
	}

	now := time.Now().UTC()
	expired, err := s.repo.ExpireOutstanding(ctx, leadID, uuid.Nil, now)
	if err != nil {
		return err
	}
	s.recordExpiredOffers(ctx, leadID, expired)

	s.log.RoutingEvent("phase_expired", leadID.String(),
		slog.String("phase", string(expected)),
		slog.Int("expired_offers", len(expired)),
	)

	next, more := s.plan.Next(expected)
	if !more {
		return s.exhaust(ctx, leadID, exhaustReasonNoResponse)
	}
	return s.runPhase(ctx, leadID, next)
}

// SweepExpired processes every routing lead whose phase window has lapsed.
// It backstops the durable timers.
func (s *Service) SweepExpired(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.ListDuePhaseExpiries(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, lead := range due {
		if lead.CurrentPhase == nil {
			continue
		}
		if err := s.ExpirePhase(ctx, lead.ID, *lead.CurrentPhase); err != nil {
			s.log.Error("sweep expiry failed", "lead_id", lead.ID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

// CancelLead withdraws a lead on the planner's behalf. Outstanding offers are
// closed without penalizing performers; an already-assigned performer takes a
// lead_lost hit instead.
func (s *Service) CancelLead(ctx context.Context, leadID uuid.UUID) error {
	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	if !lead.RoutingState.CanWithdraw() {
		return apperr.Conflict("lead is already closed")
	}

	ok, err := s.repo.MarkWithdrawn(ctx, leadID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("lead is already closed")
	}

	now := time.Now().UTC()
	if _, err := s.repo.ExpireOutstanding(ctx, leadID, uuid.Nil, now); err != nil {
		s.log.Error("close outstanding offers on withdrawal", "lead_id", leadID, "error", err)
	}

	if lead.RoutingState == domain.StateAssigned && lead.AssignedPerformerID != nil {
		if _, err := s.metrics.RecordOutcome(ctx, *lead.AssignedPerformerID, perfOutcomeLeadLost, nil); err != nil {
			s.log.Error("record lead_lost outcome", "lead_id", leadID, "error", err)
		}
	}

	s.publishStateChange(ctx, leadID, string(lead.RoutingState), string(domain.StateWithdrawn), "")
	s.bus.Publish(ctx, events.LeadWithdrawn{BaseEvent: events.NewBaseEvent(), LeadID: leadID})
	s.log.RoutingEvent("lead_withdrawn", leadID.String())
	return nil
}

// MarkConverted records an out-of-band booking confirmation on an assigned
// lead and credits the performer's conversion history. The caller names the
// performer it believes booked the lead; a mismatch with the assignment is
// rejected so the conversion cannot credit the wrong performer.
func (s *Service) MarkConverted(ctx context.Context, leadID, performerID uuid.UUID) error {
	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	if lead.RoutingState != domain.StateAssigned || lead.AssignedPerformerID == nil {
		return apperr.Conflict("only assigned leads can convert")
	}
	if performerID != *lead.AssignedPerformerID {
		return apperr.Conflict("performer is not assigned to this lead")
	}

	ok, err := s.repo.MarkConverted(ctx, leadID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("only assigned leads can convert")
	}

	if _, err := s.metrics.RecordOutcome(ctx, *lead.AssignedPerformerID, perfOutcomeConverted, nil); err != nil {
		s.log.Error("record converted outcome", "lead_id", leadID, "error", err)
	}

	s.publishStateChange(ctx, leadID, string(domain.StateAssigned), string(domain.StateConverted), "")
	s.bus.Publish(ctx, events.LeadConverted{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      leadID,
		PerformerID: *lead.AssignedPerformerID,
	})
	s.log.RoutingEvent("lead_converted", leadID.String())
	return nil
}

// Reinject restarts routing on an exhausted lead. Performers already offered
// the lead stay excluded; re-injection reaches whoever became eligible since.
func (s *Service) Reinject(ctx context.Context, leadID uuid.UUID) error {
	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	if lead.RoutingState != domain.StateExhausted {
		return apperr.Conflict("only exhausted leads can be re-injected")
	}
	return s.StartRouting(ctx, leadID)
}

// GetLead retrieves a lead.
func (s *Service) GetLead(ctx context.Context, leadID uuid.UUID) (domain.Lead, error) {
	return s.repo.GetLead(ctx, leadID)
}

// ListLeads lists leads, optionally by routing state.
func (s *Service) ListLeads(ctx context.Context, state *domain.RoutingState, limit, offset int) ([]domain.Lead, error) {
	return s.repo.ListLeads(ctx, state, limit, offset)
}

// ListAssignments returns the assignment history of a lead.
func (s *Service) ListAssignments(ctx context.Context, leadID uuid.UUID) ([]domain.Assignment, error) {
	if _, err := s.repo.GetLead(ctx, leadID); err != nil {
		return nil, err
	}
	return s.repo.ListAssignmentsByLead(ctx, leadID)
}

// ListPerformerOffers returns a performer's offer inbox, newest first.
func (s *Service) ListPerformerOffers(ctx context.Context, performerID uuid.UUID, pendingOnly bool, limit int) ([]domain.Assignment, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListAssignmentsByPerformer(ctx, performerID, pendingOnly, limit)
}

// ListDistributions returns the per-performer audit trail of a lead.
func (s *Service) ListDistributions(ctx context.Context, leadID uuid.UUID) ([]domain.Distribution, error) {
	if _, err := s.repo.GetLead(ctx, leadID); err != nil {
		return nil, err
	}
	return s.repo.ListDistributionsByLead(ctx, leadID)
}

// exhaust closes the lead and announces it.
func (s *Service) exhaust(ctx context.Context, leadID uuid.UUID, reason string) error {
	ok, err := s.repo.MarkExhausted(ctx, leadID, reason)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	s.publishStateChange(ctx, leadID, string(domain.StateRouting), string(domain.StateExhausted), "")
	s.bus.Publish(ctx, events.LeadExhausted{BaseEvent: events.NewBaseEvent(), LeadID: leadID, Reason: reason})
	s.log.RoutingEvent("lead_exhausted", leadID.String(), slog.String("reason", reason))
	return nil
}

// excludedPerformers returns every performer already offered this lead.
func (s *Service) excludedPerformers(ctx context.Context, leadID uuid.UUID) (map[uuid.UUID]bool, error) {
	ids, err := s.repo.ListAssignedPerformerIDs(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("list excluded performers: %w", err)
	}
	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (s *Service) publishStateChange(ctx context.Context, leadID uuid.UUID, oldState, newState, ph string) {
	s.bus.Publish(ctx, events.RoutingStateChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		OldState:  oldState,
		NewState:  newState,
		Phase:     ph,
	})
}
