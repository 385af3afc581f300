package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gigroute_backend/internal/routing/domain"
	"gigroute_backend/internal/routing/scoring"
	"gigroute_backend/internal/routing/selector"
	"gigroute_backend/platform/apperr"
)

// SubmitMultiInquiryParams carries a planner inquiry addressed to an explicit
// performer list.
type SubmitMultiInquiryParams struct {
	Lead         SubmitLeadParams
	PerformerIDs []uuid.UUID
}

// MultiInquiryResult is the submission response.
type MultiInquiryResult struct {
	Lead    domain.Lead
	Inquiry domain.MultiInquiry
}

// SubmitMultiInquiry creates a lead fanned out to a chosen performer list,
// bypassing candidate selection and phase escalation. Every performer gets an
// open-window offer at once; responses accumulate on availability counters
// instead of racing for a single win.
func (s *Service) SubmitMultiInquiry(ctx context.Context, params SubmitMultiInquiryParams) (MultiInquiryResult, error) {
	if len(params.PerformerIDs) == 0 {
		return MultiInquiryResult{}, apperr.Validation("at least one performer is required")
	}

	seen := make(map[uuid.UUID]bool, len(params.PerformerIDs))
	performerIDs := make([]uuid.UUID, 0, len(params.PerformerIDs))
	for _, id := range params.PerformerIDs {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		performerIDs = append(performerIDs, id)
	}
	if len(performerIDs) == 0 {
		return MultiInquiryResult{}, apperr.Validation("at least one performer is required")
	}

	now := time.Now().UTC()
	midpoint := domain.Midpoint(params.Lead.BudgetMin, params.Lead.BudgetMax)
	lead, err := s.repo.CreateLead(ctx, domain.Lead{
		EventType:       params.Lead.EventType,
		EventDate:       params.Lead.EventDate,
		City:            params.Lead.City,
		State:           params.Lead.State,
		VenueName:       params.Lead.VenueName,
		GuestCount:      params.Lead.GuestCount,
		BudgetMin:       params.Lead.BudgetMin,
		BudgetMax:       params.Lead.BudgetMax,
		BudgetMidpoint:  midpoint,
		PlannerName:     params.Lead.PlannerName,
		PlannerEmail:    params.Lead.PlannerEmail,
		PlannerPhone:    params.Lead.PlannerPhone,
		SpecialRequests: params.Lead.SpecialRequests,
	})
	if err != nil {
		return MultiInquiryResult{}, err
	}

	inquiry, err := s.repo.CreateMultiInquiry(ctx, domain.MultiInquiry{
		LeadID:              lead.ID,
		PerformersContacted: len(performerIDs),
	})
	if err != nil {
		return MultiInquiryResult{}, err
	}
	if err := s.repo.SetMultiInquiryID(ctx, lead.ID, inquiry.ID); err != nil {
		return MultiInquiryResult{}, err
	}

	expiresAt := now.Add(s.plan.Window(domain.PhaseOpen))
	ok, err := s.repo.BeginRouting(ctx, lead.ID, domain.PhaseOpen, expiresAt, now)
	if err != nil {
		return MultiInquiryResult{}, err
	}
	if !ok {
		return MultiInquiryResult{}, apperr.Conflict("lead is not in a routable state")
	}

	// Hand-picked performers skip scoring; the snapshot records only the
	// model version so the audit rows stay uniform.
	candidates := make([]selector.Candidate, 0, len(performerIDs))
	for _, id := range performerIDs {
		candidates = append(candidates, selector.Candidate{
			PerformerID: id,
			Score:       scoring.Result{Eligible: true, Components: domain.ScoreSnapshot{Version: scoring.Version}},
		})
	}

	if _, err := s.dispatcher.Dispatch(ctx, lead, domain.PhaseOpen, now, expiresAt, candidates); err != nil {
		return MultiInquiryResult{}, err
	}
	if s.timers != nil {
		if err := s.timers.SchedulePhaseExpiry(ctx, lead.ID, domain.PhaseOpen, expiresAt); err != nil {
			s.log.Warn("multi inquiry expiry schedule failed", "lead_id", lead.ID, "error", err)
		}
	}

	s.log.RoutingEvent("multi_inquiry_submitted", lead.ID.String(),
		slog.String("multi_inquiry_id", inquiry.ID.String()),
		slog.Int("performers_contacted", len(performerIDs)),
	)

	lead, err = s.repo.GetLead(ctx, lead.ID)
	if err != nil {
		return MultiInquiryResult{}, err
	}
	return MultiInquiryResult{Lead: lead, Inquiry: inquiry}, nil
}

// GetMultiInquiry returns a multi-inquiry with its availability counters.
func (s *Service) GetMultiInquiry(ctx context.Context, id uuid.UUID) (domain.MultiInquiry, error) {
	return s.repo.GetMultiInquiry(ctx, id)
}
