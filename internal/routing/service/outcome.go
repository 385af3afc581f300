package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gigroute_backend/internal/events"
	perfdomain "gigroute_backend/internal/performers/domain"
	"gigroute_backend/internal/routing/domain"
	"gigroute_backend/internal/routing/repository"
	"gigroute_backend/platform/apperr"
)

// Aliases keep the performer-outcome vocabulary readable at call sites.
const (
	perfOutcomeAccepted  = perfdomain.OutcomeAccepted
	perfOutcomeDeclined  = perfdomain.OutcomeDeclined
	perfOutcomeIgnored   = perfdomain.OutcomeIgnored
	perfOutcomeExpired   = perfdomain.OutcomeExpired
	perfOutcomeConverted = perfdomain.OutcomeConverted
	perfOutcomeLeadLost  = perfdomain.OutcomeLeadLost
)

// OfferView is the performer-facing read of one offer.
type OfferView struct {
	Assignment domain.Assignment
	Lead       domain.Lead
}

// GetOffer resolves an offer by its response token and stamps first view, so
// a later no-response counts as ignored rather than never-seen.
func (s *Service) GetOffer(ctx context.Context, token string) (OfferView, error) {
	a, err := s.repo.GetAssignmentByToken(ctx, token)
	if err != nil {
		return OfferView{}, err
	}
	lead, err := s.repo.GetLead(ctx, a.LeadID)
	if err != nil {
		return OfferView{}, err
	}

	if err := s.repo.MarkViewed(ctx, a.LeadID, a.PerformerID, time.Now().UTC()); err != nil {
		s.log.Warn("mark offer viewed", "assignment_id", a.ID, "error", err)
	}

	return OfferView{Assignment: a, Lead: lead}, nil
}

// AcceptOffer records a performer accept. On normally routed leads the first
// accept to commit wins the lead; later accepts get a not_winner conflict.
// On multi-inquiry leads accepts only collect availability.
func (s *Service) AcceptOffer(ctx context.Context, token string) (domain.Assignment, error) {
	return s.respond(ctx, token, domain.ResponseAccepted, nil)
}

// DeclineOffer records a performer decline. When it empties the phase, the
// lead advances immediately instead of waiting out the window.
func (s *Service) DeclineOffer(ctx context.Context, token string, reason *string) (domain.Assignment, error) {
	return s.respond(ctx, token, domain.ResponseDeclined, reason)
}

func (s *Service) respond(ctx context.Context, token string, status domain.ResponseStatus, declineReason *string) (domain.Assignment, error) {
	a, err := s.repo.GetAssignmentByToken(ctx, token)
	if err != nil {
		return domain.Assignment{}, err
	}
	lead, err := s.repo.GetLead(ctx, a.LeadID)
	if err != nil {
		return domain.Assignment{}, err
	}
	if lead.RoutingState.Terminal() {
		return domain.Assignment{}, apperr.Gone("lead is no longer available")
	}

	if a.ResponseStatus.Terminal() {
		// Repeating the same answer is a no-op; anything else is too late.
		if a.ResponseStatus == status {
			return a, nil
		}
		return domain.Assignment{}, apperr.Gone("offer already closed")
	}

	now := time.Now().UTC()
	latency := domain.ResponseLatency(a, now)

	ok, err := s.repo.MarkResponded(ctx, a.ID, status, now, latency)
	if err != nil {
		return domain.Assignment{}, err
	}
	if !ok {
		// Lost a race against another response or the expiry sweep.
		current, err := s.repo.GetAssignment(ctx, a.ID)
		if err != nil {
			return domain.Assignment{}, err
		}
		if current.ResponseStatus == status {
			return current, nil
		}
		return domain.Assignment{}, apperr.Gone("offer already closed")
	}

	a.ResponseStatus = status
	a.RespondedAt = &now
	a.ResponseSeconds = &latency

	s.stampDistribution(ctx, a, status, now, declineReason)
	s.recordResponseMetrics(ctx, a, status, latency)

	if lead.MultiInquiryID != nil {
		if err := s.repo.IncrementMultiInquiryResponse(ctx, *lead.MultiInquiryID, status == domain.ResponseAccepted); err != nil {
			s.log.Error("increment multi inquiry counters", "lead_id", lead.ID, "error", err)
		}
		s.log.RoutingEvent("multi_inquiry_response", lead.ID.String(),
			slog.String("performer_id", a.PerformerID.String()),
			slog.String("status", string(status)),
		)
		return a, nil
	}

	switch status {
	case domain.ResponseAccepted:
		if err := s.commitWin(ctx, lead, a); err != nil {
			return domain.Assignment{}, err
		}
	case domain.ResponseDeclined:
		if err := s.advanceIfDrained(ctx, lead, a.Phase); err != nil {
			s.log.Error("advance after decline", "lead_id", lead.ID, "error", err)
		}
	}

	return a, nil
}

// commitWin performs the single-winner commit. The conditional lead update is
// what guarantees one winner; everything after it is cleanup.
func (s *Service) commitWin(ctx context.Context, lead domain.Lead, a domain.Assignment) error {
	won, err := s.repo.MarkAssigned(ctx, lead.ID, a.PerformerID)
	if err != nil {
		return err
	}
	if !won {
		return apperr.Conflict("another performer already accepted this lead").WithCode("not_winner")
	}

	now := time.Now().UTC()
	if _, err := s.repo.ExpireOutstanding(ctx, lead.ID, a.ID, now); err != nil {
		// Siblings losing a race carry no metrics penalty, so a failure here
		// only delays their cleanup until the sweep.
		s.log.Error("expire sibling offers", "lead_id", lead.ID, "error", err)
	}

	s.publishStateChange(ctx, lead.ID, string(domain.StateRouting), string(domain.StateAssigned), string(a.Phase))
	s.bus.Publish(ctx, events.LeadAssigned{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       lead.ID,
		PerformerID:  a.PerformerID,
		AssignmentID: a.ID,
		Phase:        string(a.Phase),
	})
	s.log.RoutingEvent("lead_assigned", lead.ID.String(),
		slog.String("performer_id", a.PerformerID.String()),
		slog.String("phase", string(a.Phase)),
	)
	return nil
}

// advanceIfDrained moves the lead forward as soon as every offer in the
// current phase has a terminal answer.
func (s *Service) advanceIfDrained(ctx context.Context, lead domain.Lead, ph domain.Phase) error {
	outstanding, err := s.repo.CountOutstanding(ctx, lead.ID)
	if err != nil {
		return err
	}
	if outstanding > 0 {
		return nil
	}

	next, more := s.plan.Next(ph)
	if !more {
		return s.exhaust(ctx, lead.ID, exhaustReasonAllDeclined)
	}
	return s.runPhase(ctx, lead.ID, next)
}

func (s *Service) stampDistribution(ctx context.Context, a domain.Assignment, status domain.ResponseStatus, at time.Time, declineReason *string) {
	var err error
	switch status {
	case domain.ResponseAccepted:
		err = s.repo.MarkDistributionAccepted(ctx, a.LeadID, a.PerformerID, at)
	case domain.ResponseDeclined:
		err = s.repo.MarkDistributionDeclined(ctx, a.LeadID, a.PerformerID, at, declineReason)
	}
	if err != nil {
		s.log.Warn("stamp distribution", "assignment_id", a.ID, "status", string(status), "error", err)
	}
}

func (s *Service) recordResponseMetrics(ctx context.Context, a domain.Assignment, status domain.ResponseStatus, latency float64) {
	outcome := perfOutcomeAccepted
	if status == domain.ResponseDeclined {
		outcome = perfOutcomeDeclined
	}
	if _, err := s.metrics.RecordOutcome(ctx, a.PerformerID, outcome, &latency); err != nil {
		s.log.Error("record response outcome", "performer_id", a.PerformerID, "error", err)
	}
}

// recordExpiredOffers applies ignored/expired outcomes after a phase lapses.
// Only viewed-but-unanswered offers count as ignored.
func (s *Service) recordExpiredOffers(ctx context.Context, leadID uuid.UUID, expired []repository.ExpiredOffer) {
	for _, e := range expired {
		outcome := perfOutcomeExpired
		if e.Status == domain.ResponseIgnored {
			outcome = perfOutcomeIgnored
		}
		if _, err := s.metrics.RecordOutcome(ctx, e.PerformerID, outcome, nil); err != nil {
			s.log.Error("record expiry outcome",
				"lead_id", leadID, "performer_id", e.PerformerID, "error", err)
		}
	}
}
