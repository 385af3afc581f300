package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"gigroute_backend/internal/events"
	perfdomain "gigroute_backend/internal/performers/domain"
	"gigroute_backend/internal/routing/dispatch"
	"gigroute_backend/internal/routing/domain"
	"gigroute_backend/internal/routing/phase"
	"gigroute_backend/internal/routing/ports"
	"gigroute_backend/internal/routing/repository"
	"gigroute_backend/internal/routing/scoring"
	"gigroute_backend/internal/routing/selector"
	"gigroute_backend/platform/apperr"
	"gigroute_backend/platform/config"
	"gigroute_backend/platform/logger"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type memRepo struct {
	mu            sync.Mutex
	leads         map[uuid.UUID]domain.Lead
	assignments   map[uuid.UUID]domain.Assignment
	byToken       map[string]uuid.UUID
	distributions map[uuid.UUID]map[uuid.UUID]domain.Distribution
	inquiries     map[uuid.UUID]domain.MultiInquiry
}

var _ repository.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		leads:         make(map[uuid.UUID]domain.Lead),
		assignments:   make(map[uuid.UUID]domain.Assignment),
		byToken:       make(map[string]uuid.UUID),
		distributions: make(map[uuid.UUID]map[uuid.UUID]domain.Distribution),
		inquiries:     make(map[uuid.UUID]domain.MultiInquiry),
	}
}

func (r *memRepo) CreateLead(_ context.Context, lead domain.Lead) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead.ID = uuid.New()
	lead.RoutingState = domain.StatePending
	lead.CreatedAt = time.Now().UTC()
	lead.UpdatedAt = lead.CreatedAt
	r.leads[lead.ID] = lead
	return lead, nil
}

func (r *memRepo) GetLead(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (r *memRepo) ListLeads(_ context.Context, state *domain.RoutingState, limit, offset int) ([]domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Lead
	for _, l := range r.leads {
		if state == nil || l.RoutingState == *state {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memRepo) BeginRouting(_ context.Context, id uuid.UUID, ph domain.Phase, expiresAt, routedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok || (lead.RoutingState != domain.StatePending && lead.RoutingState != domain.StateExhausted) {
		return false, nil
	}
	lead.RoutingState = domain.StateRouting
	lead.CurrentPhase = &ph
	lead.PhaseExpiresAt = &expiresAt
	lead.ExhaustedReason = nil
	if lead.RoutedAt == nil {
		lead.RoutedAt = &routedAt
	}
	r.leads[id] = lead
	return true, nil
}

func (r *memRepo) SetPhase(_ context.Context, id uuid.UUID, ph domain.Phase, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok || lead.RoutingState != domain.StateRouting {
		return false, nil
	}
	lead.CurrentPhase = &ph
	lead.PhaseExpiresAt = &expiresAt
	r.leads[id] = lead
	return true, nil
}

func (r *memRepo) MarkAssigned(_ context.Context, id uuid.UUID, performerID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok || lead.RoutingState != domain.StateRouting {
		return false, nil
	}
	lead.RoutingState = domain.StateAssigned
	lead.AssignedPerformerID = &performerID
	r.leads[id] = lead
	return true, nil
}

func (r *memRepo) MarkExhausted(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok || (lead.RoutingState != domain.StatePending && lead.RoutingState != domain.StateRouting) {
		return false, nil
	}
	lead.RoutingState = domain.StateExhausted
	lead.ExhaustedReason = &reason
	lead.CurrentPhase = nil
	lead.PhaseExpiresAt = nil
	r.leads[id] = lead
	return true, nil
}

func (r *memRepo) MarkWithdrawn(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok || lead.RoutingState.Terminal() {
		return false, nil
	}
	lead.RoutingState = domain.StateWithdrawn
	r.leads[id] = lead
	return true, nil
}

func (r *memRepo) MarkConverted(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok || lead.RoutingState != domain.StateAssigned {
		return false, nil
	}
	lead.RoutingState = domain.StateConverted
	r.leads[id] = lead
	return true, nil
}

func (r *memRepo) SetMultiInquiryID(_ context.Context, id, multiInquiryID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead := r.leads[id]
	lead.MultiInquiryID = &multiInquiryID
	r.leads[id] = lead
	return nil
}

func (r *memRepo) ListDuePhaseExpiries(_ context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Lead
	for _, l := range r.leads {
		if l.RoutingState == domain.StateRouting && l.PhaseExpiresAt != nil && !l.PhaseExpiresAt.After(now) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memRepo) CreateAssignments(_ context.Context, assignments []domain.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range assignments {
		r.assignments[a.ID] = a
		r.byToken[a.ResponseToken] = a.ID
	}
	return nil
}

func (r *memRepo) GetAssignment(_ context.Context, id uuid.UUID) (domain.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok {
		return domain.Assignment{}, apperr.NotFound("assignment not found")
	}
	return a, nil
}

func (r *memRepo) GetAssignmentByToken(_ context.Context, token string) (domain.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byToken[token]
	if !ok {
		return domain.Assignment{}, apperr.NotFound("assignment not found")
	}
	return r.assignments[id], nil
}

func (r *memRepo) ListAssignmentsByLead(_ context.Context, leadID uuid.UUID) ([]domain.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Assignment
	for _, a := range r.assignments {
		if a.LeadID == leadID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) ListAssignedPerformerIDs(_ context.Context, leadID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, a := range r.assignments {
		if a.LeadID == leadID && !seen[a.PerformerID] {
			seen[a.PerformerID] = true
			out = append(out, a.PerformerID)
		}
	}
	return out, nil
}

func (r *memRepo) ListAssignmentsByPerformer(_ context.Context, performerID uuid.UUID, pendingOnly bool, limit int) ([]domain.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Assignment
	for _, a := range r.assignments {
		if a.PerformerID != performerID {
			continue
		}
		if pendingOnly && a.ResponseStatus != domain.ResponsePending {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memRepo) CountOutstanding(_ context.Context, leadID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.assignments {
		if a.LeadID == leadID && a.ResponseStatus == domain.ResponsePending {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) MarkResponded(_ context.Context, id uuid.UUID, status domain.ResponseStatus, respondedAt time.Time, responseSeconds float64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok || a.ResponseStatus != domain.ResponsePending {
		return false, nil
	}
	a.ResponseStatus = status
	a.RespondedAt = &respondedAt
	a.ResponseSeconds = &responseSeconds
	r.assignments[id] = a
	return true, nil
}

func (r *memRepo) ExpireOutstanding(_ context.Context, leadID uuid.UUID, except uuid.UUID, now time.Time) ([]repository.ExpiredOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.ExpiredOffer
	for id, a := range r.assignments {
		if a.LeadID != leadID || id == except || a.ResponseStatus != domain.ResponsePending {
			continue
		}
		status := domain.ResponseExpired
		if d, ok := r.distributions[leadID][a.PerformerID]; ok && d.ViewedAt != nil {
			status = domain.ResponseIgnored
		}
		a.ResponseStatus = status
		r.assignments[id] = a
		out = append(out, repository.ExpiredOffer{AssignmentID: id, PerformerID: a.PerformerID, Status: status})
	}
	return out, nil
}

func (r *memRepo) StampNotified(_ context.Context, ids []uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if a, ok := r.assignments[id]; ok && a.NotifiedAt == nil {
			a.NotifiedAt = &at
			r.assignments[id] = a
		}
	}
	return nil
}

func (r *memRepo) EnsureContacted(_ context.Context, leadID uuid.UUID, performerIDs []uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.distributions[leadID] == nil {
		r.distributions[leadID] = make(map[uuid.UUID]domain.Distribution)
	}
	for _, pid := range performerIDs {
		if _, ok := r.distributions[leadID][pid]; ok {
			continue
		}
		contacted := at
		r.distributions[leadID][pid] = domain.Distribution{
			ID: uuid.New(), LeadID: leadID, PerformerID: pid, ContactedAt: &contacted,
		}
	}
	return nil
}

func (r *memRepo) MarkViewed(_ context.Context, leadID, performerID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.distributions[leadID][performerID]
	if !ok {
		return nil
	}
	if d.ViewedAt == nil {
		d.ViewedAt = &at
		r.distributions[leadID][performerID] = d
	}
	return nil
}

func (r *memRepo) MarkDistributionAccepted(_ context.Context, leadID, performerID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.distributions[leadID][performerID]; ok {
		d.AcceptedAt = &at
		r.distributions[leadID][performerID] = d
	}
	return nil
}

func (r *memRepo) MarkDistributionDeclined(_ context.Context, leadID, performerID uuid.UUID, at time.Time, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.distributions[leadID][performerID]; ok {
		d.DeclinedAt = &at
		d.DeclineReason = reason
		r.distributions[leadID][performerID] = d
	}
	return nil
}

func (r *memRepo) ListDistributionsByLead(_ context.Context, leadID uuid.UUID) ([]domain.Distribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Distribution
	for _, d := range r.distributions[leadID] {
		out = append(out, d)
	}
	return out, nil
}

func (r *memRepo) CreateMultiInquiry(_ context.Context, mi domain.MultiInquiry) (domain.MultiInquiry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mi.ID = uuid.New()
	mi.CreatedAt = time.Now().UTC()
	r.inquiries[mi.ID] = mi
	return mi, nil
}

func (r *memRepo) GetMultiInquiry(_ context.Context, id uuid.UUID) (domain.MultiInquiry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mi, ok := r.inquiries[id]
	if !ok {
		return domain.MultiInquiry{}, apperr.NotFound("multi inquiry not found")
	}
	return mi, nil
}

func (r *memRepo) IncrementMultiInquiryResponse(_ context.Context, id uuid.UUID, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mi, ok := r.inquiries[id]
	if !ok {
		return apperr.NotFound("multi inquiry not found")
	}
	if available {
		mi.PerformersAvailable++
	} else {
		mi.PerformersUnavailable++
	}
	r.inquiries[id] = mi
	return nil
}

type stubDirectory struct {
	mu      sync.Mutex
	metrics []perfdomain.RoutingMetrics
}

func (d *stubDirectory) ListEligible(context.Context, ports.EligibilityQuery) ([]perfdomain.RoutingMetrics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]perfdomain.RoutingMetrics(nil), d.metrics...), nil
}

func (d *stubDirectory) MarkRouted(context.Context, []uuid.UUID, time.Time) error { return nil }

type outcomeCall struct {
	PerformerID     uuid.UUID
	Outcome         perfdomain.Outcome
	ResponseSeconds *float64
}

type stubMetrics struct {
	mu    sync.Mutex
	calls []outcomeCall
}

func (m *stubMetrics) RecordOutcome(_ context.Context, performerID uuid.UUID, outcome perfdomain.Outcome, responseSeconds *float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, outcomeCall{performerID, outcome, responseSeconds})
	return false, nil
}

func (m *stubMetrics) outcomes() []outcomeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outcomeCall(nil), m.calls...)
}

type scheduledTimer struct {
	LeadID uuid.UUID
	Phase  domain.Phase
	RunAt  time.Time
}

type stubTimers struct {
	mu        sync.Mutex
	scheduled []scheduledTimer
}

func (s *stubTimers) SchedulePhaseExpiry(_ context.Context, leadID uuid.UUID, ph domain.Phase, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, scheduledTimer{leadID, ph, runAt})
	return nil
}

type testRoutingConfig struct{}

func (testRoutingConfig) GetExclusiveWindow() time.Duration  { return 30 * time.Minute }
func (testRoutingConfig) GetBroadcastWindow() time.Duration  { return 4 * time.Hour }
func (testRoutingConfig) GetOpenWindow() time.Duration       { return 48 * time.Hour }
func (testRoutingConfig) GetBroadcastFanout() int            { return 3 }
func (testRoutingConfig) GetOpenFanout() int                 { return 10 }
func (testRoutingConfig) GetIgnoreSuspendThreshold() int     { return 5 }
func (testRoutingConfig) GetIgnorePenaltyIncrement() float64 { return 0.15 }
func (testRoutingConfig) GetPenaltyDecayRate() float64       { return 0.094 }
func (testRoutingConfig) GetLastMinuteDays() int             { return 14 }
func (testRoutingConfig) GetScoringWeights() config.ScoringWeights {
	return config.DefaultScoringWeights()
}

type testEnv struct {
	svc     *Service
	repo    *memRepo
	dir     *stubDirectory
	metrics *stubMetrics
	timers  *stubTimers
}

func newTestEnv(performers ...perfdomain.RoutingMetrics) *testEnv {
	log := logger.New("test")
	repo := newMemRepo()
	dir := &stubDirectory{metrics: performers}
	metrics := &stubMetrics{}
	timers := &stubTimers{}
	bus := events.NewInMemoryBus(log)

	sel := selector.New(dir, scoring.DefaultWeights(), log)
	dispatcher := dispatch.New(repo, dir, bus, log)
	plan := phase.NewPlan(testRoutingConfig{})

	svc := New(repo, sel, dispatcher, plan, metrics, timers, bus, log, 14)
	return &testEnv{svc: svc, repo: repo, dir: dir, metrics: metrics, timers: timers}
}

func performer(rel float64) perfdomain.RoutingMetrics {
	return perfdomain.RoutingMetrics{
		PerformerID:      uuid.New(),
		ReliabilityScore: rel,
		AcceptanceRate:   0.5,
		ConversionRate:   0.5,
		PriceMin:         800,
		PriceMax:         1500,
	}
}

func submitParams() SubmitLeadParams {
	return SubmitLeadParams{
		EventType:    "wedding",
		EventDate:    time.Now().UTC().Add(90 * 24 * time.Hour),
		City:         "Austin",
		State:        "TX",
		BudgetMin:    800,
		BudgetMax:    1600,
		PlannerName:  "Jamie Rivera",
		PlannerEmail: "jamie@example.com",
	}
}

func (e *testEnv) pendingAssignments(t *testing.T, leadID uuid.UUID) []domain.Assignment {
	t.Helper()
	all, err := e.repo.ListAssignmentsByLead(context.Background(), leadID)
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	var out []domain.Assignment
	for _, a := range all {
		if a.ResponseStatus == domain.ResponsePending {
			out = append(out, a)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Submission and phased routing
// ---------------------------------------------------------------------------

func TestSubmitLeadEntersExclusivePhaseWithSingleOffer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9), performer(0.5))

	lead, err := env.svc.SubmitLead(ctx, submitParams())
	if err != nil {
		t.Fatalf("SubmitLead: %v", err)
	}

	if lead.RoutingState != domain.StateRouting {
		t.Fatalf("expected routing state, got %s", lead.RoutingState)
	}
	if lead.CurrentPhase == nil || *lead.CurrentPhase != domain.PhaseExclusive {
		t.Fatalf("expected exclusive phase, got %v", lead.CurrentPhase)
	}
	if lead.LeadScore <= 0 {
		t.Fatal("expected a positive lead score")
	}

	pending := env.pendingAssignments(t, lead.ID)
	if len(pending) != 1 {
		t.Fatalf("exclusive phase must offer exactly one performer, got %d", len(pending))
	}
	if !pending[0].IsExclusive || pending[0].ExclusiveUntil == nil {
		t.Fatal("expected an exclusive assignment with an exclusivity deadline")
	}

	if len(env.timers.scheduled) != 1 || env.timers.scheduled[0].Phase != domain.PhaseExclusive {
		t.Fatalf("expected one exclusive expiry timer, got %+v", env.timers.scheduled)
	}
}

func TestSubmitLeadWithNoCandidatesExhaustsImmediately(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	lead, err := env.svc.SubmitLead(ctx, submitParams())
	if err != nil {
		t.Fatalf("SubmitLead: %v", err)
	}

	if lead.RoutingState != domain.StateExhausted {
		t.Fatalf("expected exhausted, got %s", lead.RoutingState)
	}
	if lead.ExhaustedReason == nil || *lead.ExhaustedReason != "no_candidates" {
		t.Fatalf("expected no_candidates reason, got %v", lead.ExhaustedReason)
	}
}

func TestSubmitLeadRejectsInvalidPhone(t *testing.T) {
	env := newTestEnv(performer(0.9))
	params := submitParams()
	params.PlannerPhone = "not-a-phone"

	_, err := env.svc.SubmitLead(context.Background(), params)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStartRoutingRejectsNonRoutableLead(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, err := env.svc.SubmitLead(ctx, submitParams())
	if err != nil {
		t.Fatalf("SubmitLead: %v", err)
	}

	// Already routing; a second start must refuse.
	if err := env.svc.StartRouting(ctx, lead.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Offer responses
// ---------------------------------------------------------------------------

func TestAcceptOfferAssignsLead(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, err := env.svc.SubmitLead(ctx, submitParams())
	if err != nil {
		t.Fatalf("SubmitLead: %v", err)
	}
	offer := env.pendingAssignments(t, lead.ID)[0]

	accepted, err := env.svc.AcceptOffer(ctx, offer.ResponseToken)
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	if accepted.ResponseStatus != domain.ResponseAccepted {
		t.Fatalf("expected accepted status, got %s", accepted.ResponseStatus)
	}

	got, _ := env.repo.GetLead(ctx, lead.ID)
	if got.RoutingState != domain.StateAssigned {
		t.Fatalf("expected assigned lead, got %s", got.RoutingState)
	}
	if got.AssignedPerformerID == nil || *got.AssignedPerformerID != offer.PerformerID {
		t.Fatal("expected the accepting performer to hold the lead")
	}

	outcomes := env.metrics.outcomes()
	if len(outcomes) != 1 || outcomes[0].Outcome != perfdomain.OutcomeAccepted {
		t.Fatalf("expected one accepted outcome, got %+v", outcomes)
	}
	if outcomes[0].ResponseSeconds == nil {
		t.Fatal("expected response latency on the accepted outcome")
	}
}

func TestAcceptOfferTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())
	offer := env.pendingAssignments(t, lead.ID)[0]

	if _, err := env.svc.AcceptOffer(ctx, offer.ResponseToken); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	again, err := env.svc.AcceptOffer(ctx, offer.ResponseToken)
	if err != nil {
		t.Fatalf("repeated accept must be a no-op, got %v", err)
	}
	if again.ResponseStatus != domain.ResponseAccepted {
		t.Fatalf("expected accepted, got %s", again.ResponseStatus)
	}

	if n := len(env.metrics.outcomes()); n != 1 {
		t.Fatalf("repeat accept must not re-record metrics, got %d outcomes", n)
	}
}

func TestLosingAcceptGetsNotWinnerConflict(t *testing.T) {
	ctx := context.Background()
	winner := performer(0.9)
	loser := performer(0.2)
	env := newTestEnv(winner, loser)

	lead, _ := env.svc.SubmitLead(ctx, submitParams())

	// Move past exclusive so the second performer holds an open offer.
	if _, err := env.svc.DeclineOffer(ctx, env.pendingAssignments(t, lead.ID)[0].ResponseToken, nil); err != nil {
		t.Fatalf("decline exclusive: %v", err)
	}
	pending := env.pendingAssignments(t, lead.ID)
	if len(pending) != 1 {
		t.Fatalf("expected one broadcast offer for the second performer, got %d", len(pending))
	}
	secondToken := pending[0].ResponseToken

	// Simulate the race: the win commit lands for a concurrent accept between
	// this responder's token fetch and its own commit.
	if _, err := env.repo.MarkAssigned(ctx, lead.ID, winner.PerformerID); err != nil {
		t.Fatalf("MarkAssigned: %v", err)
	}

	_, err := env.svc.AcceptOffer(ctx, secondToken)
	if !apperr.HasCode(err, "not_winner") {
		t.Fatalf("expected not_winner conflict, got %v", err)
	}
}

func TestWinExpiresSiblingOffersWithoutPenalty(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9), performer(0.8), performer(0.7))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())

	// Decline the exclusive offer to fan out the broadcast phase.
	first := env.pendingAssignments(t, lead.ID)[0]
	if _, err := env.svc.DeclineOffer(ctx, first.ResponseToken, nil); err != nil {
		t.Fatalf("decline exclusive: %v", err)
	}

	broadcast := env.pendingAssignments(t, lead.ID)
	if len(broadcast) != 2 {
		t.Fatalf("expected both remaining performers offered in broadcast, got %d", len(broadcast))
	}

	if _, err := env.svc.AcceptOffer(ctx, broadcast[0].ResponseToken); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}

	if remaining := env.pendingAssignments(t, lead.ID); len(remaining) != 0 {
		t.Fatalf("expected sibling offers closed after the win, got %d pending", len(remaining))
	}

	// Outcomes: one decline, one accept. The raced-out sibling takes no hit.
	for _, call := range env.metrics.outcomes() {
		if call.Outcome == perfdomain.OutcomeExpired || call.Outcome == perfdomain.OutcomeIgnored {
			t.Fatalf("sibling expiry on a win must not penalize, got %+v", call)
		}
	}
}

func TestDeclineDrainsPhaseAndAdvances(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9), performer(0.4))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())
	exclusive := env.pendingAssignments(t, lead.ID)[0]

	reason := "double booked"
	declined, err := env.svc.DeclineOffer(ctx, exclusive.ResponseToken, &reason)
	if err != nil {
		t.Fatalf("DeclineOffer: %v", err)
	}
	if declined.ResponseStatus != domain.ResponseDeclined {
		t.Fatalf("expected declined, got %s", declined.ResponseStatus)
	}

	got, _ := env.repo.GetLead(ctx, lead.ID)
	if got.RoutingState != domain.StateRouting {
		t.Fatalf("expected lead still routing, got %s", got.RoutingState)
	}
	if got.CurrentPhase == nil || *got.CurrentPhase != domain.PhaseBroadcast {
		t.Fatalf("expected immediate advance to broadcast, got %v", got.CurrentPhase)
	}

	pending := env.pendingAssignments(t, lead.ID)
	if len(pending) != 1 || pending[0].PerformerID == exclusive.PerformerID {
		t.Fatal("expected a fresh offer to the other performer only")
	}
}

func TestFinalDeclineExhaustsLead(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())
	offer := env.pendingAssignments(t, lead.ID)[0]

	// The only performer declines; later phases have nobody left.
	if _, err := env.svc.DeclineOffer(ctx, offer.ResponseToken, nil); err != nil {
		t.Fatalf("DeclineOffer: %v", err)
	}

	got, _ := env.repo.GetLead(ctx, lead.ID)
	if got.RoutingState != domain.StateExhausted {
		t.Fatalf("expected exhausted, got %s", got.RoutingState)
	}
	if got.ExhaustedReason == nil || *got.ExhaustedReason != "no_candidates" {
		t.Fatalf("expected no_candidates reason, got %v", got.ExhaustedReason)
	}
}

func TestRespondOnWithdrawnLeadIsGone(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())
	offer := env.pendingAssignments(t, lead.ID)[0]

	if err := env.svc.CancelLead(ctx, lead.ID); err != nil {
		t.Fatalf("CancelLead: %v", err)
	}

	_, err := env.svc.AcceptOffer(ctx, offer.ResponseToken)
	if !apperr.Is(err, apperr.KindGone) {
		t.Fatalf("expected gone, got %v", err)
	}
}

func TestGetOfferStampsFirstView(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())
	offer := env.pendingAssignments(t, lead.ID)[0]

	view, err := env.svc.GetOffer(ctx, offer.ResponseToken)
	if err != nil {
		t.Fatalf("GetOffer: %v", err)
	}
	if view.Lead.ID != lead.ID || view.Assignment.ID != offer.ID {
		t.Fatal("expected the offer view to join lead and assignment")
	}

	dists, _ := env.repo.ListDistributionsByLead(ctx, lead.ID)
	if len(dists) != 1 || dists[0].ViewedAt == nil {
		t.Fatal("expected the distribution to carry a viewed timestamp")
	}
}

// ---------------------------------------------------------------------------
// Phase expiry
// ---------------------------------------------------------------------------

func TestExpirePhaseDistinguishesIgnoredFromExpired(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9), performer(0.8))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())

	// Fan out to broadcast so two offers are outstanding.
	if _, err := env.svc.DeclineOffer(ctx, env.pendingAssignments(t, lead.ID)[0].ResponseToken, nil); err != nil {
		t.Fatalf("decline exclusive: %v", err)
	}
	// The decliner is excluded, so only one broadcast offer exists. View it,
	// then force the window to lapse.
	offer := env.pendingAssignments(t, lead.ID)[0]
	if _, err := env.svc.GetOffer(ctx, offer.ResponseToken); err != nil {
		t.Fatalf("GetOffer: %v", err)
	}

	env.repo.mu.Lock()
	l := env.repo.leads[lead.ID]
	past := time.Now().UTC().Add(-time.Minute)
	l.PhaseExpiresAt = &past
	env.repo.leads[lead.ID] = l
	env.repo.mu.Unlock()

	if err := env.svc.ExpirePhase(ctx, lead.ID, domain.PhaseBroadcast); err != nil {
		t.Fatalf("ExpirePhase: %v", err)
	}

	var sawIgnored bool
	for _, call := range env.metrics.outcomes() {
		if call.Outcome == perfdomain.OutcomeIgnored && call.PerformerID == offer.PerformerID {
			sawIgnored = true
		}
		if call.Outcome == perfdomain.OutcomeExpired {
			t.Fatalf("viewed offer must count as ignored, not expired: %+v", call)
		}
	}
	if !sawIgnored {
		t.Fatal("expected an ignored outcome for the viewed offer")
	}
}

func TestExpirePhaseWithFutureDeadlineIsNoOp(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())

	if err := env.svc.ExpirePhase(ctx, lead.ID, domain.PhaseExclusive); err != nil {
		t.Fatalf("ExpirePhase: %v", err)
	}

	got, _ := env.repo.GetLead(ctx, lead.ID)
	if got.CurrentPhase == nil || *got.CurrentPhase != domain.PhaseExclusive {
		t.Fatal("a timer firing before the deadline must not advance the phase")
	}
	if len(env.metrics.outcomes()) != 0 {
		t.Fatal("early expiry must not record outcomes")
	}
}

func TestExpirePhaseWithStalePhaseIsNoOp(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())

	// Timer for a phase the lead already left.
	if err := env.svc.ExpirePhase(ctx, lead.ID, domain.PhaseBroadcast); err != nil {
		t.Fatalf("ExpirePhase: %v", err)
	}
	if pending := env.pendingAssignments(t, lead.ID); len(pending) != 1 {
		t.Fatalf("stale timer must leave offers untouched, got %d pending", len(pending))
	}
}

func TestSweepExpiredProcessesLapsedLeads(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())

	env.repo.mu.Lock()
	l := env.repo.leads[lead.ID]
	past := time.Now().UTC().Add(-time.Minute)
	l.PhaseExpiresAt = &past
	env.repo.leads[lead.ID] = l
	env.repo.mu.Unlock()

	processed, err := env.svc.SweepExpired(ctx, 10)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 lead processed, got %d", processed)
	}

	got, _ := env.repo.GetLead(ctx, lead.ID)
	if got.CurrentPhase != nil && *got.CurrentPhase == domain.PhaseExclusive && got.RoutingState == domain.StateRouting {
		t.Fatal("expected the sweep to move the lead past the exclusive phase")
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestCancelLeadClosesOffersWithoutPenalty(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())

	if err := env.svc.CancelLead(ctx, lead.ID); err != nil {
		t.Fatalf("CancelLead: %v", err)
	}

	got, _ := env.repo.GetLead(ctx, lead.ID)
	if got.RoutingState != domain.StateWithdrawn {
		t.Fatalf("expected withdrawn, got %s", got.RoutingState)
	}
	if pending := env.pendingAssignments(t, lead.ID); len(pending) != 0 {
		t.Fatalf("expected all offers closed, got %d pending", len(pending))
	}
	if n := len(env.metrics.outcomes()); n != 0 {
		t.Fatalf("withdrawal must not penalize performers, got %d outcomes", n)
	}
}

func TestCancelAssignedLeadRecordsLeadLost(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())
	offer := env.pendingAssignments(t, lead.ID)[0]
	if _, err := env.svc.AcceptOffer(ctx, offer.ResponseToken); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}

	if err := env.svc.CancelLead(ctx, lead.ID); err != nil {
		t.Fatalf("CancelLead: %v", err)
	}

	var sawLost bool
	for _, call := range env.metrics.outcomes() {
		if call.Outcome == perfdomain.OutcomeLeadLost && call.PerformerID == offer.PerformerID {
			sawLost = true
		}
	}
	if !sawLost {
		t.Fatal("expected a lead_lost outcome for the assigned performer")
	}
}

func TestCancelLeadTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())
	if err := env.svc.CancelLead(ctx, lead.ID); err != nil {
		t.Fatalf("CancelLead: %v", err)
	}
	if err := env.svc.CancelLead(ctx, lead.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMarkConvertedRequiresAssignment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())

	offer := env.pendingAssignments(t, lead.ID)[0]
	if err := env.svc.MarkConverted(ctx, lead.ID, offer.PerformerID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for unassigned lead, got %v", err)
	}

	if _, err := env.svc.AcceptOffer(ctx, offer.ResponseToken); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	if err := env.svc.MarkConverted(ctx, lead.ID, offer.PerformerID); err != nil {
		t.Fatalf("MarkConverted: %v", err)
	}

	got, _ := env.repo.GetLead(ctx, lead.ID)
	if got.RoutingState != domain.StateConverted {
		t.Fatalf("expected converted, got %s", got.RoutingState)
	}

	var sawConverted bool
	for _, call := range env.metrics.outcomes() {
		if call.Outcome == perfdomain.OutcomeConverted {
			sawConverted = true
		}
	}
	if !sawConverted {
		t.Fatal("expected a converted outcome")
	}
}

func TestMarkConvertedRejectsMismatchedPerformer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())
	offer := env.pendingAssignments(t, lead.ID)[0]
	if _, err := env.svc.AcceptOffer(ctx, offer.ResponseToken); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}

	if err := env.svc.MarkConverted(ctx, lead.ID, uuid.New()); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for unassigned performer, got %v", err)
	}

	got, _ := env.repo.GetLead(ctx, lead.ID)
	if got.RoutingState != domain.StateAssigned {
		t.Fatalf("lead should stay assigned after rejected conversion, got %s", got.RoutingState)
	}
	for _, call := range env.metrics.outcomes() {
		if call.Outcome == perfdomain.OutcomeConverted {
			t.Fatal("rejected conversion must not credit anyone")
		}
	}
}

func TestReinjectExcludesPreviouslyOfferedPerformers(t *testing.T) {
	ctx := context.Background()
	first := performer(0.9)
	env := newTestEnv(first)

	lead, _ := env.svc.SubmitLead(ctx, submitParams())
	if _, err := env.svc.DeclineOffer(ctx, env.pendingAssignments(t, lead.ID)[0].ResponseToken, nil); err != nil {
		t.Fatalf("DeclineOffer: %v", err)
	}

	got, _ := env.repo.GetLead(ctx, lead.ID)
	if got.RoutingState != domain.StateExhausted {
		t.Fatalf("expected exhausted before re-injection, got %s", got.RoutingState)
	}

	// A new performer joined since; only they should get the re-injected lead.
	late := performer(0.8)
	env.dir.mu.Lock()
	env.dir.metrics = append(env.dir.metrics, late)
	env.dir.mu.Unlock()

	if err := env.svc.Reinject(ctx, lead.ID); err != nil {
		t.Fatalf("Reinject: %v", err)
	}

	pending := env.pendingAssignments(t, lead.ID)
	if len(pending) != 1 {
		t.Fatalf("expected exactly one fresh offer, got %d", len(pending))
	}
	if pending[0].PerformerID != late.PerformerID {
		t.Fatal("re-injection must not re-offer the original decliner")
	}
}

func TestReinjectRequiresExhaustedLead(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(performer(0.9))

	lead, _ := env.svc.SubmitLead(ctx, submitParams())
	if err := env.svc.Reinject(ctx, lead.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Multi-inquiry
// ---------------------------------------------------------------------------

func TestSubmitMultiInquiryOffersEveryChosenPerformer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, b := uuid.New(), uuid.New()
	result, err := env.svc.SubmitMultiInquiry(ctx, SubmitMultiInquiryParams{
		Lead:         submitParams(),
		PerformerIDs: []uuid.UUID{a, b, a}, // duplicate collapses
	})
	if err != nil {
		t.Fatalf("SubmitMultiInquiry: %v", err)
	}

	if result.Inquiry.PerformersContacted != 2 {
		t.Fatalf("expected 2 performers contacted, got %d", result.Inquiry.PerformersContacted)
	}
	if result.Lead.MultiInquiryID == nil || *result.Lead.MultiInquiryID != result.Inquiry.ID {
		t.Fatal("expected the lead to link back to its inquiry")
	}
	if result.Lead.CurrentPhase == nil || *result.Lead.CurrentPhase != domain.PhaseOpen {
		t.Fatalf("expected the open phase, got %v", result.Lead.CurrentPhase)
	}

	pending := env.pendingAssignments(t, result.Lead.ID)
	if len(pending) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(pending))
	}
	for _, p := range pending {
		if p.Score.Version == "" {
			t.Fatal("hand-picked offers still carry the scoring model version")
		}
		if p.Score.Effective != 0 {
			t.Fatal("hand-picked offers must not carry a computed score")
		}
	}
}

func TestMultiInquiryAcceptCollectsAvailabilityWithoutWinning(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	result, err := env.svc.SubmitMultiInquiry(ctx, SubmitMultiInquiryParams{
		Lead:         submitParams(),
		PerformerIDs: []uuid.UUID{uuid.New(), uuid.New()},
	})
	if err != nil {
		t.Fatalf("SubmitMultiInquiry: %v", err)
	}

	offers := env.pendingAssignments(t, result.Lead.ID)
	if _, err := env.svc.AcceptOffer(ctx, offers[0].ResponseToken); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	if _, err := env.svc.DeclineOffer(ctx, offers[1].ResponseToken, nil); err != nil {
		t.Fatalf("DeclineOffer: %v", err)
	}

	lead, _ := env.repo.GetLead(ctx, result.Lead.ID)
	if lead.RoutingState != domain.StateRouting {
		t.Fatalf("multi-inquiry accepts must not assign the lead, got %s", lead.RoutingState)
	}

	inquiry, err := env.svc.GetMultiInquiry(ctx, result.Inquiry.ID)
	if err != nil {
		t.Fatalf("GetMultiInquiry: %v", err)
	}
	if inquiry.PerformersAvailable != 1 || inquiry.PerformersUnavailable != 1 {
		t.Fatalf("expected 1 available / 1 unavailable, got %d/%d",
			inquiry.PerformersAvailable, inquiry.PerformersUnavailable)
	}
}

func TestSubmitMultiInquiryRequiresPerformers(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.SubmitMultiInquiry(context.Background(), SubmitMultiInquiryParams{
		Lead:         submitParams(),
		PerformerIDs: []uuid.UUID{uuid.Nil},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
