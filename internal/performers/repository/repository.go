package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gigroute_backend/internal/performers/domain"
	"gigroute_backend/platform/apperr"
)

const performerNotFoundMessage = "performer not found"

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new performers repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// CreateProfile inserts a profile together with its zero-valued metrics row.
func (r *Repo) CreateProfile(ctx context.Context, p Profile) (Profile, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Profile{}, fmt.Errorf("create performer: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO gr_performers
			(id, name, email, phone, city, state, serves_statewide, event_types,
			 price_min, price_max, accepts_leads, is_active, max_leads_per_month)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, true, $12)
		RETURNING created_at, updated_at`

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.IsActive = true

	err = tx.QueryRow(ctx, query,
		p.ID, p.Name, p.Email, p.Phone, p.City, p.State, p.ServesStatewide, p.EventTypes,
		p.PriceMin, p.PriceMax, p.AcceptsLeads, p.MaxLeadsPerMonth,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Profile{}, fmt.Errorf("create performer: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO gr_performer_routing_metrics (performer_id, price_min, price_max)
		VALUES ($1, $2, $3)`,
		p.ID, p.PriceMin, p.PriceMax)
	if err != nil {
		return Profile{}, fmt.Errorf("create performer metrics: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Profile{}, fmt.Errorf("create performer: commit: %w", err)
	}

	return p, nil
}

// GetProfile retrieves a performer profile by id.
func (r *Repo) GetProfile(ctx context.Context, id uuid.UUID) (Profile, error) {
	query := `
		SELECT id, name, email, phone, city, state, serves_statewide, event_types,
		       price_min, price_max, accepts_leads, is_active, max_leads_per_month,
		       created_at, updated_at
		FROM gr_performers
		WHERE id = $1`

	var p Profile
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Email, &p.Phone, &p.City, &p.State, &p.ServesStatewide, &p.EventTypes,
		&p.PriceMin, &p.PriceMax, &p.AcceptsLeads, &p.IsActive, &p.MaxLeadsPerMonth,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, apperr.NotFound(performerNotFoundMessage)
		}
		return Profile{}, fmt.Errorf("get performer: %w", err)
	}

	return p, nil
}

// UpdatePriceRange updates the price range on both profile and metrics rows.
func (r *Repo) UpdatePriceRange(ctx context.Context, id uuid.UUID, min, max float64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("update price range: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE gr_performers SET price_min = $2, price_max = $3, updated_at = now() WHERE id = $1`,
		id, min, max)
	if err != nil {
		return fmt.Errorf("update price range: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(performerNotFoundMessage)
	}

	_, err = tx.Exec(ctx,
		`UPDATE gr_performer_routing_metrics SET price_min = $2, price_max = $3, updated_at = now() WHERE performer_id = $1`,
		id, min, max)
	if err != nil {
		return fmt.Errorf("update metrics price range: %w", err)
	}

	return tx.Commit(ctx)
}

// SetAcceptsLeads toggles whether the performer receives offers.
func (r *Repo) SetAcceptsLeads(ctx context.Context, id uuid.UUID, accepts bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE gr_performers SET accepts_leads = $2, updated_at = now() WHERE id = $1`,
		id, accepts)
	if err != nil {
		return fmt.Errorf("set accepts leads: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(performerNotFoundMessage)
	}
	return nil
}

// Deactivate soft-deactivates a performer. The metrics row stays.
func (r *Repo) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE gr_performers SET is_active = false, updated_at = now() WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("deactivate performer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(performerNotFoundMessage)
	}
	return nil
}

const metricsColumns = `
	performer_id,
	accepted_count, declined_count, ignored_count, expired_count, converted_count, lost_count,
	acceptance_rate, decline_rate, ignore_rate, conversion_rate, avg_response_seconds, reliability_score,
	recent_lead_penalty, last_penalty_applied_at, penalty_decay_rate, consecutive_ignores,
	cooldown_until, is_suspended, suspension_reason,
	price_min, price_max, last_routed_at, updated_at`

func scanMetrics(row pgx.Row) (domain.RoutingMetrics, error) {
	var m domain.RoutingMetrics
	err := row.Scan(
		&m.PerformerID,
		&m.AcceptedCount, &m.DeclinedCount, &m.IgnoredCount, &m.ExpiredCount, &m.ConvertedCount, &m.LostCount,
		&m.AcceptanceRate, &m.DeclineRate, &m.IgnoreRate, &m.ConversionRate, &m.AvgResponseSeconds, &m.ReliabilityScore,
		&m.RecentLeadPenalty, &m.LastPenaltyAppliedAt, &m.PenaltyDecayRate, &m.ConsecutiveIgnores,
		&m.CooldownUntil, &m.IsSuspended, &m.SuspensionReason,
		&m.PriceMin, &m.PriceMax, &m.LastRoutedAt, &m.UpdatedAt,
	)
	return m, err
}

// GetMetrics retrieves the routing metrics record for a performer.
func (r *Repo) GetMetrics(ctx context.Context, performerID uuid.UUID) (domain.RoutingMetrics, error) {
	query := `SELECT ` + metricsColumns + ` FROM gr_performer_routing_metrics WHERE performer_id = $1`

	m, err := scanMetrics(r.pool.QueryRow(ctx, query, performerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RoutingMetrics{}, apperr.NotFound(performerNotFoundMessage)
		}
		return domain.RoutingMetrics{}, fmt.Errorf("get routing metrics: %w", err)
	}
	return m, nil
}

// RecordOutcome appends an outcome sample and recomputes the metrics row
// under a row lock, so concurrent outcomes for the same performer serialize.
func (r *Repo) RecordOutcome(ctx context.Context, performerID uuid.UUID, outcome domain.Outcome, responseSeconds *float64, params RecordParams) (RecordResult, error) {
	if params.WindowSize < 1 {
		params.WindowSize = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return RecordResult{}, fmt.Errorf("record outcome: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockQuery := `SELECT ` + metricsColumns + ` FROM gr_performer_routing_metrics WHERE performer_id = $1 FOR UPDATE`
	m, err := scanMetrics(tx.QueryRow(ctx, lockQuery, performerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RecordResult{}, apperr.NotFound(performerNotFoundMessage)
		}
		return RecordResult{}, fmt.Errorf("record outcome: lock metrics: %w", err)
	}

	now := time.Now().UTC()

	_, err = tx.Exec(ctx,
		`INSERT INTO gr_performer_outcomes (performer_id, outcome, response_seconds) VALUES ($1, $2, $3)`,
		performerID, string(outcome), responseSeconds)
	if err != nil {
		return RecordResult{}, fmt.Errorf("record outcome: insert sample: %w", err)
	}

	newlySuspended := applyOutcome(&m, outcome, params, now)

	window, err := r.loadWindow(ctx, tx, performerID, params.WindowSize)
	if err != nil {
		return RecordResult{}, err
	}
	rates := domain.ComputeRates(window)
	m.AcceptanceRate = rates.AcceptanceRate
	m.DeclineRate = rates.DeclineRate
	m.IgnoreRate = rates.IgnoreRate
	m.ConversionRate = rates.ConversionRate
	m.AvgResponseSeconds = rates.AvgResponseSeconds
	m.ReliabilityScore = rates.ReliabilityScore
	m.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		UPDATE gr_performer_routing_metrics SET
			accepted_count = $2, declined_count = $3, ignored_count = $4, expired_count = $5,
			converted_count = $6, lost_count = $7,
			acceptance_rate = $8, decline_rate = $9, ignore_rate = $10, conversion_rate = $11,
			avg_response_seconds = $12, reliability_score = $13,
			recent_lead_penalty = $14, last_penalty_applied_at = $15, consecutive_ignores = $16,
			is_suspended = $17, suspension_reason = $18,
			updated_at = $19
		WHERE performer_id = $1`,
		m.PerformerID,
		m.AcceptedCount, m.DeclinedCount, m.IgnoredCount, m.ExpiredCount,
		m.ConvertedCount, m.LostCount,
		m.AcceptanceRate, m.DeclineRate, m.IgnoreRate, m.ConversionRate,
		m.AvgResponseSeconds, m.ReliabilityScore,
		m.RecentLeadPenalty, m.LastPenaltyAppliedAt, m.ConsecutiveIgnores,
		m.IsSuspended, m.SuspensionReason,
		m.UpdatedAt,
	)
	if err != nil {
		return RecordResult{}, fmt.Errorf("record outcome: update metrics: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return RecordResult{}, fmt.Errorf("record outcome: commit: %w", err)
	}

	return RecordResult{Metrics: m, NewlySuspended: newlySuspended}, nil
}

// applyOutcome mutates counters, penalty, and suspension state in memory
// while the row lock is held. Returns true when suspension newly tripped.
func applyOutcome(m *domain.RoutingMetrics, outcome domain.Outcome, params RecordParams, now time.Time) bool {
	switch outcome {
	case domain.OutcomeAccepted:
		m.AcceptedCount++
		m.ConsecutiveIgnores = 0
	case domain.OutcomeDeclined:
		m.DeclinedCount++
		m.ConsecutiveIgnores = 0
	case domain.OutcomeIgnored:
		m.IgnoredCount++
		m.ConsecutiveIgnores++

		// Penalty stacks on top of whatever has not decayed yet.
		decayRate := params.PenaltyDecayRate
		if decayRate <= 0 {
			decayRate = m.PenaltyDecayRate
		}
		current := domain.DecayPenalty(m.RecentLeadPenalty, m.LastPenaltyAppliedAt, decayRate, now)
		m.RecentLeadPenalty = min(1.0, current+params.IgnorePenaltyIncrement)
		appliedAt := now
		m.LastPenaltyAppliedAt = &appliedAt

		if params.IgnoreSuspendThreshold > 0 && m.ConsecutiveIgnores >= params.IgnoreSuspendThreshold && !m.IsSuspended {
			m.IsSuspended = true
			reason := domain.SuspensionReasonExcessiveIgnores
			m.SuspensionReason = &reason
			return true
		}
	case domain.OutcomeExpired:
		m.ExpiredCount++
	case domain.OutcomeConverted:
		m.ConvertedCount++
	case domain.OutcomeLeadLost:
		m.LostCount++
	}
	return false
}

func (r *Repo) loadWindow(ctx context.Context, tx pgx.Tx, performerID uuid.UUID, size int) ([]domain.OutcomeSample, error) {
	rows, err := tx.Query(ctx, `
		SELECT outcome, response_seconds, created_at
		FROM gr_performer_outcomes
		WHERE performer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		performerID, size)
	if err != nil {
		return nil, fmt.Errorf("record outcome: load window: %w", err)
	}
	defer rows.Close()

	var window []domain.OutcomeSample
	for rows.Next() {
		var s domain.OutcomeSample
		var outcome string
		if err := rows.Scan(&outcome, &s.ResponseSeconds, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("record outcome: scan window: %w", err)
		}
		s.Outcome = domain.Outcome(outcome)
		window = append(window, s)
	}
	return window, rows.Err()
}

// Suspend flags the performer with an operator-supplied reason.
func (r *Repo) Suspend(ctx context.Context, performerID uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gr_performer_routing_metrics
		SET is_suspended = true, suspension_reason = $2, updated_at = now()
		WHERE performer_id = $1`,
		performerID, reason)
	if err != nil {
		return fmt.Errorf("suspend performer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(performerNotFoundMessage)
	}
	return nil
}

// ClearSuspension lifts a suspension and resets the consecutive-ignore streak.
func (r *Repo) ClearSuspension(ctx context.Context, performerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gr_performer_routing_metrics
		SET is_suspended = false, suspension_reason = NULL, consecutive_ignores = 0, updated_at = now()
		WHERE performer_id = $1`,
		performerID)
	if err != nil {
		return fmt.Errorf("clear suspension: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(performerNotFoundMessage)
	}
	return nil
}

// SetCooldown keeps the performer out of candidate lists until the deadline.
func (r *Repo) SetCooldown(ctx context.Context, performerID uuid.UUID, until time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gr_performer_routing_metrics
		SET cooldown_until = $2, updated_at = now()
		WHERE performer_id = $1`,
		performerID, until)
	if err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(performerNotFoundMessage)
	}
	return nil
}

// ListEligible returns metrics for performers passing the directory filters:
// active, accepting leads, serving the event type and area, not suspended or
// cooling down, and under their monthly lead cap. Ranking happens in the
// candidate selector, not here.
func (r *Repo) ListEligible(ctx context.Context, filter EligibilityFilter) ([]domain.RoutingMetrics, error) {
	query := `
		SELECT ` + qualifiedMetricsColumns("m") + `
		FROM gr_performer_routing_metrics m
		JOIN gr_performers p ON p.id = m.performer_id
		WHERE p.is_active = true
		  AND p.accepts_leads = true
		  AND $1 = ANY(p.event_types)
		  AND upper(p.state) = upper($2)
		  AND (lower(p.city) = lower($3) OR p.serves_statewide)
		  AND m.is_suspended = false
		  AND (m.cooldown_until IS NULL OR m.cooldown_until <= $4)
		  AND (p.max_leads_per_month = 0 OR (
			SELECT count(*) FROM gr_lead_assignments a
			WHERE a.performer_id = p.id
			  AND a.created_at >= date_trunc('month', $4::timestamptz)
		  ) < p.max_leads_per_month)`

	rows, err := r.pool.Query(ctx, query, filter.EventType, filter.State, filter.City, filter.Now)
	if err != nil {
		return nil, fmt.Errorf("list eligible performers: %w", err)
	}
	defer rows.Close()

	var out []domain.RoutingMetrics
	for rows.Next() {
		m, err := scanMetrics(rows)
		if err != nil {
			return nil, fmt.Errorf("scan eligible performer: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkRouted stamps last_routed_at for the performers that just received offers.
func (r *Repo) MarkRouted(ctx context.Context, performerIDs []uuid.UUID, at time.Time) error {
	if len(performerIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE gr_performer_routing_metrics
		SET last_routed_at = $2, updated_at = now()
		WHERE performer_id = ANY($1)`,
		performerIDs, at)
	if err != nil {
		return fmt.Errorf("mark routed: %w", err)
	}
	return nil
}

func qualifiedMetricsColumns(alias string) string {
	return alias + `.performer_id,
	` + alias + `.accepted_count, ` + alias + `.declined_count, ` + alias + `.ignored_count, ` + alias + `.expired_count, ` + alias + `.converted_count, ` + alias + `.lost_count,
	` + alias + `.acceptance_rate, ` + alias + `.decline_rate, ` + alias + `.ignore_rate, ` + alias + `.conversion_rate, ` + alias + `.avg_response_seconds, ` + alias + `.reliability_score,
	` + alias + `.recent_lead_penalty, ` + alias + `.last_penalty_applied_at, ` + alias + `.penalty_decay_rate, ` + alias + `.consecutive_ignores,
	` + alias + `.cooldown_until, ` + alias + `.is_suspended, ` + alias + `.suspension_reason,
	` + alias + `.price_min, ` + alias + `.price_max, ` + alias + `.last_routed_at, ` + alias + `.updated_at`
}
