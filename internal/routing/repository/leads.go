package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gigroute_backend/internal/routing/domain"
	"gigroute_backend/platform/apperr"
)

const leadNotFoundMessage = "lead not found"

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new routing repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

const leadColumns = `
	id, event_type, event_date, city, state, venue_name, guest_count,
	budget_min, budget_max, budget_midpoint,
	planner_name, planner_email, planner_phone, special_requests,
	is_last_minute, lead_score, form_completeness,
	routing_state, current_phase, phase_expires_at, assigned_performer_id,
	exhausted_reason, multi_inquiry_id, routed_at, created_at, updated_at`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var l domain.Lead
	var state string
	var phase *string
	err := row.Scan(
		&l.ID, &l.EventType, &l.EventDate, &l.City, &l.State, &l.VenueName, &l.GuestCount,
		&l.BudgetMin, &l.BudgetMax, &l.BudgetMidpoint,
		&l.PlannerName, &l.PlannerEmail, &l.PlannerPhone, &l.SpecialRequests,
		&l.IsLastMinute, &l.LeadScore, &l.FormCompleteness,
		&state, &phase, &l.PhaseExpiresAt, &l.AssignedPerformerID,
		&l.ExhaustedReason, &l.MultiInquiryID, &l.RoutedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	l.RoutingState = domain.RoutingState(state)
	if phase != nil {
		p := domain.Phase(*phase)
		l.CurrentPhase = &p
	}
	return l, nil
}

// CreateLead inserts a new lead in the pending state.
func (r *Repo) CreateLead(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	lead.RoutingState = domain.StatePending

	query := `
		INSERT INTO gr_leads
			(id, event_type, event_date, city, state, venue_name, guest_count,
			 budget_min, budget_max, budget_midpoint,
			 planner_name, planner_email, planner_phone, special_requests,
			 is_last_minute, lead_score, form_completeness, routing_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 'pending')
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		lead.ID, lead.EventType, lead.EventDate, lead.City, lead.State, lead.VenueName, lead.GuestCount,
		lead.BudgetMin, lead.BudgetMax, lead.BudgetMidpoint,
		lead.PlannerName, lead.PlannerEmail, lead.PlannerPhone, lead.SpecialRequests,
		lead.IsLastMinute, lead.LeadScore, lead.FormCompleteness,
	).Scan(&lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("create lead: %w", err)
	}
	return lead, nil
}

// GetLead retrieves a lead by id.
func (r *Repo) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM gr_leads WHERE id = $1`
	l, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, apperr.NotFound(leadNotFoundMessage)
		}
		return domain.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// ListLeads returns leads newest first, optionally filtered by routing state.
func (r *Repo) ListLeads(ctx context.Context, state *domain.RoutingState, limit, offset int) ([]domain.Lead, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT ` + leadColumns + ` FROM gr_leads`
	args := []any{}
	if state != nil {
		query += ` WHERE routing_state = $1`
		args = append(args, string(*state))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// BeginRouting moves a pending or exhausted lead into routing. The state
// predicate makes a double submission or double re-injection a no-op.
func (r *Repo) BeginRouting(ctx context.Context, id uuid.UUID, phase domain.Phase, expiresAt, routedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gr_leads
		SET routing_state = 'routing', current_phase = $2, phase_expires_at = $3,
		    routed_at = COALESCE(routed_at, $4), exhausted_reason = NULL, updated_at = now()
		WHERE id = $1 AND routing_state IN ('pending', 'exhausted')`,
		id, string(phase), expiresAt, routedAt)
	if err != nil {
		return false, fmt.Errorf("begin routing: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetPhase advances the current phase on a lead that is still routing.
func (r *Repo) SetPhase(ctx context.Context, id uuid.UUID, phase domain.Phase, expiresAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gr_leads
		SET current_phase = $2, phase_expires_at = $3, updated_at = now()
		WHERE id = $1 AND routing_state = 'routing'`,
		id, string(phase), expiresAt)
	if err != nil {
		return false, fmt.Errorf("set phase: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkAssigned commits the winning performer. The routing_state predicate is
// the whole concurrency story: of two racing accepts, exactly one update
// finds the row still in 'routing'.
func (r *Repo) MarkAssigned(ctx context.Context, id uuid.UUID, performerID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gr_leads
		SET routing_state = 'assigned', assigned_performer_id = $2,
		    current_phase = NULL, phase_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND routing_state = 'routing'`,
		id, performerID)
	if err != nil {
		return false, fmt.Errorf("mark assigned: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkExhausted closes out a lead no phase could place.
func (r *Repo) MarkExhausted(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gr_leads
		SET routing_state = 'exhausted', exhausted_reason = $2,
		    current_phase = NULL, phase_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND routing_state IN ('pending', 'routing')`,
		id, reason)
	if err != nil {
		return false, fmt.Errorf("mark exhausted: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkWithdrawn cancels any non-terminal lead.
func (r *Repo) MarkWithdrawn(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gr_leads
		SET routing_state = 'withdrawn',
		    current_phase = NULL, phase_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND routing_state NOT IN ('converted', 'withdrawn')`,
		id)
	if err != nil {
		return false, fmt.Errorf("mark withdrawn: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkConverted records a booking on an assigned lead.
func (r *Repo) MarkConverted(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gr_leads
		SET routing_state = 'converted', updated_at = now()
		WHERE id = $1 AND routing_state = 'assigned'`,
		id)
	if err != nil {
		return false, fmt.Errorf("mark converted: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetMultiInquiryID links a lead to the multi-inquiry that created it.
func (r *Repo) SetMultiInquiryID(ctx context.Context, id, multiInquiryID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE gr_leads SET multi_inquiry_id = $2, updated_at = now() WHERE id = $1`,
		id, multiInquiryID)
	if err != nil {
		return fmt.Errorf("set multi inquiry id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(leadNotFoundMessage)
	}
	return nil
}

// ListDuePhaseExpiries returns routing leads whose phase window has lapsed.
// The scheduler's timer tasks handle the common case; this feeds the sweep
// that catches anything the queue dropped.
func (r *Repo) ListDuePhaseExpiries(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + leadColumns + `
		FROM gr_leads
		WHERE routing_state = 'routing' AND phase_expires_at IS NOT NULL AND phase_expires_at <= $1
		ORDER BY phase_expires_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due phase expiries: %w", err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due lead: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
