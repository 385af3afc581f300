package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"gigroute_backend/internal/routing/domain"
	"gigroute_backend/platform/apperr"
)

const assignmentNotFoundMessage = "assignment not found"

const assignmentColumns = `
	id, lead_id, performer_id, phase, is_exclusive, priority,
	phase_started_at, phase_expires_at, exclusive_until,
	notified_at, responded_at, response_status, response_seconds, response_token,
	score_reliability, score_acceptance, score_conversion, score_budget_fit,
	score_response_speed, score_penalty, score_raw, score_effective, score_version,
	created_at, updated_at`

func scanAssignment(row pgx.Row) (domain.Assignment, error) {
	var a domain.Assignment
	var phase, status string
	err := row.Scan(
		&a.ID, &a.LeadID, &a.PerformerID, &phase, &a.IsExclusive, &a.Priority,
		&a.PhaseStartedAt, &a.PhaseExpiresAt, &a.ExclusiveUntil,
		&a.NotifiedAt, &a.RespondedAt, &status, &a.ResponseSeconds, &a.ResponseToken,
		&a.Score.Reliability, &a.Score.Acceptance, &a.Score.Conversion, &a.Score.BudgetFit,
		&a.Score.ResponseSpeed, &a.Score.Penalty, &a.Score.Raw, &a.Score.Effective, &a.Score.Version,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Assignment{}, err
	}
	a.Phase = domain.Phase(phase)
	a.ResponseStatus = domain.ResponseStatus(status)
	return a, nil
}

// CreateAssignments inserts a batch of offers in one transaction so a
// half-created phase never becomes visible.
func (r *Repo) CreateAssignments(ctx context.Context, assignments []domain.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("create assignments: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO gr_lead_assignments
			(id, lead_id, performer_id, phase, is_exclusive, priority,
			 phase_started_at, phase_expires_at, exclusive_until,
			 response_status, response_token,
			 score_reliability, score_acceptance, score_conversion, score_budget_fit,
			 score_response_speed, score_penalty, score_raw, score_effective, score_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	for _, a := range assignments {
		_, err := tx.Exec(ctx, query,
			a.ID, a.LeadID, a.PerformerID, string(a.Phase), a.IsExclusive, a.Priority,
			a.PhaseStartedAt, a.PhaseExpiresAt, a.ExclusiveUntil,
			a.ResponseToken,
			a.Score.Reliability, a.Score.Acceptance, a.Score.Conversion, a.Score.BudgetFit,
			a.Score.ResponseSpeed, a.Score.Penalty, a.Score.Raw, a.Score.Effective, a.Score.Version,
		)
		if err != nil {
			return fmt.Errorf("create assignment %s: %w", a.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// GetAssignment retrieves an assignment by id.
func (r *Repo) GetAssignment(ctx context.Context, id uuid.UUID) (domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM gr_lead_assignments WHERE id = $1`
	a, err := scanAssignment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Assignment{}, apperr.NotFound(assignmentNotFoundMessage)
		}
		return domain.Assignment{}, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

// GetAssignmentByToken retrieves an assignment by its response token, used by
// the unauthenticated respond links in offer emails.
func (r *Repo) GetAssignmentByToken(ctx context.Context, token string) (domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM gr_lead_assignments WHERE response_token = $1`
	a, err := scanAssignment(r.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Assignment{}, apperr.NotFound(assignmentNotFoundMessage)
		}
		return domain.Assignment{}, fmt.Errorf("get assignment by token: %w", err)
	}
	return a, nil
}

// ListAssignmentsByLead returns all assignments for a lead, phase order then
// priority.
func (r *Repo) ListAssignmentsByLead(ctx context.Context, leadID uuid.UUID) ([]domain.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM gr_lead_assignments
		WHERE lead_id = $1
		ORDER BY created_at ASC, priority ASC`

	rows, err := r.pool.Query(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAssignedPerformerIDs returns every performer that has received an offer
// on the lead in any phase, for the selector's exclusion set.
func (r *Repo) ListAssignedPerformerIDs(ctx context.Context, leadID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT performer_id FROM gr_lead_assignments WHERE lead_id = $1`,
		leadID)
	if err != nil {
		return nil, fmt.Errorf("list assigned performer ids: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan performer id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListAssignmentsByPerformer returns a performer's offers, newest first.
func (r *Repo) ListAssignmentsByPerformer(ctx context.Context, performerID uuid.UUID, pendingOnly bool, limit int) ([]domain.Assignment, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT ` + assignmentColumns + ` FROM gr_lead_assignments WHERE performer_id = $1`
	if pendingOnly {
		query += ` AND response_status = 'pending'`
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, performerID)
	if err != nil {
		return nil, fmt.Errorf("list performer assignments: %w", err)
	}
	defer rows.Close()

	var out []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountOutstanding counts the lead's still-pending assignments.
func (r *Repo) CountOutstanding(ctx context.Context, leadID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM gr_lead_assignments WHERE lead_id = $1 AND response_status = 'pending'`,
		leadID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outstanding assignments: %w", err)
	}
	return n, nil
}

// MarkResponded records a terminal response on a pending assignment. The
// pending predicate makes duplicate responses (double click, retried
// webhook) a clean no-op for the caller to detect.
func (r *Repo) MarkResponded(ctx context.Context, id uuid.UUID, status domain.ResponseStatus, respondedAt time.Time, responseSeconds float64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gr_lead_assignments
		SET response_status = $2, responded_at = $3, response_seconds = $4, updated_at = now()
		WHERE id = $1 AND response_status = 'pending'`,
		id, string(status), respondedAt, responseSeconds)
	if err != nil {
		return false, fmt.Errorf("mark responded: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireOutstanding closes every pending assignment on the lead except the
// given one. Offers the performer viewed count as ignored; unseen ones as
// expired. Only rows actually flipped are returned, so a concurrent response
// that beat the expiry is never double-counted.
func (r *Repo) ExpireOutstanding(ctx context.Context, leadID uuid.UUID, except uuid.UUID, now time.Time) ([]ExpiredOffer, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE gr_lead_assignments a
		SET response_status = CASE WHEN EXISTS (
				SELECT 1 FROM gr_lead_distributions d
				WHERE d.lead_id = a.lead_id AND d.performer_id = a.performer_id
				  AND d.viewed_at IS NOT NULL
			) THEN 'ignored' ELSE 'expired' END,
			responded_at = $3, updated_at = now()
		WHERE a.lead_id = $1 AND a.response_status = 'pending' AND a.id <> $2
		RETURNING a.id, a.performer_id, a.response_status`,
		leadID, except, now)
	if err != nil {
		return nil, fmt.Errorf("expire outstanding assignments: %w", err)
	}
	defer rows.Close()

	var out []ExpiredOffer
	for rows.Next() {
		var e ExpiredOffer
		var status string
		if err := rows.Scan(&e.AssignmentID, &e.PerformerID, &status); err != nil {
			return nil, fmt.Errorf("scan expired assignment: %w", err)
		}
		e.Status = domain.ResponseStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

// StampNotified records when offer notifications actually went out, so
// response latency measures from delivery rather than creation.
func (r *Repo) StampNotified(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE gr_lead_assignments
		SET notified_at = $2, updated_at = now()
		WHERE id = ANY($1) AND notified_at IS NULL`,
		ids, at)
	if err != nil {
		return fmt.Errorf("stamp notified: %w", err)
	}
	return nil
}
