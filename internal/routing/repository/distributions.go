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

const distributionNotFoundMessage = "distribution not found"

// EnsureContacted upserts the per-(lead, performer) audit rows and stamps
// contacted_at on first contact. A performer re-offered in a later phase
// keeps the original row.
func (r *Repo) EnsureContacted(ctx context.Context, leadID uuid.UUID, performerIDs []uuid.UUID, at time.Time) error {
	if len(performerIDs) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("ensure contacted: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO gr_lead_distributions (id, lead_id, performer_id, contacted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lead_id, performer_id)
		DO UPDATE SET contacted_at = COALESCE(gr_lead_distributions.contacted_at, EXCLUDED.contacted_at),
		              updated_at = now()`

	for _, performerID := range performerIDs {
		if _, err := tx.Exec(ctx, query, uuid.New(), leadID, performerID, at); err != nil {
			return fmt.Errorf("ensure contacted: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// MarkViewed records the first time the performer opened the lead. Later
// views keep the original timestamp.
func (r *Repo) MarkViewed(ctx context.Context, leadID, performerID uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gr_lead_distributions
		SET viewed_at = COALESCE(viewed_at, $3), updated_at = now()
		WHERE lead_id = $1 AND performer_id = $2`,
		leadID, performerID, at)
	if err != nil {
		return fmt.Errorf("mark viewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(distributionNotFoundMessage)
	}
	return nil
}

// MarkDistributionAccepted stamps the accept on the audit row.
func (r *Repo) MarkDistributionAccepted(ctx context.Context, leadID, performerID uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gr_lead_distributions
		SET accepted_at = $3, updated_at = now()
		WHERE lead_id = $1 AND performer_id = $2`,
		leadID, performerID, at)
	if err != nil {
		return fmt.Errorf("mark distribution accepted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(distributionNotFoundMessage)
	}
	return nil
}

// MarkDistributionDeclined stamps the decline and its optional reason.
func (r *Repo) MarkDistributionDeclined(ctx context.Context, leadID, performerID uuid.UUID, at time.Time, reason *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gr_lead_distributions
		SET declined_at = $3, decline_reason = $4, updated_at = now()
		WHERE lead_id = $1 AND performer_id = $2`,
		leadID, performerID, at, reason)
	if err != nil {
		return fmt.Errorf("mark distribution declined: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(distributionNotFoundMessage)
	}
	return nil
}

// ListDistributionsByLead returns the audit rows for a lead.
func (r *Repo) ListDistributionsByLead(ctx context.Context, leadID uuid.UUID) ([]domain.Distribution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, performer_id, contacted_at, viewed_at, accepted_at,
		       declined_at, decline_reason, created_at, updated_at
		FROM gr_lead_distributions
		WHERE lead_id = $1
		ORDER BY created_at ASC`,
		leadID)
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	defer rows.Close()

	var out []domain.Distribution
	for rows.Next() {
		var d domain.Distribution
		err := rows.Scan(
			&d.ID, &d.LeadID, &d.PerformerID, &d.ContactedAt, &d.ViewedAt, &d.AcceptedAt,
			&d.DeclinedAt, &d.DeclineReason, &d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CreateMultiInquiry inserts a planner multi-inquiry record.
func (r *Repo) CreateMultiInquiry(ctx context.Context, mi domain.MultiInquiry) (domain.MultiInquiry, error) {
	if mi.ID == uuid.Nil {
		mi.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO gr_multi_inquiries (id, lead_id, performers_contacted)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		mi.ID, mi.LeadID, mi.PerformersContacted,
	).Scan(&mi.CreatedAt)
	if err != nil {
		return domain.MultiInquiry{}, fmt.Errorf("create multi inquiry: %w", err)
	}
	return mi, nil
}

// GetMultiInquiry retrieves a multi-inquiry by id.
func (r *Repo) GetMultiInquiry(ctx context.Context, id uuid.UUID) (domain.MultiInquiry, error) {
	var mi domain.MultiInquiry
	err := r.pool.QueryRow(ctx, `
		SELECT id, lead_id, performers_contacted, performers_available, performers_unavailable, created_at
		FROM gr_multi_inquiries
		WHERE id = $1`,
		id).Scan(&mi.ID, &mi.LeadID, &mi.PerformersContacted, &mi.PerformersAvailable, &mi.PerformersUnavailable, &mi.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MultiInquiry{}, apperr.NotFound("multi inquiry not found")
		}
		return domain.MultiInquiry{}, fmt.Errorf("get multi inquiry: %w", err)
	}
	return mi, nil
}

// IncrementMultiInquiryResponse bumps the availability counters as performer
// responses arrive.
func (r *Repo) IncrementMultiInquiryResponse(ctx context.Context, id uuid.UUID, available bool) error {
	column := "performers_unavailable"
	if available {
		column = "performers_available"
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE gr_multi_inquiries SET `+column+` = `+column+` + 1 WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("increment multi inquiry response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("multi inquiry not found")
	}
	return nil
}
