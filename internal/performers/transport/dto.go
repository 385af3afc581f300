// Package transport defines request and response DTOs for the performers API.
package transport

import (
	"time"

	"github.com/google/uuid"

	"gigroute_backend/internal/performers/domain"
	"gigroute_backend/internal/performers/repository"
)

// CreatePerformerRequest contains data for registering a performer.
type CreatePerformerRequest struct {
	Name             string   `json:"name" validate:"required,min=1,max=200"`
	Email            string   `json:"email" validate:"required,email"`
	Phone            string   `json:"phone,omitempty" validate:"omitempty,max=30"`
	City             string   `json:"city" validate:"required,min=1,max=120"`
	State            string   `json:"state" validate:"required,len=2"`
	ServesStatewide  bool     `json:"servesStatewide"`
	EventTypes       []string `json:"eventTypes" validate:"required,min=1,dive,oneof=wedding corporate birthday school_dance club_night private_party other"`
	PriceMin         float64  `json:"priceMin" validate:"min=0"`
	PriceMax         float64  `json:"priceMax" validate:"min=0,gtefield=PriceMin"`
	AcceptsLeads     bool     `json:"acceptsLeads"`
	MaxLeadsPerMonth int      `json:"maxLeadsPerMonth,omitempty" validate:"omitempty,min=0,max=1000"`
}

// UpdatePriceRangeRequest updates the performer's published price range.
type UpdatePriceRangeRequest struct {
	PriceMin float64 `json:"priceMin" validate:"min=0"`
	PriceMax float64 `json:"priceMax" validate:"min=0,gtefield=PriceMin"`
}

// SetAcceptsLeadsRequest toggles offer delivery.
type SetAcceptsLeadsRequest struct {
	AcceptsLeads bool `json:"acceptsLeads"`
}

// SuspendRequest carries the operator's suspension reason.
type SuspendRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=200"`
}

// SetCooldownRequest parks the performer until the deadline.
type SetCooldownRequest struct {
	Until time.Time `json:"until" validate:"required"`
}

// PerformerResponse represents a performer profile in API responses.
type PerformerResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone,omitempty"`
	City             string    `json:"city"`
	State            string    `json:"state"`
	ServesStatewide  bool      `json:"servesStatewide"`
	EventTypes       []string  `json:"eventTypes"`
	PriceMin         float64   `json:"priceMin"`
	PriceMax         float64   `json:"priceMax"`
	AcceptsLeads     bool      `json:"acceptsLeads"`
	IsActive         bool      `json:"isActive"`
	MaxLeadsPerMonth int       `json:"maxLeadsPerMonth,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// MetricsResponse represents a performer's routing metrics.
type MetricsResponse struct {
	PerformerID uuid.UUID `json:"performerId"`

	AcceptedCount  int `json:"acceptedCount"`
	DeclinedCount  int `json:"declinedCount"`
	IgnoredCount   int `json:"ignoredCount"`
	ExpiredCount   int `json:"expiredCount"`
	ConvertedCount int `json:"convertedCount"`
	LostCount      int `json:"lostCount"`

	AcceptanceRate     float64 `json:"acceptanceRate"`
	DeclineRate        float64 `json:"declineRate"`
	IgnoreRate         float64 `json:"ignoreRate"`
	ConversionRate     float64 `json:"conversionRate"`
	AvgResponseSeconds float64 `json:"avgResponseSeconds"`
	ReliabilityScore   float64 `json:"reliabilityScore"`

	RecentLeadPenalty  float64 `json:"recentLeadPenalty"`
	ConsecutiveIgnores int     `json:"consecutiveIgnores"`

	CooldownUntil    *time.Time `json:"cooldownUntil,omitempty"`
	IsSuspended      bool       `json:"isSuspended"`
	SuspensionReason *string    `json:"suspensionReason,omitempty"`

	LastRoutedAt *time.Time `json:"lastRoutedAt,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// PerformerFromProfile maps a stored profile to its API representation.
func PerformerFromProfile(p repository.Profile) PerformerResponse {
	return PerformerResponse{
		ID:               p.ID,
		Name:             p.Name,
		Email:            p.Email,
		Phone:            p.Phone,
		City:             p.City,
		State:            p.State,
		ServesStatewide:  p.ServesStatewide,
		EventTypes:       p.EventTypes,
		PriceMin:         p.PriceMin,
		PriceMax:         p.PriceMax,
		AcceptsLeads:     p.AcceptsLeads,
		IsActive:         p.IsActive,
		MaxLeadsPerMonth: p.MaxLeadsPerMonth,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

// MetricsFromDomain maps routing metrics to their API representation.
func MetricsFromDomain(m domain.RoutingMetrics) MetricsResponse {
	return MetricsResponse{
		PerformerID:        m.PerformerID,
		AcceptedCount:      m.AcceptedCount,
		DeclinedCount:      m.DeclinedCount,
		IgnoredCount:       m.IgnoredCount,
		ExpiredCount:       m.ExpiredCount,
		ConvertedCount:     m.ConvertedCount,
		LostCount:          m.LostCount,
		AcceptanceRate:     m.AcceptanceRate,
		DeclineRate:        m.DeclineRate,
		IgnoreRate:         m.IgnoreRate,
		ConversionRate:     m.ConversionRate,
		AvgResponseSeconds: m.AvgResponseSeconds,
		ReliabilityScore:   m.ReliabilityScore,
		RecentLeadPenalty:  m.RecentLeadPenalty,
		ConsecutiveIgnores: m.ConsecutiveIgnores,
		CooldownUntil:      m.CooldownUntil,
		IsSuspended:        m.IsSuspended,
		SuspensionReason:   m.SuspensionReason,
		LastRoutedAt:       m.LastRoutedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}
