// Package transport defines request and response DTOs for the routing API.
package transport

import (
	"time"

	"github.com/google/uuid"

	"gigroute_backend/internal/routing/domain"
)

// SubmitLeadRequest contains a planner booking inquiry.
type SubmitLeadRequest struct {
	EventType  string    `json:"eventType" validate:"required,oneof=wedding corporate birthday school_dance club_night private_party other"`
	EventDate  time.Time `json:"eventDate" validate:"required"`
	City       string    `json:"city" validate:"required,min=1,max=120"`
	State      string    `json:"state" validate:"required,len=2"`
	VenueName  string    `json:"venueName,omitempty" validate:"omitempty,max=200"`
	GuestCount int       `json:"guestCount,omitempty" validate:"omitempty,min=0,max=100000"`

	BudgetMin float64 `json:"budgetMin,omitempty" validate:"omitempty,min=0"`
	BudgetMax float64 `json:"budgetMax,omitempty" validate:"omitempty,min=0,gtefield=BudgetMin"`

	PlannerName     string `json:"plannerName" validate:"required,min=1,max=200"`
	PlannerEmail    string `json:"plannerEmail" validate:"required,email"`
	PlannerPhone    string `json:"plannerPhone,omitempty" validate:"omitempty,max=30"`
	SpecialRequests string `json:"specialRequests,omitempty" validate:"omitempty,max=2000"`
}

// SubmitMultiInquiryRequest fans an inquiry out to a chosen performer list.
type SubmitMultiInquiryRequest struct {
	SubmitLeadRequest
	PerformerIDs []uuid.UUID `json:"performerIds" validate:"required,min=1,max=25"`
}

// ConvertLeadRequest names the performer the booking is attributed to.
type ConvertLeadRequest struct {
	PerformerID uuid.UUID `json:"performerId" validate:"required"`
}

// DeclineOfferRequest carries the optional decline reason.
type DeclineOfferRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// ListLeadsRequest filters the operator lead list.
type ListLeadsRequest struct {
	State  string `form:"state" validate:"omitempty,oneof=pending routing assigned exhausted converted withdrawn"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" validate:"omitempty,min=0"`
}

// ListPerformerOffersRequest filters a performer's offer inbox.
type ListPerformerOffersRequest struct {
	Pending bool `form:"pending"`
	Limit   int  `form:"limit" validate:"omitempty,min=1,max=100"`
}

// LeadResponse represents a lead in API responses.
type LeadResponse struct {
	ID         uuid.UUID `json:"id"`
	EventType  string    `json:"eventType"`
	EventDate  time.Time `json:"eventDate"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	VenueName  string    `json:"venueName,omitempty"`
	GuestCount int       `json:"guestCount,omitempty"`

	BudgetMin      float64 `json:"budgetMin,omitempty"`
	BudgetMax      float64 `json:"budgetMax,omitempty"`
	BudgetMidpoint float64 `json:"budgetMidpoint,omitempty"`

	PlannerName  string `json:"plannerName"`
	PlannerEmail string `json:"plannerEmail"`

	IsLastMinute     bool `json:"isLastMinute"`
	LeadScore        int  `json:"leadScore"`
	FormCompleteness int  `json:"formCompleteness"`

	RoutingState        string     `json:"routingState"`
	CurrentPhase        *string    `json:"currentPhase,omitempty"`
	PhaseExpiresAt      *time.Time `json:"phaseExpiresAt,omitempty"`
	AssignedPerformerID *uuid.UUID `json:"assignedPerformerId,omitempty"`
	ExhaustedReason     *string    `json:"exhaustedReason,omitempty"`
	MultiInquiryID      *uuid.UUID `json:"multiInquiryId,omitempty"`

	RoutedAt  *time.Time `json:"routedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// LeadListResponse wraps a list of leads.
type LeadListResponse struct {
	Items []LeadResponse `json:"items"`
	Total int            `json:"total"`
}

// ScoreSnapshotResponse is the frozen scoring breakdown of an assignment.
type ScoreSnapshotResponse struct {
	Reliability   float64 `json:"reliability"`
	Acceptance    float64 `json:"acceptance"`
	Conversion    float64 `json:"conversion"`
	BudgetFit     float64 `json:"budgetFit"`
	ResponseSpeed float64 `json:"responseSpeed"`
	Penalty       float64 `json:"penalty"`
	Raw           float64 `json:"raw"`
	Effective     float64 `json:"effective"`
	Version       string  `json:"version"`
}

// AssignmentResponse represents an assignment in API responses.
type AssignmentResponse struct {
	ID          uuid.UUID `json:"id"`
	LeadID      uuid.UUID `json:"leadId"`
	PerformerID uuid.UUID `json:"performerId"`

	Phase       string `json:"phase"`
	IsExclusive bool   `json:"isExclusive"`
	Priority    int    `json:"priority"`

	PhaseStartedAt time.Time  `json:"phaseStartedAt"`
	PhaseExpiresAt time.Time  `json:"phaseExpiresAt"`
	ExclusiveUntil *time.Time `json:"exclusiveUntil,omitempty"`

	NotifiedAt  *time.Time `json:"notifiedAt,omitempty"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`

	ResponseStatus  string   `json:"responseStatus"`
	ResponseSeconds *float64 `json:"responseSeconds,omitempty"`

	Score ScoreSnapshotResponse `json:"score"`

	CreatedAt time.Time `json:"createdAt"`
}

// AssignmentListResponse wraps a lead's assignment history.
type AssignmentListResponse struct {
	Items []AssignmentResponse `json:"items"`
	Total int                  `json:"total"`
}

// DistributionResponse is one row of the per-performer audit trail.
type DistributionResponse struct {
	ID          uuid.UUID `json:"id"`
	LeadID      uuid.UUID `json:"leadId"`
	PerformerID uuid.UUID `json:"performerId"`

	ContactedAt   *time.Time `json:"contactedAt,omitempty"`
	ViewedAt      *time.Time `json:"viewedAt,omitempty"`
	AcceptedAt    *time.Time `json:"acceptedAt,omitempty"`
	DeclinedAt    *time.Time `json:"declinedAt,omitempty"`
	DeclineReason *string    `json:"declineReason,omitempty"`
}

// DistributionListResponse wraps a lead's audit trail.
type DistributionListResponse struct {
	Items []DistributionResponse `json:"items"`
	Total int                    `json:"total"`
}

// OfferResponse is the performer-facing view of one offer. Planner contact
// details are withheld until the performer accepts.
type OfferResponse struct {
	AssignmentID   uuid.UUID `json:"assignmentId"`
	Phase          string    `json:"phase"`
	ResponseStatus string    `json:"responseStatus"`
	ExpiresAt      time.Time `json:"expiresAt"`

	EventType      string    `json:"eventType"`
	EventDate      time.Time `json:"eventDate"`
	City           string    `json:"city"`
	State          string    `json:"state"`
	VenueName      string    `json:"venueName,omitempty"`
	GuestCount     int       `json:"guestCount,omitempty"`
	BudgetMidpoint float64   `json:"budgetMidpoint,omitempty"`

	SpecialRequests string `json:"specialRequests,omitempty"`
}

// MultiInquiryResponse represents a multi-inquiry with its counters.
type MultiInquiryResponse struct {
	ID                    uuid.UUID `json:"id"`
	LeadID                uuid.UUID `json:"leadId"`
	PerformersContacted   int       `json:"performersContacted"`
	PerformersAvailable   int       `json:"performersAvailable"`
	PerformersUnavailable int       `json:"performersUnavailable"`
	CreatedAt             time.Time `json:"createdAt"`
}

// SubmitMultiInquiryResponse pairs the created lead with its inquiry record.
type SubmitMultiInquiryResponse struct {
	Lead    LeadResponse         `json:"lead"`
	Inquiry MultiInquiryResponse `json:"inquiry"`
}

// LeadFromDomain maps a domain lead to its API representation.
func LeadFromDomain(l domain.Lead) LeadResponse {
	resp := LeadResponse{
		ID:                  l.ID,
		EventType:           l.EventType,
		EventDate:           l.EventDate,
		City:                l.City,
		State:               l.State,
		VenueName:           l.VenueName,
		GuestCount:          l.GuestCount,
		BudgetMin:           l.BudgetMin,
		BudgetMax:           l.BudgetMax,
		BudgetMidpoint:      l.BudgetMidpoint,
		PlannerName:         l.PlannerName,
		PlannerEmail:        l.PlannerEmail,
		IsLastMinute:        l.IsLastMinute,
		LeadScore:           l.LeadScore,
		FormCompleteness:    l.FormCompleteness,
		RoutingState:        string(l.RoutingState),
		PhaseExpiresAt:      l.PhaseExpiresAt,
		AssignedPerformerID: l.AssignedPerformerID,
		ExhaustedReason:     l.ExhaustedReason,
		MultiInquiryID:      l.MultiInquiryID,
		RoutedAt:            l.RoutedAt,
		CreatedAt:           l.CreatedAt,
		UpdatedAt:           l.UpdatedAt,
	}
	if l.CurrentPhase != nil {
		phase := string(*l.CurrentPhase)
		resp.CurrentPhase = &phase
	}
	return resp
}

// LeadsFromDomain maps a lead slice.
func LeadsFromDomain(leads []domain.Lead) LeadListResponse {
	items := make([]LeadResponse, 0, len(leads))
	for _, l := range leads {
		items = append(items, LeadFromDomain(l))
	}
	return LeadListResponse{Items: items, Total: len(items)}
}

// AssignmentFromDomain maps a domain assignment to its API representation.
func AssignmentFromDomain(a domain.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:              a.ID,
		LeadID:          a.LeadID,
		PerformerID:     a.PerformerID,
		Phase:           string(a.Phase),
		IsExclusive:     a.IsExclusive,
		Priority:        a.Priority,
		PhaseStartedAt:  a.PhaseStartedAt,
		PhaseExpiresAt:  a.PhaseExpiresAt,
		ExclusiveUntil:  a.ExclusiveUntil,
		NotifiedAt:      a.NotifiedAt,
		RespondedAt:     a.RespondedAt,
		ResponseStatus:  string(a.ResponseStatus),
		ResponseSeconds: a.ResponseSeconds,
		Score: ScoreSnapshotResponse{
			Reliability:   a.Score.Reliability,
			Acceptance:    a.Score.Acceptance,
			Conversion:    a.Score.Conversion,
			BudgetFit:     a.Score.BudgetFit,
			ResponseSpeed: a.Score.ResponseSpeed,
			Penalty:       a.Score.Penalty,
			Raw:           a.Score.Raw,
			Effective:     a.Score.Effective,
			Version:       a.Score.Version,
		},
		CreatedAt: a.CreatedAt,
	}
}

// AssignmentsFromDomain maps an assignment slice.
func AssignmentsFromDomain(assignments []domain.Assignment) AssignmentListResponse {
	items := make([]AssignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		items = append(items, AssignmentFromDomain(a))
	}
	return AssignmentListResponse{Items: items, Total: len(items)}
}

// DistributionsFromDomain maps the audit trail.
func DistributionsFromDomain(distributions []domain.Distribution) DistributionListResponse {
	items := make([]DistributionResponse, 0, len(distributions))
	for _, d := range distributions {
		items = append(items, DistributionResponse{
			ID:            d.ID,
			LeadID:        d.LeadID,
			PerformerID:   d.PerformerID,
			ContactedAt:   d.ContactedAt,
			ViewedAt:      d.ViewedAt,
			AcceptedAt:    d.AcceptedAt,
			DeclinedAt:    d.DeclinedAt,
			DeclineReason: d.DeclineReason,
		})
	}
	return DistributionListResponse{Items: items, Total: len(items)}
}

// OfferFromDomain maps an offer to the performer-facing view.
func OfferFromDomain(a domain.Assignment, l domain.Lead) OfferResponse {
	return OfferResponse{
		AssignmentID:    a.ID,
		Phase:           string(a.Phase),
		ResponseStatus:  string(a.ResponseStatus),
		ExpiresAt:       a.PhaseExpiresAt,
		EventType:       l.EventType,
		EventDate:       l.EventDate,
		City:            l.City,
		State:           l.State,
		VenueName:       l.VenueName,
		GuestCount:      l.GuestCount,
		BudgetMidpoint:  l.BudgetMidpoint,
		SpecialRequests: l.SpecialRequests,
	}
}

// MultiInquiryFromDomain maps a multi-inquiry record.
func MultiInquiryFromDomain(mi domain.MultiInquiry) MultiInquiryResponse {
	return MultiInquiryResponse{
		ID:                    mi.ID,
		LeadID:                mi.LeadID,
		PerformersContacted:   mi.PerformersContacted,
		PerformersAvailable:   mi.PerformersAvailable,
		PerformersUnavailable: mi.PerformersUnavailable,
		CreatedAt:             mi.CreatedAt,
	}
}
