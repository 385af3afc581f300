// Package handler exposes the routing engine over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gigroute_backend/internal/routing/domain"
	"gigroute_backend/internal/routing/service"
	"gigroute_backend/internal/routing/transport"
	"gigroute_backend/platform/httpkit"
	"gigroute_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidLeadID    = "invalid lead ID"
)

// Handler handles HTTP requests for leads, offers, and multi-inquiries.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new routing handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// SubmitLead accepts a planner inquiry and starts routing it.
// POST /api/v1/leads
func (h *Handler) SubmitLead(c *gin.Context) {
	var req transport.SubmitLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	lead, err := h.svc.SubmitLead(c.Request.Context(), submitParams(req))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, transport.LeadFromDomain(lead))
}

// SubmitMultiInquiry accepts an inquiry addressed to a chosen performer list.
// POST /api/v1/multi-inquiries
func (h *Handler) SubmitMultiInquiry(c *gin.Context) {
	var req transport.SubmitMultiInquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.SubmitMultiInquiry(c.Request.Context(), service.SubmitMultiInquiryParams{
		Lead:         submitParams(req.SubmitLeadRequest),
		PerformerIDs: req.PerformerIDs,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, transport.SubmitMultiInquiryResponse{
		Lead:    transport.LeadFromDomain(result.Lead),
		Inquiry: transport.MultiInquiryFromDomain(result.Inquiry),
	})
}

// GetMultiInquiry returns a multi-inquiry with its availability counters.
// GET /api/v1/multi-inquiries/:id
func (h *Handler) GetMultiInquiry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid multi-inquiry ID", nil)
		return
	}

	mi, err := h.svc.GetMultiInquiry(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.MultiInquiryFromDomain(mi))
}

// ListLeads lists leads for operators, optionally filtered by routing state.
// GET /api/v1/leads
func (h *Handler) ListLeads(c *gin.Context) {
	var req transport.ListLeadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	var state *domain.RoutingState
	if req.State != "" {
		s := domain.RoutingState(req.State)
		state = &s
	}

	leads, err := h.svc.ListLeads(c.Request.Context(), state, req.Limit, req.Offset)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LeadsFromDomain(leads))
}

// GetLead returns a single lead.
// GET /api/v1/leads/:id
func (h *Handler) GetLead(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	lead, err := h.svc.GetLead(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LeadFromDomain(lead))
}

// ListAssignments returns the assignment history of a lead.
// GET /api/v1/leads/:id/assignments
func (h *Handler) ListAssignments(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	assignments, err := h.svc.ListAssignments(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.AssignmentsFromDomain(assignments))
}

// ListDistributions returns the per-performer audit trail of a lead.
// GET /api/v1/leads/:id/distributions
func (h *Handler) ListDistributions(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	distributions, err := h.svc.ListDistributions(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.DistributionsFromDomain(distributions))
}

// CancelLead withdraws a lead.
// POST /api/v1/leads/:id/cancel
func (h *Handler) CancelLead(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	if err := h.svc.CancelLead(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	h.respondWithLead(c, id)
}

// ConvertLead records a booking confirmation on an assigned lead, attributed
// to the performer named by the caller.
// POST /api/v1/leads/:id/convert
func (h *Handler) ConvertLead(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	var req transport.ConvertLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if err := h.svc.MarkConverted(c.Request.Context(), id, req.PerformerID); httpkit.HandleError(c, err) {
		return
	}
	h.respondWithLead(c, id)
}

// ReinjectLead restarts routing on an exhausted lead.
// POST /api/v1/leads/:id/reinject
func (h *Handler) ReinjectLead(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	if err := h.svc.Reinject(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	h.respondWithLead(c, id)
}

// ListPerformerOffers returns a performer's offer inbox.
// GET /api/v1/performers/:id/offers
func (h *Handler) ListPerformerOffers(c *gin.Context) {
	performerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid performer ID", nil)
		return
	}

	var req transport.ListPerformerOffersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	assignments, err := h.svc.ListPerformerOffers(c.Request.Context(), performerID, req.Pending, req.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.AssignmentsFromDomain(assignments))
}

// GetOffer returns the performer-facing view of an offer and stamps the view.
// GET /api/v1/offers/:token
func (h *Handler) GetOffer(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		httpkit.Error(c, http.StatusBadRequest, "token is required", nil)
		return
	}

	view, err := h.svc.GetOffer(c.Request.Context(), token)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.OfferFromDomain(view.Assignment, view.Lead))
}

// AcceptOffer records a performer accept.
// POST /api/v1/offers/:token/accept
func (h *Handler) AcceptOffer(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		httpkit.Error(c, http.StatusBadRequest, "token is required", nil)
		return
	}

	a, err := h.svc.AcceptOffer(c.Request.Context(), token)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.AssignmentFromDomain(a))
}

// DeclineOffer records a performer decline.
// POST /api/v1/offers/:token/decline
func (h *Handler) DeclineOffer(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		httpkit.Error(c, http.StatusBadRequest, "token is required", nil)
		return
	}

	var req transport.DeclineOfferRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
	}

	a, err := h.svc.DeclineOffer(c.Request.Context(), token, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.AssignmentFromDomain(a))
}

func (h *Handler) leadID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondWithLead(c *gin.Context, id uuid.UUID) {
	lead, err := h.svc.GetLead(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LeadFromDomain(lead))
}

func submitParams(req transport.SubmitLeadRequest) service.SubmitLeadParams {
	return service.SubmitLeadParams{
		EventType:       req.EventType,
		EventDate:       req.EventDate,
		City:            req.City,
		State:           req.State,
		VenueName:       req.VenueName,
		GuestCount:      req.GuestCount,
		BudgetMin:       req.BudgetMin,
		BudgetMax:       req.BudgetMax,
		PlannerName:     req.PlannerName,
		PlannerEmail:    req.PlannerEmail,
		PlannerPhone:    req.PlannerPhone,
		SpecialRequests: req.SpecialRequests,
	}
}
