// Package handler exposes performer management over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gigroute_backend/internal/performers/service"
	"gigroute_backend/internal/performers/transport"
	"gigroute_backend/platform/httpkit"
	"gigroute_backend/platform/validator"
)

const (
	msgInvalidRequest     = "invalid request"
	msgValidationFailed   = "validation failed"
	msgInvalidPerformerID = "invalid performer ID"
)

// Handler handles HTTP requests for performer profiles and metrics.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new performers handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Create registers a performer.
// POST /api/v1/performers
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreatePerformerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	profile, err := h.svc.CreatePerformer(c.Request.Context(), service.CreatePerformerParams{
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		City:             req.City,
		State:            req.State,
		ServesStatewide:  req.ServesStatewide,
		EventTypes:       req.EventTypes,
		PriceMin:         req.PriceMin,
		PriceMax:         req.PriceMax,
		AcceptsLeads:     req.AcceptsLeads,
		MaxLeadsPerMonth: req.MaxLeadsPerMonth,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, transport.PerformerFromProfile(profile))
}

// Get retrieves a performer profile.
// GET /api/v1/performers/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := h.performerID(c)
	if !ok {
		return
	}

	profile, err := h.svc.GetPerformer(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.PerformerFromProfile(profile))
}

// GetMetrics retrieves a performer's routing metrics.
// GET /api/v1/performers/:id/metrics
func (h *Handler) GetMetrics(c *gin.Context) {
	id, ok := h.performerID(c)
	if !ok {
		return
	}

	metrics, err := h.svc.GetMetrics(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.MetricsFromDomain(metrics))
}

// UpdatePriceRange updates the published price range.
// PUT /api/v1/performers/:id/price-range
func (h *Handler) UpdatePriceRange(c *gin.Context) {
	id, ok := h.performerID(c)
	if !ok {
		return
	}

	var req transport.UpdatePriceRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if err := h.svc.UpdatePriceRange(c.Request.Context(), id, req.PriceMin, req.PriceMax); httpkit.HandleError(c, err) {
		return
	}
	h.respondWithProfile(c, id)
}

// SetAcceptsLeads toggles offer delivery.
// PATCH /api/v1/performers/:id/accepts-leads
func (h *Handler) SetAcceptsLeads(c *gin.Context) {
	id, ok := h.performerID(c)
	if !ok {
		return
	}

	var req transport.SetAcceptsLeadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if err := h.svc.SetAcceptsLeads(c.Request.Context(), id, req.AcceptsLeads); httpkit.HandleError(c, err) {
		return
	}
	h.respondWithProfile(c, id)
}

// Deactivate soft-deactivates a performer.
// DELETE /api/v1/performers/:id
func (h *Handler) Deactivate(c *gin.Context) {
	id, ok := h.performerID(c)
	if !ok {
		return
	}

	if err := h.svc.Deactivate(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// Suspend flags a performer with an operator-supplied reason.
// POST /api/v1/performers/:id/suspend
func (h *Handler) Suspend(c *gin.Context) {
	id, ok := h.performerID(c)
	if !ok {
		return
	}

	var req transport.SuspendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if err := h.svc.Suspend(c.Request.Context(), id, req.Reason); httpkit.HandleError(c, err) {
		return
	}
	h.respondWithMetrics(c, id)
}

// ClearSuspension lifts a suspension.
// POST /api/v1/performers/:id/unsuspend
func (h *Handler) ClearSuspension(c *gin.Context) {
	id, ok := h.performerID(c)
	if !ok {
		return
	}

	if err := h.svc.ClearSuspension(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	h.respondWithMetrics(c, id)
}

// SetCooldown parks the performer until the deadline.
// POST /api/v1/performers/:id/cooldown
func (h *Handler) SetCooldown(c *gin.Context) {
	id, ok := h.performerID(c)
	if !ok {
		return
	}

	var req transport.SetCooldownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if err := h.svc.SetCooldown(c.Request.Context(), id, req.Until); httpkit.HandleError(c, err) {
		return
	}
	h.respondWithMetrics(c, id)
}

func (h *Handler) performerID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidPerformerID, nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondWithProfile(c *gin.Context, id uuid.UUID) {
	profile, err := h.svc.GetPerformer(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.PerformerFromProfile(profile))
}

func (h *Handler) respondWithMetrics(c *gin.Context, id uuid.UUID) {
	metrics, err := h.svc.GetMetrics(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.MetricsFromDomain(metrics))
}
