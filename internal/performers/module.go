// Package performers provides the performers bounded context module: profile
// management, routing metrics, and the eligibility directory the routing
// engine selects candidates from.
package performers

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"gigroute_backend/internal/events"
	apphttp "gigroute_backend/internal/http"
	"gigroute_backend/internal/performers/handler"
	"gigroute_backend/internal/performers/repository"
	"gigroute_backend/internal/performers/service"
	"gigroute_backend/platform/config"
	"gigroute_backend/platform/logger"
	"gigroute_backend/platform/validator"
)

// Module is the performers bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    repository.Repository
}

// NewModule creates and initializes the performers module.
func NewModule(pool *pgxpool.Pool, cfg config.RoutingConfig, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, cfg, bus, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc, repo: repo}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "performers"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RoutingAdapter returns the directory/metrics adapter the routing module
// consumes.
func (m *Module) RoutingAdapter() *RoutingAdapter {
	return NewRoutingAdapter(m.service)
}

// RegisterRoutes mounts performer routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	performers := ctx.API.Group("/performers")
	performers.POST("", m.handler.Create)
	performers.GET("/:id", m.handler.Get)
	performers.GET("/:id/metrics", m.handler.GetMetrics)
	performers.PUT("/:id/price-range", m.handler.UpdatePriceRange)
	performers.PATCH("/:id/accepts-leads", m.handler.SetAcceptsLeads)
	performers.DELETE("/:id", m.handler.Deactivate)

	performers.POST("/:id/suspend", m.handler.Suspend)
	performers.POST("/:id/unsuspend", m.handler.ClearSuspension)
	performers.POST("/:id/cooldown", m.handler.SetCooldown)
}
