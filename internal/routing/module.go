// Package routing provides the lead routing bounded context module: phased
// distribution of booking inquiries to performers, outcome recording, and the
// lead lifecycle.
package routing

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"gigroute_backend/internal/events"
	apphttp "gigroute_backend/internal/http"
	"gigroute_backend/internal/routing/dispatch"
	"gigroute_backend/internal/routing/handler"
	"gigroute_backend/internal/routing/phase"
	"gigroute_backend/internal/routing/ports"
	"gigroute_backend/internal/routing/repository"
	"gigroute_backend/internal/routing/scoring"
	"gigroute_backend/internal/routing/selector"
	"gigroute_backend/internal/routing/service"
	"gigroute_backend/platform/config"
	"gigroute_backend/platform/logger"
	"gigroute_backend/platform/validator"
)

// Module is the routing bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    repository.Repository
}

// NewModule creates and initializes the routing module. The performer
// directory and metrics recorder come from the performers module; the timer
// scheduler may be nil in worker-less deployments, where the sweep alone
// drives expiry.
func NewModule(
	pool *pgxpool.Pool,
	cfg config.RoutingConfig,
	directory ports.PerformerDirectory,
	metrics ports.MetricsRecorder,
	timers ports.PhaseTimerScheduler,
	bus events.Bus,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	repo := repository.New(pool)
	plan := phase.NewPlan(cfg)

	w := cfg.GetScoringWeights()
	sel := selector.New(directory, scoring.Weights{
		Reliability:   w.Reliability,
		Acceptance:    w.Acceptance,
		Conversion:    w.Conversion,
		BudgetFit:     w.BudgetFit,
		ResponseSpeed: w.ResponseSpeed,
	}, log)

	dispatcher := dispatch.New(repo, directory, bus, log)
	svc := service.New(repo, sel, dispatcher, plan, metrics, timers, bus, log, cfg.GetLastMinuteDays())
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc, repo: repo}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "routing"
}

// Service returns the service layer for the scheduler worker and adapters.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the repository for direct access if needed.
func (m *Module) Repository() repository.Repository {
	return m.repo
}

// RegisterRoutes mounts routing endpoints on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public, rate-limited: inquiry intake and tokenized performer responses.
	ctx.Public.POST("/leads", m.handler.SubmitLead)
	ctx.Public.POST("/multi-inquiries", m.handler.SubmitMultiInquiry)
	ctx.Public.GET("/offers/:token", m.handler.GetOffer)
	ctx.Public.POST("/offers/:token/accept", m.handler.AcceptOffer)
	ctx.Public.POST("/offers/:token/decline", m.handler.DeclineOffer)

	// Collaborator/operator surface.
	leads := ctx.API.Group("/leads")
	leads.GET("", m.handler.ListLeads)
	leads.GET("/:id", m.handler.GetLead)
	leads.GET("/:id/assignments", m.handler.ListAssignments)
	leads.GET("/:id/distributions", m.handler.ListDistributions)
	leads.POST("/:id/cancel", m.handler.CancelLead)
	leads.POST("/:id/convert", m.handler.ConvertLead)
	leads.POST("/:id/reinject", m.handler.ReinjectLead)

	ctx.API.GET("/multi-inquiries/:id", m.handler.GetMultiInquiry)
	ctx.API.GET("/performers/:id/offers", m.handler.ListPerformerOffers)
}
