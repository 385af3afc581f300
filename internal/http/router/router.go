// Package router assembles the gin engine from the application modules.
package router

import (
	"net/http"

	apphttp "gigroute_backend/internal/http"
	"gigroute_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// New builds the HTTP engine: middleware stack, health and metrics endpoints,
// and every module's routes.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(httpkit.Metrics())
	engine.Use(corsMiddleware(app))

	engine.GET("/api/health", func(c *gin.Context) {
		if app.Health != nil {
			if err := app.Health.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	perMinute := app.Config.GetPublicRateLimitPerMinute()
	if perMinute < 1 {
		perMinute = 30
	}
	limiter := httpkit.NewIPRateLimiter(rate.Limit(float64(perMinute)/60.0), perMinute, app.Logger)

	v1 := engine.Group("/api/v1")
	ctx := &apphttp.RouterContext{
		Public: v1.Group("", limiter.RateLimit()),
		API:    v1.Group(""),
	}

	for _, m := range app.Modules {
		m.RegisterRoutes(ctx)
	}

	return engine
}

func corsMiddleware(app *apphttp.App) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if app.Config.GetCORSAllowAll() {
		cfg.AllowAllOrigins = true
	} else if origins := app.Config.GetCORSOrigins(); len(origins) > 0 {
		cfg.AllowOrigins = origins
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	return cors.New(cfg)
}
