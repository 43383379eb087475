package router

import (
	"context"
	"net/http"
	"time"

	apphttp "crmbot/internal/http"
	"crmbot/internal/http/middleware"
	"crmbot/platform/httpkit"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	healthTimeout  = 2 * time.Second
	adminRateLimit = rate.Limit(2)
	adminRateBurst = 10
)

// New builds the ops engine: health, metrics and the module routes.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(httpkit.RequestLogger(app.Logger))
	if app.Metrics != nil {
		engine.Use(middleware.RequestCounter(app.Metrics))
	}

	engine.GET("/healthz", func(c *gin.Context) {
		if app.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			defer cancel()
			if err := app.Health.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if app.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(app.Metrics.Handler()))
	}

	v1 := engine.Group("/api/v1")
	limiter := httpkit.NewIPRateLimiter(adminRateLimit, adminRateBurst, app.Logger)
	admin := v1.Group("")
	admin.Use(limiter.RateLimit(), httpkit.AdminTokenRequired(app.Config.GetAdminAPIToken()))

	rctx := &apphttp.RouterContext{
		Engine: engine,
		V1:     v1,
		Admin:  admin,
	}
	for _, m := range app.Modules {
		m.RegisterRoutes(rctx)
		app.Logger.Debug("registered http module", "module", m.Name())
	}

	return engine
}
