package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clinical-review-backend/internal/batch"
	"clinical-review-backend/internal/services/health"
	"clinical-review-backend/internal/shared/config"
	"clinical-review-backend/internal/shared/metrics"
	"clinical-review-backend/internal/shared/server/middleware"
	"clinical-review-backend/internal/shared/server/respond"
)

// RouterDeps are the handlers mounted by NewRouter.
type RouterDeps struct {
	Config       config.Config
	BatchHandler *batch.Handler
	Health       *health.Service
	// Limiter is shared across router instances when set.
	Limiter *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	cfg := deps.Config
	rules := map[string]middleware.RateLimitRule{}
	if cfg.BatchRatePerMinute > 0 {
		rules[middleware.BatchRateLimitGroup] = middleware.PerMinute(cfg.BatchRatePerMinute, cfg.BatchRateBurst)
	}

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    rules,
			GroupFor: middleware.BatchGroup,
			Limiter:  deps.Limiter,
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.OK(c, gin.H{"ok": true})
			return
		}
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})
	if deps.BatchHandler != nil {
		deps.BatchHandler.RegisterRoutes(api)
	}

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "not_found", "route not found", nil)
	})

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
