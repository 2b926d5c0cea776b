package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ingest-backend/internal/ingest"
	"ingest-backend/internal/services/health"
	"ingest-backend/internal/shared/config"
	"ingest-backend/internal/shared/metrics"
	"ingest-backend/internal/shared/server/middleware"
	"ingest-backend/internal/shared/server/respond"
)

// RouterDeps carries the wired handlers into route registration.
type RouterDeps struct {
	Config config.Config
	Ingest *ingest.Handler
	Health *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	healthHandler := func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		respond.JSON(c, http.StatusOK, deps.Health.Status(c.Request.Context()))
	}
	r.GET("/health", healthHandler)
	r.GET("/api/v1/health", healthHandler)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(
		middleware.Identity(),
		middleware.RateLimit(uploadRateLimits()),
	)
	deps.Ingest.RegisterRoutes(api)

	return r
}

// uploadRateLimits throttles the write path harder than reads. Uploads fan
// out into scanning and extraction, so a single principal cannot be allowed
// to saturate the pipeline.
func uploadRateLimits() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			"UPLOAD":  {Rate: 0.5, Burst: 5},
			"DEFAULT": {Rate: 10, Burst: 20},
		},
		DefaultGroup: "DEFAULT",
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodPost && strings.HasPrefix(c.FullPath(), "/api/v1/documents") {
				return "UPLOAD"
			}
			return "DEFAULT"
		},
	}
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
