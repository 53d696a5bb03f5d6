package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"insight-backend/internal/analyses"
	"insight-backend/internal/services/health"
	"insight-backend/internal/shared/config"
	"insight-backend/internal/shared/metrics"
	"insight-backend/internal/shared/server/middleware"
	"insight-backend/internal/shared/server/respond"
	"insight-backend/internal/uploads"
)

const (
	groupDefault = "DEFAULT"
	groupUpload  = "UPLOAD"
	groupExempt  = "EXEMPT"
)

// RouterDeps are the handlers the router mounts. UploadsHandler is optional.
type RouterDeps struct {
	Config          config.Config
	AnalysisHandler *analyses.Handler
	UploadsHandler  *uploads.Handler
	Health          *health.Service
	Limiter         *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:        rateLimitRules(deps.Config),
			DefaultGroup: groupDefault,
			GroupFor:     rateLimitGroup,
			Limiter:      deps.Limiter,
		}),
	)

	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService(nil, nil)
	}

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		st := healthSvc.Status(c.Request.Context())
		status := http.StatusOK
		if !st.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, st)
	})
	api.GET("/metrics", metrics.Handler())

	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api)
	}
	if deps.UploadsHandler != nil {
		deps.UploadsHandler.RegisterRoutes(api)
	}

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "route_not_found", "route not found", nil)
	})

	return r
}

func rateLimitRules(cfg config.Config) map[string]middleware.RateLimitRule {
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return nil
	}
	uploadBurst := cfg.RateLimitBurst / 4
	if uploadBurst < 1 {
		uploadBurst = 1
	}
	return map[string]middleware.RateLimitRule{
		groupDefault: {Rate: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
		groupUpload:  {Rate: cfg.RateLimitRPS / 4, Burst: uploadBurst},
	}
}

// rateLimitGroup puts parsing endpoints in a stricter bucket and leaves
// probes unlimited.
func rateLimitGroup(c *gin.Context) string {
	route := c.FullPath()
	switch {
	case route == "/api/v1/health" || route == "/api/v1/metrics":
		return groupExempt
	case c.Request.Method == http.MethodPost && (route == "/api/v1/analyses" ||
		route == "/api/v1/analyses/from-object" ||
		strings.HasPrefix(route, "/api/v1/uploads/")):
		return groupUpload
	default:
		return groupDefault
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
