package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"finreport-backend/internal/account"
	"finreport-backend/internal/profile"
	"finreport-backend/internal/reports"
	"finreport-backend/internal/services/health"
	"finreport-backend/internal/shared/config"
	"finreport-backend/internal/shared/metrics"
	"finreport-backend/internal/shared/server/middleware"
	"finreport-backend/internal/shared/server/respond"
	"finreport-backend/internal/usage"
)

const apiPrefix = "/api/v1"

// Rate limit groups.
const (
	groupDefault = "DEFAULT"
	groupAccount = "ACCOUNT"
	groupAnalyze = "ANALYZE"
	groupExport  = "EXPORT"
)

// RouterDeps carries the handlers mounted on the engine. Nil handlers are skipped.
type RouterDeps struct {
	Config      config.Config
	Verifier    middleware.TokenVerifier
	Health      *health.Service
	Account     *account.Handler
	Profile     *profile.Handler
	Reports     *reports.Handler
	Usage       *usage.Handler
	Profiles    ProfileReader
	RateLimiter *middleware.RateLimiter
}

// PublicPrefixes are the paths served without an ID token.
var PublicPrefixes = []string{
	"/metrics",
	apiPrefix + "/health",
	apiPrefix + "/account/register",
	apiPrefix + "/account/sign-in",
	apiPrefix + "/account/password-reset",
	apiPrefix + "/profile-images/",
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if !deps.Config.IsDevLike() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(deps.Verifier, PublicPrefixes...),
		middleware.RateLimit(middleware.RateLimitConfig{
			DefaultGroup: groupDefault,
			GroupFor:     rateLimitGroup,
			Limiter:      deps.RateLimiter,
			Rules: map[string]middleware.RateLimitRule{
				groupDefault: {Rate: 5, Burst: 30},
				groupAccount: {Rate: 0.2, Burst: 5},
				groupAnalyze: {Rate: 0.1, Burst: 3},
				groupExport:  {Rate: 1, Burst: 5},
			},
		}),
	)

	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService()
	}

	r.GET("/metrics", metrics.Handler())

	api := r.Group(apiPrefix)
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, healthSvc.Status(c.Request.Context()))
	})
	var allowance AllowanceReader
	if deps.Usage != nil && deps.Usage.Svc != nil {
		allowance = deps.Usage.Svc
	}
	registerMeRoutes(api, deps.Profiles, allowance)

	if deps.Account != nil {
		deps.Account.RegisterPublicRoutes(api)
		deps.Account.RegisterRoutes(api)
	}
	if deps.Profile != nil {
		deps.Profile.RegisterPublicRoutes(api)
		deps.Profile.RegisterRoutes(api)
	}
	if deps.Reports != nil {
		deps.Reports.RegisterRoutes(api)
	}
	if deps.Usage != nil {
		deps.Usage.RegisterRoutes(api)
		if deps.Config.IsDevLike() {
			deps.Usage.RegisterDevRoutes(api.Group("/dev"))
		}
	}

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "not_found", "route not found", nil)
	})
	return r
}

func rateLimitGroup(c *gin.Context) string {
	path := c.FullPath()
	switch {
	case c.Request.Method == http.MethodPost && path == apiPrefix+"/reports":
		return groupAnalyze
	case path == apiPrefix+"/reports/:id/export" || path == apiPrefix+"/reports/export":
		return groupExport
	case c.Request.Method == http.MethodPost && strings.HasPrefix(path, apiPrefix+"/account/"):
		return groupAccount
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
