package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"signup-backend/internal/applications"
	"signup-backend/internal/licenses"
	"signup-backend/internal/shared/auth"
	"signup-backend/internal/shared/config"
	"signup-backend/internal/shared/metrics"
	"signup-backend/internal/shared/server/middleware"
	"signup-backend/internal/shared/server/respond"
	"signup-backend/internal/signup"
)

// RouterDeps carries the handlers the router mounts. Nil handlers are skipped.
type RouterDeps struct {
	Config              config.Config
	DB                  *sql.DB
	SignupHandler       *signup.Handler
	ApplicationsHandler *applications.Handler
	LicensesHandler     *licenses.Handler
	RateLimiter         *middleware.RateLimiter
}

// Signup traffic is anonymous, so buckets are per client IP. Session polling
// gets a looser bucket than mutations.
var signupRateRules = map[string]middleware.RateLimitRule{
	"DEFAULT": {Rate: 2, Burst: 20},
	"POLLING": {Rate: 10, Burst: 40},
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
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", health(deps.DB))

	if deps.SignupHandler != nil {
		limiter := deps.RateLimiter
		if limiter == nil {
			limiter = middleware.NewRateLimiter(nil)
		}
		pub := api.Group("/signup", middleware.RateLimit(middleware.RateLimitConfig{
			Rules:   signupRateRules,
			Limiter: limiter,
			GroupFor: func(c *gin.Context) string {
				if c.Request.Method == http.MethodGet {
					return "POLLING"
				}
				return "DEFAULT"
			},
			PrincipalFor: func(c *gin.Context) string { return c.ClientIP() },
		}))
		deps.SignupHandler.RegisterRoutes(pub)
	}

	if deps.ApplicationsHandler != nil {
		admin := api.Group("", middleware.Auth(), middleware.RequireRole(auth.RoleSuperAdmin))
		deps.ApplicationsHandler.RegisterRoutes(admin)
	}

	if deps.LicensesHandler != nil {
		corp := api.Group("", middleware.Auth(), middleware.RequireRole(auth.RoleCorporateAdmin, auth.RoleSuperAdmin))
		deps.LicensesHandler.RegisterRoutes(corp)
	}

	return r
}

func health(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true, "database": "memory"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			respond.Error(c, http.StatusServiceUnavailable, "unavailable", "database unreachable", nil)
			return
		}
		respond.JSON(c, http.StatusOK, gin.H{"ok": true, "database": "postgres"})
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
