// Package httpapi mounts the team and user API on a Gin engine: the global
// middleware chain, the per-route authentication, idempotency and rate
// limiting, and the operational endpoints. Every failure, including the
// 404 and 405 fallbacks, is rendered as an error envelope.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/teamhub/docs" // registers the OpenAPI document
	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/config"
	"github.com/tbourn/teamhub/internal/http/handlers"
	"github.com/tbourn/teamhub/internal/http/middleware"
	"github.com/tbourn/teamhub/internal/services"
)

var (
	corsMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
		"X-Request-ID", "traceparent", "tracestate", middleware.HeaderIdempotencyKey,
	}
	exposedHeaders = []string{
		"X-Request-ID", "Content-Length", "ETag", "Retry-After", middleware.HeaderIdempotentReplay,
		middleware.HeaderRateLimit, middleware.HeaderRateRemaining,
	}
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), CORS and security
// headers, health and metrics endpoints, and then mounts the public API under
// cfg.APIBasePath.
//
// Global middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS, security headers, gzip
//
// Per route, authentication runs first so idempotency keys and rate-limit
// buckets are scoped to the user. The idempotency validator runs before the
// rate limiter so replays bypass it.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"Cookie", "Set-Cookie"},
	}))

	// 4) Panic recovery to the internal error envelope (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// ACAO: * is set even without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    exposedHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    exposedHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       false,
		EnablePolicy:  true,
		ExposeHeaders: exposedHeaders,
	}))

	// Response compression; the scraper handles its own encoding.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, apperr.NotFound("route not found", nil))
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, apperr.Validation("method not allowed", nil).WithStatus(http.StatusMethodNotAllowed))
	})

	// Liveness/health
	r.GET("/health", handlers.Health)

	// API docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← db
	teamSvc := services.NewTeamService(db)
	userSvc := services.NewUserService(db, cfg.BcryptCost)
	authSvc := services.NewAuthService(db, cfg.AuthTokenTTL)
	store := handlers.NewDBStore(db, cfg.IdempotencyTTL)
	h := handlers.New(teamSvc, userSvc, authSvc, store)

	limit := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler()
	idem := func(scope string) gin.HandlerFunc {
		return middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: scope, MaxLen: 200}, store.Lookup)
	}

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api"
	{
		// Sessions and registration
		api.POST("/auth/login", limit, h.Login)
		api.POST("/users", idem("users"), limit, h.CreateUser)
	}

	authed := api.Group("", middleware.RequireAuth(authSvc))
	{
		authed.POST("/auth/logout", limit, h.Logout)

		// Teams
		authed.GET("/teams", limit, h.ListTeams)
		authed.POST("/teams", idem("teams"), limit, h.CreateTeam)
		authed.GET("/teams/:id", limit, h.GetTeam)
		authed.PUT("/teams/:id", limit, h.UpdateTeam)
		authed.DELETE("/teams/:id", limit, h.DeleteTeam)

		// Users
		authed.GET("/users", limit, h.ListUsers)
		authed.GET("/users/:id", limit, h.GetUser)
		authed.DELETE("/users/:id", limit, h.DeleteUser)
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
