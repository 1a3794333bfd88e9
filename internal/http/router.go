package http

import (
	"log/slog"
	"time"

	"github.com/geocoder89/holocron/internal/auth"
	"github.com/geocoder89/holocron/internal/domain/user"
	"github.com/geocoder89/holocron/internal/http/handlers"
	"github.com/geocoder89/holocron/internal/http/middlewares"
	"github.com/geocoder89/holocron/internal/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxAuthBodyBytes = 16 << 10

type RateLimits struct {
	Auth middlewares.Limiter
	API  middlewares.Limiter
}

type Deps struct {
	Auth    *auth.Service
	Store   handlers.Pinger
	Prom    *observability.Prom
	Limits  RateLimits
	Cookies handlers.CookieOptions

	CORSAllowedOrigins []string
	ServiceName        string
	Prod               bool
}

func NewRouter(log *slog.Logger, d Deps) *gin.Engine {
	r := gin.New()

	// only trust X-Forwarded-For from a proxy configured at deploy time
	_ = r.SetTrustedProxies(nil)

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	if d.ServiceName != "" {
		r.Use(otelgin.Middleware(d.ServiceName))
	}
	r.Use(middlewares.RequestLogger(log))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders(d.Prod))
	r.Use(middlewares.CORSMiddleware(d.CORSAllowedOrigins))

	var recorder middlewares.LimitRecorder
	if d.Prom != nil {
		recorder = d.Prom
		r.GET("/metrics", gin.WrapH(d.Prom.Handler()))
	}

	// health
	h := handlers.NewHealthHandler(d.Store)
	r.GET("/", h.Root)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	authLimiter := d.Limits.Auth
	if authLimiter == nil {
		authLimiter = middlewares.NewRateLimiter(10, 15*time.Minute)
	}
	apiLimiter := d.Limits.API
	if apiLimiter == nil {
		apiLimiter = middlewares.NewRateLimiter(100, time.Hour)
	}

	authMW := middlewares.NewAuthMiddleware(d.Auth)
	authHandler := handlers.NewAuthHandler(d.Auth, d.Cookies, log)
	usersHandler := handlers.NewUsersHandler(d.Auth, log)

	v1 := r.Group("/api/v1")

	authGroup := v1.Group("/auth",
		middlewares.RateLimit("auth", authLimiter, middlewares.KeyByIP, recorder, log),
		middlewares.MaxBodyBytes(maxAuthBodyBytes),
		middlewares.RequireJSON(),
	)
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	protected := v1.Group("",
		authMW.RequireAuth(),
		middlewares.RateLimit("api", apiLimiter, middlewares.KeyByUserOrIP, recorder, log),
	)
	{
		protected.GET("/users/me", usersHandler.Me)
	}

	admin := protected.Group("/admin", authMW.RequireRole(user.RoleAdmin))
	{
		admin.POST("/users/:id/revoke-session", usersHandler.RevokeSession)
	}

	return r
}
