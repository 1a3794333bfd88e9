package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/holocron/internal/auth"
	"github.com/geocoder89/holocron/internal/config"
	"github.com/geocoder89/holocron/internal/db"
	httpx "github.com/geocoder89/holocron/internal/http"
	"github.com/geocoder89/holocron/internal/http/handlers"
	"github.com/geocoder89/holocron/internal/http/middlewares"
	"github.com/geocoder89/holocron/internal/notifications"
	"github.com/geocoder89/holocron/internal/observability"
	"github.com/geocoder89/holocron/internal/redisclient"
	"github.com/geocoder89/holocron/internal/repo"
	"github.com/geocoder89/holocron/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	store, closeStore, err := repo.Open(ctx, cfg, prom, log)
	if err != nil {
		log.Error("credential store unavailable", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
	})
	if err != nil {
		log.Error("token issuer", "err", err)
		os.Exit(1)
	}

	hasher := security.NewHasher(cfg.BcryptCost)

	alerter := notifications.NewProtectedNotifier(
		notifications.NewLogNotifier(log),
		notifications.ProtectedNotifierConfig{Timeout: 2 * time.Second},
	)

	svc := auth.NewService(store, issuer, hasher,
		auth.WithLogger(log),
		auth.WithRecorder(prom),
		auth.WithAlerter(alerter),
	)

	seedCtx, cancelSeed := config.WithTimeout(ctx, 10*time.Second)
	created, err := db.EnsureAdminUser(seedCtx, store, hasher, cfg.AdminEmail, cfg.AdminPassword)
	cancelSeed()
	if err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}
	if created {
		log.Info("admin user created", "email", cfg.AdminEmail)
	}

	limits, closeLimits := rateLimits(ctx, cfg, log)
	defer closeLimits()

	// set up routers with the log
	router := httpx.NewRouter(log, httpx.Deps{
		Auth:   svc,
		Store:  store,
		Prom:   prom,
		Limits: limits,
		Cookies: handlers.CookieOptions{
			Secure: cfg.IsProd(),
			MaxAge: issuer.RefreshTTL(),
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ServiceName:        cfg.ServiceName,
		Prod:               cfg.IsProd(),
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("server shutting down")
	case err := <-serverErr:
		log.Error("server failed", "err", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := config.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
	}

	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Warn("tracer shutdown failed", "err", err)
	}

	log.Info("shutdown complete")
}

// rateLimits picks the Redis limiter when REDIS_ADDR is set so limits hold
// across instances, and the in-process limiter otherwise.
func rateLimits(ctx context.Context, cfg config.Config, log *slog.Logger) (httpx.RateLimits, func()) {
	if cfg.RedisAddr == "" {
		return httpx.RateLimits{
			Auth: middlewares.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow),
			API:  middlewares.NewRateLimiter(cfg.APIRateLimit, cfg.APIRateWindow),
		}, func() {}
	}

	rc := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := config.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := rc.Ping(pingCtx); err != nil {
		// limiter fails open per request; keep starting
		log.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "err", err)
	}

	return httpx.RateLimits{
		Auth: middlewares.NewRedisRateLimiter(rc, "holocron:rl:", cfg.AuthRateLimit, cfg.AuthRateWindow),
		API:  middlewares.NewRedisRateLimiter(rc, "holocron:rl:", cfg.APIRateLimit, cfg.APIRateWindow),
	}, func() { _ = rc.Close() }
}
