package main

import (
	"log/slog"
	"net/netip"

	"github.com/go-chi/chi/v5"

	"github.com/studycompanion/studycompanion/internal/config"
	"github.com/studycompanion/studycompanion/internal/handler"
	"github.com/studycompanion/studycompanion/internal/middleware"
)

type routerDeps struct {
	cfg      *config.Config
	logger   *slog.Logger
	base     *handler.Handler
	health   *handler.HealthHandler
	metrics  *handler.MetricsHandler
	study    *handler.StudyHandler
	accounts *handler.AccountHandler
	progress *handler.ProgressHandler
	web      *handler.DashboardHandler
	sessions middleware.SessionAuthenticator
	limiter  middleware.RateLimiter
	proxies  []netip.Prefix
}

// newRouter configures the chi router with all routes and middleware.
func newRouter(d routerDeps) *chi.Mux {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = d.cfg.GetCORSAllowedOrigins()
	corsCfg.AllowCredentials = len(corsCfg.AllowedOrigins) > 0

	// Global middleware
	r.Use(middleware.ClientIP(d.proxies))
	r.Use(middleware.RequestID)
	r.Use(middleware.Trace)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recoverer(d.logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: d.cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(d.cfg.MaxRequestBodySize))
	r.Use(middleware.Authenticate(middleware.SessionConfig{
		Logger:        d.logger,
		Authenticator: d.sessions,
	}))

	// Health endpoints
	r.Get("/healthz", d.health.Healthz)
	r.Get("/readyz", d.health.Readyz)
	r.Get("/api/health", d.health.APIHealth)
	r.Get("/metrics", d.metrics.Metrics)

	r.Get("/", d.web.Index)

	aiLimit := middleware.RateLimitAI(middleware.RateLimitConfig{
		Logger:    d.logger,
		Limiter:   d.limiter,
		Enabled:   d.cfg.RateLimitEnabled,
		PerMinute: d.cfg.RateLimitAIPerMinute,
		Burst:     d.cfg.RateLimitAIBurst,
	})

	aiRoutes := func(r chi.Router) {
		r.With(aiLimit).Post("/summarize", d.study.Summarize)
		r.With(aiLimit).Post("/recommendations", d.study.Recommend)
		r.With(aiLimit).Post("/chat", d.study.Chat)
	}

	// Unversioned aliases used by the dashboard.
	r.Route("/api", aiRoutes)

	r.Route("/api/v1", func(r chi.Router) {
		aiRoutes(r)
		r.With(aiLimit).Post("/summarize/batch", d.study.SummarizeBatch)

		r.Post("/auth/register", d.accounts.Register)
		r.Post("/auth/login", d.accounts.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession)

			r.Post("/auth/logout", d.accounts.Logout)
			r.Get("/me", d.accounts.Me)

			r.Post("/progress", d.progress.Record)
			r.Get("/progress", d.progress.List)
			r.Get("/progress/overview", d.progress.Overview)
			r.Get("/summaries", d.progress.Summaries)
			r.Get("/materials", d.progress.Materials)
			r.Get("/usage", d.progress.Usage)
			r.Get("/chat/{conversationID}", d.study.ChatHistory)
		})
	})

	// 404 and 405 handlers
	r.NotFound(d.base.NotFound)
	r.MethodNotAllowed(d.base.MethodNotAllowed)

	return r
}
