package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/moroccoguide/guide/internal/middleware"
)

// HandlerSet holds the handlers built in main; the api package cannot import
// the feature packages because they import api.
type HandlerSet struct {
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc
	Me       http.HandlerFunc

	Ask     http.HandlerFunc
	Reset   http.HandlerFunc
	History http.HandlerFunc

	SaveConversation  http.HandlerFunc
	ListConversations http.HandlerFunc

	GetQuota      http.HandlerFunc
	ListAuditLogs http.HandlerFunc

	AuthMiddleware func(http.Handler) http.Handler
}

// HealthCheck probes one dependency for the readiness endpoint. A nil Check
// reports the dependency as not configured.
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
	HealthChecks       []HealthCheck
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
	ready := readinessHandler(cfg.HealthChecks)
	r.Get("/health/ready", ready)
	r.Get("/health", ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter)
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
				r.Get("/me", h.Me)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Route("/chat", func(r chi.Router) {
				r.Post("/ask", h.Ask)
				r.Post("/reset", h.Reset)
				r.Get("/history", h.History)
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", h.SaveConversation)
				r.Get("/", h.ListConversations)
			})

			r.Get("/quota", h.GetQuota)
			r.Get("/audit", h.ListAuditLogs)
		})
	})

	return r
}

func readinessHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		health := map[string]string{"status": "healthy"}
		status := http.StatusOK

		for _, c := range checks {
			if c.Check == nil {
				health[c.Name] = "not configured"
				continue
			}
			if err := c.Check(ctx); err != nil {
				health[c.Name] = "unhealthy"
				health["status"] = "degraded"
				if !c.Optional {
					status = http.StatusServiceUnavailable
				}
				continue
			}
			health[c.Name] = "healthy"
		}

		JSON(w, status, health)
	}
}
