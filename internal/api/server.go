// Package api wires the HTTP surface: router, middleware, and handlers.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/playbuddy/playbuddy-notify/internal/api/handler"
	"github.com/playbuddy/playbuddy-notify/internal/cache"
	"github.com/playbuddy/playbuddy-notify/internal/config"
	"github.com/playbuddy/playbuddy-notify/internal/db"
	"github.com/playbuddy/playbuddy-notify/internal/metrics"
	"github.com/playbuddy/playbuddy-notify/internal/notify"
	"github.com/playbuddy/playbuddy-notify/internal/token"
)

// Deps holds everything the router needs.
type Deps struct {
	Scheduler *notify.Scheduler
	Discover  *notify.DiscoverScheduler
	Cache     *cache.Cache
	Config    *config.Config
	Pool      *db.Pool // nil when running on the in-memory store
	Tokens    *token.Client
}

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(metrics.Middleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   deps.Config.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if deps.Config.RateLimitEnabled {
		r.Use(RateLimitMiddleware(deps.Config.RateLimitRequests, deps.Config.RateLimitWindow))
	}

	// --- Handler dependencies ---
	h := handler.New(deps.Scheduler, deps.Discover, deps.Cache, deps.Config, deps.Pool, deps.Tokens)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	// Prometheus
	r.Handle("/metrics", promhttp.Handler())

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/notifications", func(r chi.Router) {
			r.Post("/schedule", h.RunSchedule)
			r.Get("/schedule", h.GetSchedule)
			r.Post("/schedule/cancel", h.CancelSchedule)
			r.Post("/preview", h.Preview)

			r.Get("/history", h.GetHistory)
			r.Post("/history/seen", h.MarkHistorySeen)
			r.Get("/history/unread_count", h.GetUnreadCount)

			r.Post("/discover/swipe", h.RecordSwipe)
			r.Post("/discover/schedule", h.RunDiscoverSchedule)
		})

		r.Post("/push_tokens", h.RegisterToken)
		r.Delete("/push_tokens", h.UnregisterToken)
	})

	return r
}
