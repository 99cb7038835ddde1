// Package handler provides HTTP handlers for all API endpoints. Handlers
// operate on the notification schedulers and the kv-backed state; events and
// followed-organizer ids always arrive in the request body — this service
// never fetches them.
package handler

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/playbuddy/playbuddy-notify/internal/api/respond"
	"github.com/playbuddy/playbuddy-notify/internal/cache"
	"github.com/playbuddy/playbuddy-notify/internal/config"
	"github.com/playbuddy/playbuddy-notify/internal/db"
	"github.com/playbuddy/playbuddy-notify/internal/notify"
	"github.com/playbuddy/playbuddy-notify/internal/token"
)

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	scheduler *notify.Scheduler
	discover  *notify.DiscoverScheduler
	cache     *cache.Cache
	cfg       *config.Config
	pool      *db.Pool // nil when running on the in-memory store
	tokens    *token.Client
	validate  *validator.Validate
}

// New creates a Handler with shared dependencies.
func New(scheduler *notify.Scheduler, discover *notify.DiscoverScheduler, c *cache.Cache, cfg *config.Config, pool *db.Pool, tokens *token.Client) *Handler {
	return &Handler{
		scheduler: scheduler,
		discover:  discover,
		cache:     c,
		cfg:       cfg,
		pool:      pool,
		tokens:    tokens,
		validate:  validator.New(),
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "PlayBuddy Notify API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"database":  "not configured (memory store)",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	if err := h.pool.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
