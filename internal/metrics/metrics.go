// Package metrics exposes Prometheus collectors for scheduling activity and
// HTTP traffic, served at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchedulerRuns counts scheduling runs per feature and outcome.
	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "playbuddy",
			Subsystem: "notify",
			Name:      "scheduler_runs_total",
			Help:      "Total scheduling runs",
		},
		[]string{"feature", "outcome"}, // outcome: scheduled, no_permission
	)

	// SlotsScheduled counts individual notification slots per feature.
	SlotsScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "playbuddy",
			Subsystem: "notify",
			Name:      "slots_scheduled_total",
			Help:      "Notification slots handed to the platform service",
		},
		[]string{"feature"},
	)

	// SlotFailures counts platform scheduling calls that failed.
	SlotFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "playbuddy",
			Subsystem: "notify",
			Name:      "slot_failures_total",
			Help:      "Platform scheduling calls that failed",
		},
		[]string{"feature"},
	)

	// EmptySlots counts plan slots with no eligible event.
	EmptySlots = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "playbuddy",
			Subsystem: "notify",
			Name:      "empty_slots_total",
			Help:      "Plan slots recorded with placeholder content",
		},
	)

	requestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "playbuddy",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total HTTP requests",
		},
		[]string{"method", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "playbuddy",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// Middleware records request counts and durations for every HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		requestCounter.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
		requestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
