// Package metrics holds the Prometheus collectors of the insights service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeValidation      = "validation_error"
	OutcomeDataUnavailable = "data_unavailable"
	OutcomePersistFailed   = "persist_failed"
	OutcomeCanceled        = "canceled"
	OutcomeError           = "error"
)

// Dispatch outcomes.
const (
	DispatchDelivered = "delivered"
	DispatchDuplicate = "duplicate"
	DispatchFailed    = "failed"
	DispatchDropped   = "dropped"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_analytics_runs_total",
		Help: "Analytics runs by outcome",
	}, []string{"trigger", "outcome"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "insights_analytics_run_duration_seconds",
		Help:    "Time to compute and persist one analytics run",
		Buckets: prometheus.DefBuckets,
	})

	AdviceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_advice_total",
		Help: "Advice computations by source (persisted, fresh, fallback)",
	}, []string{"source"})

	HealthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "insights_health_score",
		Help: "Health score of the most recent advice",
	})

	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_digest_dispatch_total",
		Help: "Digest dispatches by outcome",
	}, []string{"outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "insights_digest_queue_depth",
		Help: "Digests waiting in the dispatch queue",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insights_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Middleware records request counts and latency keyed by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := routeLabel(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// unmatchedRoute labels requests no route matched, keeping the label set
// bounded when scanners request arbitrary paths.
const unmatchedRoute = "unmatched"

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}
