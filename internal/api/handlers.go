package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/storefront-insights/internal/advisor"
	"github.com/ignite/storefront-insights/internal/analytics"
	"github.com/ignite/storefront-insights/internal/config"
	"github.com/ignite/storefront-insights/internal/dispatch"
	"github.com/ignite/storefront-insights/internal/domain"
	"github.com/ignite/storefront-insights/internal/metrics"
	"github.com/ignite/storefront-insights/internal/pkg/httputil"
	"github.com/ignite/storefront-insights/internal/pkg/logger"
)

// Advice sources, used as metric labels.
const (
	adviceFromPersisted = "persisted"
	adviceFresh         = "fresh"
	adviceFallback      = "fallback"
)

// Dispatcher delivers a digest synchronously.
type Dispatcher interface {
	Dispatch(ctx context.Context, c dispatch.Content) bool
}

// Enqueuer schedules a digest for background delivery.
type Enqueuer interface {
	Enqueue(c dispatch.Content) bool
}

// Handlers contains all HTTP handlers
type Handlers struct {
	cfg          *config.Config
	orchestrator *analytics.Orchestrator
	store        analytics.RunStore
	engine       *advisor.Engine
	dispatcher   Dispatcher
	queue        Enqueuer
	startedAt    time.Time
	log          *logger.Logger
}

// NewHandlers creates a new Handlers instance. dispatcher and queue may be
// nil when digests are disabled.
func NewHandlers(cfg *config.Config, orchestrator *analytics.Orchestrator, store analytics.RunStore, engine *advisor.Engine) *Handlers {
	return &Handlers{
		cfg:          cfg,
		orchestrator: orchestrator,
		store:        store,
		engine:       engine,
		startedAt:    time.Now(),
		log:          logger.Default().With("component", "api"),
	}
}

// SetDispatcher sets the synchronous digest dispatcher
func (h *Handlers) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

// SetQueue sets the background digest queue
func (h *Handlers) SetQueue(q Enqueuer) {
	h.queue = q
}

// RunRequest is the body of a manual run.
type RunRequest struct {
	Days      *int `json:"days"`
	SendEmail bool `json:"send_email"`
}

// RunResponse wraps a persisted result. Delivered is set only when a digest
// was requested.
type RunResponse struct {
	Result    *domain.AnalyticsResult `json:"result"`
	Delivered *bool                   `json:"delivered,omitempty"`
	Queued    *bool                   `json:"queued,omitempty"`
}

// RunAnalytics handles POST /api/analytics/run.
func (h *Handlers) RunAnalytics(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	days := h.cfg.Analytics.DefaultDays
	if req.Days != nil {
		days = *req.Days
	}

	ctx := analytics.WithTrigger(r.Context(), "manual")
	res, err := h.orchestrator.Run(ctx, days)
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	resp := RunResponse{Result: res}
	if req.SendEmail {
		delivered := false
		if h.dispatcher != nil {
			delivered = h.dispatcher.Dispatch(r.Context(), h.digest(res))
		} else {
			h.log.Warn("digest requested but dispatch is disabled", "run_id", res.ID)
		}
		resp.Delivered = &delivered
	}
	httputil.OK(w, resp)
}

// CronAnalytics handles POST /api/cron/analytics. The digest, when enabled,
// goes through the background queue.
func (h *Handlers) CronAnalytics(w http.ResponseWriter, r *http.Request) {
	if !h.cronAuthorized(r) {
		h.log.Warn("cron trigger rejected", "remote", r.RemoteAddr)
		httputil.Unauthorized(w)
		return
	}

	ctx := analytics.WithTrigger(r.Context(), "cron")
	res, err := h.orchestrator.Run(ctx, h.cfg.Schedule.Days)
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	resp := RunResponse{Result: res}
	if h.cfg.Schedule.SendEmail {
		var queued bool
		switch {
		case h.queue != nil:
			queued = h.queue.Enqueue(h.digest(res))
		case h.dispatcher != nil:
			queued = h.dispatcher.Dispatch(r.Context(), h.digest(res))
		}
		resp.Queued = &queued
	}
	httputil.OK(w, resp)
}

func (h *Handlers) cronAuthorized(r *http.Request) bool {
	secret := h.cfg.Server.CronSecret
	if secret == "" {
		return false
	}
	got := r.Header.Get("X-Cron-Secret")
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

// GetLatest handles GET /api/analytics/latest.
func (h *Handlers) GetLatest(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.Latest(r.Context())
	if errors.Is(err, analytics.ErrNoRuns) {
		httputil.NotFound(w, "no analytics runs yet")
		return
	}
	if err != nil {
		httputil.ServiceUnavailable(w, httputil.CodeDataUnavailable, "run store unavailable", err)
		return
	}
	httputil.OK(w, res)
}

// GetAdvice handles GET /api/analytics/advice. The latest persisted run is
// reused when it covers the requested days; otherwise a fresh result is
// computed and not persisted. Every response carries the advice shape: a bad
// days value returns the fallback advice with 400, other failures with 503.
func (h *Handlers) GetAdvice(w http.ResponseWriter, r *http.Request) {
	days := h.cfg.Analytics.DefaultDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.log.Warn("advice request rejected", "days", v, "error", err)
			httputil.JSON(w, http.StatusBadRequest, advisor.Fallback())
			return
		}
		days = n
	}
	if err := h.orchestrator.Validate(days); err != nil {
		h.log.Warn("advice request rejected", "days", days, "error", err)
		httputil.JSON(w, http.StatusBadRequest, advisor.Fallback())
		return
	}

	source := adviceFromPersisted
	res, err := h.store.Latest(r.Context())
	if err != nil && !errors.Is(err, analytics.ErrNoRuns) {
		h.log.Warn("latest run unavailable, computing fresh", "error", err)
	}
	if err != nil || res.Days != days {
		source = adviceFresh
		res, err = h.orchestrator.Compute(analytics.WithTrigger(r.Context(), "advice"), days)
		if err != nil {
			h.log.Error("advice computation failed", "days", days, "error", err)
			metrics.AdviceTotal.WithLabelValues(adviceFallback).Inc()
			httputil.JSON(w, http.StatusServiceUnavailable, advisor.Fallback())
			return
		}
	}

	advice := h.engine.Advise(res)
	metrics.AdviceTotal.WithLabelValues(source).Inc()
	metrics.HealthScore.Set(float64(advice.DailyDigest.HealthScore))
	httputil.OK(w, advice)
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"digest":    h.dispatcher != nil,
	})
}

func (h *Handlers) digest(res *domain.AnalyticsResult) dispatch.Content {
	advice := h.engine.Advise(res)
	return dispatch.Content{Result: res, Advice: &advice}
}

func (h *Handlers) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analytics.ErrValidation):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, analytics.ErrDataUnavailable):
		httputil.ServiceUnavailable(w, httputil.CodeDataUnavailable, "event data unavailable", err)
	case errors.Is(err, analytics.ErrPersistFailed):
		h.log.Error("run not persisted", "error", err)
		httputil.Error(w, http.StatusInternalServerError, httputil.CodePersistFailed, "analytics run could not be saved")
	default:
		httputil.InternalError(w, err)
	}
}
