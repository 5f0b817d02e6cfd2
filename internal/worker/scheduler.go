// Package worker runs the analytics pipeline on a fixed schedule.
package worker

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/storefront-insights/internal/advisor"
	"github.com/ignite/storefront-insights/internal/analytics"
	"github.com/ignite/storefront-insights/internal/config"
	"github.com/ignite/storefront-insights/internal/dispatch"
	"github.com/ignite/storefront-insights/internal/domain"
	"github.com/ignite/storefront-insights/internal/pkg/idempotency"
)

// Runner computes and persists one analytics run.
type Runner interface {
	Run(ctx context.Context, days int) (*domain.AnalyticsResult, error)
}

// Enqueuer schedules a digest for delivery.
type Enqueuer interface {
	Enqueue(c dispatch.Content) bool
}

// AnalyticsScheduler triggers a run once per interval slot. Slots are
// claimed through the claimer so that only one replica runs each slot.
type AnalyticsScheduler struct {
	runner    Runner
	engine    *advisor.Engine
	claims    idempotency.Claimer
	queue     Enqueuer
	workerID  string
	interval  time.Duration
	days      int
	sendEmail bool
	now       func() time.Time

	runsCompleted int64
	runsFailed    int64
	slotsSkipped  int64
}

// NewAnalyticsScheduler creates a scheduler from the schedule config.
// claims may be nil for a single replica.
func NewAnalyticsScheduler(runner Runner, engine *advisor.Engine, claims idempotency.Claimer, cfg config.ScheduleConfig) *AnalyticsScheduler {
	interval := cfg.Interval()
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	days := cfg.Days
	if days <= 0 {
		days = 7
	}
	return &AnalyticsScheduler{
		runner:    runner,
		engine:    engine,
		claims:    claims,
		workerID:  uuid.New().String()[:8],
		interval:  interval,
		days:      days,
		sendEmail: cfg.SendEmail,
		now:       time.Now,
	}
}

// SetQueue sets the digest queue. Without one no digest is sent.
func (s *AnalyticsScheduler) SetQueue(q Enqueuer) {
	s.queue = q
}

// Start runs the current slot immediately, then one per tick. It blocks
// until ctx is cancelled.
func (s *AnalyticsScheduler) Start(ctx context.Context) {
	log.Printf("[Scheduler] Starting worker=%s (interval=%s, days=%d, send_email=%v)",
		s.workerID, s.interval, s.days, s.sendEmail)

	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Scheduler] Stopping (completed=%d failed=%d skipped=%d)",
				atomic.LoadInt64(&s.runsCompleted), atomic.LoadInt64(&s.runsFailed), atomic.LoadInt64(&s.slotsSkipped))
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// slotKey names the interval slot containing t.
func (s *AnalyticsScheduler) slotKey(t time.Time) string {
	return "schedule:" + t.UTC().Truncate(s.interval).Format(time.RFC3339)
}

// Tick runs the current slot unless another replica already claimed it.
// It reports whether a run completed.
func (s *AnalyticsScheduler) Tick(ctx context.Context) bool {
	key := s.slotKey(s.now())

	claimed := false
	if s.claims != nil {
		ok, err := s.claims.Claim(ctx, key, s.interval)
		switch {
		case err != nil:
			log.Printf("[Scheduler] Claim store unavailable, running %s unguarded: %v", key, err)
		case !ok:
			atomic.AddInt64(&s.slotsSkipped, 1)
			log.Printf("[Scheduler] Slot %s already claimed, skipping", key)
			return false
		default:
			claimed = true
		}
	}

	start := time.Now()
	res, err := s.runner.Run(analytics.WithTrigger(ctx, "schedule"), s.days)
	if err != nil {
		atomic.AddInt64(&s.runsFailed, 1)
		log.Printf("[Scheduler] Run for %s failed: %v", key, err)
		if claimed {
			if relErr := s.claims.Release(context.WithoutCancel(ctx), key); relErr != nil {
				log.Printf("[Scheduler] Failed to release %s: %v", key, relErr)
			}
		}
		return false
	}
	atomic.AddInt64(&s.runsCompleted, 1)
	log.Printf("[Scheduler] Run %s completed in %s (orders=%d, recommendations=%d)",
		res.ID, time.Since(start).Round(time.Millisecond), res.Summary.OrderCount, len(res.Recommendations))

	if s.sendEmail && s.queue != nil {
		advice := s.engine.Advise(res)
		if !s.queue.Enqueue(dispatch.Content{Result: res, Advice: &advice}) {
			log.Printf("[Scheduler] Digest for run %s was not queued", res.ID)
		}
	}
	return true
}

// Stats returns completed, failed and skipped counts.
func (s *AnalyticsScheduler) Stats() (completed, failed, skipped int64) {
	return atomic.LoadInt64(&s.runsCompleted), atomic.LoadInt64(&s.runsFailed), atomic.LoadInt64(&s.slotsSkipped)
}
