package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/storefront-insights/internal/config"
	"github.com/ignite/storefront-insights/internal/domain"
	"github.com/ignite/storefront-insights/internal/metrics"
	"github.com/ignite/storefront-insights/internal/pkg/logger"
)

type triggerKey struct{}

// WithTrigger labels runs started with ctx (manual, cron, schedule, advice).
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

func triggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok {
		return t
	}
	return "unknown"
}

// Orchestrator sequences aggregation, analysis and recommendation into one
// AnalyticsResult.
type Orchestrator struct {
	aggregator  *Aggregator
	analyzer    *Analyzer
	recommender *Recommender
	store       RunStore
	metrics     []string
	maxDays     int
	now         func() time.Time
	log         *logger.Logger
}

// NewOrchestrator wires the three stages to source and store.
func NewOrchestrator(source EventSource, store RunStore, cfg *config.Config) *Orchestrator {
	if cfg == nil {
		cfg = config.Default()
	}
	m := cfg.Analytics.Metrics
	if len(m) == 0 {
		m = DefaultMetrics
	}
	return &Orchestrator{
		aggregator:  NewAggregator(source),
		analyzer:    NewAnalyzer(source, cfg.Delivery),
		recommender: NewRecommender(cfg.Recommendation, cfg.Delivery),
		store:       store,
		metrics:     m,
		maxDays:     cfg.Analytics.MaxDays,
		now:         time.Now,
		log:         logger.Default().With("component", "orchestrator"),
	}
}

// SetClock replaces the clock used for run_at.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// Validate checks the requested window length.
func (o *Orchestrator) Validate(days int) error {
	if days < 1 {
		return fmt.Errorf("%w: days must be >= 1, got %d", ErrValidation, days)
	}
	if o.maxDays > 0 && days > o.maxDays {
		return fmt.Errorf("%w: days must be <= %d, got %d", ErrValidation, o.maxDays, days)
	}
	return nil
}

// Compute builds a complete result without persisting it. run_at is the
// time Compute started. The context is checked between stages and a
// cancelled run returns no result.
func (o *Orchestrator) Compute(ctx context.Context, days int) (*domain.AnalyticsResult, error) {
	if err := o.Validate(days); err != nil {
		return nil, err
	}
	runAt := o.now().UTC()
	w := domain.NewWindow(runAt, days)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	summary, attribution, campaigns, err := o.aggregator.Aggregate(ctx, w)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	trends, issues, err := o.analyzer.Analyze(ctx, w, o.metrics)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prior := o.loadPrior(ctx)
	recs := o.recommender.Recommend(RecommendInput{
		Summary:     summary,
		Attribution: attribution,
		Trends:      trends,
		Prior:       prior,
	})

	if issues == nil {
		issues = []domain.DeliveryIssue{}
	}
	return &domain.AnalyticsResult{
		ID:              uuid.New().String(),
		RunAt:           runAt,
		Days:            days,
		Summary:         summary,
		Attribution:     attribution,
		Campaigns:       campaigns,
		Trends:          trends,
		DeliveryIssues:  issues,
		Recommendations: recs,
	}, nil
}

func (o *Orchestrator) loadPrior(ctx context.Context) *domain.AnalyticsResult {
	if o.store == nil {
		return nil
	}
	prior, err := o.store.Latest(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoRuns) {
			o.log.Warn("prior run unavailable", "error", err)
		}
		return nil
	}
	return prior
}

// Run computes a result and makes exactly one attempt to persist it. A save
// failure is returned wrapped in ErrPersistFailed and the result is dropped.
func (o *Orchestrator) Run(ctx context.Context, days int) (*domain.AnalyticsResult, error) {
	start := time.Now()
	trigger := triggerFrom(ctx)

	res, err := o.Compute(ctx, days)
	if err == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else if saveErr := o.store.Save(ctx, res); saveErr != nil {
			err = fmt.Errorf("%w: %w", ErrPersistFailed, saveErr)
		}
	}

	metrics.RunDuration.Observe(time.Since(start).Seconds())
	outcome := Outcome(err)
	metrics.RunsTotal.WithLabelValues(trigger, outcome).Inc()

	if err != nil {
		o.log.Error("analytics run failed", "trigger", trigger, "days", days, "outcome", outcome, "error", err)
		return nil, err
	}
	o.log.Info("analytics run complete",
		"trigger", trigger,
		"run_id", res.ID,
		"days", days,
		"orders", res.Summary.OrderCount,
		"recommendations", len(res.Recommendations),
		"delivery_issues", len(res.DeliveryIssues),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Outcome maps a run error to its metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrValidation):
		return metrics.OutcomeValidation
	case errors.Is(err, ErrDataUnavailable):
		return metrics.OutcomeDataUnavailable
	case errors.Is(err, ErrPersistFailed):
		return metrics.OutcomePersistFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeError
	}
}
