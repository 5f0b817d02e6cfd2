package advisor

import (
	"math"
	"sort"

	"github.com/ignite/storefront-insights/internal/config"
	"github.com/ignite/storefront-insights/internal/domain"
)

const fallbackHealthScore = 50

// Engine computes advice. It holds no state besides its configuration and
// is safe for concurrent use.
type Engine struct {
	cfg config.AdvisorConfig
}

// NewEngine creates an engine. Settings are used as given, so a zero
// penalty or threshold disables it; config.Load fills unset fields. Only
// values that cannot drive detection are raised to their minimum.
func NewEngine(cfg config.AdvisorConfig) *Engine {
	if cfg.MinSample < 2 {
		cfg.MinSample = 2
	}
	if cfg.TrailingWindow < cfg.MinSample-1 {
		cfg.TrailingWindow = cfg.MinSample - 1
	}
	if cfg.MaxTopActions < 0 {
		cfg.MaxTopActions = 0
	}
	if cfg.HorizonDays < 1 {
		cfg.HorizonDays = 1
	}
	return &Engine{cfg: cfg}
}

// Fallback is the advice returned when there is no result to advise on.
func Fallback() domain.AIAdviceResult {
	return domain.AIAdviceResult{
		DailyDigest: domain.DailyDigest{
			TopActions:  []string{},
			HealthScore: fallbackHealthScore,
		},
		Anomalies:         []domain.Anomaly{},
		BudgetSuggestions: []domain.BudgetSuggestion{},
		Predictions:       []domain.Prediction{},
		Correlations:      []domain.Correlation{},
		Coverage:          map[string]domain.DataStatus{},
	}
}

// Advise derives advice from r. The output depends only on r and the
// engine configuration; GeneratedAt is r.RunAt.
func (e *Engine) Advise(r *domain.AnalyticsResult) domain.AIAdviceResult {
	if r == nil {
		return Fallback()
	}

	anomalies, coverage := e.anomalies(r)
	negative, positive := e.coreTrendDirections(r)

	stats := domain.QuickStats{Wins: positive}
	var critIssues, warnIssues, critAnomalies int
	for _, is := range r.DeliveryIssues {
		switch is.Severity {
		case domain.SeverityCritical:
			critIssues++
		case domain.SeverityWarning:
			warnIssues++
		}
	}
	for _, a := range anomalies {
		switch a.Severity {
		case domain.SeverityCritical:
			critAnomalies++
		case domain.SeverityWarning:
			stats.Warnings++
		}
	}
	for _, rec := range r.Recommendations {
		if rec.Direction == domain.DirectionPositive {
			stats.Wins++
		}
	}
	stats.Warnings += warnIssues
	stats.Critical = critIssues + critAnomalies

	score := 100 -
		e.cfg.CriticalIssuePenalty*float64(critIssues) -
		e.cfg.NegativeTrendPenalty*float64(negative) -
		e.cfg.CriticalAnomalyPenalty*float64(critAnomalies) -
		e.cfg.WarningIssuePenalty*float64(warnIssues)

	return domain.AIAdviceResult{
		DailyDigest: domain.DailyDigest{
			TopActions:  e.topActions(r.Recommendations),
			HealthScore: clampScore(score),
			QuickStats:  stats,
			GeneratedAt: r.RunAt,
		},
		Anomalies:         anomalies,
		BudgetSuggestions: e.budget(r.Attribution),
		Predictions:       e.predictions(r),
		Correlations:      e.correlations(r),
		Coverage:          coverage,
		GeneratedAt:       r.RunAt,
	}
}

func clampScore(score float64) int {
	if math.IsNaN(score) {
		return fallbackHealthScore
	}
	return int(math.Round(math.Max(0, math.Min(100, score))))
}

// coreTrendDirections counts core metrics whose fitted slope moves the
// series by at least TrendDeclineThreshold of its mean over the window.
func (e *Engine) coreTrendDirections(r *domain.AnalyticsResult) (negative, positive int) {
	for _, metric := range e.cfg.CoreMetrics {
		t, ok := r.Trend(metric)
		if !ok || t.Status != domain.StatusOK || len(t.Points) < e.cfg.MinSample {
			continue
		}
		values := t.Values()
		m := mean(values)
		if m == 0 {
			continue
		}
		fit := fitLine(values)
		change := fit.slope * float64(len(values)-1) / math.Abs(m)
		switch {
		case change <= -e.cfg.TrendDeclineThreshold:
			negative++
		case change >= e.cfg.TrendDeclineThreshold:
			positive++
		}
	}
	return negative, positive
}

// topActions ranks recommendations by priority x (1 + magnitude).
func (e *Engine) topActions(recs []domain.Recommendation) []string {
	type ranked struct {
		msg    string
		impact float64
	}
	rs := make([]ranked, 0, len(recs))
	for _, rec := range recs {
		mag := math.Abs(rec.Magnitude)
		if math.IsNaN(mag) || math.IsInf(mag, 0) {
			mag = 0
		}
		rs = append(rs, ranked{msg: rec.Message, impact: float64(rec.Priority) * (1 + mag)})
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].impact > rs[j].impact })

	n := min(len(rs), e.cfg.MaxTopActions)
	out := make([]string, 0, n)
	for _, r := range rs[:n] {
		out = append(out, r.msg)
	}
	return out
}
