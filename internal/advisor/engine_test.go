package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/storefront-insights/internal/analytics"
	"github.com/ignite/storefront-insights/internal/config"
	"github.com/ignite/storefront-insights/internal/domain"
)

var runAt = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine { return NewEngine(config.Default().Advisor) }

func trend(metric string, values ...float64) domain.Trend {
	w := domain.NewWindow(runAt, len(values))
	t := domain.Trend{Metric: metric, Status: domain.StatusOK}
	for i, v := range values {
		t.Points = append(t.Points, domain.TrendPoint{Index: i, PeriodStart: w.BucketStart(i), Value: v})
	}
	return t
}

func result(trends ...domain.Trend) *domain.AnalyticsResult {
	days := 0
	if len(trends) > 0 {
		days = len(trends[0].Points)
	}
	return &domain.AnalyticsResult{ID: "run-1", RunAt: runAt, Days: days, Trends: trends}
}

func TestAdvise_NilInputReturnsFallback(t *testing.T) {
	advice := newTestEngine().Advise(nil)

	assert.Equal(t, 50, advice.DailyDigest.HealthScore)
	assert.Equal(t, domain.QuickStats{}, advice.DailyDigest.QuickStats)
	assert.Empty(t, advice.DailyDigest.TopActions)
	assert.Empty(t, advice.Anomalies)
	assert.Empty(t, advice.BudgetSuggestions)
	assert.Empty(t, advice.Predictions)
	assert.Empty(t, advice.Correlations)
	assert.True(t, advice.GeneratedAt.IsZero())

	body, err := json.Marshal(advice)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"top_actions":[]`)
	assert.Contains(t, string(body), `"anomalies":[]`)
}

func TestAdvise_IsDeterministic(t *testing.T) {
	r := result(
		trend("revenue", 100, 120, 90, 110, 105, 400, 98, 101),
		trend("orders", 10, 12, 9, 11, 10, 40, 10, 10),
		trend("sessions", 200, 210, 190, 205, 200, 220, 198, 201),
	)
	r.Attribution = domain.Attribution{
		{Channel: "email", RevenueAttributed: 700, Spend: 30, SpendKnown: true},
		{Channel: "search", RevenueAttributed: 300, Spend: 70, SpendKnown: true},
	}
	r.Recommendations = []domain.Recommendation{
		{Rule: "revenue_growth", Priority: 2, Message: "grow", Direction: domain.DirectionPositive, Magnitude: 0.3},
		{Rule: "revenue_concentration", Priority: 3, Message: "diversify", Magnitude: 0.1},
	}

	e := newTestEngine()
	first, err := json.Marshal(e.Advise(r))
	require.NoError(t, err)
	second, err := json.Marshal(e.Advise(r))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// a separately constructed engine with the same config agrees
	third, err := json.Marshal(newTestEngine().Advise(r))
	require.NoError(t, err)
	assert.Equal(t, first, third)

	assert.Equal(t, runAt, newTestEngine().Advise(r).GeneratedAt)
}

func TestAdvise_HealthScoreFormula(t *testing.T) {
	r := result()
	r.DeliveryIssues = []domain.DeliveryIssue{
		{Severity: domain.SeverityCritical},
		{Severity: domain.SeverityWarning},
		{Severity: domain.SeverityWarning},
	}
	advice := newTestEngine().Advise(r)
	assert.Equal(t, 100-15-3-3, advice.DailyDigest.HealthScore)
	assert.Equal(t, domain.QuickStats{Warnings: 2, Critical: 1}, advice.DailyDigest.QuickStats)
}

func TestAdvise_HealthScoreClamped(t *testing.T) {
	r := result()
	for i := 0; i < 1000; i++ {
		r.DeliveryIssues = append(r.DeliveryIssues, domain.DeliveryIssue{Severity: domain.SeverityCritical})
	}
	// a long series with many level shifts produces critical anomalies as well
	values := make([]float64, 60)
	for i := range values {
		if i%6 == 5 {
			values[i] = 1e6
		} else {
			values[i] = 1
		}
	}
	r.Trends = []domain.Trend{trend("revenue", values...)}

	advice := newTestEngine().Advise(r)
	assert.Equal(t, 0, advice.DailyDigest.HealthScore)

	// and never above 100
	r = result(trend("revenue", 1, 2, 3, 4, 5, 6, 7))
	r.Recommendations = []domain.Recommendation{{Priority: 2, Direction: domain.DirectionPositive}}
	assert.Equal(t, 100, newTestEngine().Advise(r).DailyDigest.HealthScore)
}

func TestAdvise_ZeroPenaltyDisablesIt(t *testing.T) {
	cfg := config.Default().Advisor
	cfg.WarningIssuePenalty = 0

	r := result()
	r.DeliveryIssues = []domain.DeliveryIssue{{Severity: domain.SeverityWarning}, {Severity: domain.SeverityCritical}}
	advice := NewEngine(cfg).Advise(r)
	assert.Equal(t, 100-15, advice.DailyDigest.HealthScore)
	assert.Equal(t, 1, advice.DailyDigest.QuickStats.Warnings)
}

func TestNewEngine_RaisesUnusableSettings(t *testing.T) {
	e := NewEngine(config.AdvisorConfig{MinSample: 0, TrailingWindow: 0, MaxTopActions: -1})
	assert.Equal(t, 2, e.cfg.MinSample)
	assert.Equal(t, 1, e.cfg.TrailingWindow)
	assert.Equal(t, 0, e.cfg.MaxTopActions)
	assert.Equal(t, 1, e.cfg.HorizonDays)
}

func TestAdvise_NegativeCoreTrend(t *testing.T) {
	advice := newTestEngine().Advise(result(trend("revenue", 100, 95, 90, 85, 80, 75, 70)))
	assert.Equal(t, 90, advice.DailyDigest.HealthScore)

	advice = newTestEngine().Advise(result(trend("orders", 10, 11, 12, 13, 14, 15, 16)))
	assert.Equal(t, 100, advice.DailyDigest.HealthScore)
	assert.Equal(t, 1, advice.DailyDigest.QuickStats.Wins)
}

func TestAdvise_ZeroActivityRun(t *testing.T) {
	o := analytics.NewOrchestrator(analytics.NewMemorySource(), analytics.NewMemoryRunStore(), config.Default())
	o.SetClock(func() time.Time { return runAt })
	res, err := o.Run(context.Background(), 7)
	require.NoError(t, err)

	advice := newTestEngine().Advise(res)
	assert.Equal(t, 100, advice.DailyDigest.HealthScore)
	assert.Equal(t, domain.QuickStats{}, advice.DailyDigest.QuickStats)
	assert.NotNil(t, advice.DailyDigest.TopActions)
	assert.Empty(t, advice.DailyDigest.TopActions)
	assert.Empty(t, advice.Anomalies)
}

func TestAdvise_TopActionsRankedAndBounded(t *testing.T) {
	r := result()
	for i := 0; i < 7; i++ {
		r.Recommendations = append(r.Recommendations, domain.Recommendation{
			Priority: 5, Message: fmt.Sprintf("p5-%d", i),
		})
	}
	r.Recommendations = append(r.Recommendations, domain.Recommendation{Priority: 2, Magnitude: 5, Message: "big-swing"})

	actions := newTestEngine().Advise(r).DailyDigest.TopActions
	require.Len(t, actions, 5)
	assert.Equal(t, []string{"big-swing", "p5-0", "p5-1", "p5-2", "p5-3"}, actions)
}

func TestAdvise_AnomalyNeedsMinimumSample(t *testing.T) {
	advice := newTestEngine().Advise(result(trend("revenue", 1, 1000, 1, 1000000)))
	assert.Empty(t, advice.Anomalies)
	assert.Equal(t, domain.StatusInsufficientData, advice.Coverage["revenue"])
}

func TestAdvise_AnomalyDetected(t *testing.T) {
	advice := newTestEngine().Advise(result(trend("revenue", 10, 10, 11, 9, 10, 10, 10, 50)))

	require.Len(t, advice.Anomalies, 1)
	a := advice.Anomalies[0]
	assert.Equal(t, "revenue", a.Metric)
	assert.Equal(t, 50.0, a.ObservedValue)
	assert.Equal(t, domain.SeverityCritical, a.Severity)
	assert.Greater(t, a.DeviationScore, 3.0)
	assert.Less(t, a.ExpectedRange.High, 50.0)
	assert.Equal(t, runAt, a.DetectedAt)
	assert.Equal(t, domain.StatusOK, advice.Coverage["revenue"])
	assert.Equal(t, 1, advice.DailyDigest.QuickStats.Critical)
}

func TestAdvise_AnomalyAtMinimumSample(t *testing.T) {
	advice := newTestEngine().Advise(result(trend("revenue", 100, 101, 99, 100, 5000)))

	require.Len(t, advice.Anomalies, 1)
	assert.Equal(t, 5000.0, advice.Anomalies[0].ObservedValue)
	assert.Equal(t, domain.SeverityCritical, advice.Anomalies[0].Severity)
	assert.Equal(t, domain.StatusOK, advice.Coverage["revenue"])

	advice = newTestEngine().Advise(result(trend("revenue", 100, 101, 99, 5000)))
	assert.Empty(t, advice.Anomalies)
	assert.Equal(t, domain.StatusInsufficientData, advice.Coverage["revenue"])
}

func TestAdvise_AnomalyWarningTier(t *testing.T) {
	// trailing window 10,12,10,12,10 has mean 10.8 and sd ~0.98; 13.3 is ~2.55 sd away
	advice := newTestEngine().Advise(result(trend("orders", 10, 12, 10, 12, 10, 13.3)))
	require.Len(t, advice.Anomalies, 1)
	assert.Equal(t, domain.SeverityWarning, advice.Anomalies[0].Severity)
	assert.Equal(t, 1, advice.DailyDigest.QuickStats.Warnings)
}

func TestAdvise_AnomalyFlatBaseline(t *testing.T) {
	advice := newTestEngine().Advise(result(trend("sessions", 5, 5, 5, 5, 5, 5, 8)))
	require.Len(t, advice.Anomalies, 1)
	assert.Equal(t, domain.SeverityCritical, advice.Anomalies[0].Severity)
	assert.Equal(t, 2.0*1.5+1, advice.Anomalies[0].DeviationScore)

	advice = newTestEngine().Advise(result(trend("sessions", 5, 5, 5, 5, 5, 5, 5)))
	assert.Empty(t, advice.Anomalies)
}

func TestAdvise_NoDataTrendCoverage(t *testing.T) {
	tr := trend("spend", 0, 0, 0, 0, 0, 0, 0)
	tr.Status = domain.StatusNoData
	advice := newTestEngine().Advise(result(tr))
	assert.Equal(t, domain.StatusNoData, advice.Coverage["spend"])
}

func TestAdvise_BudgetSuggestions(t *testing.T) {
	r := result()
	r.Attribution = domain.Attribution{
		{Channel: "A", RevenueAttributed: 700, RevenueShare: 0.7, Spend: 300, SpendKnown: true},
		{Channel: "B", RevenueAttributed: 300, RevenueShare: 0.3, Spend: 700, SpendKnown: true},
		{Channel: "direct", RevenueAttributed: 500},
	}

	suggestions := newTestEngine().Advise(r).BudgetSuggestions
	require.Len(t, suggestions, 2)

	assert.Equal(t, "A", suggestions[0].Channel)
	assert.Equal(t, domain.BudgetIncrease, suggestions[0].Direction)
	assert.InDelta(t, 0.3, suggestions[0].CurrentSpendShare, 1e-9)
	assert.InDelta(t, 0.5, suggestions[0].SuggestedSpendShare, 1e-9)

	assert.Equal(t, "B", suggestions[1].Channel)
	assert.Equal(t, domain.BudgetDecrease, suggestions[1].Direction)
	assert.InDelta(t, 0.5, suggestions[1].SuggestedSpendShare, 1e-9)
}

func TestAdvise_BudgetWithinMarginOrWithoutSpend(t *testing.T) {
	r := result()
	r.Attribution = domain.Attribution{
		{Channel: "A", RevenueAttributed: 52, Spend: 50, SpendKnown: true},
		{Channel: "B", RevenueAttributed: 48, Spend: 50, SpendKnown: true},
	}
	assert.Empty(t, newTestEngine().Advise(r).BudgetSuggestions)

	r.Attribution = domain.Attribution{
		{Channel: "A", RevenueAttributed: 90},
		{Channel: "B", RevenueAttributed: 10},
	}
	assert.Empty(t, newTestEngine().Advise(r).BudgetSuggestions)
}

func TestAdvise_Predictions(t *testing.T) {
	advice := newTestEngine().Advise(result(
		trend("revenue", 1, 2, 3, 4, 5, 6, 7),
		trend("orders", 3, 2, 1),
	))

	require.Len(t, advice.Predictions, 3)

	rev := advice.Predictions[0]
	assert.Equal(t, "revenue", rev.Metric)
	assert.Equal(t, domain.StatusOK, rev.Status)
	assert.Equal(t, 1, rev.Horizon)
	assert.InDelta(t, 8.0, rev.PredictedValue, 1e-9)
	assert.InDelta(t, 8.0, rev.ConfidenceBand.Low, 1e-9)
	assert.InDelta(t, 8.0, rev.ConfidenceBand.High, 1e-9)
	assert.Equal(t, runAt.Truncate(24*time.Hour).AddDate(0, 0, 1), rev.PeriodStart)

	assert.Equal(t, domain.StatusInsufficientData, advice.Predictions[1].Status)
	assert.Equal(t, 0.0, advice.Predictions[1].PredictedValue)

	// conversion_rate has no trend at all
	assert.Equal(t, "conversion_rate", advice.Predictions[2].Metric)
	assert.Equal(t, domain.StatusInsufficientData, advice.Predictions[2].Status)
}

func TestAdvise_PredictionBandAndFloor(t *testing.T) {
	advice := newTestEngine().Advise(result(trend("orders", 30, 24, 19, 12, 6, 1)))
	p := advice.Predictions[1]
	require.Equal(t, domain.StatusOK, p.Status)
	assert.Equal(t, 0.0, p.PredictedValue, "negative projections floor at zero")
	assert.Equal(t, 0.0, p.ConfidenceBand.Low)
	assert.GreaterOrEqual(t, p.ConfidenceBand.High, 0.0)

	noisy := newTestEngine().Advise(result(trend("revenue", 10, 14, 9, 15, 11, 16, 12))).Predictions[0]
	assert.Less(t, noisy.ConfidenceBand.Low, noisy.PredictedValue)
	assert.Greater(t, noisy.ConfidenceBand.High, noisy.PredictedValue)
}

func TestAdvise_Correlations(t *testing.T) {
	advice := newTestEngine().Advise(result(
		trend("revenue", 10, 20, 30, 40, 50, 60),
		trend("orders", 1, 2, 3, 4, 5, 6),
		trend("sessions", 7, 7, 7, 7, 7, 7),
		trend("email_sent", 6, 5, 4, 3, 2, 1),
	))

	byPair := map[string]domain.Correlation{}
	for _, c := range advice.Correlations {
		byPair[c.MetricA+"~"+c.MetricB] = c
	}
	require.Len(t, byPair, 5)

	assert.Equal(t, domain.StatusOK, byPair["revenue~orders"].Status)
	assert.InDelta(t, 1.0, byPair["revenue~orders"].Coefficient, 1e-9)
	assert.Equal(t, 6, byPair["revenue~orders"].SampleSize)

	assert.InDelta(t, -1.0, byPair["orders~email_sent"].Coefficient, 1e-9)

	// zero variance
	assert.Equal(t, domain.StatusInsufficientData, byPair["revenue~sessions"].Status)
	assert.Equal(t, 0.0, byPair["revenue~sessions"].Coefficient)

	// missing series
	assert.Equal(t, domain.StatusInsufficientData, byPair["spend~revenue"].Status)
}

func TestAdvise_CorrelationShortSeries(t *testing.T) {
	advice := newTestEngine().Advise(result(
		trend("revenue", 1, 2, 3, 4),
		trend("orders", 1, 2, 3, 4),
	))
	c := advice.Correlations[0]
	assert.Equal(t, domain.StatusInsufficientData, c.Status)
	assert.Equal(t, 4, c.SampleSize)
}

func TestAdvise_SparseInputDoesNotPanic(t *testing.T) {
	inputs := []*domain.AnalyticsResult{
		{},
		{Trends: []domain.Trend{{Metric: "revenue"}}},
		{Attribution: domain.Attribution{{Channel: "x", SpendKnown: true}}},
		{Recommendations: []domain.Recommendation{{}}},
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { newTestEngine().Advise(in) })
	}
}
