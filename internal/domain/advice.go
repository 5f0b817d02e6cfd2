package domain

import "time"

// Range is a closed numeric interval.
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Anomaly is a trend point inconsistent with its trailing distribution.
type Anomaly struct {
	Metric         string    `json:"metric"`
	PeriodStart    time.Time `json:"period_start"`
	ObservedValue  float64   `json:"observed_value"`
	ExpectedRange  Range     `json:"expected_range"`
	DeviationScore float64   `json:"deviation_score"`
	Severity       Severity  `json:"severity"`
	DetectedAt     time.Time `json:"detected_at"`
}

// BudgetSuggestion proposes moving spend toward or away from a channel.
type BudgetSuggestion struct {
	Channel             string  `json:"channel"`
	CurrentSpendShare   float64 `json:"current_spend_share"`
	SuggestedSpendShare float64 `json:"suggested_spend_share"`
	Direction           string  `json:"direction"`
	Rationale           string  `json:"rationale"`
}

// Budget suggestion directions.
const (
	BudgetIncrease = "increase"
	BudgetDecrease = "decrease"
)

// Prediction is a short-horizon projection for one metric.
type Prediction struct {
	Metric         string     `json:"metric"`
	Horizon        int        `json:"horizon"`
	PeriodStart    time.Time  `json:"period_start"`
	PredictedValue float64    `json:"predicted_value"`
	ConfidenceBand Range      `json:"confidence_band"`
	Status         DataStatus `json:"status"`
}

// Correlation is the Pearson coefficient between two daily series.
type Correlation struct {
	MetricA     string     `json:"metric_a"`
	MetricB     string     `json:"metric_b"`
	Coefficient float64    `json:"coefficient"`
	SampleSize  int        `json:"sample_size"`
	Status      DataStatus `json:"status"`
}

// QuickStats counts the good and bad news in a digest.
type QuickStats struct {
	Wins     int `json:"wins"`
	Warnings int `json:"warnings"`
	Critical int `json:"critical"`
}

// DailyDigest is the scannable head of the advice.
type DailyDigest struct {
	TopActions  []string   `json:"top_actions"`
	HealthScore int        `json:"health_score"`
	QuickStats  QuickStats `json:"quick_stats"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// AIAdviceResult is derived from one AnalyticsResult. The core never
// persists it. Coverage records, per metric, whether anomaly detection had
// enough data to run.
type AIAdviceResult struct {
	DailyDigest       DailyDigest           `json:"daily_digest"`
	Anomalies         []Anomaly             `json:"anomalies"`
	BudgetSuggestions []BudgetSuggestion    `json:"budget_suggestions"`
	Predictions       []Prediction          `json:"predictions"`
	Correlations      []Correlation         `json:"correlations"`
	Coverage          map[string]DataStatus `json:"coverage"`
	GeneratedAt       time.Time             `json:"generated_at"`
}
