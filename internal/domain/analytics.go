package domain

import "time"

// DataStatus distinguishes a computed value from one that could not be
// computed for lack of data.
type DataStatus string

const (
	StatusOK               DataStatus = "ok"
	StatusNoData           DataStatus = "no_data"
	StatusInsufficientData DataStatus = "insufficient_data"
)

// Severity levels shared by delivery issues and anomalies.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Direction describes whether a signal is good or bad news.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionNeutral  Direction = "neutral"
)

// Summary aggregates a window. Recomputed every run, persisted only as part
// of an AnalyticsResult.
type Summary struct {
	WindowStart       time.Time `json:"window_start"`
	WindowEnd         time.Time `json:"window_end"`
	OrderCount        int64     `json:"order_count"`
	Revenue           float64   `json:"revenue"`
	ConversionRate    float64   `json:"conversion_rate"`
	NewCustomers      int64     `json:"new_customers"`
	Sessions          int64     `json:"sessions"`
	AverageOrderValue float64   `json:"average_order_value"`
}

// ChannelAttribution is the credit a single channel received in a window.
// OrdersAttributed is fractional because multi-touch orders split credit.
type ChannelAttribution struct {
	Channel           string  `json:"channel"`
	OrdersAttributed  float64 `json:"orders_attributed"`
	RevenueAttributed float64 `json:"revenue_attributed"`
	AttributionWeight float64 `json:"attribution_weight"`
	RevenueShare      float64 `json:"revenue_share"`
	Spend             float64 `json:"spend"`
	SpendKnown        bool    `json:"spend_known"`
}

// Attribution is ordered by channel name so results serialize identically.
type Attribution []ChannelAttribution

// Find returns the entry for a channel.
func (a Attribution) Find(channel string) (ChannelAttribution, bool) {
	for _, c := range a {
		if c.Channel == channel {
			return c, true
		}
	}
	return ChannelAttribution{}, false
}

// CampaignPerformance is the per-campaign breakdown persisted with a run.
type CampaignPerformance struct {
	CampaignID        string  `json:"campaign_id"`
	Channel           string  `json:"channel"`
	Sends             int64   `json:"sends"`
	Spend             float64 `json:"spend"`
	OrdersAttributed  float64 `json:"orders_attributed"`
	RevenueAttributed float64 `json:"revenue_attributed"`
}

// TrendPoint is one daily bucket of a trend.
type TrendPoint struct {
	Index       int       `json:"index"`
	PeriodStart time.Time `json:"period_start"`
	Value       float64   `json:"value"`
}

// Trend is a fixed-length daily series for one metric. It always holds
// exactly as many points as the run has days.
type Trend struct {
	Metric string       `json:"metric"`
	Points []TrendPoint `json:"points"`
	Status DataStatus   `json:"status"`
}

// Values returns the point values in order.
func (t Trend) Values() []float64 {
	out := make([]float64, len(t.Points))
	for i, p := range t.Points {
		out[i] = p.Value
	}
	return out
}

// DeliveryIssue flags a daily bucket whose email failure rate crossed a
// threshold.
type DeliveryIssue struct {
	Channel     string    `json:"channel"`
	Period      time.Time `json:"period"`
	FailureRate float64   `json:"failure_rate"`
	Severity    Severity  `json:"severity"`
	Sent        int64     `json:"sent"`
	Failed      int64     `json:"failed"`
}

// Recommendation is a human-readable action emitted by one rule.
// Priority runs 1 (informational) to 5 (urgent).
type Recommendation struct {
	ID                  string    `json:"id"`
	Rule                string    `json:"rule"`
	Priority            int       `json:"priority"`
	Message             string    `json:"message"`
	SupportingMetricRef string    `json:"supporting_metric_ref"`
	Direction           Direction `json:"direction"`
	Magnitude           float64   `json:"magnitude"`
}

// AnalyticsResult is the full output of one run and the unit of
// persistence. Once saved it is never modified.
type AnalyticsResult struct {
	ID              string                `json:"id"`
	RunAt           time.Time             `json:"run_at"`
	Days            int                   `json:"days"`
	Summary         Summary               `json:"summary"`
	Attribution     Attribution           `json:"attribution"`
	Campaigns       []CampaignPerformance `json:"campaigns"`
	Trends          []Trend               `json:"trends"`
	DeliveryIssues  []DeliveryIssue       `json:"delivery_issues"`
	Recommendations []Recommendation      `json:"recommendations"`
}

// Trend returns the series for a metric.
func (r *AnalyticsResult) Trend(metric string) (Trend, bool) {
	if r == nil {
		return Trend{}, false
	}
	for _, t := range r.Trends {
		if t.Metric == metric {
			return t, true
		}
	}
	return Trend{}, false
}
