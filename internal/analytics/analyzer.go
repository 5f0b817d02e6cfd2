package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/ignite/storefront-insights/internal/config"
	"github.com/ignite/storefront-insights/internal/domain"
	"github.com/ignite/storefront-insights/internal/pkg/logger"
)

// Metric names understood by the Analyzer.
const (
	MetricRevenue          = "revenue"
	MetricOrders           = "orders"
	MetricSessions         = "sessions"
	MetricConversionRate   = "conversion_rate"
	MetricNewCustomers     = "new_customers"
	MetricSpend            = "spend"
	MetricEmailSent        = "email_sent"
	MetricEmailFailed      = "email_failed"
	MetricEmailFailureRate = "email_failure_rate"
)

// DefaultMetrics is the metric set a run analyzes when none is configured.
var DefaultMetrics = []string{
	MetricRevenue, MetricOrders, MetricSessions, MetricConversionRate, MetricNewCustomers,
	MetricSpend, MetricEmailSent, MetricEmailFailed, MetricEmailFailureRate,
}

// Analyzer buckets a window into daily trends and flags delivery issues.
type Analyzer struct {
	source     EventSource
	thresholds config.DeliveryThresholds
	log        *logger.Logger
}

// NewAnalyzer creates an analyzer. Zero thresholds fall back to 0.05 and 0.15.
func NewAnalyzer(source EventSource, thresholds config.DeliveryThresholds) *Analyzer {
	if thresholds.Warning == 0 {
		thresholds.Warning = 0.05
	}
	if thresholds.Critical == 0 {
		thresholds.Critical = 0.15
	}
	return &Analyzer{source: source, thresholds: thresholds, log: logger.Default().With("component", "analyzer")}
}

// buckets holds per-day raw counters for one window.
type buckets struct {
	revenue  []float64
	orders   []float64
	sessions []map[string]bool
	anonSess []float64
	newCust  []float64
	spend    []float64
	spendAny bool
	// delivery counters per channel
	sent   map[string][]int64
	failed map[string][]int64

	hasOrders, hasVisits, hasSends, hasDeliveries bool
}

func newBuckets(days int) *buckets {
	b := &buckets{
		revenue:  make([]float64, days),
		orders:   make([]float64, days),
		sessions: make([]map[string]bool, days),
		anonSess: make([]float64, days),
		newCust:  make([]float64, days),
		spend:    make([]float64, days),
		sent:     map[string][]int64{},
		failed:   map[string][]int64{},
	}
	for i := range b.sessions {
		b.sessions[i] = map[string]bool{}
	}
	return b
}

func (b *buckets) sessionCount(i int) float64 {
	return float64(len(b.sessions[i])) + b.anonSess[i]
}

func (b *buckets) emailSeries(metric string, i int) float64 {
	var sent, failed int64
	for _, s := range b.sent {
		sent += s[i]
	}
	for _, f := range b.failed {
		failed += f[i]
	}
	switch metric {
	case MetricEmailSent:
		return float64(sent)
	case MetricEmailFailed:
		return float64(failed)
	default:
		if sent == 0 {
			return 0
		}
		return float64(failed) / float64(sent)
	}
}

// Analyze returns one trend per requested metric, each with exactly w.Days
// points, and the delivery issues of the window. An unknown metric yields an
// all-zero trend with status no_data.
func (a *Analyzer) Analyze(ctx context.Context, w domain.Window, metrics []string) ([]domain.Trend, []domain.DeliveryIssue, error) {
	if w.Days < 1 {
		return nil, nil, fmt.Errorf("%w: days must be >= 1, got %d", ErrValidation, w.Days)
	}

	events, err := a.source.Events(ctx, w,
		domain.EventOrder, domain.EventSiteVisit, domain.EventCampaignSend, domain.EventEmailDelivery)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: analyze events: %w", ErrDataUnavailable, err)
	}

	b := newBuckets(w.Days)
	for _, e := range events {
		i := w.BucketIndex(e.Timestamp)
		if i < 0 {
			continue
		}
		switch e.Type {
		case domain.EventOrder:
			b.hasOrders = true
			b.orders[i]++
			b.revenue[i] += e.AmountOrZero()
			if e.NewCustomer {
				b.newCust[i]++
			}
		case domain.EventSiteVisit:
			b.hasVisits = true
			if e.SessionID == "" {
				b.anonSess[i] += float64(e.Units())
			} else {
				b.sessions[i][e.SessionID] = true
			}
		case domain.EventCampaignSend:
			b.hasSends = true
			if e.Amount != nil {
				b.spendAny = true
				b.spend[i] += *e.Amount
			}
		case domain.EventEmailDelivery:
			b.hasDeliveries = true
			ch := e.Channel
			if ch == "" {
				ch = domain.ChannelEmail
			}
			if _, ok := b.sent[ch]; !ok {
				b.sent[ch] = make([]int64, w.Days)
				b.failed[ch] = make([]int64, w.Days)
			}
			b.sent[ch][i] += e.Units()
			if e.Status == domain.DeliveryFailed || e.Status == domain.DeliveryBounced {
				b.failed[ch][i] += e.Units()
			}
		}
	}

	trends := make([]domain.Trend, 0, len(metrics))
	for _, m := range metrics {
		trends = append(trends, a.trend(w, b, m))
	}
	issues := a.deliveryIssues(w, b)

	a.log.Debug("analyzed window", "days", w.Days, "metrics", len(trends), "delivery_issues", len(issues))
	return trends, issues, nil
}

func (a *Analyzer) trend(w domain.Window, b *buckets, metric string) domain.Trend {
	var (
		value   func(i int) float64
		hasData bool
	)
	switch metric {
	case MetricRevenue:
		value, hasData = func(i int) float64 { return b.revenue[i] }, b.hasOrders
	case MetricOrders:
		value, hasData = func(i int) float64 { return b.orders[i] }, b.hasOrders
	case MetricNewCustomers:
		value, hasData = func(i int) float64 { return b.newCust[i] }, b.hasOrders
	case MetricSessions:
		value, hasData = b.sessionCount, b.hasVisits
	case MetricConversionRate:
		value = func(i int) float64 {
			if s := b.sessionCount(i); s > 0 {
				return b.orders[i] / s
			}
			return 0
		}
		hasData = b.hasVisits
	case MetricSpend:
		value, hasData = func(i int) float64 { return b.spend[i] }, b.spendAny
	case MetricEmailSent, MetricEmailFailed, MetricEmailFailureRate:
		value, hasData = func(i int) float64 { return b.emailSeries(metric, i) }, b.hasDeliveries
	default:
		a.log.Warn("unknown metric requested", "metric", metric)
		value = func(int) float64 { return 0 }
	}

	t := domain.Trend{Metric: metric, Points: make([]domain.TrendPoint, w.Days), Status: domain.StatusOK}
	if !hasData {
		t.Status = domain.StatusNoData
	}
	for i := 0; i < w.Days; i++ {
		t.Points[i] = domain.TrendPoint{Index: i, PeriodStart: w.BucketStart(i), Value: value(i)}
	}
	return t
}

func (a *Analyzer) deliveryIssues(w domain.Window, b *buckets) []domain.DeliveryIssue {
	channels := make([]string, 0, len(b.sent))
	for ch := range b.sent {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	var issues []domain.DeliveryIssue
	for _, ch := range channels {
		for i := 0; i < w.Days; i++ {
			sent, failed := b.sent[ch][i], b.failed[ch][i]
			if sent == 0 {
				continue
			}
			rate := float64(failed) / float64(sent)
			var sev domain.Severity
			switch {
			case rate > a.thresholds.Critical:
				sev = domain.SeverityCritical
			case rate > a.thresholds.Warning:
				sev = domain.SeverityWarning
			default:
				continue
			}
			issues = append(issues, domain.DeliveryIssue{
				Channel:     ch,
				Period:      w.BucketStart(i),
				FailureRate: rate,
				Severity:    sev,
				Sent:        sent,
				Failed:      failed,
			})
		}
	}
	return issues
}
