package analytics

import (
	"fmt"
	"sort"

	"github.com/ignite/storefront-insights/internal/config"
	"github.com/ignite/storefront-insights/internal/domain"
	"github.com/ignite/storefront-insights/internal/pkg/logger"
)

// RuleKind identifies one recommendation rule. Rules are evaluated in the
// order of their constants.
type RuleKind int

const (
	RuleAttributionShareDrop RuleKind = iota
	RuleConversionDecline
	RuleRevenueConcentration
	RuleDeliveryHealth
	RuleRevenueGrowth
	RuleZeroOrders
	RuleLowROAS

	ruleCount
)

var ruleNames = [ruleCount]string{
	RuleAttributionShareDrop: "attribution_share_drop",
	RuleConversionDecline:    "conversion_decline",
	RuleRevenueConcentration: "revenue_concentration",
	RuleDeliveryHealth:       "delivery_health",
	RuleRevenueGrowth:        "revenue_growth",
	RuleZeroOrders:           "zero_orders",
	RuleLowROAS:              "low_roas_channel",
}

func (k RuleKind) String() string {
	if k < 0 || k >= ruleCount {
		return fmt.Sprintf("rule(%d)", int(k))
	}
	return ruleNames[k]
}

// RecommendInput is everything a rule may inspect. Prior is the previous
// persisted run and may be nil.
type RecommendInput struct {
	Summary     domain.Summary
	Attribution domain.Attribution
	Trends      []domain.Trend
	Prior       *domain.AnalyticsResult
}

func (in RecommendInput) trend(metric string) (domain.Trend, bool) {
	for _, t := range in.Trends {
		if t.Metric == metric {
			return t, true
		}
	}
	return domain.Trend{}, false
}

// Recommender applies the rule set.
type Recommender struct {
	cfg      config.RecommendationConfig
	delivery config.DeliveryThresholds
	log      *logger.Logger
}

// NewRecommender creates a recommender with the given thresholds.
func NewRecommender(cfg config.RecommendationConfig, delivery config.DeliveryThresholds) *Recommender {
	return &Recommender{cfg: cfg, delivery: delivery, log: logger.Default().With("component", "recommender")}
}

// Recommend runs every rule in declared order and returns the emitted
// recommendations sorted by priority, highest first. Ties keep rule order.
func (r *Recommender) Recommend(in RecommendInput) []domain.Recommendation {
	out := []domain.Recommendation{}
	for k := RuleKind(0); k < ruleCount; k++ {
		rec, skipped := r.evaluate(k, in)
		if skipped != "" {
			r.log.Debug("rule skipped", "rule", k.String(), "reason", skipped)
			continue
		}
		if rec != nil {
			rec.ID = "rec-" + k.String()
			rec.Rule = k.String()
			out = append(out, *rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// evaluate returns the rule's recommendation (nil when the rule does not
// fire) or a non-empty reason when the rule could not be evaluated.
func (r *Recommender) evaluate(k RuleKind, in RecommendInput) (*domain.Recommendation, string) {
	switch k {
	case RuleAttributionShareDrop:
		return r.shareDrop(in)
	case RuleConversionDecline:
		return r.conversionDecline(in)
	case RuleRevenueConcentration:
		return r.concentration(in)
	case RuleDeliveryHealth:
		return r.deliveryHealth(in)
	case RuleRevenueGrowth:
		return r.revenueGrowth(in)
	case RuleZeroOrders:
		return r.zeroOrders(in)
	case RuleLowROAS:
		return r.lowROAS(in)
	default:
		return nil, "unknown rule"
	}
}

func (r *Recommender) shareDrop(in RecommendInput) (*domain.Recommendation, string) {
	if in.Prior == nil {
		return nil, "no prior run"
	}
	if in.Summary.Revenue <= 0 || in.Prior.Summary.Revenue <= 0 {
		return nil, "no revenue to compare"
	}

	var (
		worst   string
		maxDrop float64
	)
	for _, prev := range in.Prior.Attribution {
		cur, _ := in.Attribution.Find(prev.Channel)
		drop := (prev.RevenueShare - cur.RevenueShare) * 100
		if drop > maxDrop {
			worst, maxDrop = prev.Channel, drop
		}
	}
	if maxDrop <= r.cfg.ShareDropPoints {
		return nil, ""
	}
	return &domain.Recommendation{
		Priority:            4,
		Message:             fmt.Sprintf("Revenue share from %s fell %.1f points since the last run. Review its recent campaigns.", worst, maxDrop),
		SupportingMetricRef: "attribution." + worst + ".revenue_share",
		Direction:           domain.DirectionNegative,
		Magnitude:           maxDrop / 100,
	}, ""
}

func (r *Recommender) conversionDecline(in RecommendInput) (*domain.Recommendation, string) {
	t, ok := in.trend(MetricConversionRate)
	if !ok || t.Status != domain.StatusOK {
		return nil, "conversion trend unavailable"
	}
	need := r.cfg.DeclineBuckets
	if need < 1 {
		need = 1
	}
	v := t.Values()
	if len(v) < need+1 {
		return nil, "not enough buckets"
	}

	run := 0
	for i := len(v) - 1; i > 0 && v[i] < v[i-1]; i-- {
		run++
	}
	if run < need {
		return nil, ""
	}
	start, end := v[len(v)-1-run], v[len(v)-1]
	magnitude := 0.0
	if start > 0 {
		magnitude = (start - end) / start
	}
	return &domain.Recommendation{
		Priority:            4,
		Message:             fmt.Sprintf("Conversion rate has declined for %d consecutive days. Check checkout and landing pages.", run),
		SupportingMetricRef: "trends." + MetricConversionRate,
		Direction:           domain.DirectionNegative,
		Magnitude:           magnitude,
	}, ""
}

func (r *Recommender) concentration(in RecommendInput) (*domain.Recommendation, string) {
	if in.Summary.Revenue <= 0 || len(in.Attribution) == 0 {
		return nil, "no attributed revenue"
	}
	var top domain.ChannelAttribution
	for _, c := range in.Attribution {
		if c.RevenueShare > top.RevenueShare {
			top = c
		}
	}
	if top.RevenueShare <= r.cfg.ConcentrationThreshold {
		return nil, ""
	}
	return &domain.Recommendation{
		Priority:            3,
		Message:             fmt.Sprintf("%.0f%% of revenue comes from %s. Diversify acquisition to reduce channel risk.", top.RevenueShare*100, top.Channel),
		SupportingMetricRef: "attribution." + top.Channel + ".revenue_share",
		Direction:           domain.DirectionNegative,
		Magnitude:           top.RevenueShare - r.cfg.ConcentrationThreshold,
	}, ""
}

func (r *Recommender) deliveryHealth(in RecommendInput) (*domain.Recommendation, string) {
	t, ok := in.trend(MetricEmailFailureRate)
	if !ok || t.Status != domain.StatusOK || len(t.Points) == 0 {
		return nil, "failure-rate trend unavailable"
	}
	var sum float64
	for _, p := range t.Points {
		sum += p.Value
	}
	avg := sum / float64(len(t.Points))
	if avg <= r.delivery.Warning {
		return nil, ""
	}
	priority := 4
	if avg > r.delivery.Critical {
		priority = 5
	}
	return &domain.Recommendation{
		Priority:            priority,
		Message:             fmt.Sprintf("Email failure rate averaged %.1f%% over the window. Clean the list and check sender reputation.", avg*100),
		SupportingMetricRef: "trends." + MetricEmailFailureRate,
		Direction:           domain.DirectionNegative,
		Magnitude:           avg,
	}, ""
}

func (r *Recommender) revenueGrowth(in RecommendInput) (*domain.Recommendation, string) {
	t, ok := in.trend(MetricRevenue)
	if !ok || t.Status != domain.StatusOK || len(t.Points) < 2 {
		return nil, "revenue trend unavailable"
	}
	v := t.Values()
	half := len(v) / 2
	var first, second float64
	for _, x := range v[:half] {
		first += x
	}
	for _, x := range v[len(v)-half:] {
		second += x
	}
	if first <= 0 {
		return nil, "no baseline revenue"
	}
	growth := (second - first) / first
	if growth <= r.cfg.GrowthThreshold {
		return nil, ""
	}
	return &domain.Recommendation{
		Priority:            2,
		Message:             fmt.Sprintf("Revenue grew %.0f%% in the second half of the window. Scale what is working.", growth*100),
		SupportingMetricRef: "trends." + MetricRevenue,
		Direction:           domain.DirectionPositive,
		Magnitude:           growth,
	}, ""
}

func (r *Recommender) zeroOrders(in RecommendInput) (*domain.Recommendation, string) {
	if in.Summary.OrderCount > 0 || in.Summary.Sessions == 0 {
		return nil, ""
	}
	return &domain.Recommendation{
		Priority:            5,
		Message:             fmt.Sprintf("%d sessions produced no orders. Verify checkout is working.", in.Summary.Sessions),
		SupportingMetricRef: "summary.order_count",
		Direction:           domain.DirectionNegative,
		Magnitude:           1,
	}, ""
}

func (r *Recommender) lowROAS(in RecommendInput) (*domain.Recommendation, string) {
	var (
		worst domain.ChannelAttribution
		roas  = -1.0
	)
	for _, c := range in.Attribution {
		if !c.SpendKnown || c.Spend <= 0 {
			continue
		}
		x := c.RevenueAttributed / c.Spend
		if roas < 0 || x < roas {
			worst, roas = c, x
		}
	}
	if roas < 0 {
		return nil, "no channel with spend"
	}
	if roas >= r.cfg.MinROAS {
		return nil, ""
	}
	return &domain.Recommendation{
		Priority:            3,
		Message:             fmt.Sprintf("%s returned %.2f in revenue per unit of spend. Cut or rework its campaigns.", worst.Channel, roas),
		SupportingMetricRef: "attribution." + worst.Channel + ".spend",
		Direction:           domain.DirectionNegative,
		Magnitude:           r.cfg.MinROAS - roas,
	}, ""
}
