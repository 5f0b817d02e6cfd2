package analytics

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/ignite/storefront-insights/internal/domain"
	"github.com/ignite/storefront-insights/internal/pkg/logger"
)

const weightEpsilon = 1e-9

// Aggregator computes the window summary, channel attribution and campaign
// breakdown.
type Aggregator struct {
	source EventSource
	log    *logger.Logger
}

// NewAggregator creates an aggregator reading from source.
func NewAggregator(source EventSource) *Aggregator {
	return &Aggregator{source: source, log: logger.Default().With("component", "aggregator")}
}

// Aggregate scans orders, order touches, campaign sends and site visits in w.
// Any source failure is wrapped in ErrDataUnavailable and no partial values
// are returned.
func (a *Aggregator) Aggregate(ctx context.Context, w domain.Window) (domain.Summary, domain.Attribution, []domain.CampaignPerformance, error) {
	if w.Days < 1 {
		return domain.Summary{}, nil, nil, fmt.Errorf("%w: days must be >= 1, got %d", ErrValidation, w.Days)
	}

	events, err := a.source.Events(ctx, w,
		domain.EventOrder, domain.EventOrderTouch, domain.EventCampaignSend, domain.EventSiteVisit)
	if err != nil {
		return domain.Summary{}, nil, nil, fmt.Errorf("%w: aggregate events: %w", ErrDataUnavailable, err)
	}

	var (
		orders  []domain.Event
		touches = map[string][]domain.Event{}
		sends   []domain.Event
		visits  []domain.Event
	)
	for _, e := range events {
		switch e.Type {
		case domain.EventOrder:
			orders = append(orders, e)
		case domain.EventOrderTouch:
			if e.OrderID != "" {
				touches[e.OrderID] = append(touches[e.OrderID], e)
			}
		case domain.EventCampaignSend:
			sends = append(sends, e)
		case domain.EventSiteVisit:
			visits = append(visits, e)
		}
	}

	summary := summarize(w, orders, visits)

	channels := map[string]*domain.ChannelAttribution{}
	campaigns := map[string]*domain.CampaignPerformance{}
	channelEntry := func(ch string) *domain.ChannelAttribution {
		c, ok := channels[ch]
		if !ok {
			c = &domain.ChannelAttribution{Channel: ch}
			channels[ch] = c
		}
		return c
	}
	campaignEntry := func(id, ch string) *domain.CampaignPerformance {
		c, ok := campaigns[id]
		if !ok {
			c = &domain.CampaignPerformance{CampaignID: id, Channel: ch}
			campaigns[id] = c
		}
		return c
	}

	for i, o := range orders {
		credits := orderCredits(o, touches[o.OrderID])

		var total float64
		for _, c := range credits {
			total += c.weight
		}
		if math.Abs(total-1) > weightEpsilon {
			return domain.Summary{}, nil, nil, fmt.Errorf("attribution weights for order %d (%s) sum to %v", i, o.OrderID, total)
		}

		amount := o.AmountOrZero()
		for _, c := range credits {
			ch := channelEntry(c.channel)
			ch.OrdersAttributed += c.weight
			ch.RevenueAttributed += c.weight * amount
			if len(c.campaigns) == 0 {
				continue
			}
			share := c.weight / float64(len(c.campaigns))
			for _, id := range c.campaigns {
				cp := campaignEntry(id, c.channel)
				cp.OrdersAttributed += share
				cp.RevenueAttributed += share * amount
			}
		}
	}

	for _, s := range sends {
		ch := s.Channel
		if ch == "" {
			ch = domain.ChannelEmail
		}
		entry := channelEntry(ch)
		if s.Amount != nil {
			entry.Spend += *s.Amount
			entry.SpendKnown = true
		}
		if s.CampaignID != "" {
			cp := campaignEntry(s.CampaignID, ch)
			cp.Sends += s.Units()
			cp.Spend += s.AmountOrZero()
		}
	}

	attribution := make(domain.Attribution, 0, len(channels))
	for _, c := range channels {
		if summary.OrderCount > 0 {
			c.AttributionWeight = c.OrdersAttributed / float64(summary.OrderCount)
		}
		if summary.Revenue > 0 {
			c.RevenueShare = c.RevenueAttributed / summary.Revenue
		}
		attribution = append(attribution, *c)
	}
	sort.Slice(attribution, func(i, j int) bool { return attribution[i].Channel < attribution[j].Channel })

	perf := make([]domain.CampaignPerformance, 0, len(campaigns))
	for _, c := range campaigns {
		perf = append(perf, *c)
	}
	sort.Slice(perf, func(i, j int) bool { return perf[i].CampaignID < perf[j].CampaignID })

	a.log.Debug("aggregated window",
		"days", w.Days, "orders", summary.OrderCount, "channels", len(attribution), "campaigns", len(perf))
	return summary, attribution, perf, nil
}

func summarize(w domain.Window, orders, visits []domain.Event) domain.Summary {
	s := domain.Summary{WindowStart: w.Start, WindowEnd: w.End}

	newCustomers := map[string]bool{}
	var anonymousNew int64
	for _, o := range orders {
		s.OrderCount++
		s.Revenue += o.AmountOrZero()
		if !o.NewCustomer {
			continue
		}
		if o.CustomerID == "" {
			anonymousNew++
		} else {
			newCustomers[o.CustomerID] = true
		}
	}
	s.NewCustomers = int64(len(newCustomers)) + anonymousNew
	s.Sessions = countSessions(visits)

	if s.Sessions > 0 {
		s.ConversionRate = float64(s.OrderCount) / float64(s.Sessions)
	}
	if s.OrderCount > 0 {
		s.AverageOrderValue = s.Revenue / float64(s.OrderCount)
	}
	return s
}

// countSessions counts distinct session ids. Visits without a session id
// count once per unit.
func countSessions(visits []domain.Event) int64 {
	seen := map[string]bool{}
	var anonymous int64
	for _, v := range visits {
		if v.SessionID == "" {
			anonymous += v.Units()
			continue
		}
		seen[v.SessionID] = true
	}
	return int64(len(seen)) + anonymous
}

type credit struct {
	channel   string
	weight    float64
	campaigns []string
}

// orderCredits splits one order across channels. When touches span two or
// more channels, each recorded touch carries an equal share, so a channel's
// weight is its touch count over the order's touches. Otherwise the order is
// credited last-touch: its own channel, else the latest touch, else direct.
func orderCredits(o domain.Event, touches []domain.Event) []credit {
	byChannel := map[string][]string{}
	counts := map[string]int{}
	var order []string
	total := 0
	for _, t := range touches {
		ch := t.Channel
		if ch == "" {
			continue
		}
		if _, ok := byChannel[ch]; !ok {
			order = append(order, ch)
			byChannel[ch] = nil
		}
		counts[ch]++
		total++
		if t.CampaignID != "" && !slices.Contains(byChannel[ch], t.CampaignID) {
			byChannel[ch] = append(byChannel[ch], t.CampaignID)
		}
	}

	if len(order) >= 2 {
		sort.Strings(order)
		out := make([]credit, len(order))
		for i, ch := range order {
			out[i] = credit{channel: ch, weight: float64(counts[ch]) / float64(total), campaigns: byChannel[ch]}
		}
		return out
	}

	if o.Channel != "" {
		c := credit{channel: o.Channel, weight: 1}
		if o.CampaignID != "" {
			c.campaigns = []string{o.CampaignID}
		} else {
			c.campaigns = byChannel[o.Channel]
		}
		return []credit{c}
	}

	var latest *domain.Event
	for i := range touches {
		t := &touches[i]
		if t.Channel == "" {
			continue
		}
		if latest == nil || t.Timestamp.After(latest.Timestamp) {
			latest = t
		}
	}
	if latest != nil {
		c := credit{channel: latest.Channel, weight: 1}
		if latest.CampaignID != "" {
			c.campaigns = []string{latest.CampaignID}
		}
		return []credit{c}
	}
	return []credit{{channel: domain.ChannelDirect, weight: 1}}
}
