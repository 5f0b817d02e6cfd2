package advisor

import (
	"fmt"

	"github.com/ignite/storefront-insights/internal/domain"
)

// budget compares each spending channel's revenue share with its spend
// share. Shares are taken over the channels with known spend only.
func (e *Engine) budget(attribution domain.Attribution) []domain.BudgetSuggestion {
	out := []domain.BudgetSuggestion{}

	var considered []domain.ChannelAttribution
	var totalSpend, totalRevenue float64
	for _, c := range attribution {
		if !c.SpendKnown || c.Spend < 0 {
			continue
		}
		considered = append(considered, c)
		totalSpend += c.Spend
		totalRevenue += c.RevenueAttributed
	}
	if totalSpend <= 0 || totalRevenue <= 0 {
		return out
	}

	type share struct {
		spend, revenue, suggested float64
	}
	shares := make([]share, len(considered))
	var sum float64
	for i, c := range considered {
		s := share{spend: c.Spend / totalSpend, revenue: c.RevenueAttributed / totalRevenue}
		s.suggested = s.spend
		if gap := s.revenue - s.spend; gap > e.cfg.BudgetMargin || gap < -e.cfg.BudgetMargin {
			s.suggested = max(0, s.spend+gap*e.cfg.RebalanceFactor)
		}
		shares[i] = s
		sum += s.suggested
	}
	if sum <= 0 {
		return out
	}

	for i, c := range considered {
		s := shares[i]
		gap := s.revenue - s.spend
		var dir string
		switch {
		case gap > e.cfg.BudgetMargin:
			dir = domain.BudgetIncrease
		case gap < -e.cfg.BudgetMargin:
			dir = domain.BudgetDecrease
		default:
			continue
		}
		out = append(out, domain.BudgetSuggestion{
			Channel:             c.Channel,
			CurrentSpendShare:   s.spend,
			SuggestedSpendShare: s.suggested / sum,
			Direction:           dir,
			Rationale: fmt.Sprintf("%s earns %.0f%% of revenue on %.0f%% of spend",
				c.Channel, s.revenue*100, s.spend*100),
		})
	}
	return out
}
