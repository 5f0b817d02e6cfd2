package advisor

import (
	"math"

	"github.com/ignite/storefront-insights/internal/domain"
)

// anomalies scans every trend with a trailing k-sigma test. A point is tested
// once MinSample-1 points precede it, so a series of MinSample points has its
// last point tested. Coverage records per metric whether detection ran (ok),
// had too few points (insufficient_data) or had no underlying data (no_data).
func (e *Engine) anomalies(r *domain.AnalyticsResult) ([]domain.Anomaly, map[string]domain.DataStatus) {
	out := []domain.Anomaly{}
	coverage := make(map[string]domain.DataStatus, len(r.Trends))
	k := e.cfg.AnomalySigma

	for _, t := range r.Trends {
		switch {
		case len(t.Points) < e.cfg.MinSample:
			coverage[t.Metric] = domain.StatusInsufficientData
			continue
		case t.Status == domain.StatusNoData:
			coverage[t.Metric] = domain.StatusNoData
			continue
		}
		coverage[t.Metric] = domain.StatusOK

		values := t.Values()
		for i := e.cfg.MinSample - 1; i < len(values); i++ {
			from := max(0, i-e.cfg.TrailingWindow)
			window := values[from:i]
			m := mean(window)
			sd := stdDev(window, m)
			x := values[i]

			var score float64
			if sd == 0 {
				if x == m {
					continue
				}
				score = k*1.5 + 1
			} else {
				score = math.Abs(x-m) / sd
				if score <= k {
					continue
				}
			}

			sev := domain.SeverityWarning
			if score > 1.5*k {
				sev = domain.SeverityCritical
			}
			out = append(out, domain.Anomaly{
				Metric:         t.Metric,
				PeriodStart:    t.Points[i].PeriodStart,
				ObservedValue:  x,
				ExpectedRange:  domain.Range{Low: m - k*sd, High: m + k*sd},
				DeviationScore: score,
				Severity:       sev,
				DetectedAt:     r.RunAt,
			})
		}
	}
	return out, coverage
}
