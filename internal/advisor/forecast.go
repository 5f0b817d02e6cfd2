package advisor

import (
	"github.com/ignite/storefront-insights/internal/domain"
)

// predictions projects each core metric HorizonDays past the last bucket.
func (e *Engine) predictions(r *domain.AnalyticsResult) []domain.Prediction {
	out := make([]domain.Prediction, 0, len(e.cfg.CoreMetrics))
	h := e.cfg.HorizonDays

	for _, metric := range e.cfg.CoreMetrics {
		p := domain.Prediction{Metric: metric, Horizon: h, Status: domain.StatusInsufficientData}

		t, ok := r.Trend(metric)
		if ok && len(t.Points) > 0 {
			p.PeriodStart = t.Points[len(t.Points)-1].PeriodStart.AddDate(0, 0, h)
		}
		if !ok || t.Status != domain.StatusOK || len(t.Points) < e.cfg.MinSample {
			out = append(out, p)
			continue
		}

		fit := fitLine(t.Values())
		x0 := float64(len(t.Points) - 1 + h)
		pred := fit.at(x0)
		half := fit.predictionHalfWidth(x0, e.cfg.ConfidenceZ)

		p.PredictedValue = max(0, pred)
		p.ConfidenceBand = domain.Range{Low: max(0, pred-half), High: max(0, pred+half)}
		p.Status = domain.StatusOK
		out = append(out, p)
	}
	return out
}

// correlations computes Pearson coefficients for the configured pairs.
func (e *Engine) correlations(r *domain.AnalyticsResult) []domain.Correlation {
	out := make([]domain.Correlation, 0, len(e.cfg.CorrelationPairs))
	for _, pair := range e.cfg.CorrelationPairs {
		c := domain.Correlation{MetricA: pair[0], MetricB: pair[1], Status: domain.StatusInsufficientData}

		a, okA := r.Trend(pair[0])
		b, okB := r.Trend(pair[1])
		if okA && okB {
			c.SampleSize = min(len(a.Points), len(b.Points))
		}
		if !okA || !okB || a.Status != domain.StatusOK || b.Status != domain.StatusOK || c.SampleSize < e.cfg.MinSample {
			out = append(out, c)
			continue
		}
		if coef, ok := pearson(a.Values(), b.Values()); ok {
			c.Coefficient = coef
			c.Status = domain.StatusOK
		}
		out = append(out, c)
	}
	return out
}
