package dispatch

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/osteele/liquid"
)

const subjectTemplate = `{{ prefix }} {% if health %}Health {{ health }}/100 · {% endif %}{% if summary %}{{ summary.orders }} orders, {{ summary.revenue | money }} revenue ({{ days }}d){% else %}Daily digest{% endif %}`

const textTemplate = `Storefront digest{% if run_at %} for run {{ run_at }}{% endif %}
{% if summary %}
Last {{ days }} days
  Orders:           {{ summary.orders }}
  Revenue:          {{ summary.revenue | money }}
  Conversion rate:  {{ summary.conversion_rate | percent }}
  New customers:    {{ summary.new_customers }}
{% endif %}{% if health %}
Health score: {{ health }}/100 ({{ stats.wins }} wins, {{ stats.warnings }} warnings, {{ stats.critical }} critical)
{% endif %}{% if actions.size > 0 %}
Top actions
{% for a in actions %}  {{ forloop.index }}. {{ a }}
{% endfor %}{% endif %}{% if issues.size > 0 %}
Delivery issues
{% for i in issues %}  - {{ i.day }} {{ i.channel }}: {{ i.rate | percent }} failed ({{ i.severity }})
{% endfor %}{% endif %}{% if anomalies.size > 0 %}
Anomalies
{% for a in anomalies %}  - {{ a.day }} {{ a.metric }} = {{ a.value }} ({{ a.severity }})
{% endfor %}{% endif %}{% if budget.size > 0 %}
Budget
{% for b in budget %}  - {{ b.direction }} {{ b.channel }}: {{ b.current | percent }} -> {{ b.suggested | percent }}
{% endfor %}{% endif %}`

const htmlTemplate = `<h2>Storefront digest</h2>
{% if summary %}<table>
<tr><td>Orders</td><td>{{ summary.orders }}</td></tr>
<tr><td>Revenue</td><td>{{ summary.revenue | money }}</td></tr>
<tr><td>Conversion rate</td><td>{{ summary.conversion_rate | percent }}</td></tr>
<tr><td>New customers</td><td>{{ summary.new_customers }}</td></tr>
</table>{% endif %}
{% if health %}<p><strong>Health score: {{ health }}/100</strong> &middot; {{ stats.wins }} wins, {{ stats.warnings }} warnings, {{ stats.critical }} critical</p>{% endif %}
{% if actions.size > 0 %}<h3>Top actions</h3><ol>{% for a in actions %}<li>{{ a | escape }}</li>{% endfor %}</ol>{% endif %}
{% if issues.size > 0 %}<h3>Delivery issues</h3><ul>{% for i in issues %}<li>{{ i.day }} {{ i.channel | escape }}: {{ i.rate | percent }} failed ({{ i.severity }})</li>{% endfor %}</ul>{% endif %}
{% if anomalies.size > 0 %}<h3>Anomalies</h3><ul>{% for a in anomalies %}<li>{{ a.day }} {{ a.metric }} = {{ a.value }} ({{ a.severity }})</li>{% endfor %}</ul>{% endif %}
{% if budget.size > 0 %}<h3>Budget</h3><ul>{% for b in budget %}<li>{{ b.direction }} {{ b.channel | escape }}: {{ b.current | percent }} &rarr; {{ b.suggested | percent }}</li>{% endfor %}</ul>{% endif %}`

// Formatter renders digests with Liquid templates.
type Formatter struct {
	prefix  string
	subject *liquid.Template
	text    *liquid.Template
	html    *liquid.Template
}

// NewFormatter parses the digest templates.
func NewFormatter(subjectPrefix string) (*Formatter, error) {
	engine := liquid.NewEngine()
	registerFilters(engine)

	f := &Formatter{prefix: subjectPrefix}
	var err error
	if f.subject, err = parse(engine, subjectTemplate); err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	if f.text, err = parse(engine, textTemplate); err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	if f.html, err = parse(engine, htmlTemplate); err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	return f, nil
}

func parse(engine *liquid.Engine, src string) (*liquid.Template, error) {
	tpl, err := engine.ParseString(src)
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

func registerFilters(engine *liquid.Engine) {
	// {{ 1234.5 | money }} -> 1,234.50
	engine.RegisterFilter("money", func(v float64) string {
		return formatMoney(v)
	})
	// {{ 0.0523 | percent }} -> 5.2%
	engine.RegisterFilter("percent", func(v float64) string {
		return fmt.Sprintf("%.1f%%", v*100)
	})
}

func formatMoney(v float64) string {
	neg := v < 0
	s := fmt.Sprintf("%.2f", math.Abs(v))
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// Format renders c into a message.
func (f *Formatter) Format(c Content) (Message, error) {
	if c.Result == nil && c.Advice == nil {
		return Message{}, errors.New("empty digest content")
	}
	bindings := f.bindings(c)

	var (
		msg Message
		err error
	)
	if msg.Subject, err = render(f.subject, bindings); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	msg.Subject = strings.TrimSpace(msg.Subject)
	if msg.TextBody, err = render(f.text, bindings); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}
	if msg.HTMLBody, err = render(f.html, bindings); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}
	return msg, nil
}

func render(tpl *liquid.Template, bindings liquid.Bindings) (string, error) {
	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", err
	}
	return out, nil
}

func (f *Formatter) bindings(c Content) liquid.Bindings {
	b := liquid.Bindings{
		"prefix":    f.prefix,
		"actions":   []string{},
		"issues":    []map[string]interface{}{},
		"anomalies": []map[string]interface{}{},
		"budget":    []map[string]interface{}{},
	}

	if r := c.Result; r != nil {
		b["days"] = r.Days
		b["run_at"] = r.RunAt.Format("2006-01-02 15:04 UTC")
		b["summary"] = map[string]interface{}{
			"orders":          r.Summary.OrderCount,
			"revenue":         r.Summary.Revenue,
			"conversion_rate": r.Summary.ConversionRate,
			"new_customers":   r.Summary.NewCustomers,
		}
		issues := make([]map[string]interface{}, 0, len(r.DeliveryIssues))
		for _, is := range r.DeliveryIssues {
			issues = append(issues, map[string]interface{}{
				"day":      is.Period.Format("2006-01-02"),
				"channel":  is.Channel,
				"rate":     is.FailureRate,
				"severity": string(is.Severity),
			})
		}
		b["issues"] = issues

		actions := make([]string, 0, len(r.Recommendations))
		for _, rec := range r.Recommendations {
			actions = append(actions, rec.Message)
		}
		b["actions"] = actions
	}

	if a := c.Advice; a != nil {
		b["health"] = a.DailyDigest.HealthScore
		b["stats"] = map[string]interface{}{
			"wins":     a.DailyDigest.QuickStats.Wins,
			"warnings": a.DailyDigest.QuickStats.Warnings,
			"critical": a.DailyDigest.QuickStats.Critical,
		}
		// the digest's ranked actions replace the raw recommendation list
		b["actions"] = append([]string{}, a.DailyDigest.TopActions...)

		anomalies := make([]map[string]interface{}, 0, len(a.Anomalies))
		for _, an := range a.Anomalies {
			anomalies = append(anomalies, map[string]interface{}{
				"day":      an.PeriodStart.Format("2006-01-02"),
				"metric":   an.Metric,
				"value":    fmt.Sprintf("%.2f", an.ObservedValue),
				"severity": string(an.Severity),
			})
		}
		b["anomalies"] = anomalies

		budget := make([]map[string]interface{}, 0, len(a.BudgetSuggestions))
		for _, s := range a.BudgetSuggestions {
			budget = append(budget, map[string]interface{}{
				"channel":   s.Channel,
				"direction": s.Direction,
				"current":   s.CurrentSpendShare,
				"suggested": s.SuggestedSpendShare,
			})
		}
		b["budget"] = budget
	}
	return b
}
