package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/storefront-insights/internal/domain"
)

// EventSource implements analytics.EventSource over the storefront tables.
type EventSource struct{ db *sql.DB }

// NewEventSource creates a Postgres-backed event source.
func NewEventSource(db *sql.DB) *EventSource { return &EventSource{db: db} }

var allEventTypes = []domain.EventType{
	domain.EventOrder,
	domain.EventOrderTouch,
	domain.EventCampaignSend,
	domain.EventEmailDelivery,
	domain.EventSiteVisit,
}

// Events reads the requested event types, or all of them when none are named.
func (s *EventSource) Events(ctx context.Context, w domain.Window, types ...domain.EventType) ([]domain.Event, error) {
	if len(types) == 0 {
		types = allEventTypes
	}
	var out []domain.Event
	for _, t := range types {
		var (
			events []domain.Event
			err    error
		)
		switch t {
		case domain.EventOrder:
			events, err = s.orders(ctx, w)
		case domain.EventOrderTouch:
			events, err = s.touches(ctx, w)
		case domain.EventCampaignSend:
			events, err = s.sends(ctx, w)
		case domain.EventEmailDelivery:
			events, err = s.deliveries(ctx, w)
		case domain.EventSiteVisit:
			events, err = s.visits(ctx, w)
		default:
			return nil, fmt.Errorf("unknown event type %q", t)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
	}
	return out, nil
}

func (s *EventSource) orders(ctx context.Context, w domain.Window) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, COALESCE(channel,''), COALESCE(campaign_id,''),
		       total, COALESCE(session_id,''), COALESCE(customer_id,''), is_new_customer
		FROM orders
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at
	`, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e     = domain.Event{Type: domain.EventOrder}
			total sql.NullFloat64
		)
		if err := rows.Scan(&e.OrderID, &e.Timestamp, &e.Channel, &e.CampaignID,
			&total, &e.SessionID, &e.CustomerID, &e.NewCustomer); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		e.Amount = nullAmount(total)
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

// touches returns every touch on an order placed in the window, including
// touches recorded before the window opened.
func (s *EventSource) touches(ctx context.Context, w domain.Window) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.order_id, t.touched_at, t.channel, COALESCE(t.campaign_id,'')
		FROM order_touches t
		JOIN orders o ON o.id = t.order_id
		WHERE o.created_at >= $1 AND o.created_at < $2
		ORDER BY t.touched_at
	`, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("query order touches: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		e := domain.Event{Type: domain.EventOrderTouch}
		if err := rows.Scan(&e.OrderID, &e.Timestamp, &e.Channel, &e.CampaignID); err != nil {
			return nil, fmt.Errorf("scan order touch: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order touches: %w", err)
	}
	return out, nil
}

func (s *EventSource) sends(ctx context.Context, w domain.Window) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT campaign_id, COALESCE(channel,''), sent_at, recipients, spend
		FROM campaign_sends
		WHERE sent_at >= $1 AND sent_at < $2
		ORDER BY sent_at
	`, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("query campaign sends: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e     = domain.Event{Type: domain.EventCampaignSend}
			spend sql.NullFloat64
		)
		if err := rows.Scan(&e.CampaignID, &e.Channel, &e.Timestamp, &e.Count, &spend); err != nil {
			return nil, fmt.Errorf("scan campaign send: %w", err)
		}
		e.Amount = nullAmount(spend)
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaign sends: %w", err)
	}
	return out, nil
}

// deliveries are pre-aggregated per campaign, status and hour.
func (s *EventSource) deliveries(ctx context.Context, w domain.Window) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(campaign_id,''), status, date_trunc('hour', event_at) AS hour, COUNT(*)
		FROM email_deliveries
		WHERE event_at >= $1 AND event_at < $2
		GROUP BY 1, 2, 3
		ORDER BY 3
	`, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("query email deliveries: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		e := domain.Event{Type: domain.EventEmailDelivery, Channel: domain.ChannelEmail}
		if err := rows.Scan(&e.CampaignID, &e.Status, &e.Timestamp, &e.Count); err != nil {
			return nil, fmt.Errorf("scan email delivery: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate email deliveries: %w", err)
	}
	return out, nil
}

func (s *EventSource) visits(ctx context.Context, w domain.Window) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(session_id,''), COALESCE(channel,''), occurred_at
		FROM site_events
		WHERE event_type = 'visit' AND occurred_at >= $1 AND occurred_at < $2
		ORDER BY occurred_at
	`, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("query site events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		e := domain.Event{Type: domain.EventSiteVisit}
		if err := rows.Scan(&e.SessionID, &e.Channel, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan site event: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site events: %w", err)
	}
	return out, nil
}

func nullAmount(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
