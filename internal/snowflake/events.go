package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ignite/storefront-insights/internal/domain"
)

var allEventTypes = []domain.EventType{
	domain.EventOrder,
	domain.EventOrderTouch,
	domain.EventCampaignSend,
	domain.EventEmailDelivery,
	domain.EventSiteVisit,
}

// Events implements analytics.EventSource over the unified events table.
// Touches on orders placed inside the window are returned even when the
// touch itself predates the window.
func (c *Client) Events(ctx context.Context, w domain.Window, types ...domain.EventType) ([]domain.Event, error) {
	if len(types) == 0 {
		types = allEventTypes
	}

	args := make([]any, 0, len(types)+4)
	marks := make([]string, len(types))
	for i, t := range types {
		marks[i] = "?"
		args = append(args, string(t))
	}
	args = append(args, w.Start, w.End, w.Start, w.End)

	query := fmt.Sprintf(`
		SELECT EVENT_TYPE, EVENT_TS, CHANNEL, CAMPAIGN_ID, AMOUNT, STATUS,
		       ORDER_ID, SESSION_ID, CUSTOMER_ID, IS_NEW_CUSTOMER, EVENT_COUNT
		FROM %[1]s
		WHERE EVENT_TYPE IN (%[2]s)
		  AND ((EVENT_TS >= ? AND EVENT_TS < ?)
		       OR (EVENT_TYPE = 'order_touch' AND ORDER_ID IN (
		           SELECT ORDER_ID FROM %[1]s
		           WHERE EVENT_TYPE = 'order' AND EVENT_TS >= ? AND EVENT_TS < ?)))
		ORDER BY EVENT_TS
	`, c.table, strings.Join(marks, ", "))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e                                               domain.Event
			eventType                                       string
			channel, campaign, status, order, session, cust sql.NullString
			amount                                          sql.NullFloat64
			isNew                                           sql.NullBool
			count                                           sql.NullInt64
		)
		if err := rows.Scan(&eventType, &e.Timestamp, &channel, &campaign, &amount, &status,
			&order, &session, &cust, &isNew, &count); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = domain.EventType(strings.ToLower(eventType))
		e.Timestamp = e.Timestamp.UTC()
		e.Channel = channel.String
		e.CampaignID = campaign.String
		e.Status = strings.ToLower(status.String)
		e.OrderID = order.String
		e.SessionID = session.String
		e.CustomerID = cust.String
		e.NewCustomer = isNew.Bool
		e.Count = count.Int64
		if amount.Valid {
			v := amount.Float64
			e.Amount = &v
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return out, nil
}
