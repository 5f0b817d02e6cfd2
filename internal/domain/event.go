package domain

import "time"

// EventType enumerates the raw business facts the pipeline reads.
type EventType string

const (
	EventOrder         EventType = "order"
	EventOrderTouch    EventType = "order_touch"
	EventCampaignSend  EventType = "campaign_send"
	EventEmailDelivery EventType = "email_delivery"
	EventSiteVisit     EventType = "site_visit"
)

// Delivery statuses carried by EventEmailDelivery.
const (
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
	DeliveryBounced   = "bounced"
)

// Well-known channel identifiers.
const (
	ChannelEmail  = "email"
	ChannelDirect = "direct"
)

// Event is an immutable fact read from external storage. Optional fields are
// pointers or empty strings; the pipeline never writes events back.
type Event struct {
	Type        EventType `json:"type" db:"type"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	Channel     string    `json:"channel,omitempty" db:"channel"`
	CampaignID  string    `json:"campaign_id,omitempty" db:"campaign_id"`
	Amount      *float64  `json:"amount,omitempty" db:"amount"`
	Status      string    `json:"status,omitempty" db:"status"`
	OrderID     string    `json:"order_id,omitempty" db:"order_id"`
	SessionID   string    `json:"session_id,omitempty" db:"session_id"`
	CustomerID  string    `json:"customer_id,omitempty" db:"customer_id"`
	NewCustomer bool      `json:"new_customer,omitempty" db:"new_customer"`
	// Count is the number of messages a campaign_send or email_delivery
	// row stands for. Zero means one.
	Count int64 `json:"count,omitempty" db:"count"`
}

// Units returns the number of occurrences the event represents.
func (e Event) Units() int64 {
	if e.Count <= 0 {
		return 1
	}
	return e.Count
}

// AmountOrZero returns the amount or 0 when it was not recorded.
func (e Event) AmountOrZero() float64 {
	if e.Amount == nil {
		return 0
	}
	return *e.Amount
}

// Window is an inclusive-start / exclusive-end time range covering Days
// whole UTC days.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Days  int       `json:"days"`
}

// Contains reports whether t falls within [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// BucketStart returns the start of the i-th daily bucket.
func (w Window) BucketStart(i int) time.Time {
	return w.Start.AddDate(0, 0, i)
}

// BucketIndex returns the daily bucket a timestamp falls into, or -1 when
// it is outside the window.
func (w Window) BucketIndex(t time.Time) int {
	if !w.Contains(t) {
		return -1
	}
	idx := int(t.Sub(w.Start) / (24 * time.Hour))
	if idx >= w.Days {
		return -1
	}
	return idx
}

// NewWindow returns the window of the given number of days ending at now.
// Buckets align to midnight UTC, so the first bucket starts at midnight
// days-1 days ago and the last bucket is the (partial) current day.
func NewWindow(now time.Time, days int) Window {
	end := now.UTC()
	today := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return Window{
		Start: today.AddDate(0, 0, -(days - 1)),
		End:   end,
		Days:  days,
	}
}
