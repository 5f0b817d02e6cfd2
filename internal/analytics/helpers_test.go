package analytics

import (
	"time"

	"github.com/ignite/storefront-insights/internal/config"
	"github.com/ignite/storefront-insights/internal/domain"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// day returns a timestamp inside bucket i of a window ending at testNow.
func day(days, i int) time.Time {
	return domain.NewWindow(testNow, days).BucketStart(i).Add(9 * time.Hour)
}

func amount(v float64) *float64 { return &v }

func order(id string, at time.Time, total float64, channel string) domain.Event {
	return domain.Event{Type: domain.EventOrder, OrderID: id, Timestamp: at, Amount: amount(total), Channel: channel}
}

func touch(orderID string, at time.Time, channel, campaign string) domain.Event {
	return domain.Event{Type: domain.EventOrderTouch, OrderID: orderID, Timestamp: at, Channel: channel, CampaignID: campaign}
}

func visit(session string, at time.Time) domain.Event {
	return domain.Event{Type: domain.EventSiteVisit, SessionID: session, Timestamp: at}
}

func send(campaign, channel string, at time.Time, spend *float64, count int64) domain.Event {
	return domain.Event{Type: domain.EventCampaignSend, CampaignID: campaign, Channel: channel, Timestamp: at, Amount: spend, Count: count}
}

func delivery(at time.Time, status string, count int64) domain.Event {
	return domain.Event{Type: domain.EventEmailDelivery, Channel: domain.ChannelEmail, Timestamp: at, Status: status, Count: count}
}

func testConfig() *config.Config {
	return config.Default()
}
