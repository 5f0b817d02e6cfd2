package analytics

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/storefront-insights/internal/domain"
)

func TestAggregate_SummaryAndConversion(t *testing.T) {
	src := NewMemorySource(
		order("o1", day(7, 1), 100, "email"),
		order("o2", day(7, 2), 50, ""),
		visit("s1", day(7, 1)),
		visit("s1", day(7, 1)),
		visit("s2", day(7, 2)),
		visit("s3", day(7, 3)),
		visit("s4", day(7, 4)),
	)
	src.Add(domain.Event{Type: domain.EventOrder, OrderID: "o3", Timestamp: day(7, 5), Amount: amount(30), CustomerID: "c1", NewCustomer: true})

	summary, _, _, err := NewAggregator(src).Aggregate(context.Background(), domain.NewWindow(testNow, 7))
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.OrderCount)
	assert.InDelta(t, 180.0, summary.Revenue, 1e-9)
	assert.Equal(t, int64(4), summary.Sessions)
	assert.InDelta(t, 0.75, summary.ConversionRate, 1e-9)
	assert.Equal(t, int64(1), summary.NewCustomers)
	assert.InDelta(t, 60.0, summary.AverageOrderValue, 1e-9)
}

func TestAggregate_ZeroSessionsGivesZeroConversion(t *testing.T) {
	src := NewMemorySource(order("o1", day(7, 1), 10, "email"))

	summary, _, _, err := NewAggregator(src).Aggregate(context.Background(), domain.NewWindow(testNow, 7))
	require.NoError(t, err)
	assert.Equal(t, 0.0, summary.ConversionRate)
}

func TestAggregate_IgnoresEventsOutsideWindow(t *testing.T) {
	w := domain.NewWindow(testNow, 3)
	src := NewMemorySource(
		order("old", w.Start.Add(-1), 999, "email"),
		order("future", w.End, 999, "email"),
		order("in", w.Start, 5, "email"),
	)

	summary, _, _, err := NewAggregator(src).Aggregate(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.OrderCount)
	assert.Equal(t, 5.0, summary.Revenue)
}

func TestAggregate_Attribution(t *testing.T) {
	src := NewMemorySource(
		// multi-touch: split evenly across three channels
		order("o1", day(7, 2), 90, "email"),
		touch("o1", day(7, 0), "email", "spring"),
		touch("o1", day(7, 1), "paid_social", "fb-1"),
		touch("o1", day(7, 1), "search", ""),
		// single touch, no order channel: last touch
		order("o2", day(7, 3), 40, ""),
		touch("o2", day(7, 3), "search", ""),
		// order channel wins when touches are not multi-channel
		order("o3", day(7, 4), 10, "email"),
		touch("o3", day(7, 4), "email", "spring"),
		touch("o3", day(7, 4), "email", "spring"),
		// nothing recorded: direct
		order("o4", day(7, 5), 60, ""),
	)

	summary, attribution, campaigns, err := NewAggregator(src).Aggregate(context.Background(), domain.NewWindow(testNow, 7))
	require.NoError(t, err)
	require.Equal(t, int64(4), summary.OrderCount)

	var channels []string
	var totalOrders, totalRevenue float64
	for _, c := range attribution {
		channels = append(channels, c.Channel)
		totalOrders += c.OrdersAttributed
		totalRevenue += c.RevenueAttributed
	}
	assert.Equal(t, []string{"direct", "email", "paid_social", "search"}, channels)
	assert.InDelta(t, 4.0, totalOrders, 1e-9)
	assert.InDelta(t, summary.Revenue, totalRevenue, 1e-9)

	email, _ := attribution.Find("email")
	assert.InDelta(t, 1.0/3+1, email.OrdersAttributed, 1e-9)
	assert.InDelta(t, 30.0+10, email.RevenueAttributed, 1e-9)

	search, _ := attribution.Find("search")
	assert.InDelta(t, 1.0/3+1, search.OrdersAttributed, 1e-9)

	direct, _ := attribution.Find("direct")
	assert.InDelta(t, 0.25, direct.AttributionWeight, 1e-9)
	assert.InDelta(t, 60.0/200, direct.RevenueShare, 1e-9)

	require.Len(t, campaigns, 2)
	assert.Equal(t, "fb-1", campaigns[0].CampaignID)
	assert.InDelta(t, 30.0, campaigns[0].RevenueAttributed, 1e-9)
	assert.Equal(t, "spring", campaigns[1].CampaignID)
	assert.InDelta(t, 1.0/3+1, campaigns[1].OrdersAttributed, 1e-9)
}

func TestOrderCredits_SplitPerTouch(t *testing.T) {
	touches := []domain.Event{
		touch("o", day(7, 1), "email", "spring"),
		touch("o", day(7, 2), "email", "spring"),
		touch("o", day(7, 3), "ads", "g-1"),
	}
	credits := orderCredits(order("o", day(7, 4), 90, ""), touches)

	require.Len(t, credits, 2)
	assert.Equal(t, "ads", credits[0].channel)
	assert.InDelta(t, 1.0/3, credits[0].weight, 1e-9)
	assert.Equal(t, "email", credits[1].channel)
	assert.InDelta(t, 2.0/3, credits[1].weight, 1e-9)
	assert.Equal(t, []string{"spring"}, credits[1].campaigns)
}

func TestOrderCredits_WeightsSumToOne(t *testing.T) {
	channels := []string{"email", "search", "paid_social", "affiliate", "sms", "push", "display"}
	for n := 0; n <= len(channels); n++ {
		var touches []domain.Event
		for i := 0; i < n; i++ {
			// repeat every channel so duplicates exercise the distinct check
			touches = append(touches, touch("o", day(7, 1), channels[i], ""), touch("o", day(7, 2), channels[i], "c"))
		}
		for _, orderChannel := range []string{"", "email"} {
			credits := orderCredits(order("o", day(7, 3), 1, orderChannel), touches)
			var sum float64
			for _, c := range credits {
				sum += c.weight
			}
			assert.True(t, math.Abs(sum-1) <= weightEpsilon, "n=%d channel=%q sum=%v", n, orderChannel, sum)
		}
	}
}

func TestAggregate_Spend(t *testing.T) {
	src := NewMemorySource(
		send("spring", "email", day(7, 0), amount(20), 1000),
		send("spring", "email", day(7, 1), nil, 500),
		send("fb-1", "paid_social", day(7, 2), nil, 1),
	)

	_, attribution, campaigns, err := NewAggregator(src).Aggregate(context.Background(), domain.NewWindow(testNow, 7))
	require.NoError(t, err)

	email, ok := attribution.Find("email")
	require.True(t, ok)
	assert.True(t, email.SpendKnown)
	assert.Equal(t, 20.0, email.Spend)

	social, ok := attribution.Find("paid_social")
	require.True(t, ok)
	assert.False(t, social.SpendKnown, "sends without an amount do not make spend known")

	require.Len(t, campaigns, 2)
	assert.Equal(t, int64(1500), campaigns[1].Sends)
}

func TestAggregate_SourceFailure(t *testing.T) {
	src := NewMemorySource()
	src.FailWith(errors.New("connection refused"))

	summary, attribution, _, err := NewAggregator(src).Aggregate(context.Background(), domain.NewWindow(testNow, 7))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.Equal(t, domain.Summary{}, summary)
	assert.Nil(t, attribution)
}

func TestAggregate_RejectsEmptyWindow(t *testing.T) {
	_, _, _, err := NewAggregator(NewMemorySource()).Aggregate(context.Background(), domain.Window{})
	assert.ErrorIs(t, err, ErrValidation)
}
