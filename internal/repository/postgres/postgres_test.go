package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/storefront-insights/internal/analytics"
	"github.com/ignite/storefront-insights/internal/domain"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

var (
	testNow    = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	testWindow = domain.NewWindow(testNow, 7)
)

func TestEventSource_Orders(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	at := testNow.Add(-time.Hour)
	mock.ExpectQuery("FROM orders").
		WithArgs(testWindow.Start, testWindow.End).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "channel", "campaign_id", "total", "session_id", "customer_id", "is_new_customer"}).
			AddRow("o1", at, "email", "c1", 42.5, "s1", "u1", true).
			AddRow("o2", at, "", "", nil, "", "", false))

	events, err := NewEventSource(db).Events(context.Background(), testWindow, domain.EventOrder)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domain.EventOrder, events[0].Type)
	assert.Equal(t, "o1", events[0].OrderID)
	require.NotNil(t, events[0].Amount)
	assert.Equal(t, 42.5, *events[0].Amount)
	assert.True(t, events[0].NewCustomer)
	assert.Nil(t, events[1].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventSource_AllTypes(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	at := testNow.Add(-2 * time.Hour)
	mock.ExpectQuery("FROM orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "channel", "campaign_id", "total", "session_id", "customer_id", "is_new_customer"}).
			AddRow("o1", at, "", "", 10.0, "s1", "u1", false))
	mock.ExpectQuery("FROM order_touches").
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "touched_at", "channel", "campaign_id"}).
			AddRow("o1", at.Add(-48*time.Hour), "social", "c9"))
	mock.ExpectQuery("FROM campaign_sends").
		WillReturnRows(sqlmock.NewRows([]string{"campaign_id", "channel", "sent_at", "recipients", "spend"}).
			AddRow("c1", "email", at, int64(500), 25.0).
			AddRow("c2", "social", at, int64(1), nil))
	mock.ExpectQuery("FROM email_deliveries").
		WillReturnRows(sqlmock.NewRows([]string{"campaign_id", "status", "hour", "count"}).
			AddRow("c1", "delivered", at, int64(480)).
			AddRow("c1", "bounced", at, int64(20)))
	mock.ExpectQuery("FROM site_events").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "channel", "occurred_at"}).
			AddRow("s1", "social", at))

	events, err := NewEventSource(db).Events(context.Background(), testWindow)
	require.NoError(t, err)
	require.Len(t, events, 7)

	touch := events[1]
	assert.Equal(t, domain.EventOrderTouch, touch.Type)
	assert.Equal(t, "social", touch.Channel)

	send := events[2]
	assert.Equal(t, int64(500), send.Units())
	require.NotNil(t, send.Amount)
	assert.Nil(t, events[3].Amount)

	bounce := events[5]
	assert.Equal(t, domain.EventEmailDelivery, bounce.Type)
	assert.Equal(t, domain.ChannelEmail, bounce.Channel)
	assert.Equal(t, domain.DeliveryBounced, bounce.Status)
	assert.Equal(t, int64(20), bounce.Units())

	assert.Equal(t, domain.EventSiteVisit, events[6].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventSource_QueryError(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM site_events").WillReturnError(errors.New("connection reset"))

	_, err := NewEventSource(db).Events(context.Background(), testWindow, domain.EventSiteVisit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query site events")
}

func TestEventSource_UnknownType(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewEventSource(db).Events(context.Background(), testWindow, domain.EventType("refund"))
	assert.Error(t, err)
}

func TestRunStore_Save(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	r := &domain.AnalyticsResult{ID: "run-1", RunAt: testNow, Days: 7}
	mock.ExpectExec("INSERT INTO analytics_runs").
		WithArgs("run-1", testNow, 7,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewRunStore(db).Save(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStore_SaveError(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO analytics_runs").WillReturnError(errors.New("disk full"))

	err := NewRunStore(db).Save(context.Background(), &domain.AnalyticsResult{ID: "run-1", RunAt: testNow})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRunStore_Latest(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM analytics_runs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "run_at", "days", "summary", "attribution", "campaigns", "trends", "delivery_issues", "recommendations"}).
			AddRow("run-2", testNow, int64(14),
				[]byte(`{"order_count":3,"revenue":90}`),
				[]byte(`[{"channel":"email","orders_attributed":3,"revenue_attributed":90,"attribution_weight":1}]`),
				[]byte(`[]`),
				[]byte(`[]`),
				[]byte(`[]`),
				[]byte(`[{"id":"rec-zero_orders","priority":5}]`)))

	r, err := NewRunStore(db).Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-2", r.ID)
	assert.Equal(t, 14, r.Days)
	assert.Equal(t, 90.0, r.Summary.Revenue)
	require.Len(t, r.Attribution, 1)
	assert.Equal(t, "email", r.Attribution[0].Channel)
	require.Len(t, r.Recommendations, 1)
	assert.Equal(t, 5, r.Recommendations[0].Priority)
}

func TestRunStore_LatestEmpty(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM analytics_runs").WillReturnError(sql.ErrNoRows)

	_, err := NewRunStore(db).Latest(context.Background())
	assert.ErrorIs(t, err, analytics.ErrNoRuns)
}
