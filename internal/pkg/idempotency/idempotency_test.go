package idempotency

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, mr, func() {
		client.Close()
		mr.Close()
	}
}

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, func() { db.Close() }
}

func TestRedisClaimer_ClaimOnce(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	a := NewRedisClaimer(client)
	b := NewRedisClaimer(client)

	ok, err := a.Claim(ctx, "digest:run-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Claim(ctx, "digest:run-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second claimer must not win")

	// b does not own the claim, so its release is a no-op
	require.NoError(t, b.Release(ctx, "digest:run-1"))
	assert.True(t, mr.Exists("claim:digest:run-1"))

	require.NoError(t, a.Release(ctx, "digest:run-1"))
	assert.False(t, mr.Exists("claim:digest:run-1"))

	ok, err = b.Claim(ctx, "digest:run-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisClaimer_Expiry(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	c := NewRedisClaimer(client)
	ok, err := c.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = c.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisClaimer_Unavailable(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	mr.Close()

	_, err := NewRedisClaimer(client).Claim(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}

func TestPGClaimer(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewPGClaimer(db)
	c.now = func() time.Time { return now }

	mock.ExpectExec("INSERT INTO dispatch_claims").
		WithArgs("digest:run-1", now, sql.NullTime{Time: now.Add(time.Hour), Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO dispatch_claims").
		WithArgs("digest:run-1", now, sql.NullTime{Time: now.Add(time.Hour), Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM dispatch_claims").
		WithArgs("digest:run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := c.Claim(ctx, "digest:run-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Claim(ctx, "digest:run-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Release(ctx, "digest:run-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryClaimer(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryClaimer()
	c.now = func() time.Time { return now }

	ok, _ := c.Claim(ctx, "k", time.Hour)
	assert.True(t, ok)
	ok, _ = c.Claim(ctx, "k", time.Hour)
	assert.False(t, ok)

	now = now.Add(2 * time.Hour)
	ok, _ = c.Claim(ctx, "k", time.Hour)
	assert.True(t, ok, "expired claim is taken over")

	require.NoError(t, c.Release(ctx, "k"))
	ok, _ = c.Claim(ctx, "k", time.Hour)
	assert.True(t, ok)
}

func TestNewPicksBackend(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()
	db, _, dbCleanup := setupTestDB(t)
	defer dbCleanup()

	assert.IsType(t, &RedisClaimer{}, New(client, db))
	assert.IsType(t, &PGClaimer{}, New(nil, db))
	assert.IsType(t, &MemoryClaimer{}, New(nil, nil))
}
