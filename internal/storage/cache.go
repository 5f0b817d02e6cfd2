package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/storefront-insights/internal/analytics"
	"github.com/ignite/storefront-insights/internal/domain"
	"github.com/ignite/storefront-insights/internal/pkg/logger"
)

// latestKey is a hash of the cached run ("data") and its sort key ("sk").
const latestKey = "analytics:latest_run"

// storeIfNewerScript writes the run only when its sort key is greater than
// the cached one. ARGV: sort key, run JSON, ttl in milliseconds (0 = none).
var storeIfNewerScript = redis.NewScript(`
	local cur = redis.call("hget", KEYS[1], "sk")
	if cur and cur >= ARGV[1] then
		return 0
	end
	redis.call("hset", KEYS[1], "sk", ARGV[1], "data", ARGV[2])
	if tonumber(ARGV[3]) > 0 then
		redis.call("pexpire", KEYS[1], ARGV[3])
	else
		redis.call("persist", KEYS[1])
	end
	return 1
`)

// CachedRunStore fronts a RunStore with a Redis copy of the latest run.
// Every cache write is a compare-and-set on the run's sort key, so a slow
// reader or an overlapping run can never replace a newer cached run.
type CachedRunStore struct {
	next   analytics.RunStore
	client *redis.Client
	ttl    time.Duration
}

// NewCachedRunStore wraps next. A zero ttl caches without expiry.
func NewCachedRunStore(next analytics.RunStore, client *redis.Client, ttl time.Duration) *CachedRunStore {
	return &CachedRunStore{next: next, client: client, ttl: ttl}
}

func (c *CachedRunStore) Save(ctx context.Context, r *domain.AnalyticsResult) error {
	if err := c.next.Save(ctx, r); err != nil {
		return err
	}
	if _, err := c.storeIfNewer(ctx, r); err != nil {
		logger.Warn("latest cache write failed, invalidating", "run_id", r.ID, "error", err)
		if err := c.client.Del(ctx, latestKey).Err(); err != nil {
			logger.Warn("latest cache invalidation failed", "error", err)
		}
	}
	return nil
}

// Latest serves from Redis and falls through to the backing store on a miss
// or a Redis error.
func (c *CachedRunStore) Latest(ctx context.Context) (*domain.AnalyticsResult, error) {
	data, err := c.client.HGet(ctx, latestKey, "data").Bytes()
	switch {
	case err == nil:
		var r domain.AnalyticsResult
		if jerr := json.Unmarshal(data, &r); jerr == nil {
			return &r, nil
		}
	case !errors.Is(err, redis.Nil):
		logger.Warn("latest cache read failed", "error", err)
	}

	r, err := c.next.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := c.storeIfNewer(ctx, r); err != nil {
		logger.Warn("latest cache write failed", "run_id", r.ID, "error", err)
	}
	return r, nil
}

// storeIfNewer reports whether r replaced the cached run.
func (c *CachedRunStore) storeIfNewer(ctx context.Context, r *domain.AnalyticsResult) (bool, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return false, err
	}
	n, err := storeIfNewerScript.Run(ctx, c.client, []string{latestKey},
		sortKey(r), data, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
