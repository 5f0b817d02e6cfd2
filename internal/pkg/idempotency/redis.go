package idempotency

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisClaimer claims keys with SET NX. Each claimer has a random owner
// value so Release never drops a claim taken by another process.
type RedisClaimer struct {
	client *redis.Client
	owner  string
}

// NewRedisClaimer creates a claimer backed by Redis.
func NewRedisClaimer(client *redis.Client) *RedisClaimer {
	b := make([]byte, 16)
	rand.Read(b)
	return &RedisClaimer{client: client, owner: hex.EncodeToString(b)}
}

func redisKey(key string) string { return fmt.Sprintf("claim:%s", key) }

// Claim sets the key if absent. A ttl of zero keeps the claim until released.
func (c *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, redisKey(key), c.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes the claim only if this claimer owns it.
func (c *RedisClaimer) Release(ctx context.Context, key string) error {
	if _, err := releaseScript.Run(ctx, c.client, []string{redisKey(key)}, c.owner).Result(); err != nil {
		return fmt.Errorf("failed to release %s: %w", key, err)
	}
	return nil
}
