// Package idempotency records claim-once keys so an action keyed by a
// stable id (for example a digest for one analytics run) happens at most
// once across processes.
package idempotency

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claimer claims keys. Claim returns true only for the first caller of a
// key until the key is released or its ttl elapses.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// New returns the best available claimer: Redis when a client is given,
// then Postgres, then process memory.
func New(redisClient *redis.Client, db *sql.DB) Claimer {
	switch {
	case redisClient != nil:
		return NewRedisClaimer(redisClient)
	case db != nil:
		return NewPGClaimer(db)
	default:
		return NewMemoryClaimer()
	}
}

// MemoryClaimer keeps claims in process memory. Claims do not survive a
// restart and are not shared between processes.
type MemoryClaimer struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{claims: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryClaimer) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if exp, ok := m.claims[key]; ok && (ttl <= 0 || now.Before(exp)) {
		return false, nil
	}
	m.claims[key] = now.Add(ttl)
	return true, nil
}

func (m *MemoryClaimer) Release(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.claims, key)
	m.mu.Unlock()
	return nil
}
