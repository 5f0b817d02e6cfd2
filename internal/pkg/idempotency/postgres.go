package idempotency

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PGClaimer stores claims in the dispatch_claims table:
//
//	CREATE TABLE dispatch_claims (
//	    claim_key  TEXT PRIMARY KEY,
//	    claimed_at TIMESTAMPTZ NOT NULL,
//	    expires_at TIMESTAMPTZ
//	);
//
// An expired row is taken over by the next claim.
type PGClaimer struct {
	db  *sql.DB
	now func() time.Time
}

func NewPGClaimer(db *sql.DB) *PGClaimer {
	return &PGClaimer{db: db, now: time.Now}
}

func (c *PGClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := c.now().UTC()
	var expires sql.NullTime
	if ttl > 0 {
		expires = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO dispatch_claims (claim_key, claimed_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (claim_key) DO UPDATE
		SET claimed_at = EXCLUDED.claimed_at, expires_at = EXCLUDED.expires_at
		WHERE dispatch_claims.expires_at IS NOT NULL AND dispatch_claims.expires_at < $2
	`, key, now, expires)
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", key, err)
	}
	return n == 1, nil
}

func (c *PGClaimer) Release(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM dispatch_claims WHERE claim_key = $1`, key); err != nil {
		return fmt.Errorf("failed to release %s: %w", key, err)
	}
	return nil
}
