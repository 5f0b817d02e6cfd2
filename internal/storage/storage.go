// Package storage selects and decorates the RunStore backend: Postgres,
// DynamoDB with an optional S3 archive, or local JSON files, optionally
// fronted by a Redis cache of the latest run.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/storefront-insights/internal/analytics"
	"github.com/ignite/storefront-insights/internal/config"
	"github.com/ignite/storefront-insights/internal/repository/postgres"
)

// New builds the configured RunStore. db is required for "postgres" and
// rdb may be nil.
func New(ctx context.Context, cfg config.StorageConfig, db *sql.DB, rdb *redis.Client, cacheCfg config.RedisConfig) (analytics.RunStore, error) {
	var store analytics.RunStore
	switch cfg.Type {
	case "postgres", "":
		if db == nil {
			return nil, fmt.Errorf("postgres storage requires a database connection")
		}
		store = postgres.NewRunStore(db)
	case "dynamodb":
		if cfg.DynamoDBTable == "" {
			return nil, fmt.Errorf("dynamodb storage requires a table name")
		}
		s, err := NewDynamoRunStore(ctx, cfg.DynamoDBTable, cfg.S3Bucket, cfg.AWSRegion, cfg.GetAWSProfile())
		if err != nil {
			return nil, err
		}
		store = s
	case "local":
		s, err := NewLocalRunStore(cfg.LocalPath)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}

	if rdb != nil {
		store = NewCachedRunStore(store, rdb, cacheCfg.LatestTTL())
	}
	return store, nil
}
