// Package app wires the configured backends into the analytics pipeline.
// Both cmd/server and cmd/worker build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/storefront-insights/internal/advisor"
	"github.com/ignite/storefront-insights/internal/analytics"
	"github.com/ignite/storefront-insights/internal/config"
	"github.com/ignite/storefront-insights/internal/dispatch"
	"github.com/ignite/storefront-insights/internal/mailer"
	"github.com/ignite/storefront-insights/internal/pkg/idempotency"
	"github.com/ignite/storefront-insights/internal/repository/postgres"
	"github.com/ignite/storefront-insights/internal/snowflake"
	"github.com/ignite/storefront-insights/internal/storage"
)

// App holds the long-lived components of one process.
type App struct {
	Config       *config.Config
	DB           *sql.DB
	Redis        *redis.Client
	Source       analytics.EventSource
	Store        analytics.RunStore
	Orchestrator *analytics.Orchestrator
	Engine       *advisor.Engine
	Claims       idempotency.Claimer
	Dispatcher   *dispatch.Dispatcher
	Queue        *dispatch.Queue

	closers []func() error
}

// New connects to every configured backend. Optional backends that fail
// to connect are logged and skipped; required ones return an error.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.Database.URL != "" {
		db, err := openDB(ctx, cfg.Database)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
	}

	a.Redis = openRedis(ctx, cfg.Redis.URL)
	if a.Redis != nil {
		a.closers = append(a.closers, a.Redis.Close)
	}

	source, err := a.openSource()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Source = source

	store, err := storage.New(ctx, cfg.Storage, a.DB, a.Redis, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("run store: %w", err)
	}
	a.Store = store

	a.Orchestrator = analytics.NewOrchestrator(a.Source, a.Store, cfg)
	a.Engine = advisor.NewEngine(cfg.Advisor)
	a.Claims = idempotency.New(a.Redis, a.DB)

	if cfg.Digest.Enabled {
		if err := a.setupDigest(ctx); err != nil {
			a.Close()
			return nil, err
		}
	} else {
		log.Println("Digest disabled (digest.enabled=false)")
	}
	return a, nil
}

func openDB(ctx context.Context, c config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", c.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.Lifetime())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database at %s: %w", extractHost(c.URL), err)
	}
	log.Printf("Connected to database at %s", extractHost(c.URL))
	return db, nil
}

// openRedis returns nil when Redis is unset or unreachable.
func openRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		log.Println("Redis not configured (REDIS_URL not set), claims fall back to Postgres or memory")
		return nil
	}
	var client *redis.Client
	if opts, err := redis.ParseURL(url); err != nil {
		client = redis.NewClient(&redis.Options{Addr: url})
	} else {
		client = redis.NewClient(opts)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed: %v, continuing without it", err)
		client.Close()
		return nil
	}
	log.Println("Redis connected (claims and latest-run cache enabled)")
	return client
}

func (a *App) openSource() (analytics.EventSource, error) {
	switch a.Config.Source.Type {
	case "postgres", "":
		if a.DB == nil {
			return nil, fmt.Errorf("postgres event source requires DATABASE_URL")
		}
		return postgres.NewEventSource(a.DB), nil
	case "snowflake":
		sfCfg := a.Config.Snowflake
		if connStr := os.Getenv("SNOWFLAKE_CONNECTION_STRING"); connStr != "" {
			snowflake.ApplyConnectionString(&sfCfg, connStr)
		}
		client, err := snowflake.NewClient(sfCfg)
		if err != nil {
			return nil, fmt.Errorf("snowflake event source: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		log.Printf("Snowflake event source: %s.%s.%s", sfCfg.Database, sfCfg.Schema, sfCfg.Table)
		return client, nil
	case "memory":
		log.Println("Using empty in-memory event source")
		return analytics.NewMemorySource(), nil
	default:
		return nil, fmt.Errorf("unknown event source %q", a.Config.Source.Type)
	}
}

func (a *App) setupDigest(ctx context.Context) error {
	d := a.Config.Digest
	m, err := mailer.New(ctx, a.Config)
	if err != nil {
		return fmt.Errorf("digest mailer: %w", err)
	}
	formatter, err := dispatch.NewFormatter(d.SubjectPrefix)
	if err != nil {
		return fmt.Errorf("digest templates: %w", err)
	}
	a.Dispatcher = dispatch.NewDispatcher(m, formatter, a.Claims, dispatch.Options{
		ClaimTTL:    d.ClaimTTL(),
		SendTimeout: d.SendTimeout(),
	})
	a.Queue = dispatch.NewQueue(a.Dispatcher, d.QueueSize, d.Workers)
	log.Printf("Digest enabled: provider=%s queue=%d workers=%d", d.Provider, d.QueueSize, d.Workers)
	return nil
}

// Close drains the digest queue, then closes connections in reverse order.
func (a *App) Close() {
	if a.Queue != nil {
		a.Queue.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("Close error: %v", err)
		}
	}
	a.closers = nil
}

// extractHost returns the host portion of a DSN for logging.
func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}
