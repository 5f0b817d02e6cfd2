package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	sf "github.com/snowflakedb/gosnowflake"

	"github.com/ignite/storefront-insights/internal/config"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)

// Client provides access to the Snowflake events table
type Client struct {
	db    *sql.DB
	table string
}

// NewClient opens a Snowflake connection pool for cfg.
func NewClient(cfg config.SnowflakeConfig) (*Client, error) {
	if !identifierRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid snowflake table name %q", cfg.Table)
	}
	dsn, err := sf.DSN(&sf.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build snowflake dsn: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snowflake connection: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{db: db, table: cfg.Table}, nil
}

func newClientWithDB(db *sql.DB, table string) *Client {
	return &Client{db: db, table: table}
}

// Close closes the database connection
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the database connection
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// ApplyConnectionString fills empty fields of cfg from a connection string
// of the form ACCOUNT=xxx;USER=yyy;PASSWORD=zzz;DB=database.schema;WAREHOUSE=www
func ApplyConnectionString(cfg *config.SnowflakeConfig, connStr string) {
	parts := make(map[string]string)
	for _, field := range strings.Split(connStr, ";") {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			continue
		}
		parts[strings.ToUpper(key)] = value
	}

	database, schema, _ := strings.Cut(parts["DB"], ".")
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&cfg.Account, parts["ACCOUNT"])
	fill(&cfg.User, parts["USER"])
	fill(&cfg.Password, parts["PASSWORD"])
	fill(&cfg.Database, database)
	fill(&cfg.Schema, schema)
	fill(&cfg.Warehouse, parts["WAREHOUSE"])
}
