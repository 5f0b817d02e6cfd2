package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignite/storefront-insights/internal/analytics"
	"github.com/ignite/storefront-insights/internal/domain"
)

// RunStore implements analytics.RunStore against the append-only
// analytics_runs table.
type RunStore struct{ db *sql.DB }

// NewRunStore creates a Postgres-backed run store.
func NewRunStore(db *sql.DB) *RunStore { return &RunStore{db: db} }

func (s *RunStore) Save(ctx context.Context, r *domain.AnalyticsResult) error {
	cols, err := encodeRun(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analytics_runs (id, run_at, days, summary, attribution, campaigns,
		                            trends, delivery_issues, recommendations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.RunAt, r.Days, cols[0], cols[1], cols[2], cols[3], cols[4], cols[5])
	if err != nil {
		return fmt.Errorf("insert analytics run: %w", err)
	}
	return nil
}

func (s *RunStore) Latest(ctx context.Context) (*domain.AnalyticsResult, error) {
	r := &domain.AnalyticsResult{}
	var summary, attribution, campaigns, trends, issues, recs []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, run_at, days, summary, attribution, campaigns,
		       trends, delivery_issues, recommendations
		FROM analytics_runs
		ORDER BY run_at DESC, id DESC
		LIMIT 1
	`).Scan(&r.ID, &r.RunAt, &r.Days, &summary, &attribution, &campaigns, &trends, &issues, &recs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, analytics.ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("get latest analytics run: %w", err)
	}
	r.RunAt = r.RunAt.UTC()

	targets := []struct {
		name string
		data []byte
		dst  any
	}{
		{"summary", summary, &r.Summary},
		{"attribution", attribution, &r.Attribution},
		{"campaigns", campaigns, &r.Campaigns},
		{"trends", trends, &r.Trends},
		{"delivery_issues", issues, &r.DeliveryIssues},
		{"recommendations", recs, &r.Recommendations},
	}
	for _, t := range targets {
		if len(t.data) == 0 {
			continue
		}
		if err := json.Unmarshal(t.data, t.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t.name, err)
		}
	}
	return r, nil
}

// encodeRun returns the JSONB columns in insert order.
func encodeRun(r *domain.AnalyticsResult) ([6][]byte, error) {
	var cols [6][]byte
	parts := []any{r.Summary, r.Attribution, r.Campaigns, r.Trends, r.DeliveryIssues, r.Recommendations}
	for i, p := range parts {
		b, err := json.Marshal(p)
		if err != nil {
			return cols, fmt.Errorf("encode analytics run: %w", err)
		}
		cols[i] = b
	}
	return cols, nil
}
