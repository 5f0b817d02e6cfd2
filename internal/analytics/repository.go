package analytics

import (
	"context"

	"github.com/ignite/storefront-insights/internal/domain"
)

// EventSource reads raw events. Implementations must be safe for concurrent
// use and must return only events with Start <= Timestamp < End.
type EventSource interface {
	// Events returns events of the given types in the window. No types means all types.
	Events(ctx context.Context, w domain.Window, types ...domain.EventType) ([]domain.Event, error)
}

// RunStore persists analytics results. Records are append-only.
type RunStore interface {
	// Save appends a result.
	Save(ctx context.Context, r *domain.AnalyticsResult) error

	// Latest returns the result with the greatest RunAt. Returns ErrNoRuns
	// if nothing has been saved.
	Latest(ctx context.Context) (*domain.AnalyticsResult, error)
}
