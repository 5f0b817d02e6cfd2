package analytics

import (
	"context"
	"sync"

	"github.com/ignite/storefront-insights/internal/domain"
)

// MemorySource is an EventSource over a fixed slice of events. Used in tests
// and local development.
type MemorySource struct {
	mu     sync.RWMutex
	events []domain.Event
	err    error
}

// NewMemorySource creates a source holding events.
func NewMemorySource(events ...domain.Event) *MemorySource {
	return &MemorySource{events: events}
}

// Add appends events.
func (s *MemorySource) Add(events ...domain.Event) {
	s.mu.Lock()
	s.events = append(s.events, events...)
	s.mu.Unlock()
}

// FailWith makes every subsequent read return err.
func (s *MemorySource) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *MemorySource) Events(ctx context.Context, w domain.Window, types ...domain.EventType) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}

	want := make(map[domain.EventType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []domain.Event
	for _, e := range s.events {
		if len(want) > 0 && !want[e.Type] {
			continue
		}
		if w.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	return out, nil
}

// MemoryRunStore keeps results in memory.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs []*domain.AnalyticsResult
	err  error
}

func NewMemoryRunStore() *MemoryRunStore { return &MemoryRunStore{} }

// FailWith makes every subsequent Save return err.
func (s *MemoryRunStore) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *MemoryRunStore) Save(_ context.Context, r *domain.AnalyticsResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.runs = append(s.runs, r)
	return nil
}

func (s *MemoryRunStore) Latest(_ context.Context) (*domain.AnalyticsResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.AnalyticsResult
	for _, r := range s.runs {
		if latest == nil || !r.RunAt.Before(latest.RunAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrNoRuns
	}
	return latest, nil
}

// Count returns how many results were saved.
func (s *MemoryRunStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
