package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ignite/storefront-insights/internal/analytics"
	"github.com/ignite/storefront-insights/internal/domain"
)

// sortKeyLayout is fixed width so that lexical order matches run time order.
const sortKeyLayout = "20060102T150405.000000000Z"

// sortKey orders runs by run_at, then id.
func sortKey(r *domain.AnalyticsResult) string {
	return r.RunAt.UTC().Format(sortKeyLayout) + "_" + r.ID
}

// LocalRunStore keeps one JSON file per run under a directory.
type LocalRunStore struct {
	mu  sync.Mutex
	dir string
}

// NewLocalRunStore creates the runs directory under path if needed.
func NewLocalRunStore(path string) (*LocalRunStore, error) {
	dir := filepath.Join(path, "runs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating runs dir: %w", err)
	}
	return &LocalRunStore{dir: dir}, nil
}

// Save writes the run to a temp file and renames it into place.
func (s *LocalRunStore) Save(ctx context.Context, r *domain.AnalyticsResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, filepath.Base(sortKey(r))+".json")
	tmp, err := os.CreateTemp(s.dir, ".run-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing run: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing run file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming run file: %w", err)
	}
	return nil
}

// Latest reads the file with the greatest sort key.
func (s *LocalRunStore) Latest(ctx context.Context) (*domain.AnalyticsResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, analytics.ErrNoRuns
	}
	sort.Strings(names)

	data, err := os.ReadFile(filepath.Join(s.dir, names[len(names)-1]))
	if err != nil {
		return nil, fmt.Errorf("reading run: %w", err)
	}
	var r domain.AnalyticsResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding run: %w", err)
	}
	return &r, nil
}
