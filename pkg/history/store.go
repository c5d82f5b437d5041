// Package history persists one crash record per boot attempt, keyed by
// run identifier.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/modoterra/bootmon/pkg/core"
)

// Store maps run identifiers to their finalized crash records. The
// in-memory map is authoritative; Save rewrites the whole snapshot file
// after every update. With an empty path the store is memory-only.
type Store struct {
	path   string
	mu     sync.Mutex
	runs   map[string]core.CrashRecord
	logger *slog.Logger
}

// New creates a store backed by the snapshot file at path. An empty
// path disables persistence.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		runs:   make(map[string]core.CrashRecord),
		logger: logger,
	}
}

// Load reads the persisted snapshot into memory. A missing file means
// no history yet and is not an error. Entries that fail to decode are
// skipped so one corrupt record cannot take down the rest.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read history %s: %w", s.path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode history %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range raw {
		var rec core.CrashRecord
		if err := json.Unmarshal(entry, &rec); err != nil {
			s.logger.Warn("skipping malformed history entry", "run", id, "err", err)
			continue
		}
		s.runs[id] = rec
	}
	return nil
}

// Save writes the entire mapping as one snapshot, replacing the file
// atomically. A failed save leaves the in-memory map untouched; the
// next successful save carries everything accumulated so far.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	data, err := json.MarshalIndent(s.runs, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

// Put upserts the record for a run. A later finalize for the same run
// overwrites the earlier one.
func (s *Store) Put(runID string, rec core.CrashRecord) {
	s.mu.Lock()
	s.runs[runID] = rec
	s.mu.Unlock()
}

// Get returns the record for a run, if any.
func (s *Store) Get(runID string) (core.CrashRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	return rec, ok
}

// Runs returns a copy of the full mapping.
func (s *Store) Runs() map[string]core.CrashRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]core.CrashRecord, len(s.runs))
	for id, rec := range s.runs {
		out[id] = rec
	}
	return out
}

// Len returns the number of recorded runs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// MaxRun returns the highest numeric suffix among run_<n> keys, so the
// run counter can resume past previously recorded boots after a
// restart. Keys in other formats are ignored.
func (s *Store) MaxRun() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for id := range s.runs {
		if n, ok := core.ParseRunID(id); ok && n > max {
			max = n
		}
	}
	return max
}
