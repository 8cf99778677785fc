package report

import (
	"fmt"
	"sort"
	"sync"
)

// Store is a concurrency-safe in-memory collection of run reports, keyed by
// run ID. The HTTP status surface reads from it while dispatches write.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*RunReport
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{runs: make(map[string]*RunReport)}
}

// Put inserts or replaces a run report.
func (s *Store) Put(r *RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = r
}

// Get returns the report for the given run ID.
func (s *Store) Get(id string) (*RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %q not found", id)
	}
	return r, nil
}

// List returns all stored reports ordered by start time, newest first.
func (s *Store) List() []*RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RunReport, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}
