// Package memory provides an in-process run store for local runs and
// tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/brandsignal/harvester/internal/collector"
)

// ErrRunNotFound indicates an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Store implements collector.PageStore with maps.
type Store struct {
	mu    sync.RWMutex
	runs  map[string]collector.Run
	pages map[string][]collector.Page
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		runs:  make(map[string]collector.Run),
		pages: make(map[string][]collector.Page),
	}
}

// CreateRun registers a new run. Duplicate IDs are rejected.
func (s *Store) CreateRun(_ context.Context, run collector.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRunStatus overwrites the run's status, error text and stats.
func (s *Store) UpdateRunStatus(_ context.Context, runID string, status collector.RunStatus, errText string, stats collector.RunStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	run.Status = status
	run.ErrorText = errText
	run.Stats = stats
	s.runs[runID] = run
	return nil
}

// RecordPage appends an accepted page to the run.
func (s *Store) RecordPage(_ context.Context, runID string, page collector.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	s.pages[runID] = append(s.pages[runID], page)
	return nil
}

// GetRun returns a copy of the run.
func (s *Store) GetRun(_ context.Context, runID string) (collector.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return collector.Run{}, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	return run, nil
}

// ListPages returns the run's pages ordered by search rank.
func (s *Store) ListPages(_ context.Context, runID string) ([]collector.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	pages := append([]collector.Page(nil), s.pages[runID]...)
	sort.Slice(pages, func(i, j int) bool { return pages[i].Rank < pages[j].Rank })
	return pages, nil
}

// ListRuns returns all runs ordered by submission time, newest first.
func (s *Store) ListRuns(_ context.Context) ([]collector.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]collector.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Submitted.After(runs[j].Submitted) })
	return runs, nil
}
