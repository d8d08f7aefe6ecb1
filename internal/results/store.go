// Package results holds the output of the most recent analysis run for the
// API, plus a bounded history of run summaries.
package results

import (
	"sync"
	"time"

	"authwatch/internal/model"
)

type Store struct {
	mu      sync.RWMutex
	current model.RunResult
	loaded  bool
	history []model.Summary
	limit   int
}

// NewStore bounds the summary history at limit runs; the oldest entry is
// evicted first.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 50
	}
	return &Store{limit: limit}
}

// Set replaces the current run snapshot and records its summary.
func (s *Store) Set(res model.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = res
	s.loaded = true
	if len(s.history) < s.limit {
		s.history = append(s.history, res.Summary)
		return
	}
	copy(s.history, s.history[1:])
	s.history[len(s.history)-1] = res.Summary
}

func (s *Store) Current() (model.RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.loaded
}

func (s *Store) Summary() model.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Summary
}

// Alerts returns the first limit alerts of the current run; limit <= 0 means
// all. Alert order is stable within a run.
func (s *Store) Alerts(limit int) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clip(s.current.Alerts, limit)
}

// AlertsSince returns alerts whose window had not yet closed at ts.
func (s *Store) AlertsSince(ts time.Time) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, 0)
	for _, a := range s.current.Alerts {
		if !a.WindowEnd.Before(ts) {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) Anomalies(limit int) []model.AnomalyResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clip(s.current.Anomalies, limit)
}

func (s *Store) Events(limit int) []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clip(s.current.Events, limit)
}

// History returns run summaries, oldest first.
func (s *Store) History() []model.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Summary, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = model.RunResult{}
	s.loaded = false
	s.history = nil
}

func clip[T any](list []T, limit int) []T {
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]T, limit)
	copy(out, list[:limit])
	return out
}
