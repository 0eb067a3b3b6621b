package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"energyiq/internal/scheduler"
)

// RunStore is an in-memory job run ledger for demo/testing.
type RunStore struct {
	mu   sync.RWMutex
	runs []scheduler.Run
	Err  error
}

// NewRunStore constructs an empty ledger.
func NewRunStore() *RunStore {
	return &RunStore{}
}

// Start implements scheduler.RunStore.
func (s *RunStore) Start(ctx context.Context, run scheduler.Run) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.runs = append(s.runs, run)
	return nil
}

// Finish implements scheduler.RunStore.
func (s *RunStore) Finish(ctx context.Context, run scheduler.Run) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = run
			return nil
		}
	}
	return fmt.Errorf("job run store: run %s not found", run.ID)
}

// List implements scheduler.RunStore.
func (s *RunStore) List(ctx context.Context, limit int) ([]scheduler.Run, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]scheduler.Run, len(s.runs))
	copy(out, s.runs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
