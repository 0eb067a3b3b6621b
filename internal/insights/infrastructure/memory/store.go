package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	insights "energyiq/internal/insights/domain"
)

// History is a static in-memory history reader for demo/testing.
type History struct {
	Facts []insights.Fact
	Err   error
}

// ListFacts returns the facts most recent date first, then by device id.
func (h *History) ListFacts(ctx context.Context) ([]insights.Fact, error) {
	_ = ctx
	if h.Err != nil {
		return nil, h.Err
	}
	out := make([]insights.Fact, len(h.Facts))
	copy(out, h.Facts)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out, nil
}

// Repository is an in-memory insight repository.
type Repository struct {
	mu       sync.RWMutex
	rows     []insights.Insight
	batchSeq map[uuid.UUID]int
	seq      int
	Err      error
}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{batchSeq: make(map[uuid.UUID]int)}
}

// ReplaceActive implements insights.Repository.
func (r *Repository) ReplaceActive(ctx context.Context, batchID uuid.UUID, batch []insights.Insight) error {
	_ = ctx
	if batchID == uuid.Nil {
		return insights.ErrEmptyBatch
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for i := range r.rows {
		r.rows[i].Active = false
	}
	r.seq++
	r.batchSeq[batchID] = r.seq
	r.rows = append(r.rows, batch...)
	return nil
}

// ListActive implements insights.Repository.
func (r *Repository) ListActive(ctx context.Context, limit int) ([]insights.Insight, error) {
	_ = ctx
	if limit <= 0 {
		return nil, insights.ErrInvalidLimit
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []insights.Insight
	for _, row := range r.rows {
		if row.Active {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := r.batchSeq[out[i].BatchID], r.batchSeq[out[j].BatchID]
		if si != sj {
			return si > sj
		}
		return out[i].Rank < out[j].Rank
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored row, active or not.
func (r *Repository) All() []insights.Insight {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]insights.Insight, len(r.rows))
	copy(out, r.rows)
	return out
}
