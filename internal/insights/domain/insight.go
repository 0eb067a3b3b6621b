package insights

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Insight is a persisted, ranked insight row.
type Insight struct {
	ID        uuid.UUID
	BatchID   uuid.UUID
	DeviceID  string
	Date      time.Time
	Text      string
	Relevancy float64
	Rank      int
	Active    bool
	CreatedAt time.Time
}

// NewBatch turns ranked candidates into active insight rows sharing one batch id.
func NewBatch(batchID uuid.UUID, ranked []Candidate, createdAt time.Time) []Insight {
	out := make([]Insight, 0, len(ranked))
	for i, candidate := range ranked {
		out = append(out, Insight{
			ID:        uuid.New(),
			BatchID:   batchID,
			DeviceID:  candidate.DeviceID,
			Date:      candidate.Date,
			Text:      candidate.Text,
			Relevancy: candidate.Relevancy,
			Rank:      i + 1,
			Active:    true,
			CreatedAt: createdAt,
		})
	}
	return out
}

// HistoryReader loads the full aggregate history, most recent date first.
type HistoryReader interface {
	ListFacts(ctx context.Context) ([]Fact, error)
}

// Repository persists insight batches.
type Repository interface {
	// ReplaceActive retires every active insight and inserts batch, atomically.
	ReplaceActive(ctx context.Context, batchID uuid.UUID, batch []Insight) error
	// ListActive returns active insights, newest batch first then by rank.
	ListActive(ctx context.Context, limit int) ([]Insight, error)
}
