package memory

import (
	"context"
	"sync"
	"time"

	telemetry "energyiq/internal/telemetry/domain"
)

type readingKey struct {
	deviceID string
	ts       time.Time
}

// ReadingRepository is an in-memory reading store for demo/testing.
type ReadingRepository struct {
	mu       sync.Mutex
	seen     map[readingKey]struct{}
	readings []telemetry.Reading
	Err      error
}

// NewReadingRepository constructs a repository.
func NewReadingRepository() *ReadingRepository {
	return &ReadingRepository{seen: make(map[readingKey]struct{})}
}

// InsertReadings implements telemetry.ReadingRepository.
func (r *ReadingRepository) InsertReadings(ctx context.Context, readings []telemetry.Reading) (int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	inserted := 0
	for _, reading := range readings {
		if err := reading.Validate(); err != nil {
			return 0, err
		}
		key := readingKey{deviceID: reading.DeviceID, ts: reading.TS.UTC()}
		if _, ok := r.seen[key]; ok {
			continue
		}
		r.seen[key] = struct{}{}
		r.readings = append(r.readings, reading)
		inserted++
	}
	return inserted, nil
}

// Readings returns a copy of the stored readings.
func (r *ReadingRepository) Readings() []telemetry.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]telemetry.Reading, len(r.readings))
	copy(out, r.readings)
	return out
}
