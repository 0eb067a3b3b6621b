package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	stats "energyiq/internal/stats/domain"
)

type reading struct {
	deviceID string
	ts       time.Time
	kwh      float64
}

// ReadingQuery is an in-memory hourly reading query for demo/testing.
type ReadingQuery struct {
	mu       sync.RWMutex
	loc      *time.Location
	names    map[string]string
	readings []reading
	Err      error
}

// Option configures the query.
type Option func(*ReadingQuery)

// WithLocation cuts hour buckets on local clock hours of loc.
func WithLocation(loc *time.Location) Option {
	return func(q *ReadingQuery) {
		if loc != nil {
			q.loc = loc
		}
	}
}

// NewReadingQuery constructs an empty query bucketing in UTC unless configured.
func NewReadingQuery(opts ...Option) *ReadingQuery {
	q := &ReadingQuery{loc: time.UTC, names: make(map[string]string)}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetDeviceName records the display name of a device.
func (q *ReadingQuery) SetDeviceName(deviceID, name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.names[deviceID] = name
}

// Add records one reading.
func (q *ReadingQuery) Add(deviceID string, ts time.Time, energyKWh float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.readings = append(q.readings, reading{deviceID: deviceID, ts: ts.UTC(), kwh: energyKWh})
}

// HourlyTotals implements the stats reading query.
func (q *ReadingQuery) HourlyTotals(ctx context.Context, from, to time.Time, deviceID string) ([]stats.HourlyTotal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.Err != nil {
		return nil, q.Err
	}

	type key struct {
		device string
		hour   time.Time
	}
	sums := make(map[key]float64)
	for _, r := range q.readings {
		if r.ts.Before(from) || !r.ts.Before(to) {
			continue
		}
		if deviceID != "" && r.deviceID != deviceID {
			continue
		}
		local := r.ts.In(q.loc)
		hour := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, q.loc).UTC()
		sums[key{device: r.deviceID, hour: hour}] += r.kwh
	}

	out := make([]stats.HourlyTotal, 0, len(sums))
	for k, v := range sums {
		name := q.names[k.device]
		if name == "" {
			name = k.device
		}
		out = append(out, stats.HourlyTotal{DeviceID: k.device, DeviceName: name, HourStart: k.hour, EnergyKWh: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].HourStart.Equal(out[j].HourStart) {
			return out[i].HourStart.Before(out[j].HourStart)
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out, nil
}
