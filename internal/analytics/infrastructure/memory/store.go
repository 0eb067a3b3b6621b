package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"energyiq/internal/analytics/domain/aggregate"
)

type aggregateKey struct {
	deviceID string
	date     time.Time
}

// Store is an in-memory reading and aggregate store for demo/testing.
// Transactions are serialized and applied copy-on-commit.
type Store struct {
	mu         sync.Mutex
	nextID     int64
	readings   []aggregate.Reading
	aggregates map[aggregateKey]aggregate.DailyAggregate
	names      map[string]string
	lockHeld   bool
	upsertHook func(aggregate.DailyAggregate) error
}

// Option configures the store.
type Option func(*Store)

// WithUpsertHook runs fn before every aggregate upsert; a non-nil error fails the upsert.
func WithUpsertHook(fn func(aggregate.DailyAggregate) error) Option {
	return func(s *Store) {
		s.upsertHook = fn
	}
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		aggregates: make(map[aggregateKey]aggregate.DailyAggregate),
		names:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDeviceName registers a display name used by read queries.
func (s *Store) SetDeviceName(deviceID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[deviceID] = name
}

// SetRunLockHeld simulates another process holding the aggregation lock.
func (s *Store) SetRunLockHeld(held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockHeld = held
}

// AddReading appends an unprocessed reading and returns its id.
func (s *Store) AddReading(deviceID string, ts time.Time, energyKWh float64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.readings = append(s.readings, aggregate.Reading{
		ID:        s.nextID,
		DeviceID:  deviceID,
		Timestamp: ts,
		EnergyKWh: energyKWh,
	})
	return s.nextID
}

// Readings returns a copy of all readings.
func (s *Store) Readings() []aggregate.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]aggregate.Reading, len(s.readings))
	copy(out, s.readings)
	return out
}

// Aggregates returns all aggregates ordered by date then device.
func (s *Store) Aggregates() []aggregate.DailyAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterLocked(aggregate.Filter{})
}

// WithinTx runs fn against a private copy and commits it only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx aggregate.AggregationTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &storeTx{
		store:      s,
		readings:   make([]aggregate.Reading, len(s.readings)),
		aggregates: make(map[aggregateKey]aggregate.DailyAggregate, len(s.aggregates)),
	}
	copy(tx.readings, s.readings)
	for key, agg := range s.aggregates {
		tx.aggregates[key] = agg
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.readings = tx.readings
	s.aggregates = tx.aggregates
	return nil
}

// PutAggregate stores agg directly, replacing any aggregate of the same device-day.
func (s *Store) PutAggregate(agg aggregate.DailyAggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregates[aggregateKey{deviceID: agg.DeviceID, date: agg.Date}] = agg
}

// ListRange implements aggregate.Reader.
func (s *Store) ListRange(ctx context.Context, filter aggregate.Filter) ([]aggregate.DailyAggregate, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterLocked(filter), nil
}

// ListByWeek implements aggregate.Reader.
func (s *Store) ListByWeek(ctx context.Context, weekStart time.Time, deviceID string) ([]aggregate.DailyAggregate, error) {
	weekStart = aggregate.WeekStart(weekStart)
	return s.ListRange(ctx, aggregate.Filter{From: weekStart, To: weekStart.AddDate(0, 0, 6), DeviceID: deviceID})
}

// ListByMonth implements aggregate.Reader.
func (s *Store) ListByMonth(ctx context.Context, monthStart time.Time, deviceID string) ([]aggregate.DailyAggregate, error) {
	monthStart = aggregate.MonthStart(monthStart)
	return s.ListRange(ctx, aggregate.Filter{From: monthStart, To: monthStart.AddDate(0, 1, -1), DeviceID: deviceID})
}

func (s *Store) filterLocked(filter aggregate.Filter) []aggregate.DailyAggregate {
	out := make([]aggregate.DailyAggregate, 0, len(s.aggregates))
	for _, agg := range s.aggregates {
		if filter.DeviceID != "" && agg.DeviceID != filter.DeviceID {
			continue
		}
		if !filter.From.IsZero() && agg.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && agg.Date.After(filter.To) {
			continue
		}
		agg.DeviceName = s.names[agg.DeviceID]
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out
}

type storeTx struct {
	store      *Store
	readings   []aggregate.Reading
	aggregates map[aggregateKey]aggregate.DailyAggregate
}

func (tx *storeTx) AcquireRunLock(ctx context.Context) (bool, error) {
	_ = ctx
	return !tx.store.lockHeld, nil
}

func (tx *storeTx) UnprocessedDeviceDays(ctx context.Context, loc *time.Location) ([]aggregate.DeviceDay, error) {
	_ = ctx
	seen := make(map[aggregateKey]struct{})
	var out []aggregate.DeviceDay
	for _, reading := range tx.readings {
		if reading.Processed {
			continue
		}
		key := aggregateKey{deviceID: reading.DeviceID, date: aggregate.CivilDay(reading.Timestamp, loc)}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, aggregate.DeviceDay{DeviceID: key.deviceID, Day: key.date})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].Day.Before(out[j].Day)
	})
	return out, nil
}

func (tx *storeTx) ReadingsForDeviceDay(ctx context.Context, deviceID string, start, end time.Time) ([]aggregate.Reading, error) {
	_ = ctx
	var out []aggregate.Reading
	for _, reading := range tx.readings {
		if reading.DeviceID != deviceID {
			continue
		}
		if reading.Timestamp.Before(start) || !reading.Timestamp.Before(end) {
			continue
		}
		out = append(out, reading)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (tx *storeTx) UpsertAggregate(ctx context.Context, agg aggregate.DailyAggregate) error {
	_ = ctx
	if tx.store.upsertHook != nil {
		if err := tx.store.upsertHook(agg); err != nil {
			return err
		}
	}
	key := aggregateKey{deviceID: agg.DeviceID, date: agg.Date}
	if existing, ok := tx.aggregates[key]; ok {
		agg.Finalized = existing.Finalized
	}
	agg.DeviceName = ""
	tx.aggregates[key] = agg
	return nil
}

func (tx *storeTx) MarkProcessed(ctx context.Context, ids []int64) error {
	_ = ctx
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for i := range tx.readings {
		if _, ok := set[tx.readings[i].ID]; ok {
			tx.readings[i].Processed = true
		}
	}
	return nil
}
