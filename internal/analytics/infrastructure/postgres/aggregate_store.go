package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"energyiq/internal/analytics/domain/aggregate"
)

const (
	defaultAggregateTable = "energy_aggregations"
	defaultReadingTable   = "energy_readings"
	defaultDeviceTable    = "devices"
	defaultLockName       = "energy-aggregator"
)

// AggregateStore is a Postgres implementation of the aggregate unit of work and reader.
type AggregateStore struct {
	db           *sql.DB
	table        string
	readingTable string
	deviceTable  string
	lockName     string
}

// StoreOption configures the store.
type StoreOption func(*AggregateStore)

// WithTable overrides the aggregate table name.
func WithTable(table string) StoreOption {
	return func(s *AggregateStore) {
		if table != "" {
			s.table = table
		}
	}
}

// WithReadingTable overrides the reading table name.
func WithReadingTable(table string) StoreOption {
	return func(s *AggregateStore) {
		if table != "" {
			s.readingTable = table
		}
	}
}

// WithLockName overrides the advisory lock name taken by each run.
func WithLockName(name string) StoreOption {
	return func(s *AggregateStore) {
		if name != "" {
			s.lockName = name
		}
	}
}

// NewAggregateStore constructs a store.
func NewAggregateStore(db *sql.DB, opts ...StoreOption) (*AggregateStore, error) {
	if db == nil {
		return nil, errors.New("aggregate store: nil db")
	}
	s := &AggregateStore{
		db:           db,
		table:        defaultAggregateTable,
		readingTable: defaultReadingTable,
		deviceTable:  defaultDeviceTable,
		lockName:     defaultLockName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// WithinTx implements aggregate.UnitOfWork.
func (s *AggregateStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx aggregate.AggregationTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, &aggregationTx{tx: tx, store: s}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type aggregationTx struct {
	tx    *sql.Tx
	store *AggregateStore
}

func (t *aggregationTx) AcquireRunLock(ctx context.Context) (bool, error) {
	var acquired bool
	err := t.tx.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock(hashtext($1))`, t.store.lockName).Scan(&acquired)
	return acquired, err
}

func (t *aggregationTx) UnprocessedDeviceDays(ctx context.Context, loc *time.Location) ([]aggregate.DeviceDay, error) {
	if loc == nil {
		loc = time.UTC
	}
	query := fmt.Sprintf(`
SELECT DISTINCT device_id, (ts AT TIME ZONE $1)::date AS day
FROM %s
WHERE NOT is_processed
ORDER BY device_id, day`, t.store.readingTable)

	rows, err := t.tx.QueryContext(ctx, query, loc.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []aggregate.DeviceDay
	for rows.Next() {
		var (
			deviceID string
			day      time.Time
		)
		if err := rows.Scan(&deviceID, &day); err != nil {
			return nil, err
		}
		out = append(out, aggregate.DeviceDay{
			DeviceID: deviceID,
			Day:      time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		})
	}
	return out, rows.Err()
}

func (t *aggregationTx) ReadingsForDeviceDay(ctx context.Context, deviceID string, start, end time.Time) ([]aggregate.Reading, error) {
	query := fmt.Sprintf(`
SELECT id, device_id, ts, energy_kwh, is_processed
FROM %s
WHERE device_id = $1
	AND ts >= $2
	AND ts < $3
ORDER BY ts, id
FOR UPDATE`, t.store.readingTable)

	rows, err := t.tx.QueryContext(ctx, query, deviceID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []aggregate.Reading
	for rows.Next() {
		var reading aggregate.Reading
		if err := rows.Scan(&reading.ID, &reading.DeviceID, &reading.Timestamp, &reading.EnergyKWh, &reading.Processed); err != nil {
			return nil, err
		}
		out = append(out, reading)
	}
	return out, rows.Err()
}

func (t *aggregationTx) UpsertAggregate(ctx context.Context, agg aggregate.DailyAggregate) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	device_id,
	date,
	week_start,
	month_start,
	total_energy_kwh,
	total_cost,
	peak_energy_kwh,
	off_peak_energy_kwh,
	peak_to_off_peak_ratio,
	peak_hour,
	finalized,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
ON CONFLICT (device_id, date) DO UPDATE SET
	week_start = EXCLUDED.week_start,
	month_start = EXCLUDED.month_start,
	total_energy_kwh = EXCLUDED.total_energy_kwh,
	total_cost = EXCLUDED.total_cost,
	peak_energy_kwh = EXCLUDED.peak_energy_kwh,
	off_peak_energy_kwh = EXCLUDED.off_peak_energy_kwh,
	peak_to_off_peak_ratio = EXCLUDED.peak_to_off_peak_ratio,
	peak_hour = EXCLUDED.peak_hour,
	updated_at = NOW()`, t.store.table)

	_, err := t.tx.ExecContext(ctx, query,
		agg.DeviceID,
		agg.Date,
		agg.WeekStart,
		agg.MonthStart,
		agg.TotalEnergyKWh,
		agg.TotalCost,
		agg.PeakEnergyKWh,
		agg.OffPeakEnergyKWh,
		agg.PeakToOffPeakRatio,
		agg.PeakHour,
		agg.Finalized,
	)
	return err
}

func (t *aggregationTx) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE %s SET is_processed = TRUE WHERE id = ANY($1) AND NOT is_processed`, t.store.readingTable)
	_, err := t.tx.ExecContext(ctx, query, ids)
	return err
}

// ListRange implements aggregate.Reader.
func (s *AggregateStore) ListRange(ctx context.Context, filter aggregate.Filter) ([]aggregate.DailyAggregate, error) {
	var (
		clauses []string
		args    []any
	)
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		clauses = append(clauses, fmt.Sprintf("a.date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		clauses = append(clauses, fmt.Sprintf("a.date <= $%d", len(args)))
	}
	if filter.DeviceID != "" {
		args = append(args, filter.DeviceID)
		clauses = append(clauses, fmt.Sprintf("a.device_id = $%d", len(args)))
	}
	return s.list(ctx, clauses, args)
}

// ListByWeek implements aggregate.Reader using the denormalized week key.
func (s *AggregateStore) ListByWeek(ctx context.Context, weekStart time.Time, deviceID string) ([]aggregate.DailyAggregate, error) {
	clauses := []string{"a.week_start = $1"}
	args := []any{aggregate.WeekStart(weekStart)}
	if deviceID != "" {
		args = append(args, deviceID)
		clauses = append(clauses, "a.device_id = $2")
	}
	return s.list(ctx, clauses, args)
}

// ListByMonth implements aggregate.Reader using the denormalized month key.
func (s *AggregateStore) ListByMonth(ctx context.Context, monthStart time.Time, deviceID string) ([]aggregate.DailyAggregate, error) {
	clauses := []string{"a.month_start = $1"}
	args := []any{aggregate.MonthStart(monthStart)}
	if deviceID != "" {
		args = append(args, deviceID)
		clauses = append(clauses, "a.device_id = $2")
	}
	return s.list(ctx, clauses, args)
}

func (s *AggregateStore) list(ctx context.Context, clauses []string, args []any) ([]aggregate.DailyAggregate, error) {
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := fmt.Sprintf(`
SELECT
	a.device_id,
	COALESCE(d.name, a.device_id),
	a.date,
	a.week_start,
	a.month_start,
	a.total_energy_kwh,
	a.total_cost,
	a.peak_energy_kwh,
	a.off_peak_energy_kwh,
	a.peak_to_off_peak_ratio,
	a.peak_hour,
	a.finalized
FROM %s a
LEFT JOIN %s d ON d.id = a.device_id
%s
ORDER BY a.date, a.device_id`, s.table, s.deviceTable, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []aggregate.DailyAggregate
	for rows.Next() {
		var agg aggregate.DailyAggregate
		if err := rows.Scan(
			&agg.DeviceID,
			&agg.DeviceName,
			&agg.Date,
			&agg.WeekStart,
			&agg.MonthStart,
			&agg.TotalEnergyKWh,
			&agg.TotalCost,
			&agg.PeakEnergyKWh,
			&agg.OffPeakEnergyKWh,
			&agg.PeakToOffPeakRatio,
			&agg.PeakHour,
			&agg.Finalized,
		); err != nil {
			return nil, err
		}
		agg.Date = agg.Date.UTC()
		agg.WeekStart = agg.WeekStart.UTC()
		agg.MonthStart = agg.MonthStart.UTC()
		out = append(out, agg)
	}
	return out, rows.Err()
}
