package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	stats "energyiq/internal/stats/domain"
)

// ReadingQuery sums raw readings per device and hour in Postgres.
type ReadingQuery struct {
	db           *sql.DB
	readingTable string
	deviceTable  string
	location     string
}

// QueryOption configures the query.
type QueryOption func(*ReadingQuery)

// WithReadingTable overrides the reading table name.
func WithReadingTable(table string) QueryOption {
	return func(q *ReadingQuery) {
		if table != "" {
			q.readingTable = table
		}
	}
}

// WithDeviceTable overrides the device table name.
func WithDeviceTable(table string) QueryOption {
	return func(q *ReadingQuery) {
		if table != "" {
			q.deviceTable = table
		}
	}
}

// WithLocation cuts hour buckets on local clock hours of loc.
func WithLocation(loc *time.Location) QueryOption {
	return func(q *ReadingQuery) {
		if loc != nil {
			q.location = loc.String()
		}
	}
}

// NewReadingQuery constructs the query with default table names.
func NewReadingQuery(db *sql.DB, opts ...QueryOption) (*ReadingQuery, error) {
	if db == nil {
		return nil, errors.New("stats reading query: nil db")
	}
	q := &ReadingQuery{db: db, readingTable: "energy_readings", deviceTable: "devices", location: "UTC"}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// HourlyTotals returns local-hour buckets of [from, to), hour then device ordered.
// Processed and unprocessed readings both count.
func (q *ReadingQuery) HourlyTotals(ctx context.Context, from, to time.Time, deviceID string) ([]stats.HourlyTotal, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("stats reading query: nil db")
	}
	query := fmt.Sprintf(`
SELECT r.device_id, COALESCE(d.name, r.device_id),
	date_trunc('hour', r.ts AT TIME ZONE $4) AT TIME ZONE $4 AS hour, SUM(r.energy_kwh)
FROM %s r
LEFT JOIN %s d ON d.id = r.device_id
WHERE r.ts >= $1 AND r.ts < $2 AND ($3 = '' OR r.device_id = $3)
GROUP BY r.device_id, d.name, hour
ORDER BY hour, r.device_id`, q.readingTable, q.deviceTable)

	rows, err := q.db.QueryContext(ctx, query, from.UTC(), to.UTC(), deviceID, q.location)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stats.HourlyTotal
	for rows.Next() {
		var total stats.HourlyTotal
		if err := rows.Scan(&total.DeviceID, &total.DeviceName, &total.HourStart, &total.EnergyKWh); err != nil {
			return nil, err
		}
		total.HourStart = total.HourStart.UTC()
		out = append(out, total)
	}
	return out, rows.Err()
}
