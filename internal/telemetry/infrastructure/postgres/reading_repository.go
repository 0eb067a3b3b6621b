package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	telemetry "energyiq/internal/telemetry/domain"
)

const defaultReadingTable = "energy_readings"

// ReadingRepository is a Postgres implementation for raw readings.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// NewReadingRepository constructs a repository with default table name.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// InsertReadings stores unprocessed readings in one transaction.
func (r *ReadingRepository) InsertReadings(ctx context.Context, readings []telemetry.Reading) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("reading repo: nil db")
	}
	if len(readings) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (device_id, ts, energy_kwh, is_processed, created_at)
VALUES ($1, $2, $3, FALSE, NOW())
ON CONFLICT (device_id, ts) DO NOTHING`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, reading := range readings {
		if err := reading.Validate(); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, reading.DeviceID, reading.TS.UTC(), reading.EnergyKWh)
		if err != nil {
			_ = tx.Rollback()
			return 0, classifyInsertError(reading, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// classifyInsertError maps constraint violations to domain errors so callers
// can tell rejected input from store outages.
func classifyInsertError(reading telemetry.Reading, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == "23503":
		return fmt.Errorf("%w: %s", telemetry.ErrUnknownDevice, reading.DeviceID)
	case strings.HasPrefix(pgErr.Code, "23"):
		return fmt.Errorf("%w: %s", telemetry.ErrInvalidReading, pgErr.Message)
	}
	return err
}
