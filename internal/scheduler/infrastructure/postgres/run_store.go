package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"energyiq/internal/scheduler"
)

const defaultRunTable = "job_runs"

// RunStore is the Postgres job run ledger.
type RunStore struct {
	db    *sql.DB
	table string
}

// RunStoreOption configures the store.
type RunStoreOption func(*RunStore)

// WithTable overrides the default table name.
func WithTable(table string) RunStoreOption {
	return func(s *RunStore) {
		if table != "" {
			s.table = table
		}
	}
}

// NewRunStore constructs a run ledger.
func NewRunStore(db *sql.DB, opts ...RunStoreOption) (*RunStore, error) {
	if db == nil {
		return nil, errors.New("job run store: nil db")
	}
	s := &RunStore{db: db, table: defaultRunTable}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start inserts a running row.
func (s *RunStore) Start(ctx context.Context, run scheduler.Run) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, job_name, trigger, status, processed, error, started_at)
VALUES ($1, $2, $3, $4, 0, NULL, $5)
ON CONFLICT (id) DO NOTHING`, s.table)
	_, err := s.db.ExecContext(ctx, query, run.ID, run.Job, run.Trigger, run.Status, run.StartedAt.UTC())
	return err
}

// Finish records the outcome of a run.
func (s *RunStore) Finish(ctx context.Context, run scheduler.Run) error {
	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}
	var finished sql.NullTime
	if run.FinishedAt != nil {
		finished = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $2, processed = $3, error = $4, finished_at = $5
WHERE id = $1`, s.table)
	res, err := s.db.ExecContext(ctx, query, run.ID, run.Status, run.Processed, errText, finished)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("job run store: run %s not found", run.ID)
	}
	return nil
}

// List returns the most recent runs first.
func (s *RunStore) List(ctx context.Context, limit int) ([]scheduler.Run, error) {
	query := fmt.Sprintf(`
SELECT id, job_name, trigger, status, processed, error, started_at, finished_at
FROM %s
ORDER BY started_at DESC
LIMIT $1`, s.table)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []scheduler.Run{}
	for rows.Next() {
		var (
			run      scheduler.Run
			errText  sql.NullString
			finished sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.Job, &run.Trigger, &run.Status, &run.Processed, &errText, &run.StartedAt, &finished); err != nil {
			return nil, err
		}
		run.Error = errText.String
		run.StartedAt = run.StartedAt.UTC()
		if finished.Valid {
			t := finished.Time.UTC()
			run.FinishedAt = &t
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
