package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	insights "energyiq/internal/insights/domain"
)

const (
	defaultInsightTable   = "insights"
	defaultAggregateTable = "energy_aggregations"
	defaultDeviceTable    = "devices"
)

// InsightRepository is a Postgres implementation of the insight store and history reader.
type InsightRepository struct {
	db             *sql.DB
	table          string
	aggregateTable string
	deviceTable    string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*InsightRepository)

// WithTable overrides the default insight table name.
func WithTable(table string) RepositoryOption {
	return func(repo *InsightRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// WithAggregateTable overrides the aggregate table read as history.
func WithAggregateTable(table string) RepositoryOption {
	return func(repo *InsightRepository) {
		if table != "" {
			repo.aggregateTable = table
		}
	}
}

// NewInsightRepository constructs a repository.
func NewInsightRepository(db *sql.DB, opts ...RepositoryOption) (*InsightRepository, error) {
	if db == nil {
		return nil, errors.New("insight repo: nil db")
	}
	repo := &InsightRepository{
		db:             db,
		table:          defaultInsightTable,
		aggregateTable: defaultAggregateTable,
		deviceTable:    defaultDeviceTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

// ListFacts implements insights.HistoryReader.
func (r *InsightRepository) ListFacts(ctx context.Context) ([]insights.Fact, error) {
	query := fmt.Sprintf(`
SELECT
	a.device_id,
	d.name,
	a.date,
	a.total_energy_kwh,
	a.total_cost,
	a.peak_energy_kwh,
	a.off_peak_energy_kwh
FROM %s a
JOIN %s d ON d.id = a.device_id
ORDER BY a.date DESC, a.device_id ASC`, r.aggregateTable, r.deviceTable)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []insights.Fact
	for rows.Next() {
		var fact insights.Fact
		if err := rows.Scan(
			&fact.DeviceID,
			&fact.DeviceName,
			&fact.Date,
			&fact.TotalEnergyKWh,
			&fact.TotalCost,
			&fact.PeakEnergyKWh,
			&fact.OffPeakEnergyKWh,
		); err != nil {
			return nil, err
		}
		fact.Date = fact.Date.UTC()
		out = append(out, fact)
	}
	return out, rows.Err()
}

// ReplaceActive implements insights.Repository.
func (r *InsightRepository) ReplaceActive(ctx context.Context, batchID uuid.UUID, batch []insights.Insight) error {
	if batchID == uuid.Nil {
		return insights.ErrEmptyBatch
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	retire := fmt.Sprintf(`UPDATE %s SET is_active = FALSE WHERE is_active`, r.table)
	if _, err := tx.ExecContext(ctx, retire); err != nil {
		_ = tx.Rollback()
		return err
	}

	insert := fmt.Sprintf(`
INSERT INTO %s (
	id,
	batch_id,
	device_id,
	insight_date,
	insight_text,
	relevancy,
	rank,
	is_active,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, r.table)

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, insight := range batch {
		if _, err := stmt.ExecContext(ctx,
			insight.ID,
			batchID,
			insight.DeviceID,
			insight.Date,
			insight.Text,
			insight.Relevancy,
			insight.Rank,
			insight.Active,
			insight.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListActive implements insights.Repository.
func (r *InsightRepository) ListActive(ctx context.Context, limit int) ([]insights.Insight, error) {
	if limit <= 0 {
		return nil, insights.ErrInvalidLimit
	}
	query := fmt.Sprintf(`
SELECT id, batch_id, device_id, insight_date, insight_text, relevancy, rank, is_active, created_at
FROM %s
WHERE is_active
ORDER BY created_at DESC, rank ASC
LIMIT $1`, r.table)

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []insights.Insight
	for rows.Next() {
		var insight insights.Insight
		if err := rows.Scan(
			&insight.ID,
			&insight.BatchID,
			&insight.DeviceID,
			&insight.Date,
			&insight.Text,
			&insight.Relevancy,
			&insight.Rank,
			&insight.Active,
			&insight.CreatedAt,
		); err != nil {
			return nil, err
		}
		insight.Date = insight.Date.UTC()
		insight.CreatedAt = insight.CreatedAt.UTC()
		out = append(out, insight)
	}
	return out, rows.Err()
}
