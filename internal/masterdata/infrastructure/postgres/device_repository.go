package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	masterdata "energyiq/internal/masterdata/domain"
)

const defaultDevicesTable = "devices"

// DeviceRepository is a Postgres implementation for devices.
type DeviceRepository struct {
	db    *sql.DB
	table string
}

// NewDeviceRepository constructs a repository.
func NewDeviceRepository(db *sql.DB, opts ...DeviceOption) *DeviceRepository {
	repo := &DeviceRepository{db: db, table: defaultDevicesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// DeviceOption configures the repository.
type DeviceOption func(*DeviceRepository)

// WithDeviceTable overrides the default table name.
func WithDeviceTable(table string) DeviceOption {
	return func(repo *DeviceRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// EnsureDevices inserts devices that do not exist yet.
func (r *DeviceRepository) EnsureDevices(ctx context.Context, devices []masterdata.Device) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	if len(devices) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, name, unit, created_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (id) DO NOTHING`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, device := range devices {
		normalized, err := device.Normalize()
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, normalized.ID, normalized.Name, normalized.Unit); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Get loads a device by id.
func (r *DeviceRepository) Get(ctx context.Context, id string) (*masterdata.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	if id == "" {
		return nil, errors.New("device repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, name, unit, created_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var device masterdata.Device
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&device.ID,
		&device.Name,
		&device.Unit,
		&device.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, masterdata.ErrDeviceNotFound
		}
		return nil, err
	}
	device.CreatedAt = device.CreatedAt.UTC()
	return &device, nil
}

// List loads every device ordered by name.
func (r *DeviceRepository) List(ctx context.Context) ([]masterdata.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, name, unit, created_at
FROM %s
ORDER BY name, id`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []masterdata.Device
	for rows.Next() {
		var device masterdata.Device
		if err := rows.Scan(&device.ID, &device.Name, &device.Unit, &device.CreatedAt); err != nil {
			return nil, err
		}
		device.CreatedAt = device.CreatedAt.UTC()
		devices = append(devices, device)
	}
	return devices, rows.Err()
}
