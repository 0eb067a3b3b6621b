package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telemetry "energyiq/internal/telemetry/domain"
)

func TestClassifyInsertError(t *testing.T) {
	reading := telemetry.Reading{DeviceID: "dev-9", TS: time.Date(2024, 12, 4, 9, 0, 0, 0, time.UTC), EnergyKWh: 1}

	err := classifyInsertError(reading, fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503", Message: "fk violation"}))
	require.ErrorIs(t, err, telemetry.ErrUnknownDevice)
	assert.Contains(t, err.Error(), "dev-9")

	err = classifyInsertError(reading, &pgconn.PgError{Code: "23514", Message: "energy_kwh check"})
	require.ErrorIs(t, err, telemetry.ErrInvalidReading)
	assert.NotErrorIs(t, err, telemetry.ErrUnknownDevice)

	outage := &pgconn.PgError{Code: "57P01", Message: "terminating connection"}
	assert.Same(t, outage, classifyInsertError(reading, outage))

	plain := errors.New("connection refused")
	assert.Same(t, plain, classifyInsertError(reading, plain))
}
