package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	masterdata "energyiq/internal/masterdata/domain"
	mdmemory "energyiq/internal/masterdata/infrastructure/memory"
	telemetry "energyiq/internal/telemetry/domain"
	"energyiq/internal/telemetry/infrastructure/memory"
)

func TestDecodeBatch_DevicesAndReadings(t *testing.T) {
	batch, err := DecodeBatch([]byte(`{
		"devices": [{"id": "dev-1", "name": "Fridge"}],
		"readings": [
			{"deviceId": "dev-1", "timestamp": "2024-12-01T10:00:00Z", "energyKwh": 1.5},
			{"deviceName": "Oven", "ts": 1733047200000, "energyKwh": 2}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, batch.Devices, 2)
	assert.Equal(t, "dev-1", batch.Devices[0].ID)
	assert.Equal(t, masterdata.DeviceIDFromName("Oven"), batch.Devices[1].ID)
	require.Len(t, batch.Readings, 2)
	assert.Equal(t, time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC), batch.Readings[0].TS)
	assert.Equal(t, time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC), batch.Readings[1].TS)
	assert.Equal(t, batch.Devices[1].ID, batch.Readings[1].DeviceID)
}

func TestDecodeBatch_SingleReading(t *testing.T) {
	batch, err := DecodeBatch([]byte(`{"deviceId":"dev-1","ts":1733047200,"energyKwh":0.25}`))
	require.NoError(t, err)
	require.Len(t, batch.Readings, 1)
	assert.Equal(t, 0.25, batch.Readings[0].EnergyKWh)
}

func TestDecodeBatch_Rejects(t *testing.T) {
	_, err := DecodeBatch([]byte(`not json`))
	require.ErrorIs(t, err, telemetry.ErrInvalidReading)

	_, err = DecodeBatch([]byte(`{"readings":[{"deviceId":"d","timestamp":"yesterday","energyKwh":1}]}`))
	require.ErrorIs(t, err, telemetry.ErrInvalidReading)

	_, err = DecodeBatch([]byte(`{"readings":[{"deviceId":"d","ts":1733047200,"energyKwh":-1}]}`))
	require.ErrorIs(t, err, telemetry.ErrInvalidReading)
}

func TestIngest_StoresAndDeduplicates(t *testing.T) {
	devices := mdmemory.NewDeviceRepository()
	readings := memory.NewReadingRepository()
	service, err := NewIngestService(devices, readings, nil)
	require.NoError(t, err)

	ts := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)
	batch := Batch{
		Devices:  []masterdata.Device{{ID: "dev-1", Name: "Fridge"}},
		Readings: []telemetry.Reading{{DeviceID: "dev-1", TS: ts, EnergyKWh: 1}, {DeviceID: "dev-1", TS: ts.Add(time.Hour), EnergyKWh: 2}},
	}

	result, err := service.Ingest(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Devices: 1, Received: 2, Inserted: 2}, result)

	result, err = service.Ingest(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)

	list, err := devices.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, readings.Readings(), 2)
}

func TestIngest_ErrorsAreClassified(t *testing.T) {
	readings := memory.NewReadingRepository()
	service, err := NewIngestService(mdmemory.NewDeviceRepository(), readings, nil)
	require.NoError(t, err)

	_, err = service.Ingest(context.Background(), Batch{})
	assert.True(t, IsValidation(err))

	_, err = service.Ingest(context.Background(), Batch{Readings: []telemetry.Reading{{DeviceID: "d"}}})
	assert.True(t, IsValidation(err))

	readings.Err = fmt.Errorf("%w: dev-x", telemetry.ErrUnknownDevice)
	_, err = service.Ingest(context.Background(), Batch{Readings: []telemetry.Reading{{DeviceID: "dev-x", TS: time.Now(), EnergyKWh: 1}}})
	assert.True(t, IsValidation(err))

	readings.Err = errors.New("connection refused")
	_, err = service.Ingest(context.Background(), Batch{Readings: []telemetry.Reading{{DeviceID: "d", TS: time.Now(), EnergyKWh: 1}}})
	require.Error(t, err)
	assert.False(t, IsValidation(err))
}
