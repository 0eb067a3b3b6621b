package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	masterdata "energyiq/internal/masterdata/domain"
	telemetry "energyiq/internal/telemetry/domain"
)

// Batch is one bulk load of devices and readings.
type Batch struct {
	Devices  []masterdata.Device
	Readings []telemetry.Reading
}

// IngestResult reports what a batch stored.
type IngestResult struct {
	Devices  int
	Received int
	Inserted int
}

// IngestService stores device and reading batches from external loaders.
type IngestService struct {
	devices  masterdata.DeviceRepository
	readings telemetry.ReadingRepository
	logger   *zap.Logger
}

// NewIngestService constructs the service.
func NewIngestService(devices masterdata.DeviceRepository, readings telemetry.ReadingRepository, logger *zap.Logger) (*IngestService, error) {
	if devices == nil {
		return nil, errors.New("ingest service: nil device repository")
	}
	if readings == nil {
		return nil, errors.New("ingest service: nil reading repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{devices: devices, readings: readings, logger: logger}, nil
}

// Ingest validates the whole batch, registers its devices and stores its readings.
func (s *IngestService) Ingest(ctx context.Context, batch Batch) (IngestResult, error) {
	if len(batch.Devices) == 0 && len(batch.Readings) == 0 {
		return IngestResult{}, telemetry.ErrEmptyBatch
	}
	for i, reading := range batch.Readings {
		if err := reading.Validate(); err != nil {
			return IngestResult{}, fmt.Errorf("reading %d: %w", i, err)
		}
	}
	for i, device := range batch.Devices {
		if _, err := device.Normalize(); err != nil {
			return IngestResult{}, fmt.Errorf("device %d: %w", i, err)
		}
	}

	if err := s.devices.EnsureDevices(ctx, batch.Devices); err != nil {
		return IngestResult{}, fmt.Errorf("ingest devices: %w", err)
	}
	inserted, err := s.readings.InsertReadings(ctx, batch.Readings)
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest readings: %w", err)
	}

	result := IngestResult{Devices: len(batch.Devices), Received: len(batch.Readings), Inserted: inserted}
	s.logger.Debug("batch ingested",
		zap.Int("devices", result.Devices),
		zap.Int("received", result.Received),
		zap.Int("inserted", result.Inserted),
	)
	return result, nil
}

// IsValidation reports whether err was caused by bad input rather than storage.
func IsValidation(err error) bool {
	return errors.Is(err, telemetry.ErrInvalidReading) ||
		errors.Is(err, telemetry.ErrEmptyBatch) ||
		errors.Is(err, telemetry.ErrUnknownDevice) ||
		errors.Is(err, masterdata.ErrEmptyDeviceName)
}
