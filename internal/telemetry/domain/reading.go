package telemetry

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

var (
	// ErrInvalidReading is returned when a reading fails validation.
	ErrInvalidReading = errors.New("telemetry: invalid reading")
	// ErrEmptyBatch is returned when a batch carries nothing to store.
	ErrEmptyBatch = errors.New("telemetry: empty batch")
	// ErrUnknownDevice is returned when a reading references an unregistered device.
	ErrUnknownDevice = errors.New("telemetry: unknown device")
)

// Reading is one timestamped energy measurement. New readings are unprocessed.
type Reading struct {
	DeviceID  string
	TS        time.Time
	EnergyKWh float64
}

// Validate checks reading invariants.
func (r Reading) Validate() error {
	if strings.TrimSpace(r.DeviceID) == "" || r.TS.IsZero() {
		return ErrInvalidReading
	}
	if r.EnergyKWh < 0 || math.IsNaN(r.EnergyKWh) || math.IsInf(r.EnergyKWh, 0) {
		return ErrInvalidReading
	}
	return nil
}

// ReadingRepository persists raw readings.
type ReadingRepository interface {
	// InsertReadings stores readings and returns how many were new.
	// A reading already stored for the same device and timestamp is skipped.
	InsertReadings(ctx context.Context, readings []Reading) (int, error)
}
