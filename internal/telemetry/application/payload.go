package application

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	masterdata "energyiq/internal/masterdata/domain"
	telemetry "energyiq/internal/telemetry/domain"
)

// BatchPayload is the JSON wire form of a batch, shared by HTTP and Kafka ingestion.
type BatchPayload struct {
	Devices  []DevicePayload  `json:"devices"`
	Readings []ReadingPayload `json:"readings"`
}

// DevicePayload is the JSON wire form of a device.
type DevicePayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// ReadingPayload is the JSON wire form of a reading. The device is referenced
// by id or by name; the timestamp is RFC 3339 or epoch seconds/milliseconds.
type ReadingPayload struct {
	DeviceID   string  `json:"deviceId"`
	DeviceName string  `json:"deviceName"`
	Timestamp  string  `json:"timestamp"`
	TS         int64   `json:"ts"`
	EnergyKWh  float64 `json:"energyKwh"`
}

// DecodeBatch parses a batch object, or a single reading object.
func DecodeBatch(data []byte) (Batch, error) {
	var payload BatchPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", telemetry.ErrInvalidReading, err)
	}
	if len(payload.Devices) == 0 && len(payload.Readings) == 0 {
		var single ReadingPayload
		if err := json.Unmarshal(data, &single); err == nil && (single.DeviceID != "" || single.DeviceName != "") {
			payload.Readings = []ReadingPayload{single}
		}
	}
	return payload.ToBatch()
}

// ToBatch converts the payload into a domain batch. Devices referenced only by
// name in readings are registered under their name-derived id.
func (p BatchPayload) ToBatch() (Batch, error) {
	batch := Batch{}
	known := make(map[string]struct{}, len(p.Devices))
	for _, d := range p.Devices {
		device := masterdata.Device{ID: d.ID, Name: d.Name, Unit: d.Unit}
		normalized, err := device.Normalize()
		if err != nil {
			return Batch{}, err
		}
		known[normalized.ID] = struct{}{}
		batch.Devices = append(batch.Devices, normalized)
	}

	for i, r := range p.Readings {
		deviceID := strings.TrimSpace(r.DeviceID)
		if deviceID == "" && strings.TrimSpace(r.DeviceName) != "" {
			deviceID = masterdata.DeviceIDFromName(r.DeviceName)
			if _, ok := known[deviceID]; !ok {
				known[deviceID] = struct{}{}
				batch.Devices = append(batch.Devices, masterdata.Device{
					ID:   deviceID,
					Name: strings.TrimSpace(r.DeviceName),
					Unit: masterdata.DefaultUnit,
				})
			}
		}
		ts, err := r.timestamp()
		if err != nil {
			return Batch{}, fmt.Errorf("reading %d: %w", i, err)
		}
		reading := telemetry.Reading{DeviceID: deviceID, TS: ts, EnergyKWh: r.EnergyKWh}
		if err := reading.Validate(); err != nil {
			return Batch{}, fmt.Errorf("reading %d: %w", i, err)
		}
		batch.Readings = append(batch.Readings, reading)
	}
	return batch, nil
}

func (r ReadingPayload) timestamp() (time.Time, error) {
	if r.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q", telemetry.ErrInvalidReading, r.Timestamp)
		}
		return ts.UTC(), nil
	}
	if r.TS <= 0 {
		return time.Time{}, fmt.Errorf("%w: missing timestamp", telemetry.ErrInvalidReading)
	}
	// Accept milliseconds or seconds.
	if r.TS > 1_000_000_000_000 {
		return time.UnixMilli(r.TS).UTC(), nil
	}
	return time.Unix(r.TS, 0).UTC(), nil
}
