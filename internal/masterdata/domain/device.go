package masterdata

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultUnit is the unit of measure of every reading unless a device says otherwise.
const DefaultUnit = "kWh"

// deviceNamespace seeds name-derived device ids.
var deviceNamespace = uuid.MustParse("6b1d3c8e-4f2a-5e7b-9c0d-2a4e6f8b1c3d")

var (
	// ErrEmptyDeviceName is returned when a device has no display name.
	ErrEmptyDeviceName = errors.New("masterdata: empty device name")
	// ErrDeviceNotFound is returned when a device id is unknown.
	ErrDeviceNotFound = errors.New("masterdata: device not found")
)

// Device is an energy-consuming device. Devices are immutable once created.
type Device struct {
	ID        string
	Name      string
	Unit      string
	CreatedAt time.Time
}

// DeviceIDFromName derives a stable device id from its display name.
func DeviceIDFromName(name string) string {
	return uuid.NewSHA1(deviceNamespace, []byte(strings.TrimSpace(name))).String()
}

// Normalize validates d and fills its id and unit defaults.
func (d Device) Normalize() (Device, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return Device{}, ErrEmptyDeviceName
	}
	d.ID = strings.TrimSpace(d.ID)
	if d.ID == "" {
		d.ID = DeviceIDFromName(d.Name)
	}
	if d.Unit == "" {
		d.Unit = DefaultUnit
	}
	return d, nil
}

// DeviceRepository stores devices.
type DeviceRepository interface {
	// EnsureDevices creates missing devices and leaves existing ones untouched.
	EnsureDevices(ctx context.Context, devices []Device) error
	Get(ctx context.Context, id string) (*Device, error)
	List(ctx context.Context) ([]Device, error)
}
