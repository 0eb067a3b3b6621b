package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	masterdata "energyiq/internal/masterdata/domain"
)

// DeviceRepository is an in-memory device store for demo/testing.
type DeviceRepository struct {
	mu      sync.RWMutex
	devices map[string]masterdata.Device
	Err     error
}

// NewDeviceRepository constructs a repository.
func NewDeviceRepository() *DeviceRepository {
	return &DeviceRepository{devices: make(map[string]masterdata.Device)}
}

// EnsureDevices implements masterdata.DeviceRepository.
func (r *DeviceRepository) EnsureDevices(ctx context.Context, devices []masterdata.Device) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	normalized := make([]masterdata.Device, 0, len(devices))
	for _, device := range devices {
		d, err := device.Normalize()
		if err != nil {
			return err
		}
		normalized = append(normalized, d)
	}
	for _, d := range normalized {
		if _, ok := r.devices[d.ID]; ok {
			continue
		}
		d.CreatedAt = time.Now().UTC()
		r.devices[d.ID] = d
	}
	return nil
}

// Get implements masterdata.DeviceRepository.
func (r *DeviceRepository) Get(ctx context.Context, id string) (*masterdata.Device, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	d, ok := r.devices[id]
	if !ok {
		return nil, masterdata.ErrDeviceNotFound
	}
	return &d, nil
}

// List implements masterdata.DeviceRepository.
func (r *DeviceRepository) List(ctx context.Context) ([]masterdata.Device, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]masterdata.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
