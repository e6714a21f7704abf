//go:build webgpu

// Package wgpu probes GPUs visible through WebGPU for the devices
// listing. WebGPU exposes a single queue per device, so the prober does
// not implement the driver interface; it is discovery only.
package wgpu

import (
	"fmt"
	"strings"

	"github.com/openfluke/webgpu/wgpu"

	"github.com/samcharles93/sluice/internal/accel"
)

// Available reports whether WebGPU probing was compiled in.
func Available() bool { return true }

// Probe requests the high-performance adapter and reports it as a
// device. An empty slice means no adapter answered.
func Probe() ([]accel.DeviceInfo, error) {
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, fmt.Errorf("wgpu: create instance failed")
	}
	defer inst.Release()

	adapter, err := inst.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: request adapter: %w", err)
	}
	if adapter == nil {
		return nil, nil
	}
	defer adapter.Release()

	info := adapter.GetInfo()
	limits := adapter.GetLimits()

	var feats []string
	for _, f := range adapter.EnumerateFeatures() {
		feats = append(feats, f.String())
	}

	return []accel.DeviceInfo{{
		ID:          0,
		Name:        strings.TrimSpace(info.Name),
		Kind:        "webgpu",
		MemoryBytes: limits.Limits.MaxBufferSize,
		Details: map[string]string{
			"backend":      info.BackendType.String(),
			"adapter_type": info.AdapterType.String(),
			"vendor_id":    fmt.Sprintf("0x%04x", info.VendorId),
			"device_id":    fmt.Sprintf("0x%04x", info.DeviceId),
			"driver":       strings.TrimSpace(info.DriverDescription),
			"features":     strings.Join(feats, ","),
		},
	}}, nil
}
