//go:build !webgpu

// Package wgpu probes GPUs visible through WebGPU for the devices
// listing. This build does not include WebGPU support; rebuild with
// -tags webgpu to enable it.
package wgpu

import (
	"errors"

	"github.com/samcharles93/sluice/internal/accel"
)

// ErrUnavailable is returned by Probe in builds without the webgpu tag.
var ErrUnavailable = errors.New("wgpu: support not built (rebuild with -tags webgpu)")

// Available reports whether WebGPU probing was compiled in.
func Available() bool { return false }

// Probe always fails in non-webgpu builds.
func Probe() ([]accel.DeviceInfo, error) {
	return nil, ErrUnavailable
}
