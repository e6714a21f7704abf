//go:build !cuda

// Package cuda implements the accel driver on the CUDA runtime and
// cuBLAS. This build does not include CUDA support; rebuild with
// -tags cuda to enable it.
package cuda

import (
	"errors"

	"github.com/samcharles93/sluice/internal/accel"
)

// ErrUnavailable is returned by New in builds without the cuda tag.
var ErrUnavailable = errors.New("cuda: support not built (rebuild with -tags cuda)")

// Available reports whether CUDA support was compiled in.
func Available() bool { return false }

// New always fails in non-cuda builds.
func New() (accel.Driver, error) {
	return nil, ErrUnavailable
}
