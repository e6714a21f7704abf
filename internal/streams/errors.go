package streams

import (
	"errors"
	"fmt"
)

// ErrPoolDestroyed is returned by Destroy when the pool was already torn
// down.
var ErrPoolDestroyed = errors.New("streams: pool destroyed")

// DeviceSetupError reports a failure while binding a pool to its device:
// device selection, stream creation, or handle creation. It is fatal to
// the pool; partial allocations are released before it is returned.
type DeviceSetupError struct {
	Device int
	Err    error
}

func (e *DeviceSetupError) Error() string {
	return fmt.Sprintf("streams: setup device %d: %v", e.Device, e.Err)
}

func (e *DeviceSetupError) Unwrap() error { return e.Err }

// SyncError reports a device failure while draining one pooled stream.
// Pool state after a SyncError is undefined.
type SyncError struct {
	Slot int
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("streams: sync slot %d: %v", e.Slot, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
