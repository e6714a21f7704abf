package accel

import "errors"

var (
	// ErrNoDriver is returned when no driver has been registered.
	ErrNoDriver = errors.New("accel: no driver registered")
	// ErrNoSuchDevice is returned for device ids outside the driver's range.
	ErrNoSuchDevice = errors.New("accel: no such device")
	// ErrStreamDestroyed is returned when work is submitted to a destroyed
	// stream or handle.
	ErrStreamDestroyed = errors.New("accel: stream destroyed")
)
