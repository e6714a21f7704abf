package accel

import "sync"

var (
	driverMu sync.RWMutex
	driver   Driver
)

// Register installs d as the process-wide driver. Passing nil clears it.
// Register is called once during program configuration, before any pool
// is created.
func Register(d Driver) {
	driverMu.Lock()
	driver = d
	driverMu.Unlock()
}

// Default returns the registered driver, or ErrNoDriver when none has
// been registered.
func Default() (Driver, error) {
	driverMu.RLock()
	d := driver
	driverMu.RUnlock()
	if d == nil {
		return nil, ErrNoDriver
	}
	return d, nil
}
