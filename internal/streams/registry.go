package streams

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samcharles93/sluice/internal/accel"
	"github.com/samcharles93/sluice/internal/logger"
)

// Process-wide registry of pools, keyed by device id. Entries are
// insert-only: once a pool is published for a device it is never replaced.
// Reads go through the sync.Map fast path without taking createMu; setup
// completes before Store, so no caller can observe a half-built pool.
var (
	pools    sync.Map // int -> *Pool
	createMu sync.Mutex

	// Configuration, set once before the first For call.
	defaultMode bool
	log         logger.Logger = logger.Default()
)

// UseDefaultStreams switches pools created afterwards into ambient
// pass-through mode. Set once at program configuration time, before any
// work is dispatched; it is not safe to flip concurrently with For.
func UseDefaultStreams(v bool) {
	defaultMode = v
}

// SetLogger replaces the logger used for pool lifecycle events. Set once
// at program configuration time.
func SetLogger(l logger.Logger) {
	if l != nil {
		log = l
	}
}

// For returns the pool for device, creating and initializing it on first
// touch. All successful calls for the same device return the same pool
// for the lifetime of the process.
func For(device int) (*Pool, error) {
	if device < 0 {
		return nil, fmt.Errorf("streams: negative device id %d", device)
	}
	if p, ok := pools.Load(device); ok {
		return p.(*Pool), nil
	}

	createMu.Lock()
	defer createMu.Unlock()
	// A racing caller may have created it while we waited on the lock.
	if p, ok := pools.Load(device); ok {
		return p.(*Pool), nil
	}

	drv, err := accel.Default()
	if err != nil {
		return nil, err
	}
	p, err := newPool(drv, device, defaultMode, log)
	if err != nil {
		return nil, err
	}
	pools.Store(device, p)
	return p, nil
}

// Devices returns the sorted ids of all pools created so far.
func Devices() []int {
	var ids []int
	pools.Range(func(key, _ any) bool {
		ids = append(ids, key.(int))
		return true
	})
	sort.Ints(ids)
	return ids
}

// Lookup returns the pool for device without creating one.
func Lookup(device int) (*Pool, bool) {
	p, ok := pools.Load(device)
	if !ok {
		return nil, false
	}
	return p.(*Pool), true
}

// Shutdown destroys every pool created so far and empties the registry.
// Long-lived commands call it on exit; short-lived library users may rely
// on the host runtime tearing the device down instead. The first destroy
// error is returned after all pools have been released.
func Shutdown() error {
	createMu.Lock()
	defer createMu.Unlock()
	var first error
	pools.Range(func(key, value any) bool {
		if err := value.(*Pool).Destroy(); err != nil && first == nil {
			first = err
		}
		pools.Delete(key)
		return true
	})
	return first
}
