// Package streams owns the per-device execution substrate: a fixed-size
// pool of asynchronous streams with a BLAS handle permanently bound to
// each, a process-wide registry with lazy first-touch creation, and the
// prefix-sync fence the dispatcher relies on.
package streams

import (
	"fmt"
	"sync/atomic"

	"github.com/samcharles93/sluice/internal/accel"
	"github.com/samcharles93/sluice/internal/logger"
)

// Slots is the per-device stream count. Handle-to-stream binding and the
// idx%Slots mapping assume it is fixed at compile time.
const Slots = 16

const (
	stateUninitialized int32 = iota
	stateLive
	stateDestroyed
)

// Pool owns Slots streams and Slots BLAS handles for one device, paired
// by index: work submitted through Blas(i) executes on Stream(i). Once
// live, a pool is immutable; accessors need no locking.
type Pool struct {
	device     int
	useDefault bool
	drv        accel.Driver

	streams [Slots]accel.Stream
	handles [Slots]accel.Blas

	// Collective-communication readiness; stays false until a comm layer
	// marks the pool ready.
	commReady bool

	state atomic.Int32
}

// NewPool creates a standalone pool outside the process-wide registry,
// for callers that inject their own registry or manage pool lifetime
// directly. Most callers want For.
func NewPool(drv accel.Driver, device int, useDefault bool) (*Pool, error) {
	if device < 0 {
		return nil, fmt.Errorf("streams: negative device id %d", device)
	}
	return newPool(drv, device, useDefault, log)
}

// newPool allocates a pool bound to device and runs setup. On failure
// everything created so far is released and a *DeviceSetupError is
// returned.
func newPool(drv accel.Driver, device int, useDefault bool, log logger.Logger) (*Pool, error) {
	p := &Pool{device: device, useDefault: useDefault, drv: drv}
	if err := p.setup(log); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool) setup(log logger.Logger) error {
	p.commReady = false
	if err := p.drv.SetDevice(p.device); err != nil {
		return &DeviceSetupError{Device: p.device, Err: err}
	}
	for i := 0; i < Slots; i++ {
		s, err := p.drv.NewStream(p.device)
		if err != nil {
			p.release(i, i)
			return &DeviceSetupError{Device: p.device, Err: err}
		}
		p.streams[i] = s
		h, err := p.drv.NewBlas(s)
		if err != nil {
			p.release(i+1, i)
			return &DeviceSetupError{Device: p.device, Err: err}
		}
		p.handles[i] = h
	}
	p.state.Store(stateLive)
	log.Debug("stream pool ready", "driver", p.drv.Name(), "device", p.device, "slots", Slots, "default_mode", p.useDefault)
	return nil
}

// release tears down the first nStreams streams and nHandles handles,
// handles first. Used on the setup failure path.
func (p *Pool) release(nStreams, nHandles int) {
	for i := nHandles - 1; i >= 0; i-- {
		_ = p.handles[i].Destroy()
		p.handles[i] = nil
	}
	for i := nStreams - 1; i >= 0; i-- {
		_ = p.streams[i].Destroy()
		p.streams[i] = nil
	}
}

// Stream returns the stream for slot idx%Slots. Callers treat idx as a
// logical stream id; the pool treats it as a hash into its capacity. In
// default mode the driver's ambient stream is returned and idx is
// ignored.
func (p *Pool) Stream(idx uint64) accel.Stream {
	p.mustBeLive()
	if p.useDefault {
		return p.drv.CurrentStream(p.device)
	}
	return p.streams[idx%Slots]
}

// Blas returns the handle for slot idx%Slots, bound to Stream(idx). In
// default mode the driver's ambient handle is returned.
func (p *Pool) Blas(idx uint64) accel.Blas {
	p.mustBeLive()
	if p.useDefault {
		return p.drv.CurrentBlas(p.device)
	}
	return p.handles[idx%Slots]
}

// Sync blocks until all work previously submitted to slots [0, upto) has
// completed. upto is clamped to [0, Slots]; Sync(0) is a no-op. Streams
// past the prefix are not waited on. In default mode Sync is a no-op:
// the ambient stream is fenced by whoever owns it.
func (p *Pool) Sync(upto int) error {
	p.mustBeLive()
	if p.useDefault {
		return nil
	}
	if upto > Slots {
		upto = Slots
	}
	for i := 0; i < upto; i++ {
		if err := p.streams[i].Synchronize(); err != nil {
			return &SyncError{Slot: i, Err: err}
		}
	}
	return nil
}

// Destroy releases all handles then all streams. The pool is unusable
// afterwards; a second call returns ErrPoolDestroyed. Release continues
// past individual failures and the first error is returned.
func (p *Pool) Destroy() error {
	if !p.state.CompareAndSwap(stateLive, stateDestroyed) {
		return ErrPoolDestroyed
	}
	var first error
	for i := 0; i < Slots; i++ {
		if err := p.handles[i].Destroy(); err != nil && first == nil {
			first = err
		}
	}
	for i := 0; i < Slots; i++ {
		if err := p.streams[i].Destroy(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Device returns the device this pool is bound to.
func (p *Pool) Device() int { return p.device }

// Default reports whether the pool is in ambient pass-through mode.
func (p *Pool) Default() bool { return p.useDefault }

// Stats is a point-in-time snapshot of a pool for the status API.
type Stats struct {
	Device      int    `json:"device"`
	Driver      string `json:"driver"`
	Slots       int    `json:"slots"`
	DefaultMode bool   `json:"default_mode"`
	Live        bool   `json:"live"`
}

// Stats returns the pool's snapshot.
func (p *Pool) Stats() Stats {
	return Stats{
		Device:      p.device,
		Driver:      p.drv.Name(),
		Slots:       Slots,
		DefaultMode: p.useDefault,
		Live:        p.state.Load() == stateLive,
	}
}

func (p *Pool) mustBeLive() {
	if p.state.Load() != stateLive {
		panic("streams: pool is not live")
	}
}
