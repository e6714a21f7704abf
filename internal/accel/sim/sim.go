// Package sim is a software model of an accelerator: streams are worker
// goroutines with FIFO queues, BLAS handles run compact host kernels on
// their bound stream. It is the default driver for CPU-only builds and
// the substrate the pool and dispatcher tests run against.
package sim

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/samcharles93/sluice/internal/accel"
	"github.com/samcharles93/sluice/internal/hostinfo"
)

// Driver implements accel.Driver on the host CPU.
type Driver struct {
	devices []*device

	// Observability only; the ambient device is the caller's concern.
	lastDevice atomic.Int64

	streamsCreated   atomic.Int64
	streamsDestroyed atomic.Int64
	blasCreated      atomic.Int64
	blasDestroyed    atomic.Int64
	kernels          atomic.Int64
	syncs            atomic.Int64

	// Fault injection budgets; negative means unlimited.
	streamBudget atomic.Int64
	blasBudget   atomic.Int64
}

type device struct {
	id            int
	defaultStream *stream
	defaultBlas   *blas
}

// Option configures a Driver.
type Option func(*config)

type config struct {
	devices int
}

// WithDevices sets the simulated device count (default 1).
func WithDevices(n int) Option {
	return func(c *config) { c.devices = n }
}

// New creates a sim driver. Each device owns a pre-created default stream
// and default BLAS handle, returned by CurrentStream and CurrentBlas.
func New(opts ...Option) *Driver {
	cfg := config{devices: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.devices < 1 {
		cfg.devices = 1
	}
	d := &Driver{}
	d.lastDevice.Store(-1)
	d.streamBudget.Store(-1)
	d.blasBudget.Store(-1)
	for i := 0; i < cfg.devices; i++ {
		s := newStream(d)
		d.streamsCreated.Add(1)
		d.blasCreated.Add(1)
		d.devices = append(d.devices, &device{
			id:            i,
			defaultStream: s,
			defaultBlas:   &blas{d: d, s: s},
		})
	}
	return d
}

func (d *Driver) Name() string { return "sim" }

func (d *Driver) DeviceCount() (int, error) {
	return len(d.devices), nil
}

func (d *Driver) DeviceInfo(device int) (accel.DeviceInfo, error) {
	if device < 0 || device >= len(d.devices) {
		return accel.DeviceInfo{}, fmt.Errorf("device %d: %w", device, accel.ErrNoSuchDevice)
	}
	name := fmt.Sprintf("sim%d", device)
	if feats := hostinfo.CPUFeatures(); len(feats) > 0 {
		name = fmt.Sprintf("sim%d (%s)", device, strings.Join(feats, ","))
	}
	return accel.DeviceInfo{
		ID:          device,
		Name:        name,
		Kind:        "sim",
		MemoryBytes: hostinfo.TotalMemoryBytes(),
		Details: map[string]string{
			"threads": strconv.Itoa(runtime.NumCPU()),
		},
	}, nil
}

func (d *Driver) SetDevice(device int) error {
	if device < 0 || device >= len(d.devices) {
		return fmt.Errorf("device %d: %w", device, accel.ErrNoSuchDevice)
	}
	d.lastDevice.Store(int64(device))
	return nil
}

func (d *Driver) NewStream(device int) (accel.Stream, error) {
	if device < 0 || device >= len(d.devices) {
		return nil, fmt.Errorf("device %d: %w", device, accel.ErrNoSuchDevice)
	}
	if !spendBudget(&d.streamBudget) {
		return nil, fmt.Errorf("sim: injected stream create failure")
	}
	d.streamsCreated.Add(1)
	return newStream(d), nil
}

func (d *Driver) NewBlas(s accel.Stream) (accel.Blas, error) {
	st, ok := s.(*stream)
	if !ok {
		return nil, fmt.Errorf("sim: foreign stream type %T", s)
	}
	if !spendBudget(&d.blasBudget) {
		return nil, fmt.Errorf("sim: injected blas create failure")
	}
	d.blasCreated.Add(1)
	return &blas{d: d, s: st}, nil
}

func (d *Driver) CurrentStream(device int) accel.Stream {
	return d.devices[clampDevice(device, len(d.devices))].defaultStream
}

func (d *Driver) CurrentBlas(device int) accel.Blas {
	return d.devices[clampDevice(device, len(d.devices))].defaultBlas
}

// Close releases the per-device default handles and drains and stops the
// default streams. Counters stay paired: defaults are counted as created
// in New and as destroyed here.
func (d *Driver) Close() error {
	var first error
	for _, dev := range d.devices {
		if err := dev.defaultBlas.Destroy(); err != nil && first == nil {
			first = err
		}
		if err := dev.defaultStream.Destroy(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Stats is a snapshot of the driver's counters.
type Stats struct {
	StreamsCreated   int64
	StreamsDestroyed int64
	BlasCreated      int64
	BlasDestroyed    int64
	KernelsLaunched  int64
	Syncs            int64
	LastDevice       int
}

// Stats returns the current counter values.
func (d *Driver) Stats() Stats {
	return Stats{
		StreamsCreated:   d.streamsCreated.Load(),
		StreamsDestroyed: d.streamsDestroyed.Load(),
		BlasCreated:      d.blasCreated.Load(),
		BlasDestroyed:    d.blasDestroyed.Load(),
		KernelsLaunched:  d.kernels.Load(),
		Syncs:            d.syncs.Load(),
		LastDevice:       int(d.lastDevice.Load()),
	}
}

// FailStreamCreateAfter makes NewStream fail once n more streams have been
// created. A negative n disables injection.
func (d *Driver) FailStreamCreateAfter(n int) {
	d.streamBudget.Store(int64(n))
}

// FailBlasCreateAfter makes NewBlas fail once n more handles have been
// created. A negative n disables injection.
func (d *Driver) FailBlasCreateAfter(n int) {
	d.blasBudget.Store(int64(n))
}

// spendBudget consumes one unit. Zero stays zero so an exhausted budget
// keeps failing; negative is the explicit disable value.
func spendBudget(budget *atomic.Int64) bool {
	for {
		v := budget.Load()
		if v < 0 {
			return true
		}
		if v == 0 {
			return false
		}
		if budget.CompareAndSwap(v, v-1) {
			return true
		}
	}
}

func clampDevice(device, n int) int {
	if device < 0 || device >= n {
		return 0
	}
	return device
}
