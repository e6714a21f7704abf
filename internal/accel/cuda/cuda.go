//go:build cuda

// Package cuda implements the accel driver on the CUDA runtime and
// cuBLAS. BLAS calls take host slices and are staged through cached
// pinned and device scratch buffers; staging, kernels, and result
// unpacking are all enqueued on the handle's bound stream, so every call
// is fully asynchronous and stream-ordered.
package cuda

import (
	"fmt"
	"math"
	"sync"
	"unsafe"

	"github.com/samcharles93/sluice/internal/accel"
)

// Available reports whether the CUDA runtime sees at least one device.
func Available() bool {
	n, err := deviceCount()
	return err == nil && n > 0
}

// Driver implements accel.Driver.
type Driver struct {
	count int

	mu       sync.Mutex
	defaults map[int]*deviceDefaults
}

type deviceDefaults struct {
	stream *stream
	blas   *blas
}

// New probes the runtime and returns a driver when devices are present.
func New() (accel.Driver, error) {
	n, err := deviceCount()
	if err != nil {
		return nil, fmt.Errorf("cuda: device count: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("cuda: no devices found")
	}
	return &Driver{count: n, defaults: make(map[int]*deviceDefaults)}, nil
}

func (d *Driver) Name() string { return "cuda" }

func (d *Driver) DeviceCount() (int, error) { return d.count, nil }

func (d *Driver) DeviceInfo(device int) (accel.DeviceInfo, error) {
	if device < 0 || device >= d.count {
		return accel.DeviceInfo{}, fmt.Errorf("device %d: %w", device, accel.ErrNoSuchDevice)
	}
	if err := setDevice(device); err != nil {
		return accel.DeviceInfo{}, err
	}
	_, total, err := memGetInfo()
	if err != nil {
		return accel.DeviceInfo{}, err
	}
	return accel.DeviceInfo{
		ID:          device,
		Name:        fmt.Sprintf("cuda%d", device),
		Kind:        "cuda",
		MemoryBytes: total,
		Details: map[string]string{
			"runtime": "cudart",
			"blas":    "cublas",
		},
	}, nil
}

func (d *Driver) SetDevice(device int) error {
	if device < 0 || device >= d.count {
		return fmt.Errorf("device %d: %w", device, accel.ErrNoSuchDevice)
	}
	return setDevice(device)
}

func (d *Driver) NewStream(device int) (accel.Stream, error) {
	if err := d.SetDevice(device); err != nil {
		return nil, err
	}
	ptr, err := streamCreate()
	if err != nil {
		return nil, err
	}
	return &stream{ptr: ptr}, nil
}

func (d *Driver) NewBlas(s accel.Stream) (accel.Blas, error) {
	st, ok := s.(*stream)
	if !ok {
		return nil, fmt.Errorf("cuda: foreign stream type %T", s)
	}
	h, err := blasCreate(st.ptr)
	if err != nil {
		return nil, err
	}
	return &blas{s: st, h: h}, nil
}

// CurrentStream returns a wrapper over the device's legacy default
// stream (the NULL stream).
func (d *Driver) CurrentStream(device int) accel.Stream {
	return d.deviceDefaults(device).stream
}

// CurrentBlas returns a lazily created handle bound to the legacy
// default stream.
func (d *Driver) CurrentBlas(device int) accel.Blas {
	return d.deviceDefaults(device).blas
}

func (d *Driver) deviceDefaults(device int) *deviceDefaults {
	d.mu.Lock()
	defer d.mu.Unlock()
	if def, ok := d.defaults[device]; ok {
		return def
	}
	// The ambient accessors cannot fail by contract; a runtime that
	// cannot create the default handle is unusable anyway.
	if err := setDevice(device); err != nil {
		panic(fmt.Sprintf("cuda: set device %d for default handle: %v", device, err))
	}
	h, err := blasCreate(nil)
	if err != nil {
		panic(fmt.Sprintf("cuda: create default blas handle: %v", err))
	}
	st := &stream{legacy: true}
	def := &deviceDefaults{stream: st, blas: &blas{s: st, h: h}}
	d.defaults[device] = def
	return def
}

// stream wraps a cudaStream_t. The legacy flag marks the NULL default
// stream, which is never destroyed.
type stream struct {
	ptr    cudaStream
	legacy bool
}

func (s *stream) Synchronize() error {
	// A nil ptr synchronizes the legacy default stream.
	return streamSynchronize(s.ptr)
}

func (s *stream) Destroy() error {
	if s.legacy {
		return nil
	}
	if s.ptr == nil {
		return accel.ErrStreamDestroyed
	}
	err := streamDestroy(s.ptr)
	s.ptr = nil
	return err
}

// scratch is one growable buffer, device or pinned host.
type scratch struct {
	ptr unsafe.Pointer
	cap int
}

// blas wraps a cublasHandle_t bound to one stream, plus staging scratch
// reused across calls. Scratch reuse is safe because all accesses are
// ordered on the bound stream.
type blas struct {
	s *stream
	h cublasHandle

	mu               sync.Mutex
	devA, devB, devC scratch
	pinA, pinB, pinC scratch
	destroyed        bool
}

func (b *blas) Stream() accel.Stream { return b.s }

func (b *blas) Sgemm(m, n, k int, alpha float32, a []float32, bm []float32, beta float32, c []float32, opts ...accel.GemmOpt) error {
	if m < 0 || n < 0 || k < 0 {
		return fmt.Errorf("cuda: sgemm dims %dx%dx%d", m, n, k)
	}
	if len(a) < m*k || len(bm) < k*n || len(c) < m*n {
		return fmt.Errorf("cuda: sgemm buffer too small for %dx%dx%d", m, n, k)
	}
	o := accel.ApplyGemmOpts(opts)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return accel.ErrStreamDestroyed
	}
	if err := b.ensureAll(m*k*4, k*n*4, m*n*4); err != nil {
		return err
	}

	pa, pb, pc := b.pinA, b.pinB, b.pinC
	da, db, dc := b.devA, b.devB, b.devC
	withC := beta != 0

	// Inputs are read at execution time, not submit time, so a prior op
	// on this stream may still be producing them.
	if err := launchHostFunc(b.s.ptr, func() {
		copy(unsafe.Slice((*float32)(pa.ptr), m*k), a)
		copy(unsafe.Slice((*float32)(pb.ptr), k*n), bm)
		if withC {
			copy(unsafe.Slice((*float32)(pc.ptr), m*n), c)
		}
	}); err != nil {
		return err
	}
	if err := memcpyH2DAsync(da.ptr, pa.ptr, m*k*4, b.s.ptr); err != nil {
		return err
	}
	if err := memcpyH2DAsync(db.ptr, pb.ptr, k*n*4, b.s.ptr); err != nil {
		return err
	}
	if withC {
		if err := memcpyH2DAsync(dc.ptr, pc.ptr, m*n*4, b.s.ptr); err != nil {
			return err
		}
	}

	// cuBLAS is column-major; row-major C = A*B is computed as the
	// column-major product B*A with swapped dimensions.
	if err := blasSgemm(b.h, opN, opN, n, m, k, alpha, db.ptr, n, da.ptr, k, beta, dc.ptr, n); err != nil {
		return err
	}
	if err := memcpyD2HAsync(pc.ptr, dc.ptr, m*n*4, b.s.ptr); err != nil {
		return err
	}
	return launchHostFunc(b.s.ptr, func() {
		copy(c[:m*n], unsafe.Slice((*float32)(pc.ptr), m*n))
		if o.Epilogue == accel.EpilogueGelu {
			geluF32(c[:m*n])
		}
	})
}

func (b *blas) Sgemv(m, n int, alpha float32, a []float32, x []float32, beta float32, y []float32) error {
	if m < 0 || n < 0 {
		return fmt.Errorf("cuda: sgemv dims %dx%d", m, n)
	}
	if len(a) < m*n || len(x) < n || len(y) < m {
		return fmt.Errorf("cuda: sgemv buffer too small for %dx%d", m, n)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return accel.ErrStreamDestroyed
	}
	if err := b.ensureAll(m*n*4, n*4, m*4); err != nil {
		return err
	}

	pa, pb, pc := b.pinA, b.pinB, b.pinC
	da, db, dc := b.devA, b.devB, b.devC
	withY := beta != 0

	if err := launchHostFunc(b.s.ptr, func() {
		copy(unsafe.Slice((*float32)(pa.ptr), m*n), a)
		copy(unsafe.Slice((*float32)(pb.ptr), n), x)
		if withY {
			copy(unsafe.Slice((*float32)(pc.ptr), m), y)
		}
	}); err != nil {
		return err
	}
	if err := memcpyH2DAsync(da.ptr, pa.ptr, m*n*4, b.s.ptr); err != nil {
		return err
	}
	if err := memcpyH2DAsync(db.ptr, pb.ptr, n*4, b.s.ptr); err != nil {
		return err
	}
	if withY {
		if err := memcpyH2DAsync(dc.ptr, pc.ptr, m*4, b.s.ptr); err != nil {
			return err
		}
	}

	// Row-major A viewed column-major is A^T, so y = A*x becomes a
	// transposed gemv over an n×m matrix.
	if err := blasSgemv(b.h, opT, n, m, alpha, da.ptr, n, db.ptr, beta, dc.ptr); err != nil {
		return err
	}
	if err := memcpyD2HAsync(pc.ptr, dc.ptr, m*4, b.s.ptr); err != nil {
		return err
	}
	return launchHostFunc(b.s.ptr, func() {
		copy(y[:m], unsafe.Slice((*float32)(pc.ptr), m))
	})
}

// Destroy drains the bound stream, then releases the handle and its
// scratch buffers. The stream itself is owned by the caller.
func (b *blas) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return accel.ErrStreamDestroyed
	}
	b.destroyed = true
	if err := b.s.Synchronize(); err != nil {
		return err
	}
	first := blasDestroy(b.h)
	for _, sc := range []*scratch{&b.devA, &b.devB, &b.devC} {
		if err := freeDevice(sc.ptr); err != nil && first == nil {
			first = err
		}
		sc.ptr, sc.cap = nil, 0
	}
	for _, sc := range []*scratch{&b.pinA, &b.pinB, &b.pinC} {
		if err := freeHostPinned(sc.ptr); err != nil && first == nil {
			first = err
		}
		sc.ptr, sc.cap = nil, 0
	}
	return first
}

func (b *blas) ensureAll(bytesA, bytesB, bytesC int) error {
	if err := b.ensure(&b.devA, bytesA, false); err != nil {
		return err
	}
	if err := b.ensure(&b.devB, bytesB, false); err != nil {
		return err
	}
	if err := b.ensure(&b.devC, bytesC, false); err != nil {
		return err
	}
	if err := b.ensure(&b.pinA, bytesA, true); err != nil {
		return err
	}
	if err := b.ensure(&b.pinB, bytesB, true); err != nil {
		return err
	}
	return b.ensure(&b.pinC, bytesC, true)
}

// ensure grows one scratch buffer. A live buffer may still be in flight,
// so the stream is drained before it is replaced.
func (b *blas) ensure(sc *scratch, bytes int, pinned bool) error {
	if sc.cap >= bytes {
		return nil
	}
	if sc.ptr != nil {
		if err := b.s.Synchronize(); err != nil {
			return err
		}
		if pinned {
			_ = freeHostPinned(sc.ptr)
		} else {
			_ = freeDevice(sc.ptr)
		}
		sc.ptr, sc.cap = nil, 0
	}
	var (
		ptr unsafe.Pointer
		err error
	)
	if pinned {
		ptr, err = mallocHostPinned(bytes)
	} else {
		ptr, err = mallocDevice(bytes)
	}
	if err != nil {
		return err
	}
	sc.ptr, sc.cap = ptr, bytes
	return nil
}

func geluF32(v []float32) {
	const c = 0.7978845608028654 // sqrt(2/pi)
	for i, x := range v {
		x64 := float64(x)
		v[i] = float32(0.5 * x64 * (1 + math.Tanh(c*(x64+0.044715*x64*x64*x64))))
	}
}
