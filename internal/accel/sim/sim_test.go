package sim

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/samcharles93/sluice/internal/accel"
)

func TestStreamFIFO(t *testing.T) {
	t.Parallel()
	d := New()
	s, err := d.NewStream(0)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer func() { _ = s.Destroy() }()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		if err := Launch(s, func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Launch %d: %v", i, err)
		}
	}
	if err := s.Synchronize(); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 items, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("out of order at %d: got %d", i, v)
		}
	}
}

func TestStreamsRunInParallel(t *testing.T) {
	t.Parallel()
	d := New()
	a, err := d.NewStream(0)
	if err != nil {
		t.Fatalf("NewStream a: %v", err)
	}
	b, err := d.NewStream(0)
	if err != nil {
		t.Fatalf("NewStream b: %v", err)
	}

	release := make(chan struct{})
	if err := Launch(a, func() { <-release }); err != nil {
		t.Fatalf("Launch blocker: %v", err)
	}
	done := false
	if err := Launch(b, func() { done = true }); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	// b must drain while a is still blocked.
	if err := b.Synchronize(); err != nil {
		t.Fatalf("Synchronize b: %v", err)
	}
	if !done {
		t.Fatal("stream b did not run while a was blocked")
	}
	close(release)
	if err := a.Synchronize(); err != nil {
		t.Fatalf("Synchronize a: %v", err)
	}
	_ = a.Destroy()
	_ = b.Destroy()
}

func TestDestroyDrainsAndRejects(t *testing.T) {
	t.Parallel()
	d := New()
	s, err := d.NewStream(0)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	ran := false
	if err := Launch(s, func() { ran = true }); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if err := s.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if !ran {
		t.Fatal("Destroy returned before draining pending work")
	}
	if err := Launch(s, func() {}); !errors.Is(err, accel.ErrStreamDestroyed) {
		t.Fatalf("Launch after destroy: got %v, want ErrStreamDestroyed", err)
	}
	if err := s.Destroy(); !errors.Is(err, accel.ErrStreamDestroyed) {
		t.Fatalf("second Destroy: got %v, want ErrStreamDestroyed", err)
	}
}

func newTestBlas(t *testing.T, d *Driver) accel.Blas {
	t.Helper()
	s, err := d.NewStream(0)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	h, err := d.NewBlas(s)
	if err != nil {
		t.Fatalf("NewBlas: %v", err)
	}
	t.Cleanup(func() {
		_ = h.Destroy()
		_ = s.Destroy()
	})
	return h
}

func TestSgemmMatchesReference(t *testing.T) {
	t.Parallel()
	d := New()
	h := newTestBlas(t, d)

	const m, n, k = 3, 4, 5
	a := make([]float32, m*k)
	b := make([]float32, k*n)
	for i := range a {
		a[i] = float32(i%7) - 3
	}
	for i := range b {
		b[i] = float32(i%5) - 2
	}
	c := make([]float32, m*n)

	if err := h.Sgemm(m, n, k, 1, a, b, 0, c); err != nil {
		t.Fatalf("Sgemm: %v", err)
	}
	if err := h.Stream().Synchronize(); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var want float32
			for p := 0; p < k; p++ {
				want += a[i*k+p] * b[p*n+j]
			}
			if got := c[i*n+j]; math.Abs(float64(got-want)) > 1e-4 {
				t.Fatalf("c[%d,%d]: got %v, want %v", i, j, got, want)
			}
		}
	}
}

func TestSgemmGeluEpilogue(t *testing.T) {
	t.Parallel()
	d := New()
	h := newTestBlas(t, d)

	// 1x1 gemm so the expected value is gelu(a*b).
	a := []float32{2}
	b := []float32{1.5}
	c := []float32{0}
	if err := h.Sgemm(1, 1, 1, 1, a, b, 0, c, accel.WithGelu()); err != nil {
		t.Fatalf("Sgemm: %v", err)
	}
	if err := h.Stream().Synchronize(); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	x := 3.0
	want := 0.5 * x * (1 + math.Tanh(0.7978845608028654*(x+0.044715*x*x*x)))
	if math.Abs(float64(c[0])-want) > 1e-5 {
		t.Fatalf("gelu epilogue: got %v, want %v", c[0], want)
	}
}

func TestSgemv(t *testing.T) {
	t.Parallel()
	d := New()
	h := newTestBlas(t, d)

	a := []float32{1, 2, 3, 4, 5, 6} // 2x3
	x := []float32{1, 0, -1}
	y := []float32{10, 20}
	if err := h.Sgemv(2, 3, 1, a, x, 1, y); err != nil {
		t.Fatalf("Sgemv: %v", err)
	}
	if err := h.Stream().Synchronize(); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if y[0] != 10+(1-3) || y[1] != 20+(4-6) {
		t.Fatalf("unexpected gemv result: %v", y)
	}
}

func TestSgemmRejectsShortBuffers(t *testing.T) {
	t.Parallel()
	d := New()
	h := newTestBlas(t, d)
	if err := h.Sgemm(2, 2, 2, 1, make([]float32, 3), make([]float32, 4), 0, make([]float32, 4)); err == nil {
		t.Fatal("expected error for undersized A buffer")
	}
}

func TestStatsPairing(t *testing.T) {
	t.Parallel()
	d := New()
	before := d.Stats()

	var streams []accel.Stream
	var handles []accel.Blas
	for i := 0; i < 3; i++ {
		s, err := d.NewStream(0)
		if err != nil {
			t.Fatalf("NewStream: %v", err)
		}
		h, err := d.NewBlas(s)
		if err != nil {
			t.Fatalf("NewBlas: %v", err)
		}
		streams = append(streams, s)
		handles = append(handles, h)
	}
	for i := range handles {
		if err := handles[i].Destroy(); err != nil {
			t.Fatalf("blas Destroy: %v", err)
		}
		if err := streams[i].Destroy(); err != nil {
			t.Fatalf("stream Destroy: %v", err)
		}
	}

	after := d.Stats()
	if got := after.StreamsCreated - before.StreamsCreated; got != 3 {
		t.Fatalf("streams created: got %d, want 3", got)
	}
	if got := after.StreamsDestroyed - before.StreamsDestroyed; got != 3 {
		t.Fatalf("streams destroyed: got %d, want 3", got)
	}
	if got := after.BlasCreated - before.BlasCreated; got != 3 {
		t.Fatalf("blas created: got %d, want 3", got)
	}
	if got := after.BlasDestroyed - before.BlasDestroyed; got != 3 {
		t.Fatalf("blas destroyed: got %d, want 3", got)
	}
}

func TestFaultInjection(t *testing.T) {
	t.Parallel()
	d := New()
	d.FailStreamCreateAfter(2)
	if _, err := d.NewStream(0); err != nil {
		t.Fatalf("stream 1: %v", err)
	}
	if _, err := d.NewStream(0); err != nil {
		t.Fatalf("stream 2: %v", err)
	}
	if _, err := d.NewStream(0); err == nil {
		t.Fatal("expected injected failure on third stream")
	}
	d.FailStreamCreateAfter(-1)
	if _, err := d.NewStream(0); err != nil {
		t.Fatalf("after disabling injection: %v", err)
	}
}

func TestFaultBudgetStaysExhausted(t *testing.T) {
	t.Parallel()
	d := New()
	s, err := d.NewStream(0)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer func() { _ = s.Destroy() }()

	d.FailBlasCreateAfter(0)
	for i := 0; i < 3; i++ {
		if _, err := d.NewBlas(s); err == nil {
			t.Fatalf("attempt %d: expected injected failure while budget exhausted", i+1)
		}
	}
	d.FailBlasCreateAfter(-1)
	if _, err := d.NewBlas(s); err != nil {
		t.Fatalf("after disabling injection: %v", err)
	}
}

func TestCloseReleasesDefaults(t *testing.T) {
	t.Parallel()
	d := New(WithDevices(2))

	s := d.Stats()
	if s.StreamsCreated != 2 || s.BlasCreated != 2 {
		t.Fatalf("default pairs not counted as created: %+v", s)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s = d.Stats()
	if s.StreamsDestroyed != s.StreamsCreated {
		t.Fatalf("streams unpaired after Close: created %d, destroyed %d", s.StreamsCreated, s.StreamsDestroyed)
	}
	if s.BlasDestroyed != s.BlasCreated {
		t.Fatalf("handles unpaired after Close: created %d, destroyed %d", s.BlasCreated, s.BlasDestroyed)
	}
	if err := d.Close(); !errors.Is(err, accel.ErrStreamDestroyed) {
		t.Fatalf("second Close: got %v, want ErrStreamDestroyed", err)
	}
}

func TestDefaultStreamIdentity(t *testing.T) {
	t.Parallel()
	d := New(WithDevices(2))
	if d.CurrentStream(0) != d.CurrentStream(0) {
		t.Fatal("CurrentStream not stable")
	}
	if d.CurrentStream(0) == d.CurrentStream(1) {
		t.Fatal("devices share a default stream")
	}
	if d.CurrentBlas(0).Stream() != d.CurrentStream(0) {
		t.Fatal("default blas not bound to default stream")
	}
}

func TestDeviceInfoBounds(t *testing.T) {
	t.Parallel()
	d := New(WithDevices(2))
	if _, err := d.DeviceInfo(1); err != nil {
		t.Fatalf("DeviceInfo(1): %v", err)
	}
	if _, err := d.DeviceInfo(2); !errors.Is(err, accel.ErrNoSuchDevice) {
		t.Fatalf("DeviceInfo(2): got %v, want ErrNoSuchDevice", err)
	}
	if err := d.SetDevice(-1); !errors.Is(err, accel.ErrNoSuchDevice) {
		t.Fatalf("SetDevice(-1): got %v, want ErrNoSuchDevice", err)
	}
}
