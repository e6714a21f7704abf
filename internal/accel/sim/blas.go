package sim

import (
	"fmt"
	"sync/atomic"

	"github.com/samcharles93/sluice/internal/accel"
)

// blas enqueues host BLAS kernels on its bound stream and returns
// immediately, mirroring cuBLAS handle semantics.
type blas struct {
	d      *Driver
	s      *stream
	closed atomic.Bool
}

func (b *blas) Stream() accel.Stream { return b.s }

func (b *blas) Sgemm(m, n, k int, alpha float32, a []float32, bm []float32, beta float32, c []float32, opts ...accel.GemmOpt) error {
	if b.closed.Load() {
		return accel.ErrStreamDestroyed
	}
	if m < 0 || n < 0 || k < 0 {
		return fmt.Errorf("sim: sgemm dims %dx%dx%d", m, n, k)
	}
	if len(a) < m*k || len(bm) < k*n || len(c) < m*n {
		return fmt.Errorf("sim: sgemm buffer too small for %dx%dx%d", m, n, k)
	}
	o := accel.ApplyGemmOpts(opts)
	b.d.kernels.Add(1)
	return b.s.enqueue(func() {
		gemmF32(m, n, k, alpha, a, bm, beta, c)
		if o.Epilogue == accel.EpilogueGelu {
			geluInPlace(c[:m*n])
		}
	})
}

func (b *blas) Sgemv(m, n int, alpha float32, a []float32, x []float32, beta float32, y []float32) error {
	if b.closed.Load() {
		return accel.ErrStreamDestroyed
	}
	if m < 0 || n < 0 {
		return fmt.Errorf("sim: sgemv dims %dx%d", m, n)
	}
	if len(a) < m*n || len(x) < n || len(y) < m {
		return fmt.Errorf("sim: sgemv buffer too small for %dx%d", m, n)
	}
	b.d.kernels.Add(1)
	return b.s.enqueue(func() {
		gemvF32(m, n, alpha, a, x, beta, y)
	})
}

// Destroy releases the handle. The bound stream stays usable.
func (b *blas) Destroy() error {
	if !b.closed.CompareAndSwap(false, true) {
		return accel.ErrStreamDestroyed
	}
	b.d.blasDestroyed.Add(1)
	return nil
}
