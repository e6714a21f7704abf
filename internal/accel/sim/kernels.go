package sim

import "math"

// gemmF32 computes C = alpha*A*B + beta*C for row-major matrices using an
// ikj loop order so the inner loop streams both B and C rows.
func gemmF32(m, n, k int, alpha float32, a, b []float32, beta float32, c []float32) {
	for i := 0; i < m; i++ {
		ci := c[i*n : i*n+n]
		if beta == 0 {
			clear(ci)
		} else if beta != 1 {
			for j := range ci {
				ci[j] *= beta
			}
		}
		for p := 0; p < k; p++ {
			aip := alpha * a[i*k+p]
			if aip == 0 {
				continue
			}
			bp := b[p*n : p*n+n]
			for j, v := range bp {
				ci[j] += aip * v
			}
		}
	}
}

// gemvF32 computes y = alpha*A*x + beta*y for row-major A.
func gemvF32(m, n int, alpha float32, a, x []float32, beta float32, y []float32) {
	for i := 0; i < m; i++ {
		row := a[i*n : i*n+n]
		var acc float32
		for j, v := range row {
			acc += v * x[j]
		}
		y[i] = alpha*acc + beta*y[i]
	}
}

// geluInPlace applies the tanh-approximation GELU, matching the epilogue
// the cublasLt path fuses into its GEMM.
func geluInPlace(v []float32) {
	const c = 0.7978845608028654 // sqrt(2/pi)
	for i, x := range v {
		x64 := float64(x)
		v[i] = float32(0.5 * x64 * (1 + math.Tanh(c*(x64+0.044715*x64*x64*x64))))
	}
}
