// Package accel defines the driver abstraction the stream pool and the
// dispatcher sit on. A driver exposes devices, asynchronous execution
// streams, and BLAS handles bound to those streams. Implementations live
// in the sim and cuda subpackages.
package accel

// Stream is an ordered asynchronous execution queue on one device. Work
// submitted to a stream runs in FIFO order; work on distinct streams runs
// in parallel.
type Stream interface {
	// Synchronize blocks the calling goroutine until all work previously
	// submitted to this stream has completed.
	Synchronize() error
	// Destroy releases the stream. Pending work is drained first.
	Destroy() error
}

// Blas is a math-library context permanently bound to one stream at
// creation. Its operations take host slices, enqueue asynchronously on the
// bound stream, and return immediately; completion is observed through
// Stream().Synchronize. Output slices must not be read, and input slices
// must not be mutated, before the stream is synchronized.
type Blas interface {
	// Stream returns the stream this handle was bound to at creation.
	Stream() Stream
	// Sgemm enqueues C = alpha*A*B + beta*C for row-major f32 matrices
	// A (m×k), B (k×n), C (m×n).
	Sgemm(m, n, k int, alpha float32, a []float32, b []float32, beta float32, c []float32, opts ...GemmOpt) error
	// Sgemv enqueues y = alpha*A*x + beta*y for row-major A (m×n).
	Sgemv(m, n int, alpha float32, a []float32, x []float32, beta float32, y []float32) error
	// Destroy releases the handle. The bound stream is not destroyed.
	Destroy() error
}

// Epilogue selects a fused element-wise function applied to the GEMM
// output before it is stored, in the style of cublasLt epilogues.
type Epilogue int

const (
	EpilogueNone Epilogue = iota
	EpilogueGelu
)

// GemmOpts carries per-call GEMM options.
type GemmOpts struct {
	Epilogue Epilogue
}

// GemmOpt configures a single Sgemm call.
type GemmOpt func(*GemmOpts)

// WithGelu fuses a tanh-approximation GELU into the GEMM epilogue.
func WithGelu() GemmOpt {
	return func(o *GemmOpts) { o.Epilogue = EpilogueGelu }
}

// ApplyGemmOpts folds a slice of options into a GemmOpts value.
func ApplyGemmOpts(opts []GemmOpt) GemmOpts {
	var o GemmOpts
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// DeviceInfo describes one device visible through a driver.
type DeviceInfo struct {
	ID          int               `json:"id"`
	Name        string            `json:"name"`
	Kind        string            `json:"kind"`
	MemoryBytes uint64            `json:"memory_bytes"`
	Details     map[string]string `json:"details,omitempty"`
}

// Driver is implemented by accelerator runtimes (sim, cuda).
type Driver interface {
	Name() string
	DeviceCount() (int, error)
	DeviceInfo(device int) (DeviceInfo, error)
	// SetDevice switches the calling thread's active device.
	SetDevice(device int) error
	// NewStream creates an execution stream on the given device.
	NewStream(device int) (Stream, error)
	// NewBlas creates a BLAS handle bound to s for its whole lifetime.
	NewBlas(s Stream) (Blas, error)
	// CurrentStream returns the framework-ambient default stream for the
	// device. It never fails and never allocates per call.
	CurrentStream(device int) Stream
	// CurrentBlas returns the framework-ambient BLAS handle for the
	// device, bound to CurrentStream(device).
	CurrentBlas(device int) Blas
}
