package dispatch

import (
	"fmt"

	"github.com/samcharles93/sluice/internal/accel"
)

// Expert is one feed-forward expert: a dModel→dHidden projection with a
// fused GELU, followed by a dHidden→dModel projection.
type Expert struct {
	Up   *Mat // dModel × dHidden
	Down *Mat // dHidden × dModel
}

// NewExpert builds an expert with deterministic weights.
func NewExpert(dModel, dHidden int, seed int64) *Expert {
	return &Expert{
		Up:   RandMat(dModel, dHidden, seed),
		Down: RandMat(dHidden, dModel, seed+1),
	}
}

// Submit enqueues the expert forward for a token shard on h: one GEMM
// with a GELU epilogue into mid, one GEMM into out. Both run
// asynchronously in FIFO order on h's bound stream, so no host fence is
// needed between them. The caller owns in, mid, and out and must not
// touch them until the stream is fenced.
func (e *Expert) Submit(h accel.Blas, in, mid, out *Mat) error {
	if in.C != e.Up.R {
		return fmt.Errorf("dispatch: input width %d != expert model dim %d", in.C, e.Up.R)
	}
	if mid.R != in.R || mid.C != e.Up.C {
		return fmt.Errorf("dispatch: mid shape %dx%d, want %dx%d", mid.R, mid.C, in.R, e.Up.C)
	}
	if out.R != in.R || out.C != e.Down.C {
		return fmt.Errorf("dispatch: out shape %dx%d, want %dx%d", out.R, out.C, in.R, e.Down.C)
	}
	if err := h.Sgemm(in.R, e.Up.C, in.C, 1, in.Data, e.Up.Data, 0, mid.Data, accel.WithGelu()); err != nil {
		return fmt.Errorf("dispatch: up projection: %w", err)
	}
	if err := h.Sgemm(mid.R, e.Down.C, mid.C, 1, mid.Data, e.Down.Data, 0, out.Data); err != nil {
		return fmt.Errorf("dispatch: down projection: %w", err)
	}
	return nil
}
