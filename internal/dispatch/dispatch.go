// Package dispatch fans independent expert forwards out across the
// stream pool. Each expert is assigned the slot matching its index, so
// per-expert work is FIFO-ordered while distinct experts run in parallel,
// and a single prefix fence covers exactly the slots a batch used.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/sluice/internal/streams"
)

// Plan describes one dispatch workload: Tokens rows of width DModel,
// sharded round-robin across Experts feed-forward experts.
type Plan struct {
	Experts int   `json:"experts"`
	Tokens  int   `json:"tokens"`
	DModel  int   `json:"d_model"`
	DHidden int   `json:"d_hidden"`
	Seed    int64 `json:"seed"`
}

func (p Plan) validate() error {
	if p.Experts < 1 {
		return fmt.Errorf("dispatch: experts must be >= 1, got %d", p.Experts)
	}
	if p.Tokens < 1 {
		return fmt.Errorf("dispatch: tokens must be >= 1, got %d", p.Tokens)
	}
	if p.DModel < 1 || p.DHidden < 1 {
		return fmt.Errorf("dispatch: dims must be >= 1, got %dx%d", p.DModel, p.DHidden)
	}
	return nil
}

// Result carries the assembled output and timing of one Run.
type Result struct {
	Output       *Mat
	SlotsUsed    int
	Duration     time.Duration
	TokensPerSec float64
}

// Dispatcher submits expert shards through one device's pool.
type Dispatcher struct {
	pool *streams.Pool
}

// New returns a dispatcher over pool.
func New(pool *streams.Pool) *Dispatcher {
	return &Dispatcher{pool: pool}
}

// Run executes plan: builds deterministic experts and input, shards token
// t to expert t%Experts, submits each shard through the expert's slot,
// fences the used prefix, and scatters shard outputs back into token
// order. Cancellation is honored between expert submissions only; work
// already on a stream runs to completion.
func (d *Dispatcher) Run(ctx context.Context, plan Plan) (*Result, error) {
	if err := plan.validate(); err != nil {
		return nil, err
	}

	experts := make([]*Expert, plan.Experts)
	for e := range experts {
		experts[e] = NewExpert(plan.DModel, plan.DHidden, plan.Seed+int64(e))
	}
	input := RandMat(plan.Tokens, plan.DModel, plan.Seed)

	start := time.Now()

	// Gather each expert's shard into contiguous rows.
	shardTokens := make([][]int, plan.Experts)
	for t := 0; t < plan.Tokens; t++ {
		e := t % plan.Experts
		shardTokens[e] = append(shardTokens[e], t)
	}
	ins := make([]*Mat, plan.Experts)
	mids := make([]*Mat, plan.Experts)
	outs := make([]*Mat, plan.Experts)

	for e := 0; e < plan.Experts; e++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("dispatch: cancelled before expert %d: %w", e, err)
		}
		rows := shardTokens[e]
		if len(rows) == 0 {
			continue
		}
		in := NewMat(len(rows), plan.DModel)
		for i, t := range rows {
			copy(in.Row(i), input.Row(t))
		}
		ins[e] = in
		mids[e] = NewMat(len(rows), plan.DHidden)
		outs[e] = NewMat(len(rows), plan.DModel)
		if err := experts[e].Submit(d.pool.Blas(uint64(e)), in, mids[e], outs[e]); err != nil {
			// Drain anything already in flight before surfacing.
			_ = d.pool.Sync(streams.Slots)
			return nil, err
		}
	}

	slotsUsed := min(plan.Experts, streams.Slots)
	if err := d.pool.Sync(slotsUsed); err != nil {
		return nil, err
	}

	output := NewMat(plan.Tokens, plan.DModel)
	for e, rows := range shardTokens {
		for i, t := range rows {
			copy(output.Row(t), outs[e].Row(i))
		}
	}

	elapsed := time.Since(start)
	return &Result{
		Output:       output,
		SlotsUsed:    slotsUsed,
		Duration:     elapsed,
		TokensPerSec: float64(plan.Tokens) / elapsed.Seconds(),
	}, nil
}
