package api

import (
	"time"

	"github.com/samcharles93/sluice/internal/dispatch"
	"github.com/samcharles93/sluice/internal/streams"
)

// JobRequest is the POST /v1/jobs payload. Zero-valued fields take the
// request defaults.
type JobRequest struct {
	Device  int   `json:"device"`
	Experts int   `json:"experts"`
	Tokens  int   `json:"tokens"`
	DModel  int   `json:"d_model"`
	DHidden int   `json:"d_hidden"`
	Seed    int64 `json:"seed"`
}

func (r *JobRequest) applyDefaults() {
	if r.Experts == 0 {
		r.Experts = 4
	}
	if r.Tokens == 0 {
		r.Tokens = 64
	}
	if r.DModel == 0 {
		r.DModel = 64
	}
	if r.DHidden == 0 {
		r.DHidden = 256
	}
}

func (r *JobRequest) plan() dispatch.Plan {
	return dispatch.Plan{
		Experts: r.Experts,
		Tokens:  r.Tokens,
		DModel:  r.DModel,
		DHidden: r.DHidden,
		Seed:    r.Seed,
	}
}

// Job is a completed dispatch workload record.
type Job struct {
	ID           string        `json:"id"`
	Object       string        `json:"object"`
	CreatedAt    int64         `json:"created_at"`
	Device       int           `json:"device"`
	Plan         dispatch.Plan `json:"plan"`
	SlotsUsed    int           `json:"slots_used"`
	DurationMS   float64       `json:"duration_ms"`
	TokensPerSec float64       `json:"tokens_per_sec"`
}

func newJob(id string, req JobRequest, res *dispatch.Result, now time.Time) Job {
	return Job{
		ID:           id,
		Object:       "job",
		CreatedAt:    now.Unix(),
		Device:       req.Device,
		Plan:         req.plan(),
		SlotsUsed:    res.SlotsUsed,
		DurationMS:   float64(res.Duration) / float64(time.Millisecond),
		TokensPerSec: res.TokensPerSec,
	}
}

// JobList wraps GET /v1/jobs.
type JobList struct {
	Object string `json:"object"`
	Data   []Job  `json:"data"`
}

// PoolList wraps GET /v1/pools.
type PoolList struct {
	Object string          `json:"object"`
	Data   []streams.Stats `json:"data"`
}

// ResponseError is the error body shape.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
