package api

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// JobStore keeps completed job records in memory.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]Job)}
}

func (s *JobStore) Put(job Job) {
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
}

func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	return job, ok
}

// List returns all jobs, newest first.
func (s *JobStore) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func newJobID() string {
	return "job_" + uuid.NewString()
}
