package sim

import (
	"fmt"
	"sync"

	"github.com/samcharles93/sluice/internal/accel"
)

// stream is one worker goroutine draining an unbounded FIFO of host
// closures. Enqueue returns immediately; Synchronize waits for the queue
// to empty and the in-flight closure to finish.
type stream struct {
	d      *Driver
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	busy   bool
	closed bool
}

func newStream(d *Driver) *stream {
	s := &stream{d: d}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

func (s *stream) run() {
	s.mu.Lock()
	for {
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.busy = true
		s.mu.Unlock()

		fn()

		s.mu.Lock()
		s.busy = false
		s.cond.Broadcast()
	}
}

func (s *stream) enqueue(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return accel.ErrStreamDestroyed
	}
	s.queue = append(s.queue, fn)
	s.cond.Broadcast()
	return nil
}

func (s *stream) Synchronize() error {
	s.d.syncs.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 || s.busy {
		s.cond.Wait()
	}
	return nil
}

// Destroy drains pending work, stops the worker, and rejects further
// submissions.
func (s *stream) Destroy() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return accel.ErrStreamDestroyed
	}
	s.closed = true
	s.cond.Broadcast()
	for len(s.queue) > 0 || s.busy {
		s.cond.Wait()
	}
	s.mu.Unlock()
	s.d.streamsDestroyed.Add(1)
	return nil
}

// Launch enqueues an arbitrary host closure on a sim stream. It exists
// for tests and benchmarks that need non-BLAS work on a pooled stream.
func Launch(s accel.Stream, fn func()) error {
	st, ok := s.(*stream)
	if !ok {
		return fmt.Errorf("sim: foreign stream type %T", s)
	}
	return st.enqueue(fn)
}
