package gorpc

import "sync"

// semaphore is a counting semaphore built on sync.Cond, kept in lockstep
// with the worker pool's queue length. Post/Wait play the role the
// reference's platform semaphore post()/wait() play; there is no OS-level
// named semaphore involved.
type semaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

func newSemaphore() *semaphore {
	s := &semaphore{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *semaphore) Post() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *semaphore) Wait() {
	s.mu.Lock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
	s.mu.Unlock()
}
