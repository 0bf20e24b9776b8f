package gorpc

import (
	"fmt"
	"sync"
)

// Work is the pool's request unit: a live request carries Handle, while
// the exit sentinel is the distinct exit==true case rather than a magic
// handle value a caller could collide with.
type Work struct {
	Handle any
	exit   bool
}

// OnInitThreadFunc runs once per worker before it enters its consume loop;
// returning an error aborts Create.
type OnInitThreadFunc func(idx int) error

// OnThreadProcFunc processes one dequeued request.
type OnThreadProcFunc func(idx int, w Work)

// OnExitThreadFunc runs once per worker after it observes the exit
// sentinel.
type OnExitThreadFunc func(idx int)

// PoolOption configures a WorkerPool at construction.
type PoolOption func(*WorkerPool)

func WithOnInitThread(f OnInitThreadFunc) PoolOption {
	return func(p *WorkerPool) { p.onInit = f }
}

func WithOnExitThread(f OnExitThreadFunc) PoolOption {
	return func(p *WorkerPool) { p.onExit = f }
}

// WorkerPool is a fixed-size pool of workers consuming from a two-ended
// priority queue via a counting semaphore.
type WorkerPool struct {
	mu      sync.Mutex
	queue   []Work
	sem     *semaphore
	ready   bool
	workers int
	wg      sync.WaitGroup

	onInit OnInitThreadFunc
	onProc OnThreadProcFunc
	onExit OnExitThreadFunc
}

// NewWorkerPool constructs a pool that will dispatch dequeued work to
// onProc. Call Create to actually spin up workers.
func NewWorkerPool(onProc OnThreadProcFunc, opts ...PoolOption) *WorkerPool {
	p := &WorkerPool{onProc: onProc}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Create spins up n workers and returns only after all n have acknowledged
// startup (or a setup failure has been observed and already-started
// workers joined).
func (p *WorkerPool) Create(n int) error {
	if n < 1 {
		return fmt.Errorf("gorpc: pool size must be >= 1, got %d", n)
	}
	p.mu.Lock()
	if p.ready {
		p.mu.Unlock()
		return fmt.Errorf("gorpc: pool already created")
	}
	p.queue = nil
	p.sem = newSemaphore()
	p.ready = true
	p.workers = n
	p.mu.Unlock()

	ack := make(chan error, n)
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.runWorker(i, ack)
	}

	var firstErr error
	for i := 0; i < n; i++ {
		if err := <-ack; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		p.Destroy(false)
		return firstErr
	}
	return nil
}

func (p *WorkerPool) runWorker(idx int, ack chan<- error) {
	defer p.wg.Done()

	if p.onInit != nil {
		if err := p.onInit(idx); err != nil {
			ack <- err
			return
		}
	}
	ack <- nil

	for {
		p.sem.Wait()
		p.mu.Lock()
		if len(p.queue) == 0 {
			// Lockstep invariant (semaphore count == queue length) means
			// this should not happen; guard against spurious wake anyway.
			p.mu.Unlock()
			continue
		}
		w := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		if w.exit {
			break
		}
		if p.onProc != nil {
			p.onProc(idx, w)
		}
	}

	if p.onExit != nil {
		p.onExit(idx)
	}
}

// PostRequest enqueues a request, at the front when highPriority is set,
// otherwise at the back. It rejects a nil handle or a pool that is not
// ready, and reports whether the request was accepted.
func (p *WorkerPool) PostRequest(handle any, highPriority bool) bool {
	if handle == nil {
		return false
	}
	p.mu.Lock()
	if !p.ready {
		p.mu.Unlock()
		return false
	}
	w := Work{Handle: handle}
	if highPriority {
		p.queue = append([]Work{w}, p.queue...)
	} else {
		p.queue = append(p.queue, w)
	}
	p.mu.Unlock()
	p.sem.Post()
	return true
}

// Destroy transitions the pool out of ready, enqueues one exit sentinel
// per worker, and joins all workers before returning.
//
// The "high priority" placement is inverted for the exit sentinels:
// waitDrain=true enqueues them at the back (workers drain all queued work
// first), waitDrain=false enqueues them at the front (workers exit after
// finishing only their current item).
func (p *WorkerPool) Destroy(waitDrain bool) {
	p.mu.Lock()
	if !p.ready {
		p.mu.Unlock()
		return
	}
	p.ready = false
	n := p.workers
	exits := make([]Work, n)
	for i := range exits {
		exits[i] = Work{exit: true}
	}
	if waitDrain {
		p.queue = append(p.queue, exits...)
	} else {
		p.queue = append(exits, p.queue...)
	}
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		p.sem.Post()
	}
	p.wg.Wait()
}

// QueueLen reports the current queue size.
func (p *WorkerPool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}
