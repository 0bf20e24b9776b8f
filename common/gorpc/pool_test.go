package gorpc

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolProcessesAllRequests(t *testing.T) {
	var processed atomic.Int64
	p := NewWorkerPool(func(idx int, w Work) {
		processed.Add(1)
	})
	if err := p.Create(4); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 500
	for i := 0; i < n; i++ {
		if !p.PostRequest(i, false) {
			t.Fatalf("PostRequest(%d) rejected", i)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for processed.Load() != n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := processed.Load(); got != n {
		t.Fatalf("processed %d of %d requests", got, n)
	}

	p.Destroy(true)
}

func TestWorkerPoolHighPriorityJumpsQueue(t *testing.T) {
	var mu sync.Mutex
	var order []int

	release := make(chan struct{})
	var first atomic.Bool

	p := NewWorkerPool(func(idx int, w Work) {
		if first.CompareAndSwap(false, true) {
			<-release
		}
		mu.Lock()
		order = append(order, w.Handle.(int))
		mu.Unlock()
	})
	if err := p.Create(1); err != nil {
		t.Fatalf("Create: %v", err)
	}

	p.PostRequest(1, false) // occupies the single worker, blocked on release
	time.Sleep(20 * time.Millisecond)
	p.PostRequest(2, false)
	p.PostRequest(3, true) // should be serviced before 2

	close(release)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 {
		t.Fatalf("got %d entries, want 3: %v", len(order), order)
	}
	if order[1] != 3 || order[2] != 2 {
		t.Fatalf("priority order wrong: %v, want [1 3 2]", order)
	}

	p.Destroy(false)
}

// TestWorkerPoolDestroyDrain confirms Destroy(true) lets already-queued
// work finish before any worker observes its exit sentinel, per the
// reference's documented front/back inversion: waitDrain places exits at
// the back of the queue.
func TestWorkerPoolDestroyDrain(t *testing.T) {
	var processed atomic.Int64
	p := NewWorkerPool(func(idx int, w Work) {
		time.Sleep(time.Millisecond)
		processed.Add(1)
	})
	if err := p.Create(2); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 50
	for i := 0; i < n; i++ {
		p.PostRequest(i, false)
	}
	p.Destroy(true)

	if got := processed.Load(); got != n {
		t.Fatalf("drain destroy processed %d of %d", got, n)
	}
}

// TestWorkerPoolDestroyFast checks that Destroy(false) returns promptly
// while 50 requests are still queued behind an in-flight one: exits are
// placed at the front, so workers need not work through the backlog first.
// It does not count how many of the queued requests ran.
func TestWorkerPoolDestroyFast(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	p := NewWorkerPool(func(idx int, w Work) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
	})
	if err := p.Create(1); err != nil {
		t.Fatalf("Create: %v", err)
	}

	p.PostRequest(1, false)
	<-started // worker is now blocked inside onProc for item 1

	for i := 0; i < 50; i++ {
		p.PostRequest(i+2, false)
	}

	done := make(chan struct{})
	go func() {
		p.Destroy(false)
		close(done)
	}()

	close(block) // let the in-flight item finish; worker should then see the sentinel
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Destroy(false) did not return promptly")
	}
}

func TestWorkerPoolPostRequestRejectsNilHandle(t *testing.T) {
	p := NewWorkerPool(func(idx int, w Work) {})
	if err := p.Create(1); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Destroy(false)

	if p.PostRequest(nil, false) {
		t.Fatal("expected nil handle to be rejected")
	}
}

func TestWorkerPoolCreateTwiceFails(t *testing.T) {
	p := NewWorkerPool(func(idx int, w Work) {})
	if err := p.Create(1); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Destroy(false)

	if err := p.Create(1); err == nil {
		t.Fatal("expected second Create to fail")
	}
}
