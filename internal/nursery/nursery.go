// Package nursery implements a bounded worker pool with "all children must
// finish before scope exit" structured-concurrency semantics, grounded on
// the teacher's pkg/bulk.go BulkQueue (fixed worker goroutines draining a
// work channel) but generalized per spec.md C4: the first captured child
// error is surfaced at Close (or immediately at the next StartSoon once an
// error is pending), never silently swallowed by a throwing destructor
// (see DESIGN.md's note on this).
package nursery

import (
	"runtime"
	"sync"
)

// Nursery runs each task on its own goroutine, at most max at a time.
type Nursery struct {
	max int

	mu     sync.Mutex
	err    error
	closed bool

	sem chan struct{}
	wg  sync.WaitGroup
}

// Task is a unit of work submitted to the nursery.
type Task func() error

// New creates a Nursery bounded at max concurrent tasks. max <= 0 uses
// detected hardware parallelism (minimum 1).
func New(max int) *Nursery {
	if max <= 0 {
		max = runtime.NumCPU()
	}
	if max < 1 {
		max = 1
	}
	return &Nursery{max: max, sem: make(chan struct{}, max)}
}

// firstErr returns the first captured error, if any.
func (n *Nursery) firstErr() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

func (n *Nursery) setErr(err error) {
	n.mu.Lock()
	if n.err == nil {
		n.err = err
	}
	n.mu.Unlock()
}

// StartSoon enqueues task, blocking if max concurrent tasks are already
// running. If a prior task's error is already pending, StartSoon discards
// the new (unstarted) task and immediately returns that error instead of
// running it.
func (n *Nursery) StartSoon(task Task) error {
	if err := n.firstErr(); err != nil {
		return err
	}

	n.sem <- struct{}{}

	if err := n.firstErr(); err != nil {
		<-n.sem
		return err
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() { <-n.sem }()
		if err := task(); err != nil {
			n.setErr(err)
		}
	}()
	return nil
}

// Close blocks until all started workers drain, then returns the first
// captured child error, if any. Safe to call multiple times.
func (n *Nursery) Close() error {
	n.mu.Lock()
	already := n.closed
	n.closed = true
	n.mu.Unlock()

	if !already {
		n.wg.Wait()
	}
	return n.firstErr()
}
