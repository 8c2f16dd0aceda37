package linkz

import (
	"context"
	"errors"
	"sync/atomic"
)

// Executor multiplexes continuations of many logical requests over a bounded
// set of worker goroutines. A task never observes another request's trace
// context: each submission snapshots its own execution and the worker
// resumes that snapshot before running it.
type Executor struct {
	pool     *workerPool
	rejected atomic.Uint64
}

// NewExecutor starts workers goroutines draining a queue of queueSize tasks.
func NewExecutor(workers, queueSize int) (*Executor, error) {
	if workers <= 0 {
		return nil, errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return nil, errors.New("queueSize must be > 0")
	}
	e := &Executor{}
	e.pool = newWorkerPool(workers, queueSize, &e.rejected)
	return e, nil
}

// Submit suspends ctx's execution and queues fn to resume it on a worker.
func (e *Executor) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	cont := Suspend(ctx)
	if e.pool.submit(func() { cont.Resume(fn) }) {
		return nil
	}
	e.pool.mu.RLock()
	closed := e.pool.closed
	e.pool.mu.RUnlock()
	if closed {
		return ErrExecutorClosed
	}
	return ErrQueueFull
}

// Await submits fn and blocks until it returns or ctx is done.
func (e *Executor) Await(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	err := e.Submit(ctx, func(ctx context.Context) {
		done <- fn(ctx)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rejected returns how many submissions were refused.
func (e *Executor) Rejected() uint64 {
	return e.rejected.Load()
}

// Close stops accepting work, runs what was queued and waits for workers.
func (e *Executor) Close() {
	e.pool.shutdown()
}
