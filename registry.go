package linkz

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// executionKeyType is a private type for context keys to avoid collisions.
type executionKeyType string

const (
	executionKey executionKeyType = "linkz"
)

// entry is the value held as "current" by an execution.
type entry struct {
	span  *ActiveSpan
	ctx   TraceContext
	valid bool
}

// execution is the continuation-local state of one logical request. Code
// running concurrently with the request must not share it: resumed
// continuations get their own execution, and raw goroutines use Fork or
// WithCarrier.
type execution struct {
	current entry
	mu      sync.Mutex
}

func (e *execution) get() entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *execution) swap(next entry) entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.current
	e.current = next
	return prev
}

func executionFrom(ctx context.Context) *execution {
	if ctx == nil {
		return nil
	}
	exec, _ := ctx.Value(executionKey).(*execution)
	return exec
}

// NewExecution starts a fresh logical execution with nothing active. The
// returned context keeps ctx's deadline and values.
func NewExecution(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, executionKey, &execution{})
}

// ensureExecution returns ctx's execution, attaching a new one if needed.
func ensureExecution(ctx context.Context) (context.Context, *execution) {
	if exec := executionFrom(ctx); exec != nil {
		return ctx, exec
	}
	ctx = NewExecution(ctx)
	return ctx, executionFrom(ctx)
}

// Current returns the trace context active in ctx's execution. It returns
// false when there is no execution or nothing is active.
func Current(ctx context.Context) (TraceContext, bool) {
	exec := executionFrom(ctx)
	if exec == nil {
		return TraceContext{}, false
	}
	e := exec.get()
	return e.ctx, e.valid
}

// CurrentSpan returns the active span when the current context was activated
// together with a span, or nil.
func CurrentSpan(ctx context.Context) *ActiveSpan {
	exec := executionFrom(ctx)
	if exec == nil {
		return nil
	}
	return exec.get().span
}

// Scope restores the previously current context when closed.
type Scope struct {
	exec   *execution
	prev   entry
	closed atomic.Bool
}

// Close restores exactly the context that was current when the scope was
// opened. Safe to call more than once.
func (s *Scope) Close() {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.exec.swap(s.prev)
}

// Activate makes tc current until the returned scope is closed. If ctx has no
// execution yet one is attached to the returned context.
func Activate(ctx context.Context, tc TraceContext) (context.Context, *Scope) {
	return activate(ctx, entry{ctx: tc, valid: true})
}

func activateSpan(ctx context.Context, span *ActiveSpan) (context.Context, *Scope) {
	return activate(ctx, entry{ctx: span.Context(), span: span, valid: true})
}

func activate(ctx context.Context, e entry) (context.Context, *Scope) {
	ctx, exec := ensureExecution(ctx)
	prev := exec.swap(e)
	return ctx, &Scope{exec: exec, prev: prev}
}

// Continuation is a snapshot taken at a suspension point. It can be resumed
// on any goroutine, while the suspending code keeps running.
type Continuation struct {
	ctx   context.Context
	state entry
}

// Suspend snapshots ctx's current context.
func Suspend(ctx context.Context) Continuation {
	ctx, exec := ensureExecution(ctx)
	return Continuation{ctx: ctx, state: exec.get()}
}

// Resume runs fn in an execution of its own seeded with the snapshot. What fn
// activates stays private to it, and later activations by the suspending code
// are never seen by fn.
func (c Continuation) Resume(fn func(ctx context.Context)) {
	fn(context.WithValue(c.ctx, executionKey, &execution{current: c.state}))
}

// Context returns the snapshot taken at suspension.
func (c Continuation) Context() (TraceContext, bool) {
	return c.state.ctx, c.state.valid
}

// LogFields returns zap fields correlating a log line with the current span.
func LogFields(ctx context.Context) []zap.Field {
	tc, ok := Current(ctx)
	if !ok {
		return nil
	}
	return []zap.Field{
		zap.Stringer("trace_id", tc.TraceID),
		zap.Stringer("span_id", tc.SpanID),
	}
}

// WithContextLogger returns logger annotated with the trace and span ids
// current in ctx, or logger itself when nothing is current.
func WithContextLogger(ctx context.Context, logger *zap.Logger) *zap.Logger {
	fields := LogFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
