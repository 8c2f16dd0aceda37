package linkz

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Carrier holds a trace context captured in a parent execution for explicit
// hand-off into forked branches.
type Carrier struct {
	span  *ActiveSpan
	ctx   TraceContext
	valid bool
}

// Capture records the context currently active in ctx.
func Capture(ctx context.Context) Carrier {
	exec := executionFrom(ctx)
	if exec == nil {
		return Carrier{}
	}
	e := exec.get()
	return Carrier{ctx: e.ctx, span: e.span, valid: e.valid}
}

// Context returns the captured trace context.
func (c Carrier) Context() (TraceContext, bool) {
	return c.ctx, c.valid
}

// Fork returns a context for an independent concurrent branch. The branch
// starts with nothing active; cancellation and values are kept.
func Fork(ctx context.Context) context.Context {
	return NewExecution(ctx)
}

// WithCarrier runs fn in a forked branch with the carrier's context active.
// A zero Carrier leaves the branch empty.
func WithCarrier(ctx context.Context, c Carrier, fn func(ctx context.Context)) {
	ctx = Fork(ctx)
	if c.valid {
		var scope *Scope
		ctx, scope = activate(ctx, entry{ctx: c.ctx, span: c.span, valid: true})
		defer scope.Close()
	}
	fn(ctx)
}

// Parallel runs tasks concurrently, each in its own forked branch carrying c,
// and returns the first error. The context passed to tasks is cancelled when
// any task fails.
func Parallel(ctx context.Context, c Carrier, tasks ...func(ctx context.Context) error) error {
	return ParallelLimit(ctx, c, -1, tasks...)
}

// ParallelLimit is Parallel with at most limit tasks running at once.
// A negative limit means no limit.
func ParallelLimit(ctx context.Context, c Carrier, limit int, tasks ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, task := range tasks {
		g.Go(func() error {
			var err error
			WithCarrier(gctx, c, func(ctx context.Context) {
				err = task(ctx)
			})
			return err
		})
	}
	return g.Wait()
}
