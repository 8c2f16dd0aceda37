package linkz

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedHeader marks a propagation header that could not be decoded.
	// It is logged, never returned to request handlers.
	ErrMalformedHeader = errors.New("linkz: malformed propagation header")

	// ErrDoubleFinish is matched by DoubleFinishError.
	ErrDoubleFinish = errors.New("linkz: span finished twice")

	// ErrSamplingMisuse is returned when a trace is sampled more than once.
	ErrSamplingMisuse = errors.New("linkz: sampler consulted twice for one trace")

	// ErrTooManyRedirects is matched by RedirectLimitError.
	ErrTooManyRedirects = errors.New("linkz: too many redirects")

	// ErrQueueFull is returned by Executor.Submit when no worker slot is free.
	ErrQueueFull = errors.New("linkz: executor queue full")

	// ErrExecutorClosed is returned after Executor.Close.
	ErrExecutorClosed = errors.New("linkz: executor closed")
)

// DoubleFinishError reports a span that was finished more than once.
type DoubleFinishError struct {
	Name    string
	Context TraceContext
}

func (e *DoubleFinishError) Error() string {
	return fmt.Sprintf("linkz: span %q (trace %s, span %s) finished twice",
		e.Name, e.Context.TraceID, e.Context.SpanID)
}

// Is matches ErrDoubleFinish.
func (*DoubleFinishError) Is(target error) bool {
	return target == ErrDoubleFinish
}

// RedirectLimitError is returned when a redirect chain exceeds its limit.
type RedirectLimitError struct {
	URL   string
	Limit int
}

func (e *RedirectLimitError) Error() string {
	return fmt.Sprintf("linkz: stopped after %d redirects at %s", e.Limit, e.URL)
}

// Is matches ErrTooManyRedirects.
func (*RedirectLimitError) Is(target error) bool {
	return target == ErrTooManyRedirects
}
