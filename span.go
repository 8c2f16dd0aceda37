package linkz

import (
	"sync"
	"time"
)

// Span is the finished record handed to reporters. Reporters receive a copy
// and must not assume any other goroutine still holds it.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	Tags           map[Tag]string `json:"tags,omitempty"`
	LocalEndpoint  *Endpoint      `json:"local_endpoint,omitempty"`
	RemoteEndpoint *Endpoint      `json:"remote_endpoint,omitempty"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time,omitempty"`
	Duration       time.Duration  `json:"duration"`
	Context        TraceContext   `json:"context"`
	Name           string         `json:"name"`
	Kind           Kind           `json:"kind"`
}

// ActiveSpan wraps an unfinished Span. The owner is the only expected writer,
// but the tag map is still guarded so concurrent sub-operations cannot corrupt it.
type ActiveSpan struct {
	span   *Span
	tracer *Tracer
	scope  *Scope
	mu     sync.Mutex
}

// SetTag adds a key-value pair to the span.
// No-op if span is already finished.
func (a *ActiveSpan) SetTag(key Tag, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.span.EndTime.IsZero() {
		return
	}

	if a.span.Tags == nil {
		a.span.Tags = make(map[Tag]string)
	}
	a.span.Tags[key] = value
}

// GetTag retrieves a tag value by key.
func (a *ActiveSpan) GetTag(key Tag) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Tags == nil {
		return "", false
	}
	value, ok := a.span.Tags[key]
	return value, ok
}

// SetName renames the span. No-op once finished.
func (a *ActiveSpan) SetName(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.EndTime.IsZero() {
		a.span.Name = name
	}
}

// Name returns the current span name.
func (a *ActiveSpan) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.Name
}

// SetRemoteEndpoint records the peer of the span. No-op once finished.
func (a *ActiveSpan) SetRemoteEndpoint(ep Endpoint) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.EndTime.IsZero() {
		a.span.RemoteEndpoint = &ep
	}
}

// Kind returns the span kind.
func (a *ActiveSpan) Kind() Kind {
	return a.span.Kind
}

// Context returns the span's trace context. It never changes after creation.
func (a *ActiveSpan) Context() TraceContext {
	return a.span.Context
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() TraceID {
	return a.span.Context.TraceID
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() SpanID {
	return a.span.Context.SpanID
}

// IsFinished reports whether Finish has been called.
func (a *ActiveSpan) IsFinished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.span.EndTime.IsZero()
}

// Finish completes the span, releases its activation if it has one and hands
// it to the tracer. A second call changes nothing and returns a
// *DoubleFinishError, which the tracer also logs.
func (a *ActiveSpan) Finish() error {
	a.mu.Lock()

	if !a.span.EndTime.IsZero() {
		err := &DoubleFinishError{Name: a.span.Name, Context: a.span.Context}
		a.mu.Unlock()
		a.tracer.defect(err)
		return err
	}

	a.span.EndTime = a.tracer.clock.Now()
	a.span.Duration = a.span.EndTime.Sub(a.span.StartTime)
	snapshot := a.snapshotLocked()
	scope := a.scope
	a.mu.Unlock()

	if scope != nil {
		scope.Close()
	}
	a.tracer.collectSpan(snapshot)
	return nil
}

// snapshotLocked deep-copies the span so reporters never share the tag map.
func (a *ActiveSpan) snapshotLocked() Span {
	out := *a.span
	if a.span.Tags != nil {
		out.Tags = make(map[Tag]string, len(a.span.Tags))
		for k, v := range a.span.Tags {
			out.Tags[k] = v
		}
	}
	return out
}
