// Package integration exercises linkz across real HTTP hops and the
// framework adapters.
package integration

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/linkz"
)

// MockCollector wraps a real collector with test utilities.
// Provides synchronous collection and verification helpers.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []linkz.Span
	*linkz.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := linkz.NewCollector(name, bufferSize)
	collector.SetSyncMode(true) // Enable synchronous collection for testing.
	t.Cleanup(collector.Close)
	return &MockCollector{
		Collector: collector,
		t:         t,
		exported:  make([]linkz.Span, 0),
	}
}

// Export returns collected spans and clears the buffer.
func (m *MockCollector) Export() []linkz.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	spans := m.Collector.Export()
	m.exported = append(m.exported, spans...)
	return spans
}

// GetAll returns every span collected so far, including exported ones.
func (m *MockCollector) GetAll() []linkz.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.Collector.Export(); len(current) > 0 {
		m.exported = append(m.exported, current...)
	}
	all := make([]linkz.Span, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits until at least expected spans were collected.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []linkz.Span {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if all := m.GetAll(); len(all) >= expected {
			return all
		}
		time.Sleep(5 * time.Millisecond)
	}
	all := m.GetAll()
	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(all))
	return all
}

// NewService creates a tracer for one simulated service reporting into c.
func NewService(t *testing.T, name string, c *MockCollector, opts ...linkz.Option) *linkz.Tracer {
	base := []linkz.Option{
		linkz.WithServiceName(name),
		linkz.WithClock(clockz.RealClock),
	}
	tracer := linkz.New(append(base, opts...)...)
	tracer.OnSpanComplete(c.Report)
	t.Cleanup(tracer.Close)
	return tracer
}

// TraceAnalyzer answers structural questions about collected spans. A SERVER
// span sharing its id with a CLIENT span is treated as that client's child.
type TraceAnalyzer struct {
	spans []linkz.Span
}

// NewTraceAnalyzer creates an analyzer for a set of spans.
func NewTraceAnalyzer(spans []linkz.Span) *TraceAnalyzer {
	return &TraceAnalyzer{spans: spans}
}

// Find returns the first span with the given kind and name.
func (a *TraceAnalyzer) Find(kind linkz.Kind, name string) (linkz.Span, bool) {
	for _, s := range a.spans {
		if s.Kind == kind && s.Name == name {
			return s, true
		}
	}
	return linkz.Span{}, false
}

// ByKind returns all spans of kind.
func (a *TraceAnalyzer) ByKind(kind linkz.Kind) []linkz.Span {
	var out []linkz.Span
	for _, s := range a.spans {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// Children returns the direct children of parent. A CLIENT span with a
// SERVER twin has that twin as its only child; the twin owns the rest.
func (a *TraceAnalyzer) Children(parent linkz.Span) []linkz.Span {
	if parent.Kind == linkz.KindClient {
		for _, s := range a.spans {
			if s.Kind == linkz.KindServer && s.Context.TraceID == parent.Context.TraceID &&
				s.Context.SpanID == parent.Context.SpanID {
				return []linkz.Span{s}
			}
		}
	}
	var out []linkz.Span
	for _, s := range a.spans {
		if s.Context.TraceID == parent.Context.TraceID && s.Context.ParentID == parent.Context.SpanID &&
			!a.hasClientTwin(s) {
			out = append(out, s)
		}
	}
	return out
}

// Traces returns the number of distinct trace ids.
func (a *TraceAnalyzer) Traces() int {
	ids := make(map[linkz.TraceID]struct{})
	for _, s := range a.spans {
		ids[s.Context.TraceID] = struct{}{}
	}
	return len(ids)
}

// Roots returns spans without a parent that are not the server side of a
// shared client span.
func (a *TraceAnalyzer) Roots() []linkz.Span {
	var out []linkz.Span
	for _, s := range a.spans {
		if s.Context.IsRoot() && !a.hasClientTwin(s) {
			out = append(out, s)
		}
	}
	return out
}

func (a *TraceAnalyzer) hasClientTwin(s linkz.Span) bool {
	if s.Kind != linkz.KindServer {
		return false
	}
	for _, o := range a.spans {
		if o.Kind == linkz.KindClient && o.Context.TraceID == s.Context.TraceID && o.Context.SpanID == s.Context.SpanID {
			return true
		}
	}
	return false
}

// Print formats the span tree for debugging output.
func (a *TraceAnalyzer) Print() string {
	var sb strings.Builder
	for _, root := range a.Roots() {
		a.printNode(&sb, root, 0)
	}
	return sb.String()
}

func (a *TraceAnalyzer) printNode(sb *strings.Builder, s linkz.Span, depth int) {
	service := ""
	if s.LocalEndpoint != nil {
		service = s.LocalEndpoint.ServiceName
	}
	fmt.Fprintf(sb, "%s%s %s [%s] %s\n",
		strings.Repeat("  ", depth), s.Kind, s.Name, service, s.Context.SpanID)
	for _, child := range a.Children(s) {
		a.printNode(sb, child, depth+1)
	}
}
