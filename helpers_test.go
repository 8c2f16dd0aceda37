package linkz

import (
	"net/url"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestTracer returns a tracer on a fake clock whose finished spans are
// buffered synchronously in the returned collector.
func newTestTracer(t *testing.T, opts ...Option) (*Tracer, *Collector, *clockz.FakeClock) {
	t.Helper()
	clock := clockz.NewFakeClockAt(testEpoch)
	tracer := New(append([]Option{WithClock(clock), WithServiceName("test-service")}, opts...)...)
	collector := NewCollector("test", 100)
	collector.SetSyncMode(true)
	tracer.OnSpanComplete(collector.Report)
	t.Cleanup(func() {
		tracer.Close()
		collector.Close()
	})
	return tracer, collector, clock
}

func mustTraceID(t *testing.T, s string) TraceID {
	t.Helper()
	id, err := ParseTraceID(s)
	if err != nil {
		t.Fatalf("ParseTraceID(%q): %v", s, err)
	}
	return id
}

func mustSpanID(t *testing.T, s string) SpanID {
	t.Helper()
	id, err := ParseSpanID(s)
	if err != nil {
		t.Fatalf("ParseSpanID(%q): %v", s, err)
	}
	return id
}

func spansByKind(spans []Span, kind Kind) []Span {
	var out []Span
	for _, s := range spans {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}
