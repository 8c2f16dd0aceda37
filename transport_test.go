package linkz

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTransportRedirectsBecomeSiblings(t *testing.T) {
	tracer, collector, _ := newTestTracer(t)
	srv := newRedirectServer(t, &hopRecorder{})

	// net/http follows the redirects; every round trip reads the same context.
	client := &http.Client{Transport: NewTransport(tracer, nil)}

	ctx, parent := tracer.StartSpan(context.Background(), "fetch")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/start", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	_ = parent.Finish()

	if len(req.Header) != 0 {
		t.Errorf("Expected the caller's request to stay untouched, got %v", req.Header)
	}

	hops := spansByKind(collector.Export(), KindClient)
	if len(hops) != 3 {
		t.Fatalf("Expected 3 client spans, got %d", len(hops))
	}
	for _, s := range hops {
		if s.Context.ParentID != parent.SpanID() {
			t.Errorf("Expected sibling of %v, got parent %v", parent.SpanID(), s.Context.ParentID)
		}
	}
}

func TestTransportFailure(t *testing.T) {
	tracer, collector, _ := newTestTracer(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := &http.Client{Transport: NewTransport(tracer, nil)}
	if _, err := client.Get(url); err == nil {
		t.Fatal("Expected a connection error")
	}

	spans := collector.Export()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if spans[0].Tags[TagError] == "" {
		t.Error("Expected an error tag on a failed round trip")
	}
}
