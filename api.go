// Package linkz propagates B3 trace context through asynchronous request
// processing and records correctly linked server, client and local spans.
//
// linkz keeps the "current" trace context on the logical execution of a
// request rather than on a goroutine, so a request whose continuations resume
// on arbitrary workers always observes its own context.
//
// Core Components:
//   - Tracer: creates, samples and reports spans.
//   - ServerExchange: server-receive/server-send lifecycle of one inbound request.
//   - ClientExchange: client-send/client-receive lifecycle of one outbound call.
//   - Client: outbound HTTP with one sibling span per redirect hop.
//   - Scope, Continuation, Executor: the current-context registry.
//   - Carrier: explicit context hand-off into forked branches.
//
// Basic Usage:
//
//	tracer := linkz.New(linkz.WithSampler(linkz.AlwaysSample))
//	defer tracer.Close()
//	tracer.AddReporter(collector)
//
//	handler := linkz.Middleware(tracer)(mux)
//
//	// Inside a handler, outbound calls join the request's trace.
//	client := linkz.NewClient(tracer, nil)
//	resp, err := client.Get(r.Context(), "http://inventory/items/42")
//
// Forked Branches:
//
// Goroutines started with Fork, WithCarrier or Parallel get a fresh execution.
// They see no trace context unless a Carrier captured in the parent is passed
// explicitly.
//
// Leaks:
//
// A server exchange that is never sent, or a client exchange that is never
// received or failed, is never finished and never reported. linkz does not
// collect abandoned spans.
package linkz

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string

// Standard tag keys.
const (
	TagHTTPMethod = "http.method"
	TagHTTPPath   = "http.path"
	TagHTTPURL    = "http.url"
	TagHTTPRoute  = "http.route"
	TagHTTPStatus = "http.status_code"
	TagError      = "error"
	TagTimeout    = "timeout"
	TagRedirect   = "http.redirect"
)

// Kind classifies a span.
type Kind uint8

// Span kinds.
const (
	KindLocal Kind = iota
	KindServer
	KindClient
)

func (k Kind) String() string {
	switch k {
	case KindServer:
		return "SERVER"
	case KindClient:
		return "CLIENT"
	default:
		return "LOCAL"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Endpoint describes one side of a span.
type Endpoint struct {
	ServiceName string `json:"service_name,omitempty"`
	Address     string `json:"address,omitempty"`
}
