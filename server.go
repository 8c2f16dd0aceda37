package linkz

import (
	"context"
	"net/http"
	"strconv"
	"sync"
)

// ServerRequest is the inbound request as seen by the lifecycle manager.
type ServerRequest interface {
	Method() string
	Path() string
	URL() string
	Header(name string) string
	RemoteAddr() string
}

// ServerResponse is what the boundary invoker knows once the response is
// finalized. Route is empty when routing never matched.
type ServerResponse struct {
	Err        error
	Route      string
	StatusCode int
}

// SpanNamer names a server span. It runs at receive time with an empty route
// and again at send time, when the route may be known.
type SpanNamer func(req ServerRequest, route string) string

// DefaultSpanNamer uses the method, qualified by the route once resolved.
func DefaultSpanNamer(req ServerRequest, route string) string {
	if route == "" {
		return req.Method()
	}
	return req.Method() + " " + route
}

// ServerTagger adds custom tags to a server span just before it finishes.
type ServerTagger func(req ServerRequest, resp ServerResponse, span *ActiveSpan)

// ServerState is the lifecycle position of a ServerExchange.
type ServerState uint8

// Server lifecycle states.
const (
	ServerIdle ServerState = iota
	ServerReceived
	ServerActive
	ServerSent
	ServerFinished
)

func (s ServerState) String() string {
	switch s {
	case ServerReceived:
		return "received"
	case ServerActive:
		return "active"
	case ServerSent:
		return "sent"
	case ServerFinished:
		return "finished"
	default:
		return "idle"
	}
}

// ServerExchange tracks the server span of one inbound request.
type ServerExchange struct {
	tracer *Tracer
	req    ServerRequest
	span   *ActiveSpan
	scope  *Scope
	mu     sync.Mutex
	state  ServerState
}

// ServerReceive extracts propagation headers, creates the SERVER span and
// makes it current in a fresh execution for this request. Callers must
// Release the exchange on every exit path and Send it once the response is
// finalized.
func (t *Tracer) ServerReceive(ctx context.Context, req ServerRequest) (context.Context, *ServerExchange) {
	if ctx == nil {
		ctx = context.Background()
	}
	ex := &ServerExchange{tracer: t, req: req}

	ext := t.propagation.Extract(req.Header)
	if ext.Err != nil {
		t.defect(ext.Err)
	}

	desc := RequestDescriptor{Kind: KindServer, Method: req.Method(), Path: req.Path()}
	var tc TraceContext
	if ext.Kind == ExtractedContext {
		tc = t.decideJoined(ext.Context, desc)
	} else {
		tc = t.newRoot(desc, ext.Flags)
	}

	span := t.newSpan(KindServer, tc, t.namer(req, ""))
	span.SetTag(TagHTTPMethod, req.Method())
	span.SetTag(TagHTTPPath, req.Path())
	if addr := req.RemoteAddr(); addr != "" {
		span.SetRemoteEndpoint(Endpoint{Address: addr})
	}
	ex.span = span
	ex.state = ServerReceived

	ctx, ex.scope = activateSpan(NewExecution(ctx), span)
	ex.state = ServerActive
	return ctx, ex
}

// Span returns the server span.
func (e *ServerExchange) Span() *ActiveSpan {
	return e.span
}

// State returns the current lifecycle state.
func (e *ServerExchange) State() ServerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Release restores the context that was current before ServerReceive. It is
// idempotent and does not finish the span.
func (e *ServerExchange) Release() {
	e.scope.Close()
}

// Send names and tags the span from the finalized response, finishes it and
// releases the activation. A second call returns a *DoubleFinishError.
func (e *ServerExchange) Send(resp ServerResponse) error {
	e.mu.Lock()
	if e.state >= ServerSent {
		e.mu.Unlock()
		err := &DoubleFinishError{Name: e.span.Name(), Context: e.span.Context()}
		e.tracer.defect(err)
		return err
	}
	e.state = ServerSent
	e.mu.Unlock()

	span := e.span
	span.SetName(e.tracer.namer(e.req, resp.Route))
	if resp.Route != "" {
		span.SetTag(TagHTTPRoute, resp.Route)
	}
	code := resp.StatusCode
	if code != 0 && (code < 200 || code > 299) {
		span.SetTag(TagHTTPStatus, strconv.Itoa(code))
	}
	switch {
	case resp.Err != nil:
		span.SetTag(TagError, resp.Err.Error())
	case code >= 500:
		span.SetTag(TagError, strconv.Itoa(code))
	}
	if e.tracer.tagger != nil {
		e.tracer.tagger(e.req, resp, span)
	}

	err := span.Finish()
	e.scope.Close()

	e.mu.Lock()
	e.state = ServerFinished
	e.mu.Unlock()
	return err
}

// HTTPServerRequest adapts *http.Request.
func HTTPServerRequest(r *http.Request) ServerRequest {
	return httpServerRequest{r: r}
}

type httpServerRequest struct {
	r *http.Request
}

func (h httpServerRequest) Method() string { return h.r.Method }

func (h httpServerRequest) Path() string { return h.r.URL.Path }

func (h httpServerRequest) URL() string { return h.r.URL.String() }

func (h httpServerRequest) Header(name string) string { return h.r.Header.Get(name) }

func (h httpServerRequest) RemoteAddr() string { return h.r.RemoteAddr }
