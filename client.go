package linkz

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
)

// ClientRequest is an outbound request about to be sent.
type ClientRequest interface {
	Method() string
	URL() string
	Path() string
	Host() string
	SetHeader(name, value string)
}

// ClientExchange pairs a client-send with its client-receive. Request and
// response are usually handled at different call sites, so the exchange is
// passed explicitly rather than read back from the current context.
type ClientExchange struct {
	span      *ActiveSpan
	parent    TraceContext
	hasParent bool
}

// ClientSend starts a CLIENT span as a child of ctx's current context (or a
// new trace) and injects its headers into req.
func (t *Tracer) ClientSend(ctx context.Context, req ClientRequest) *ClientExchange {
	parent, ok := Current(ctx)
	return t.clientSend(parent, ok, req)
}

func (t *Tracer) clientSend(parent TraceContext, hasParent bool, req ClientRequest) *ClientExchange {
	desc := RequestDescriptor{Kind: KindClient, Method: req.Method(), Path: req.Path()}
	return t.startClient(t.nextContext(parent, hasParent, desc), parent, hasParent, req)
}

// clientSendSibling starts another root span in first's trace, keeping its
// sampling decision. Parentless redirect hops use it so one call stays one
// trace.
func (t *Tracer) clientSendSibling(first TraceContext, req ClientRequest) *ClientExchange {
	tc := first
	tc.SpanID = t.generateSpanID()
	tc.ParentID = 0
	return t.startClient(tc, TraceContext{}, false, req)
}

func (t *Tracer) startClient(tc TraceContext, parent TraceContext, hasParent bool, req ClientRequest) *ClientExchange {
	span := t.newSpan(KindClient, tc, req.Method())
	span.SetTag(TagHTTPMethod, req.Method())
	span.SetTag(TagHTTPPath, req.Path())
	span.SetTag(TagHTTPURL, req.URL())
	if host := req.Host(); host != "" {
		span.SetRemoteEndpoint(Endpoint{Address: host})
	}
	t.propagation.Inject(tc, req.SetHeader)

	return &ClientExchange{span: span, parent: parent, hasParent: hasParent}
}

// Span returns the client span.
func (e *ClientExchange) Span() *ActiveSpan {
	return e.span
}

// Context returns the trace context injected into the request.
func (e *ClientExchange) Context() TraceContext {
	return e.span.Context()
}

// Parent returns the context the span was parented to.
func (e *ClientExchange) Parent() (TraceContext, bool) {
	return e.parent, e.hasParent
}

// Receive finishes the span with a response status. Statuses outside 2xx and
// 3xx are tagged; 5xx is an error.
func (e *ClientExchange) Receive(statusCode int) error {
	if statusCode < 200 || statusCode > 399 {
		e.span.SetTag(TagHTTPStatus, strconv.Itoa(statusCode))
	}
	if statusCode >= 500 {
		e.span.SetTag(TagError, strconv.Itoa(statusCode))
	}
	return e.span.Finish()
}

// Fail finishes the span for a call that produced no response. Timeouts are
// errors too, marked with the timeout tag.
func (e *ClientExchange) Fail(err error) error {
	if err != nil {
		e.span.SetTag(TagError, err.Error())
		if isTimeout(err) {
			e.span.SetTag(TagTimeout, "true")
		}
	}
	return e.span.Finish()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// HTTPClientRequest adapts *http.Request. Headers are written to r directly.
func HTTPClientRequest(r *http.Request) ClientRequest {
	return httpClientRequest{r: r}
}

type httpClientRequest struct {
	r *http.Request
}

func (h httpClientRequest) Method() string {
	if h.r.Method == "" {
		return http.MethodGet
	}
	return h.r.Method
}

func (h httpClientRequest) URL() string { return h.r.URL.String() }

func (h httpClientRequest) Path() string { return h.r.URL.Path }

func (h httpClientRequest) Host() string { return h.r.URL.Host }

func (h httpClientRequest) SetHeader(name, value string) {
	if h.r.Header == nil {
		h.r.Header = make(http.Header)
	}
	h.r.Header.Set(name, value)
}
