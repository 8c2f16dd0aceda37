package linkz

import (
	"net/http"
)

// Transport is an http.RoundTripper that records one CLIENT span per round
// trip. Clients that follow redirects or retry on their own issue several
// round trips for one call; each becomes a sibling because they all read the
// same request context.
type Transport struct {
	Tracer *Tracer
	// Base performs the request. http.DefaultTransport when nil.
	Base http.RoundTripper
}

// NewTransport wraps base.
func NewTransport(tracer *Tracer, base http.RoundTripper) *Transport {
	return &Transport{Tracer: tracer, Base: base}
}

// RoundTrip implements http.RoundTripper. The caller's request is not
// modified; headers go onto a clone.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	out := req.Clone(req.Context())
	ex := t.Tracer.ClientSend(req.Context(), HTTPClientRequest(out))

	resp, err := base.RoundTrip(out)
	if err != nil {
		_ = ex.Fail(err)
		return nil, err
	}
	_ = ex.Receive(resp.StatusCode)
	return resp, nil
}
