// Package restylinkz builds resty clients that record linkz client spans.
package restylinkz

import (
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/zoobzio/linkz"
)

// New returns a resty client whose round trips are traced. Requests must carry
// the caller's context (Request.SetContext) to join its trace; redirect hops
// and resty retries each become a sibling CLIENT span.
func New(tracer *linkz.Tracer) *resty.Client {
	return Wrap(resty.New(), tracer)
}

// Wrap installs the tracing transport on an existing client, keeping its
// current transport as the base.
func Wrap(client *resty.Client, tracer *linkz.Tracer) *resty.Client {
	var base http.RoundTripper
	if hc := client.GetClient(); hc != nil {
		base = hc.Transport
	}
	return client.SetTransport(linkz.NewTransport(tracer, base))
}
