// Package retrylinkz builds go-retryablehttp clients that record one linkz
// client span per attempt.
package retrylinkz

import (
	"github.com/hashicorp/go-retryablehttp"
	"github.com/zoobzio/linkz"
)

// New returns a retrying client with tracing and logging disabled. Every
// attempt is a sibling CLIENT span under the context of the request.
func New(tracer *linkz.Tracer) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.Logger = nil
	return Wrap(client, tracer)
}

// Wrap installs the tracing transport on client's inner http client.
func Wrap(client *retryablehttp.Client, tracer *linkz.Tracer) *retryablehttp.Client {
	client.HTTPClient.Transport = linkz.NewTransport(tracer, client.HTTPClient.Transport)
	return client
}
