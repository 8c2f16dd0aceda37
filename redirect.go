package linkz

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// DefaultMaxRedirects matches net/http.
const DefaultMaxRedirects = 10

// Client sends HTTP requests with one CLIENT span per hop. Every redirect hop
// is a sibling parented to the context current when Do was called, because
// all hops are the same logical call. With nothing current the hops share one
// new trace id and have no parent.
type Client struct {
	tracer *Tracer
	hc     *http.Client

	// MaxRedirects bounds the hops followed. Negative disables following:
	// redirect responses are returned as-is.
	MaxRedirects int
}

// NewClient wraps hc (http.DefaultClient when nil). hc itself is not
// modified; redirects are followed by the Client, one hop at a time.
func NewClient(tracer *Tracer, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	inner := *hc
	inner.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Client{tracer: tracer, hc: &inner, MaxRedirects: DefaultMaxRedirects}
}

// Get issues a GET within ctx's trace.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do sends req, following redirects up to MaxRedirects. When the limit is
// exceeded the last response is returned with its body closed, together with
// a *RedirectLimitError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	parent, hasParent := Current(req.Context())

	// Without a parent the first hop starts the trace and later hops join it
	// as further roots.
	var first TraceContext

	hop := req
	for redirects := 0; ; redirects++ {
		out := hop.Clone(hop.Context())
		var ex *ClientExchange
		if hasParent || redirects == 0 {
			ex = c.tracer.clientSend(parent, hasParent, HTTPClientRequest(out))
			first = ex.Context()
		} else {
			ex = c.tracer.clientSendSibling(first, HTTPClientRequest(out))
		}

		resp, err := c.hc.Do(out)
		if err != nil {
			_ = ex.Fail(err)
			return nil, err
		}

		location := resp.Header.Get("Location")
		if c.MaxRedirects < 0 || !isRedirect(resp.StatusCode) || location == "" {
			_ = ex.Receive(resp.StatusCode)
			return resp, nil
		}

		if redirects >= c.MaxRedirects {
			limitErr := &RedirectLimitError{URL: out.URL.String(), Limit: c.MaxRedirects}
			ex.Span().SetTag(TagHTTPStatus, strconv.Itoa(resp.StatusCode))
			_ = ex.Fail(limitErr)
			resp.Body.Close()
			return resp, limitErr
		}

		next, err := nextHop(out, resp, location)
		if err != nil {
			// Not followable: hand the redirect response back as final.
			_ = ex.Receive(resp.StatusCode)
			return resp, nil
		}
		ex.Span().SetTag(TagRedirect, next.URL.String())
		_ = ex.Receive(resp.StatusCode)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2<<10))
		resp.Body.Close()
		hop = next
	}
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

var errBodyNotReplayable = errors.New("linkz: redirect requires replaying a body without GetBody")

// nextHop builds the follow-up request the way net/http does: 301/302/303
// become GET without a body, 307/308 replay method and body.
func nextHop(prev *http.Request, resp *http.Response, location string) (*http.Request, error) {
	target, err := prev.URL.Parse(location)
	if err != nil {
		return nil, err
	}

	method := prev.Method
	var body io.ReadCloser
	var getBody func() (io.ReadCloser, error)

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
		if method != http.MethodHead {
			method = http.MethodGet
		}
	default:
		if prev.GetBody != nil {
			body, err = prev.GetBody()
			if err != nil {
				return nil, err
			}
			getBody = prev.GetBody
		} else if prev.Body != nil && prev.Body != http.NoBody {
			return nil, errBodyNotReplayable
		}
	}

	next, err := http.NewRequestWithContext(prev.Context(), method, target.String(), body)
	if err != nil {
		return nil, err
	}
	next.GetBody = getBody
	if getBody != nil {
		next.ContentLength = prev.ContentLength
	}
	for k, vv := range prev.Header {
		if strings.HasPrefix(strings.ToLower(k), "x-b3-") {
			continue
		}
		if target.Host != prev.URL.Host && (k == "Authorization" || k == "Cookie") {
			continue
		}
		next.Header[k] = append([]string(nil), vv...)
	}
	return next, nil
}
