package linkz

import (
	"fmt"
	"net/http"
)

// RouteResolver returns the matched route template for r, or "".
type RouteResolver func(r *http.Request) string

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	resolve RouteResolver
}

// WithRouteResolver resolves the route at send time, after the handler ran.
func WithRouteResolver(resolve RouteResolver) MiddlewareOption {
	return func(c *middlewareConfig) { c.resolve = resolve }
}

// Middleware traces every request passing through a net/http handler chain.
// The span is sent on every exit path, including a panicking handler, whose
// panic is re-raised after the span is finished.
func Middleware(tracer *Tracer, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, ex := tracer.ServerReceive(r.Context(), HTTPServerRequest(r))
			defer ex.Release()

			r = r.WithContext(ctx)
			rw := newStatusRecorder(w)

			defer func() {
				if rec := recover(); rec != nil {
					_ = ex.Send(ServerResponse{
						StatusCode: http.StatusInternalServerError,
						Route:      cfg.route(r),
						Err:        fmt.Errorf("panic: %v", rec),
					})
					panic(rec)
				}
			}()

			next.ServeHTTP(rw, r)
			_ = ex.Send(ServerResponse{StatusCode: rw.status, Route: cfg.route(r)})
		})
	}
}

func (c middlewareConfig) route(r *http.Request) string {
	if c.resolve == nil {
		return ""
	}
	return c.resolve(r)
}

// statusRecorder wraps http.ResponseWriter to capture status code.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader captures the status code and calls the underlying ResponseWriter.
func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer when it supports flushing.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		rw.wroteHeader = true
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
