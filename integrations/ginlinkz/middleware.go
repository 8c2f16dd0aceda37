// Package ginlinkz traces gin requests with linkz server spans.
package ginlinkz

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zoobzio/linkz"
)

// Middleware creates gin middleware that opens a server span per request and
// finishes it once the handler chain returned. The route template comes from
// c.FullPath, so unmatched requests keep the method-only name.
func Middleware(tracer *linkz.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ex := tracer.ServerReceive(c.Request.Context(), linkz.HTTPServerRequest(c.Request))
		defer ex.Release()

		c.Request = c.Request.WithContext(ctx)

		defer func() {
			if rec := recover(); rec != nil {
				_ = ex.Send(linkz.ServerResponse{
					StatusCode: http.StatusInternalServerError,
					Route:      c.FullPath(),
					Err:        fmt.Errorf("panic: %v", rec),
				})
				panic(rec)
			}
		}()

		c.Next()

		resp := linkz.ServerResponse{
			StatusCode: c.Writer.Status(),
			Route:      c.FullPath(),
		}
		if last := c.Errors.Last(); last != nil {
			resp.Err = last.Err
		}
		_ = ex.Send(resp)
	}
}

// Span returns the server span of the request, or nil outside Middleware.
func Span(c *gin.Context) *linkz.ActiveSpan {
	return linkz.CurrentSpan(c.Request.Context())
}
