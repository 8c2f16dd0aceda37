// Package muxlinkz names server spans after gorilla/mux route templates.
package muxlinkz

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/zoobzio/linkz"
)

// RouteResolver resolves the path template of the route matching r. Requests
// that matched no route, or a route without a path template, resolve to "".
func RouteResolver(router *mux.Router) linkz.RouteResolver {
	return func(r *http.Request) string {
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				return tmpl
			}
		}
		var match mux.RouteMatch
		if !router.Match(r, &match) || match.Route == nil {
			return ""
		}
		tmpl, err := match.Route.GetPathTemplate()
		if err != nil {
			return ""
		}
		return tmpl
	}
}

// Middleware wraps router so every request is traced and named after its
// route. It wraps the router from outside, so the route is resolved only
// after dispatch.
func Middleware(tracer *linkz.Tracer, router *mux.Router) http.Handler {
	mw := linkz.Middleware(tracer, linkz.WithRouteResolver(RouteResolver(router)))
	return mw(router)
}
