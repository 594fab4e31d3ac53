package routing

import (
	"context"
	"net/http"
	"runtime/debug"
)

type paramsCtxKey struct{}

// PathParams returns the segments captured by the matched route pattern.
func PathParams(ctx context.Context) map[string]string {
	params, _ := ctx.Value(paramsCtxKey{}).(map[string]string)
	return params
}

// Router dispatches to handlers registered by method and path pattern.
// Every handler runs behind panic recovery that renders the standard error
// envelope instead of crashing the worker.
type Router struct {
	routes []registeredRoute
}

type registeredRoute struct {
	method  string
	pattern PathPattern
	handler http.Handler
}

func NewRouter() *Router {
	return &Router{}
}

func (r *Router) Handle(method string, path string, h http.Handler) {
	pattern, ok := ParsePathPattern(path)
	if !ok {
		panic("routing: invalid route path " + path)
	}
	r.routes = append(r.routes, registeredRoute{
		method:  method,
		pattern: pattern,
		handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					_ = debug.Stack()
					WriteError(w, req, http.StatusInternalServerError, "internal_error", "internal error")
				}
			}()
			h.ServeHTTP(w, req)
		}),
	})
}

func (r *Router) HandleFunc(method string, path string, h http.HandlerFunc) {
	r.Handle(method, path, h)
}

// Paths returns the registered route patterns, for allowlist verification.
func (r *Router) Paths() []string {
	seen := make(map[string]bool, len(r.routes))
	var out []string
	for _, route := range r.routes {
		if !seen[route.pattern.raw] {
			seen[route.pattern.raw] = true
			out = append(out, route.pattern.raw)
		}
	}
	return out
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	pathMatched := false
	for _, route := range r.routes {
		params, ok := route.pattern.Match(req.URL.Path)
		if !ok {
			continue
		}
		pathMatched = true
		if route.method != req.Method {
			continue
		}
		if params != nil {
			req = req.WithContext(context.WithValue(req.Context(), paramsCtxKey{}, params))
		}
		route.handler.ServeHTTP(w, req)
		return
	}
	if pathMatched {
		WriteError(w, req, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	WriteError(w, req, http.StatusNotFound, "not_found", "not found")
}
