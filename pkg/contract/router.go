package contract

import (
	"strings"
)

// Router composes routes into a tree of prefixed groups
type Router struct {
	entries []entry
}

type entry struct {
	route  *Route
	prefix string
	sub    *Router
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{}
}

// Handle adds routes at this level
func (r *Router) Handle(routes ...Route) *Router {
	for i := range routes {
		route := routes[i]
		r.entries = append(r.entries, entry{route: &route})
	}
	return r
}

// Group adds a sub-router under prefix and lets fn populate it
func (r *Router) Group(prefix string, fn func(*Router)) *Router {
	sub := NewRouter()
	fn(sub)
	return r.Mount(prefix, sub)
}

// Mount adds an existing router under prefix
func (r *Router) Mount(prefix string, sub *Router) *Router {
	r.entries = append(r.entries, entry{prefix: prefix, sub: sub})
	return r
}

// Routes flattens the tree in declaration order. Each route is a shallow
// copy with its path prefixed; operations, and the metadata attached to
// them, are shared.
func (r *Router) Routes() []Route {
	return r.flatten("")
}

func (r *Router) flatten(prefix string) []Route {
	var out []Route
	for _, e := range r.entries {
		if e.sub != nil {
			out = append(out, e.sub.flatten(joinPath(prefix, e.prefix))...)
			continue
		}
		route := *e.route
		route.Path = joinPath(prefix, route.Path)
		out = append(out, route)
	}
	return out
}

func joinPath(prefix, path string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if path == "" || path == "/" {
		if prefix == "" {
			return "/"
		}
		return prefix
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return prefix + path
}
