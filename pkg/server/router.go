// Package server routes dashboard requests to page and JSON handlers and
// renders page trees into html documents.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/recera/pactrend/pkg/renderer/html"
	"github.com/recera/pactrend/pkg/vango/vdom"
)

// HandlerFunc renders a page. A nil tree with a nil error means the handler
// wrote the response itself.
type HandlerFunc func(ctx *Ctx) (*vdom.VNode, error)

// APIHandlerFunc returns a value to encode as JSON
type APIHandlerFunc func(ctx *Ctx) (any, error)

// Middleware wraps a handler. It may answer without calling next.
type Middleware func(next HandlerFunc) HandlerFunc

// Layout turns a page body into a whole document
type Layout func(page *vdom.VNode) *vdom.VNode

// StatusError makes a handler error render with a specific status
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

// Error wraps err with an HTTP status
func Error(code int, err error) error {
	return &StatusError{Code: code, Err: err}
}

// Errorf is Error with a formatted message
func Errorf(code int, format string, args ...any) error {
	return &StatusError{Code: code, Err: fmt.Errorf(format, args...)}
}

// Parameter kinds accepted in route patterns as [name:kind].
const (
	paramAny = ""
	paramInt = "int"
	paramID  = "id"
)

type segment struct {
	text  string // literal text, or the parameter name
	param bool
	kind  string
}

type route struct {
	pattern string
	segs    []segment
	literal int // number of literal segments, higher wins
	handler HandlerFunc
}

type prefixed[T any] struct {
	prefix string
	value  T
}

// Router dispatches by path. Plain handlers mounted with Handle are tried
// first, then page and API routes.
type Router struct {
	mu         sync.RWMutex
	routes     []*route
	mounts     []prefixed[http.Handler]
	layouts    []prefixed[Layout]
	middleware []Middleware
	notFound   HandlerFunc
	errorPage  func(ctx *Ctx, err error) *vdom.VNode
}

// NewRouter returns an empty router
func NewRouter() *Router {
	return &Router{}
}

// AddRoute registers a page. Patterns are slash separated; a segment written
// [name] or [name:kind] binds a parameter, where kind is int or id.
func (r *Router) AddRoute(pattern string, handler HandlerFunc, middleware ...Middleware) {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}

	rt := &route{pattern: pattern, handler: handler}
	for _, s := range splitPath(pattern) {
		seg := parseSegment(s)
		if !seg.param {
			rt.literal++
		}
		rt.segs = append(rt.segs, seg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, rt)
	sort.SliceStable(r.routes, func(i, j int) bool { return r.routes[i].literal > r.routes[j].literal })
}

// AddAPIRoute registers a JSON endpoint. A StatusError becomes
// {"error": msg} with its status.
func (r *Router) AddAPIRoute(pattern string, handler APIHandlerFunc, middleware ...Middleware) {
	r.AddRoute(pattern, func(ctx *Ctx) (*vdom.VNode, error) {
		v, err := handler(ctx)
		var se *StatusError
		switch {
		case errors.As(err, &se):
			return nil, ctx.JSON(se.Code, map[string]string{"error": se.Err.Error()})
		case err != nil:
			return nil, err
		}
		return nil, ctx.JSON(http.StatusOK, v)
	}, middleware...)
}

// Handle mounts a plain handler at an exact path, or at every path below a
// pattern ending in "/"
func (r *Router) Handle(pattern string, handler http.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounts = insertPrefixed(r.mounts, pattern, handler)
}

// SetLayout wraps pages under prefix. The longest matching prefix wins and
// pages that already render an html element are left alone.
func (r *Router) SetLayout(prefix string, layout Layout) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layouts = insertPrefixed(r.layouts, prefix, layout)
}

// Use adds middleware around every route, outside route middleware
func (r *Router) Use(middleware ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, middleware...)
}

// SetNotFound sets the page rendered, with status 404, for unknown paths
func (r *Router) SetNotFound(handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFound = handler
}

// SetErrorPage sets the page rendered for handler errors. ctx.StatusCode
// holds the response status when page runs.
func (r *Router) SetErrorPage(page func(ctx *Ctx, err error) *vdom.VNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorPage = page
}

// match finds the route for path. The handler is nil when nothing matched.
func (r *Router) match(path string) (HandlerFunc, map[string]string) {
	parts := splitPath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.routes {
		if params, ok := rt.match(parts); ok {
			return rt.handler, params
		}
	}
	return nil, nil
}

func (rt *route) match(parts []string) (map[string]string, bool) {
	if len(parts) != len(rt.segs) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range rt.segs {
		switch {
		case !seg.param:
			if parts[i] != seg.text {
				return nil, false
			}
		case validParam(parts[i], seg.kind):
			params[seg.text] = parts[i]
		default:
			return nil, false
		}
	}
	return params, true
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	mount := findPrefixed(r.mounts, req.URL.Path)
	r.mu.RUnlock()
	if mount != nil {
		mount.ServeHTTP(w, req)
		return
	}

	handler, params := r.match(req.URL.Path)
	ctx := newCtx(w, req, params)

	r.mu.RLock()
	if handler == nil && r.notFound != nil {
		notFound := r.notFound
		handler = func(ctx *Ctx) (*vdom.VNode, error) {
			ctx.Status(http.StatusNotFound)
			return notFound(ctx)
		}
	}
	middleware := r.middleware
	r.mu.RUnlock()

	if handler == nil {
		ctx.Text(http.StatusNotFound, "Not Found")
		return
	}
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}

	defer func() {
		if v := recover(); v != nil {
			ctx.Logger().Error("panic in handler", "panic", v)
			r.handleError(ctx, fmt.Errorf("internal server error: %v", v))
		}
	}()

	page, err := handler(ctx)
	switch {
	case err != nil:
		r.handleError(ctx, err)
	case page != nil:
		r.writePage(ctx, ctx.StatusCode(), page)
	}
}

func (r *Router) writePage(ctx *Ctx, status int, page *vdom.VNode) {
	if page.Tag != "html" {
		r.mu.RLock()
		layout := findPrefixed(r.layouts, ctx.Path())
		r.mu.RUnlock()
		if layout != nil {
			page = layout(page)
		}
	}

	doc, err := html.RenderToString(page)
	if err != nil {
		ctx.Logger().Error("page render failed", "err", err)
		ctx.Text(http.StatusInternalServerError, "Internal Server Error")
		return
	}
	ctx.HTML(status, "<!DOCTYPE html>\n"+doc)
}

// handleError renders the error page with the error's status, 500 unless it
// carries one
func (r *Router) handleError(ctx *Ctx, err error) {
	status := http.StatusInternalServerError
	var se *StatusError
	if errors.As(err, &se) {
		status = se.Code
	}
	if status >= 500 {
		ctx.Logger().Error("handler failed", "status", status, "err", err)
	} else {
		ctx.Logger().Debug("handler failed", "status", status, "err", err)
	}
	if ctx.Written() {
		return
	}
	ctx.Status(status)

	r.mu.RLock()
	page := r.errorPage
	r.mu.RUnlock()
	if page != nil {
		if tree := page(ctx, err); tree != nil {
			r.writePage(ctx, status, tree)
			return
		}
	}
	ctx.Text(status, http.StatusText(status))
}

// insertPrefixed keeps entries sorted longest prefix first
func insertPrefixed[T any](list []prefixed[T], prefix string, v T) []prefixed[T] {
	list = append(list, prefixed[T]{prefix: prefix, value: v})
	sort.SliceStable(list, func(i, j int) bool { return len(list[i].prefix) > len(list[j].prefix) })
	return list
}

func findPrefixed[T any](list []prefixed[T], path string) T {
	for _, e := range list {
		if path == e.prefix || (strings.HasSuffix(e.prefix, "/") && strings.HasPrefix(path, e.prefix)) {
			return e.value
		}
	}
	var zero T
	return zero
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func parseSegment(s string) segment {
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return segment{text: s}
	}
	name, kind, _ := strings.Cut(s[1:len(s)-1], ":")
	switch kind {
	case paramAny, paramInt, paramID:
	default:
		panic("server: unknown parameter kind " + kind + " in " + s)
	}
	return segment{text: name, param: true, kind: kind}
}

// ValidID reports whether s is accepted by an [name:id] route parameter
func ValidID(s string) bool { return validParam(s, paramID) }

func validParam(value, kind string) bool {
	if value == "" {
		return false
	}
	switch kind {
	case paramInt:
		for _, r := range value {
			if r < '0' || r > '9' {
				return false
			}
		}
	case paramID:
		// Machine ids: letters, digits, dash, underscore and dot, not "." or "..".
		if value == "." || value == ".." || len(value) > 64 {
			return false
		}
		for _, r := range value {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			case r == '-' || r == '_' || r == '.':
			default:
				return false
			}
		}
	}
	return true
}
