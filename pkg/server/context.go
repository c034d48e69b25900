package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
)

// Ctx carries one request through middleware and handlers. It is not safe
// for use by more than one goroutine.
type Ctx struct {
	w      http.ResponseWriter
	req    *http.Request
	params map[string]string
	status int
	wrote  bool
	logger *slog.Logger
}

func newCtx(w http.ResponseWriter, r *http.Request, params map[string]string) *Ctx {
	return &Ctx{
		w:      w,
		req:    r,
		params: params,
		status: http.StatusOK,
		logger: slog.Default().With("method", r.Method, "path", r.URL.Path),
	}
}

// Request returns the underlying request
func (c *Ctx) Request() *http.Request { return c.req }

// Context is cancelled when the client goes away
func (c *Ctx) Context() context.Context { return c.req.Context() }

// Path returns the request path without query
func (c *Ctx) Path() string { return c.req.URL.Path }

// Query returns the parsed query string
func (c *Ctx) Query() url.Values { return c.req.URL.Query() }

// Param returns a route parameter, "" when the route has none by that name
func (c *Ctx) Param(name string) string { return c.params[name] }

// Logger returns a logger tagged with the request
func (c *Ctx) Logger() *slog.Logger { return c.logger }

// Status sets the status used when the page is written
func (c *Ctx) Status(code int) {
	if c.wrote {
		c.logger.Warn("status set after response started", "code", code)
		return
	}
	c.status = code
}

// StatusCode returns the response status
func (c *Ctx) StatusCode() int { return c.status }

// SetHeader sets a response header
func (c *Ctx) SetHeader(key, val string) { c.w.Header().Set(key, val) }

// Written reports whether the response has started
func (c *Ctx) Written() bool { return c.wrote }

// start claims the response; false when it was written already
func (c *Ctx) start(code int) bool {
	if c.wrote {
		c.logger.Warn("response already written", "code", code)
		return false
	}
	c.status, c.wrote = code, true
	return true
}

// Redirect answers with a 3xx to target
func (c *Ctx) Redirect(target string, code int) {
	if c.start(code) {
		http.Redirect(c.w, c.req, target, code)
	}
}

// JSON writes v as a JSON body
func (c *Ctx) JSON(code int, v any) error {
	if !c.start(code) {
		return nil
	}
	c.w.Header().Set("Content-Type", "application/json")
	c.w.WriteHeader(code)
	return json.NewEncoder(c.w).Encode(v)
}

// Text writes a plain text body
func (c *Ctx) Text(code int, msg string) error {
	return c.write(code, "text/plain; charset=utf-8", msg)
}

// HTML writes an html document
func (c *Ctx) HTML(code int, doc string) error {
	return c.write(code, "text/html; charset=utf-8", doc)
}

func (c *Ctx) write(code int, contentType, body string) error {
	if !c.start(code) {
		return nil
	}
	c.w.Header().Set("Content-Type", contentType)
	c.w.WriteHeader(code)
	_, err := c.w.Write([]byte(body))
	return err
}
