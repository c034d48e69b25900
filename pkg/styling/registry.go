package styling

import (
	"sort"
	"strings"
	"sync"
)

// StyleRegistry collects scoped stylesheets for the page <style> block
type StyleRegistry struct {
	mu     sync.RWMutex
	styles map[string]*ComponentStyle
}

var globalRegistry = NewRegistry()

// NewRegistry returns an empty registry
func NewRegistry() *StyleRegistry {
	return &StyleRegistry{styles: make(map[string]*ComponentStyle)}
}

// Register adds a stylesheet. Identical sources share a hash and are stored once.
func (r *StyleRegistry) Register(style *ComponentStyle) {
	if style == nil || style.CSS == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.styles[style.Hash] = style
}

// CSS returns every registered stylesheet ordered by hash, so server
// renders are byte-stable across runs.
func (r *StyleRegistry) CSS() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.styles))
	for k := range r.styles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strings.TrimSpace(r.styles[k].CSS))
		b.WriteString("\n")
	}
	return b.String()
}

// Len returns the number of registered stylesheets
func (r *StyleRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.styles)
}

// Register adds a stylesheet to the global registry
func Register(style *ComponentStyle) {
	globalRegistry.Register(style)
}

// GetAllCSS returns all globally registered CSS
func GetAllCSS() string {
	return globalRegistry.CSS()
}

// Reset clears the global registry (useful for testing)
func Reset() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.styles = make(map[string]*ComponentStyle)
}

// StyleWithRegistry scopes css and registers it globally
func StyleWithRegistry(css string) *ComponentStyle {
	style := Style(css)
	Register(style)
	return style
}
