package styling

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

// ComponentStyle is a stylesheet whose class selectors are scoped to a hash of
// its source, so two widgets can both use ".axis" without clashing.
type ComponentStyle struct {
	// Hash is "_" plus the first 6 hex chars of the source digest
	Hash string

	// names maps original class names to scoped names
	// e.g., "axis" -> "_1a2b3c_axis"
	names map[string]string

	// Source is the stylesheet as written
	Source string

	// CSS is Source with every class selector rewritten to its scoped name
	CSS string
}

// classToken matches a class selector. A leading digit is excluded so
// decimal lengths like "0.5rem" are left alone.
var classToken = regexp.MustCompile(`\.(-?[_a-zA-Z][_a-zA-Z0-9-]*)`)

// Style scopes css and returns the mapping
func Style(css string) *ComponentStyle {
	sum := sha256.Sum256([]byte(css))
	hash := "_" + hex.EncodeToString(sum[:])[:6]

	stripped := removeComments(css)
	names := make(map[string]string)
	for _, name := range extractClassNames(stripped) {
		names[name] = hash + "_" + name
	}

	scoped := classToken.ReplaceAllStringFunc(stripped, func(tok string) string {
		if v, ok := names[tok[1:]]; ok {
			return "." + v
		}
		return tok
	})

	return &ComponentStyle{
		Hash:   hash,
		names:  names,
		Source: css,
		CSS:    scoped,
	}
}

// extractClassNames returns the distinct class names used in selectors,
// sorted. Declaration blocks are skipped so values are never mistaken for
// selectors.
func extractClassNames(css string) []string {
	seen := make(map[string]bool)
	depth := 0
	var selector strings.Builder
	flush := func() {
		for _, m := range classToken.FindAllStringSubmatch(selector.String(), -1) {
			seen[m[1]] = true
		}
		selector.Reset()
	}

	for i := 0; i < len(css); i++ {
		c := css[i]
		switch {
		case c == '{':
			// An @media prelude contains no classes; nested rules follow.
			if !strings.HasPrefix(strings.TrimSpace(selector.String()), "@") {
				flush()
			}
			selector.Reset()
			depth++
		case c == '}':
			if depth > 0 {
				depth--
			}
			selector.Reset()
		case c == ';':
			selector.Reset()
		default:
			selector.WriteByte(c)
		}
	}

	classes := make([]string, 0, len(seen))
	for name := range seen {
		classes = append(classes, name)
	}
	sort.Strings(classes)
	return classes
}

// removeComments removes CSS comments from the string
func removeComments(css string) string {
	var result strings.Builder
	for {
		start := strings.Index(css, "/*")
		if start < 0 {
			result.WriteString(css)
			return result.String()
		}
		result.WriteString(css[:start])
		end := strings.Index(css[start+2:], "*/")
		if end < 0 {
			return result.String()
		}
		css = css[start+2+end+2:]
	}
}

// Class returns the scoped class name for name, or name itself when the
// stylesheet does not define it
func (c *ComponentStyle) Class(name string) string {
	if c == nil {
		return name
	}
	if v, ok := c.names[name]; ok {
		return v
	}
	return name
}

// Classes returns the scoped names of every non-empty argument, space separated
func (c *ComponentStyle) Classes(names ...string) string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name != "" {
			out = append(out, c.Class(name))
		}
	}
	return strings.Join(out, " ")
}

// Has returns whether a class name exists in this stylesheet
func (c *ComponentStyle) Has(name string) bool {
	if c == nil || c.names == nil {
		return false
	}
	_, ok := c.names[name]
	return ok
}

// GetHash returns the hash for this stylesheet
func (c *ComponentStyle) GetHash() string {
	if c == nil {
		return ""
	}
	return c.Hash
}
