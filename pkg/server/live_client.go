package server

import (
	"crypto/rand"
	"encoding/hex"
	"net/url"

	"github.com/recera/pactrend/pkg/vango/vdom"
)

// NewSessionID returns a random id for one live mount
func NewSessionID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("pactrend: no randomness for session id: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// LiveURL builds the websocket path of a live mount
func LiveURL(prefix, sessionID string, query url.Values) string {
	u := prefix + url.PathEscape(sessionID)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// LiveMount wraps child in the container the browser client attaches to.
// child must be the element the session renders, so the first patch of the
// session replaces it in place.
func LiveMount(liveURL string, child *vdom.VNode) *vdom.VNode {
	return vdom.NewElement("div", vdom.Props{"data-live": liveURL}, child)
}

// InjectLiveClient adds the live client script to the end of the body. It is
// a no-op for anything but an html document or when the script is present.
func InjectLiveClient(doc *vdom.VNode, scriptSrc string) *vdom.VNode {
	if doc == nil || doc.Kind != vdom.KindElement || doc.Tag != "html" {
		return doc
	}

	script := vdom.VNode{
		Kind: vdom.KindElement,
		Tag:  "script",
		Props: vdom.Props{
			"src":   scriptSrc,
			"defer": true,
		},
	}

	for i := range doc.Kids {
		body := &doc.Kids[i]
		if body.Tag != "body" {
			continue
		}
		for _, kid := range body.Kids {
			if kid.Tag == "script" && kid.Attr("src") == scriptSrc {
				return doc
			}
		}
		body.Kids = append(body.Kids, script)
	}

	return doc
}
