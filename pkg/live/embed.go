package live

import (
	_ "embed"
	"net/http"
	"strconv"
)

// ScriptPath is where the dashboard serves the browser client
const ScriptPath = "/assets/live.js"

//go:embed assets/live.js
var clientScript []byte

// ClientScript returns the browser client source
func ClientScript() []byte { return clientScript }

// ScriptHandler serves the browser client
func ScriptHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Header().Set("Content-Length", strconv.Itoa(len(clientScript)))
		if r.Method == http.MethodHead {
			return
		}
		w.Write(clientScript)
	})
}
