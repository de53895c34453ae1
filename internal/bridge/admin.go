package bridge

import (
	"encoding/json"
	"net/http"

	"tailscale.com/tsweb"
)

// AttachAdminRoutes registers bridge debug endpoints under /debug/. Access is
// limited to localhost and the tailnet by tsweb.
func (b *Bridge) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Watchdog state", func() any { return b.watchdog.State().String() })
	debug.KVFunc("Failsafe entries", func() any { return b.watchdog.entries.Load() })
	debug.KVFunc("Bridge sessions", func() any { return b.sessions.Load() })

	debug.HandleFunc("bridge", "bridge status as JSON", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(b.Status())
	})
}
