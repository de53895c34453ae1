package transmitter

import (
	"encoding/json"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/rclink/internal/version"
)

// AttachAdminRoutes registers transmitter debug endpoints under /debug/.
func (c *Controller) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Version", func() any { return version.String() })
	debug.KVFunc("Link state", func() any { return c.Status().State })
	debug.KVFunc("Commands sent", func() any {
		if st := c.Status(); st.Stats != nil {
			return st.Stats.Sent
		}
		return 0
	})

	debug.HandleFunc("transmitter", "transmitter status and send statistics as JSON", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(c.Status())
	})
}
