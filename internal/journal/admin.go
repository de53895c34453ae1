package journal

import (
	"encoding/json"
	"net/http"
	"strconv"

	"tailscale.com/tsweb"
)

const defaultRecentLimit = 20

// AttachAdminRoutes exposes recent sessions and failsafe events on the debug
// mux. Recorder counters are shown when rec is non-nil.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux, rec *Recorder) {
	debug := tsweb.Debugger(mux)
	if rec != nil {
		debug.KVFunc("Journal events written", func() interface{} { return rec.Written() })
		debug.KVFunc("Journal events dropped", func() interface{} { return rec.Dropped() })
	}
	debug.HandleFunc("journal", "Recent bridge sessions and failsafe events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		limit := defaultRecentLimit
		if l := r.URL.Query().Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 1 {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid 'limit' parameter"})
				return
			}
			limit = n
		}
		sessions, err := db.RecentSessions(limit)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		events, err := db.RecentFailsafeEvents(limit)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sessions":        sessions,
			"failsafe_events": events,
		})
	})
}
