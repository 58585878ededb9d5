package server

import (
	"net/http"
)

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the watched channel has a snapshot on
// screen, or immediately when no channel is selected.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if !h.dash.Ready() {
		v := h.dash.View()
		resp := map[string]string{
			"status":       "not_ready",
			"failed_check": "snapshot",
			"channel":      v.Channel,
		}
		if v.LastError != "" {
			resp["error"] = v.LastError
		}
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
