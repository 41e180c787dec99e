package server

import (
	"encoding/json"
	"net/http"

	"github.com/onnwee/urbit-irc-bridge/bridge"
)

// Handlers serves the operational endpoints off the shared status registry.
type Handlers struct {
	registry *bridge.StatusRegistry
}

// HandleHealthz reports process liveness.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleReadyz reports readiness: at least one bridge instance is running.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !h.registry.AnyRunning() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "no instances running"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus returns the per-instance lifecycle snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.registry.Snapshot())
}
