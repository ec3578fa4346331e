package api

import (
	"net/http"
	"time"
)

// HealthResponse is the /healthz liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// handleHealthz is a liveness check only: it reports the process is up and
// serving, not that its dependencies (store, auth service, engines) are
// reachable. Readiness in that sense is better observed through the
// dashboard overview, which surfaces store/registry errors directly.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}
