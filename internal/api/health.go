package api

import (
	"net/http"
)

type healthResponse struct {
	Status     string `json:"status"`
	QueueDepth int    `json:"queue_depth"`
	Error      string `json:"error,omitempty"`
}

// handleHealthz reports the backlog of deferred tasks and fails with 503 when
// the result store cannot be read.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.queue != nil {
		resp.QueueDepth = s.queue.Len()
	}

	if _, err := s.store.Count(r.Context(), nil); err != nil {
		s.logger.Error("healthz store check", "error", err)
		resp.Status = "unavailable"
		resp.Error = "result store unreachable"
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}
