package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	TotalResults int `json:"total_results"`
	Waiting      int `json:"waiting_subscribers"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.store.Count(r.Context(), nil)
	if err != nil {
		s.logger.Error("count results", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	resp := statsResponse{TotalResults: total}
	if s.notifier != nil {
		resp.Waiting = s.notifier.Pending()
	}
	s.writeJSON(w, http.StatusOK, resp)
}
