package api

import (
	"errors"
	"io"
	"net/http"
)

// handleRPC runs a JSON-RPC request or batch. Protocol errors are reported in
// the JSON-RPC body with status 200; a request made only of notifications
// gets 204.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	out, err := s.endpoint.Invoke(r.Context(), string(body))
	if err != nil {
		s.logger.Error("invoke rpc", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to invoke request")
		return
	}
	if out == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, out); err != nil {
		s.logger.Error("write rpc response", "error", err)
	}
}
