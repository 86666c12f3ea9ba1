package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/deferrpc/internal/model"
)

const (
	sseHeartbeat    = 15 * time.Second
	sseFallbackPoll = time.Second
)

// handleAsyncEvents streams a single "result" event once the task has a
// recorded result. Comment lines are sent as keep-alives while waiting.
func (s *Server) handleAsyncEvents(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	if len(taskID) > model.MaxTaskIDLength {
		s.writeError(w, http.StatusBadRequest, "task id too long")
		return
	}
	ctx := r.Context()

	// Subscribe before the first lookup so a commit landing in between is
	// not missed.
	var done <-chan struct{}
	if s.notifier != nil {
		ch, unsub := s.notifier.Subscribe(taskID)
		defer unsub()
		done = ch
	}

	resp, err := s.lookupTask(ctx, taskID)
	if err != nil {
		s.logger.Error("resolve async result for events", "task_id", taskID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to resolve result")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}
	flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	// Once the notifier has fired, or when there is none, the result is
	// polled instead.
	pollTicker := time.NewTicker(sseFallbackPoll)
	defer pollTicker.Stop()

	for resp.Status == taskPending {
		var poll <-chan time.Time
		if done == nil {
			poll = pollTicker.C
		}

		select {
		case <-ctx.Done():
			return // Client disconnected.
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flush()
			continue
		case <-done:
			done = nil
		case <-poll:
		}

		resp, err = s.lookupTask(ctx, taskID)
		if err != nil {
			s.logger.Error("resolve async result for events", "task_id", taskID, "error", err)
			if err := writeSSEEvent(w, "error", `{"error":"failed to resolve result"}`); err != nil {
				s.logger.Debug("write SSE error event", "task_id", taskID, "error", err)
				return
			}
			flush()
			return
		}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encode async result event", "task_id", taskID, "error", err)
		return
	}
	if err := writeSSEEvent(w, "result", string(data)); err != nil {
		return // Write failed (e.g. client gone).
	}
	flush()
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
