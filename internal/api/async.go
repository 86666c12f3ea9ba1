package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/deferrpc/internal/jsonrpc"
	"github.com/seantiz/deferrpc/internal/model"
)

// Task states reported over HTTP.
const (
	taskPending = "pending"
	taskSuccess = "success"
	taskError   = "error"
)

// asyncResultResponse is the JSON response for GET /v1/async/{taskId}.
type asyncResultResponse struct {
	TaskID string         `json:"task_id"`
	Status string         `json:"status"`
	Result any            `json:"result,omitempty"`
	Error  *jsonrpc.Error `json:"error,omitempty"`
}

func (s *Server) handleGetAsyncResult(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	if len(taskID) > model.MaxTaskIDLength {
		s.writeError(w, http.StatusBadRequest, "task id too long")
		return
	}

	resp, err := s.lookupTask(r.Context(), taskID)
	if err != nil {
		s.logger.Error("resolve async result", "task_id", taskID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to resolve result")
		return
	}

	status := http.StatusOK
	if resp.Status == taskPending {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, resp)
}

// lookupTask resolves taskID into its HTTP representation. Only failures to
// read the result are returned as errors.
func (s *Server) lookupTask(ctx context.Context, taskID string) (asyncResultResponse, error) {
	resp := asyncResultResponse{TaskID: taskID}

	result, err := s.resolver.Resolve(ctx, taskID)
	if err == nil {
		resp.Status = taskSuccess
		resp.Result = result
		return resp, nil
	}

	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) {
		return resp, fmt.Errorf("resolve task %s: %w", taskID, err)
	}
	if rpcErr.Code == jsonrpc.CodeNotCompleted {
		resp.Status = taskPending
		return resp, nil
	}
	resp.Status = taskError
	resp.Error = rpcErr
	return resp, nil
}
