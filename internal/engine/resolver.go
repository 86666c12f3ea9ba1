package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seantiz/deferrpc/internal/jsonrpc"
	"github.com/seantiz/deferrpc/internal/store"
)

// Resolver answers polls for the result of a deferred task.
type Resolver struct {
	store   store.ResultStore
	results *ResultCache
	logger  *slog.Logger
}

// NewResolver creates a resolver. results may be nil.
func NewResolver(s store.ResultStore, results *ResultCache, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:   s,
		results: results,
		logger:  logger,
	}
}

// Resolve returns the method result recorded for taskID. It fails with a
// *jsonrpc.Error coded jsonrpc.CodeNotCompleted while the task has no result,
// and with the recorded error when the task itself failed.
func (r *Resolver) Resolve(ctx context.Context, taskID string) (any, error) {
	envelope, hit, err := r.results.Get(ctx, taskID)
	switch {
	case err != nil:
		cacheOpsTotal.WithLabelValues("get", resultError).Inc()
		r.logger.Error("failed to read async result from cache",
			"task_id", taskID,
			"error", err,
		)
	case hit:
		cacheOpsTotal.WithLabelValues("get", resultHit).Inc()
		return r.interpret(envelope)
	case r.results != nil:
		cacheOpsTotal.WithLabelValues("get", resultMiss).Inc()
	}

	record, err := r.store.FindByTaskID(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		resolutionsTotal.WithLabelValues(statePending).Inc()
		return nil, jsonrpc.NotCompleted()
	}
	if err != nil {
		return nil, fmt.Errorf("find result for task %s: %w", taskID, err)
	}
	return r.interpret(record.Result)
}

func (r *Resolver) interpret(envelope map[string]any) (any, error) {
	result, err := Interpret(envelope)
	if err != nil {
		resolutionsTotal.WithLabelValues(stateError).Inc()
		return nil, err
	}
	resolutionsTotal.WithLabelValues(stateSuccess).Inc()
	return result, nil
}

// Interpret unwraps a response envelope into a method result.
//
// A nil envelope yields an empty list. An envelope carrying an error yields
// that error as a *jsonrpc.Error. Otherwise the "result" member is returned:
// objects and arrays as they are, null or absent as an empty list, and any
// scalar wrapped in a one-element list.
func Interpret(envelope map[string]any) (any, error) {
	if envelope == nil {
		return []any{}, nil
	}
	if raw, ok := envelope["error"]; ok && raw != nil {
		return nil, recordedError(raw)
	}

	switch v := envelope["result"].(type) {
	case nil:
		return []any{}, nil
	case map[string]any, []any:
		return v, nil
	default:
		return []any{v}, nil
	}
}

// recordedError rebuilds the error object stored in an envelope.
func recordedError(raw any) *jsonrpc.Error {
	obj, ok := raw.(map[string]any)
	if !ok {
		return jsonrpc.NewError(jsonrpc.CodeInternalError, fmt.Sprint(raw), nil)
	}

	rpcErr := &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Data: obj["data"]}
	if msg, ok := obj["message"].(string); ok {
		rpcErr.Message = msg
	}
	switch code := obj["code"].(type) {
	case float64:
		rpcErr.Code = int(code)
	case int:
		rpcErr.Code = code
	case int64:
		rpcErr.Code = int(code)
	case uint64:
		rpcErr.Code = int(code)
	}
	return rpcErr
}
