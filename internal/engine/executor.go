package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/seantiz/deferrpc/internal/jsonrpc"
	"github.com/seantiz/deferrpc/internal/model"
	"github.com/seantiz/deferrpc/internal/store"
)

// Invoker runs a serialized JSON-RPC request and returns the serialized
// response. Implemented by rpc.Endpoint.
type Invoker interface {
	Invoke(ctx context.Context, payload string) (string, error)
}

// Executor runs deferred tasks and records their results.
type Executor struct {
	store    store.ResultStore
	results  *ResultCache
	invoker  Invoker
	notifier *Notifier
	logger   *slog.Logger
}

// NewExecutor creates an executor. results and notifier may be nil.
func NewExecutor(s store.ResultStore, results *ResultCache, inv Invoker, n *Notifier, logger *slog.Logger) *Executor {
	return &Executor{
		store:    s,
		results:  results,
		invoker:  inv,
		notifier: n,
		logger:   logger,
	}
}

// Execute runs task at most once. Execution and cache failures are recorded
// as part of the result; only a failure to look up or commit the durable
// result is returned.
func (e *Executor) Execute(ctx context.Context, task model.DeferredTask) error {
	existing, err := e.store.FindByTaskID(ctx, task.TaskID)
	if err == nil && existing != nil {
		executionsTotal.WithLabelValues(outcomeDuplicate).Inc()
		e.logger.Warn("async task already executed, skipping",
			"task_id", task.TaskID,
			"payload", task.Payload,
		)
		return nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check existing result for task %s: %w", task.TaskID, err)
	}

	envelope := e.run(ctx, task)

	// The cache is written first so pollers can see the result as early as
	// possible.
	if err := e.results.Put(ctx, task.TaskID, envelope); err != nil {
		cacheOpsTotal.WithLabelValues("set", resultError).Inc()
		e.logger.Error("failed to cache async result",
			"task_id", task.TaskID,
			"error", err,
		)
	} else if e.results != nil {
		cacheOpsTotal.WithLabelValues("set", resultOK).Inc()
	}

	record := &model.TaskResult{TaskID: task.TaskID, Result: envelope}
	if err := e.store.SaveResult(ctx, record); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			executionsTotal.WithLabelValues(outcomeDuplicate).Inc()
			e.logger.Warn("async result committed concurrently, discarding",
				"task_id", task.TaskID,
			)
			e.notifier.Publish(task.TaskID)
			return nil
		}
		return fmt.Errorf("save result for task %s: %w", task.TaskID, err)
	}

	e.notifier.Publish(task.TaskID)
	return nil
}

// run invokes the engine and returns the response envelope. Any failure is
// turned into an internal-error envelope carrying the task ID.
func (e *Executor) run(ctx context.Context, task model.DeferredTask) map[string]any {
	start := time.Now()
	out, err := e.invoke(ctx, task.Payload)
	executionDuration.Observe(time.Since(start).Seconds())

	var envelope map[string]any
	if err == nil {
		envelope, err = jsonrpc.DecodeEnvelope([]byte(out))
	}
	if err == nil {
		executionsTotal.WithLabelValues(outcomeSuccess).Inc()
		return envelope
	}

	executionsTotal.WithLabelValues(outcomeFailure).Inc()
	e.logger.Error("async execution failed",
		"task_id", task.TaskID,
		"payload", task.Payload,
		"error", err,
	)

	resp := jsonrpc.NewErrorResponse(jsonrpc.StringID(task.TaskID), jsonrpc.InternalError(err))
	envelope, nerr := jsonrpc.Normalize(resp)
	if nerr != nil {
		e.logger.Error("failed to normalize error response", "task_id", task.TaskID, "error", nerr)
		return nil
	}
	return envelope
}

func (e *Executor) invoke(ctx context.Context, payload string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("execution panicked: %v", r)
		}
	}()
	return e.invoker.Invoke(ctx, payload)
}
