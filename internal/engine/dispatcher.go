package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/seantiz/deferrpc/internal/jsonrpc"
	"github.com/seantiz/deferrpc/internal/model"
)

// IDSource hands out unique task identifiers.
type IDSource interface {
	Next() string
}

// CapabilityResolver reports whether a method declared the async-execute
// capability. Implemented by rpc.Registry.
type CapabilityResolver interface {
	IsAsync(method string) (bool, error)
}

// Enqueuer accepts deferred tasks for out-of-band execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, task model.DeferredTask) error
}

// DispatcherConfig holds the deployment settings consulted on every request.
type DispatcherConfig struct {
	// Production enables deferral. Outside production every call runs inline.
	Production bool
	// MethodOverrides forces deferral for methods mapped to true.
	MethodOverrides map[string]bool
}

// Decision is the outcome of evaluating a request. The zero value means the
// request is handled synchronously.
type Decision struct {
	Deferred    bool
	Reason      string
	TaskID      string
	Placeholder *jsonrpc.Response
	Task        *model.DeferredTask
}

// Dispatcher decides whether a request is executed inline or deferred.
type Dispatcher struct {
	cfg    DispatcherConfig
	caps   CapabilityResolver
	ids    IDSource
	queue  Enqueuer
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. The override map is copied.
func NewDispatcher(cfg DispatcherConfig, caps CapabilityResolver, ids IDSource, queue Enqueuer, logger *slog.Logger) *Dispatcher {
	overrides := make(map[string]bool, len(cfg.MethodOverrides))
	for method, on := range cfg.MethodOverrides {
		overrides[method] = on
	}
	cfg.MethodOverrides = overrides

	return &Dispatcher{
		cfg:    cfg,
		caps:   caps,
		ids:    ids,
		queue:  queue,
		logger: logger,
	}
}

// Evaluate decides how req is handled. For a deferred request the task is
// enqueued before Evaluate returns; an error means the task could not be
// enqueued and nothing was deferred.
func (d *Dispatcher) Evaluate(ctx context.Context, req *jsonrpc.Request) (Decision, error) {
	reason, deferred := d.shouldDefer(req)
	if !deferred {
		return Decision{}, nil
	}

	taskID := d.ids.Next()
	payload, err := json.Marshal(jsonrpc.Request{
		JSONRPC: req.JSONRPC,
		ID:      jsonrpc.StringID(model.SyncPrefix + taskID),
		Method:  req.Method,
		Params:  req.Params,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("encode deferred request: %w", err)
	}

	task := model.DeferredTask{TaskID: taskID, Payload: string(payload)}
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return Decision{}, fmt.Errorf("enqueue task %s: %w", taskID, err)
	}

	deferralsTotal.WithLabelValues(reason).Inc()
	d.logger.Info("request deferred",
		"task_id", taskID,
		"method", req.Method,
		"request_id", req.ID.String(),
		"reason", reason,
	)

	return Decision{
		Deferred:    true,
		Reason:      reason,
		TaskID:      taskID,
		Placeholder: jsonrpc.NewErrorResponse(req.ID, jsonrpc.AsyncPending(taskID)),
		Task:        &task,
	}, nil
}

// Intercept implements rpc.Interceptor. Deferred requests are answered with
// the placeholder, which stops any further synchronous handling.
func (d *Dispatcher) Intercept(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	dec, err := d.Evaluate(ctx, req)
	if err != nil {
		return nil, err
	}
	if !dec.Deferred {
		return nil, nil
	}
	return dec.Placeholder, nil
}

// shouldDefer applies the deferral rules in order; the first match wins.
func (d *Dispatcher) shouldDefer(req *jsonrpc.Request) (string, bool) {
	if !d.cfg.Production {
		return "", false
	}

	if blankID(req.ID) {
		return "", false
	}
	id := req.ID.String()
	if strings.HasPrefix(id, model.SyncPrefix) {
		return "", false
	}
	if strings.HasPrefix(id, model.AsyncPrefix) {
		return reasonIDPrefix, true
	}
	if d.cfg.MethodOverrides[req.Method] {
		return reasonOverride, true
	}
	if d.declaresAsync(req.Method) {
		return reasonCapability, true
	}
	return "", false
}

// blankID reports whether id counts as missing. Besides an absent id this
// covers "0" and any numeric zero, which callers use as a placeholder.
func blankID(id jsonrpc.ID) bool {
	s := id.String()
	if s == "" || s == "0" {
		return true
	}
	if id.IsNumber() {
		f, err := strconv.ParseFloat(s, 64)
		return err == nil && f == 0
	}
	return false
}

// declaresAsync probes the method's capability tags. Any failure, including a
// panic in the resolver, counts as synchronous.
func (d *Dispatcher) declaresAsync(method string) (async bool) {
	if d.caps == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("capability probe panicked", "method", method, "panic", r)
			async = false
		}
	}()

	async, err := d.caps.IsAsync(method)
	if err != nil {
		d.logger.Debug("capability probe failed", "method", method, "error", err)
		return false
	}
	return async
}
