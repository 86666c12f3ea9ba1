package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seantiz/deferrpc/internal/jsonrpc"
)

// Interceptor inspects a request before its procedure runs. Returning a
// non-nil response answers the request and stops any further processing of
// it. Returning an error answers it with an internal error.
type Interceptor interface {
	Intercept(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)
}

// InterceptorFunc adapts a function to the Interceptor interface.
type InterceptorFunc func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)

// Intercept implements Interceptor.
func (f InterceptorFunc) Intercept(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	return f(ctx, req)
}

// Endpoint executes serialized JSON-RPC payloads against a Registry.
type Endpoint struct {
	registry     *Registry
	interceptors []Interceptor
	logger       *slog.Logger
}

// NewEndpoint creates an endpoint serving the procedures in reg.
func NewEndpoint(reg *Registry, logger *slog.Logger) *Endpoint {
	return &Endpoint{
		registry: reg,
		logger:   logger,
	}
}

// Use appends an interceptor to the chain. Interceptors run in the order they
// were added. Use must not be called once the endpoint is serving requests.
func (e *Endpoint) Use(i Interceptor) {
	e.interceptors = append(e.interceptors, i)
}

// Invoke decodes a single request or a batch from payload, executes it and
// returns the serialized response. An empty string is returned when every
// request in the payload was a notification.
func (e *Endpoint) Invoke(ctx context.Context, payload string) (string, error) {
	data := bytes.TrimSpace([]byte(payload))

	var out any
	if len(data) > 0 && data[0] == '[' {
		batch, ok := e.invokeBatch(ctx, data)
		if !ok {
			out = batch[0]
		} else if len(batch) > 0 {
			out = batch
		}
	} else if resp := e.invokeOne(ctx, data); resp != nil {
		out = resp
	}

	if out == nil {
		return "", nil
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal response: %w", err)
	}
	return string(encoded), nil
}

// invokeBatch runs every element of a batch. ok is false when the batch itself
// was malformed, in which case the single returned response describes why.
func (e *Endpoint) invokeBatch(ctx context.Context, data []byte) ([]*jsonrpc.Response, bool) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return []*jsonrpc.Response{jsonrpc.NewErrorResponse(jsonrpc.ID{}, jsonrpc.ParseError(err))}, false
	}
	if len(raws) == 0 {
		return []*jsonrpc.Response{jsonrpc.NewErrorResponse(jsonrpc.ID{}, jsonrpc.InvalidRequest("empty batch"))}, false
	}

	responses := make([]*jsonrpc.Response, 0, len(raws))
	for _, raw := range raws {
		if resp := e.invokeOne(ctx, raw); resp != nil {
			responses = append(responses, resp)
		}
	}
	return responses, true
}

func (e *Endpoint) invokeOne(ctx context.Context, data []byte) *jsonrpc.Response {
	var req jsonrpc.Request
	if err := json.Unmarshal(data, &req); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || len(data) == 0 {
			return jsonrpc.NewErrorResponse(jsonrpc.ID{}, jsonrpc.ParseError(err))
		}
		return jsonrpc.NewErrorResponse(jsonrpc.ID{}, jsonrpc.InvalidRequest(err.Error()))
	}
	if req.JSONRPC != jsonrpc.Version {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.InvalidRequest(`jsonrpc must be "2.0"`))
	}
	if req.Method == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.InvalidRequest("method is required"))
	}

	resp := e.Handle(ctx, &req)
	if req.ID.IsZero() {
		return nil
	}
	return resp
}

// Handle runs one decoded request through the interceptor chain and, unless
// an interceptor answered it, the resolved procedure.
func (e *Endpoint) Handle(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	for _, i := range e.interceptors {
		resp, err := i.Intercept(ctx, req)
		if err != nil {
			e.logger.Error("interceptor failed", "method", req.Method, "id", req.ID.String(), "error", err)
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.AsError(err))
		}
		if resp != nil {
			return resp
		}
	}

	proc, err := e.registry.Resolve(req.Method)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.MethodNotFound(req.Method))
	}

	result, err := e.call(ctx, proc, req)
	if err != nil {
		rpcErr := jsonrpc.AsError(err)
		if rpcErr.Code == jsonrpc.CodeInternalError {
			e.logger.Error("procedure failed", "method", req.Method, "id", req.ID.String(), "error", err)
		}
		return jsonrpc.NewErrorResponse(req.ID, rpcErr)
	}
	return jsonrpc.NewResult(req.ID, result)
}

// call runs the procedure, converting a panic into an error.
func (e *Endpoint) call(ctx context.Context, proc Procedure, req *jsonrpc.Request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("procedure %s panicked: %v", req.Method, r)
		}
	}()
	return proc.Call(ctx, req.Params)
}
