package rpc

import (
	"context"
	"encoding/json"

	"github.com/seantiz/deferrpc/internal/jsonrpc"
)

// Procedure is the interface every exposed JSON-RPC method implements.
type Procedure interface {
	// Call executes the method with the raw params of the request. Returning a
	// *jsonrpc.Error delivers it to the caller verbatim; any other error is
	// reported as an internal error.
	Call(ctx context.Context, params json.RawMessage) (any, error)
}

// ProcedureFunc adapts an ordinary function to the Procedure interface.
type ProcedureFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Call implements Procedure.
func (f ProcedureFunc) Call(ctx context.Context, params json.RawMessage) (any, error) {
	return f(ctx, params)
}

// DecodeParams unmarshals params into v, reporting failures as invalid params.
// Absent params leave v untouched.
func DecodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return jsonrpc.InvalidParams(err)
	}
	return nil
}
