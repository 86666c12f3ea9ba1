package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/seantiz/deferrpc/internal/jsonrpc"
	"github.com/seantiz/deferrpc/internal/rpc"
)

// ResultMethod is the JSON-RPC method that polls for a deferred result.
const ResultMethod = "GetAsyncRequestResult"

type resultParams struct {
	TaskID string `json:"taskId"`
}

// ResultProcedure exposes r as the GetAsyncRequestResult method.
func ResultProcedure(r *Resolver) rpc.Procedure {
	return rpc.ProcedureFunc(func(ctx context.Context, params json.RawMessage) (any, error) {
		var p resultParams
		if err := rpc.DecodeParams(params, &p); err != nil {
			return nil, err
		}
		if p.TaskID == "" {
			return nil, jsonrpc.InvalidParams(errors.New("taskId is required"))
		}
		return r.Resolve(ctx, p.TaskID)
	})
}
