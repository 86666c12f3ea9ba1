package rpc_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/seantiz/deferrpc/internal/jsonrpc"
	"github.com/seantiz/deferrpc/internal/rpc"
)

func newTestEndpoint(t *testing.T) *rpc.Endpoint {
	t.Helper()
	reg := rpc.NewRegistry()
	reg.Register("add", rpc.ProcedureFunc(func(_ context.Context, params json.RawMessage) (any, error) {
		var p struct {
			A int `json:"a"`
			B int `json:"b"`
		}
		if err := rpc.DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return map[string]int{"sum": p.A + p.B}, nil
	}))
	reg.Register("fail", rpc.ProcedureFunc(func(_ context.Context, _ json.RawMessage) (any, error) {
		return nil, jsonrpc.NewError(-1001, "X", nil)
	}))
	reg.Register("crash", rpc.ProcedureFunc(func(_ context.Context, _ json.RawMessage) (any, error) {
		return nil, errors.New("database unreachable")
	}))
	reg.Register("panic", rpc.ProcedureFunc(func(_ context.Context, _ json.RawMessage) (any, error) {
		panic("boom")
	}))

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return rpc.NewEndpoint(reg, logger)
}

// decodeResponse unmarshals a single response into a generic map.
func decodeResponse(t *testing.T, out string) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v\noutput: %s", err, out)
	}
	return resp
}

func errorCode(t *testing.T, resp map[string]any) int {
	t.Helper()
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("response has no error object: %v", resp)
	}
	return int(errObj["code"].(float64))
}

func TestInvokeSuccess(t *testing.T) {
	ep := newTestEndpoint(t)

	out, err := ep.Invoke(context.Background(), `{"jsonrpc":"2.0","id":"1","method":"add","params":{"a":2,"b":3}}`)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	resp := decodeResponse(t, out)
	if resp["id"] != "1" {
		t.Errorf("id = %v, want 1", resp["id"])
	}
	result, ok := resp["result"].(map[string]any)
	if !ok || result["sum"] != float64(5) {
		t.Errorf("result = %v, want {sum:5}", resp["result"])
	}
}

func TestInvokeNumericIDEchoed(t *testing.T) {
	ep := newTestEndpoint(t)

	out, err := ep.Invoke(context.Background(), `{"jsonrpc":"2.0","id":7,"method":"add","params":{"a":1,"b":1}}`)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp := decodeResponse(t, out); resp["id"] != float64(7) {
		t.Errorf("id = %v (%T), want numeric 7", resp["id"], resp["id"])
	}
}

func TestInvokeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{"parse error", `{"jsonrpc":`, jsonrpc.CodeParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":"1","method":"add"}`, jsonrpc.CodeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":"1"}`, jsonrpc.CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":"1","method":"nope"}`, jsonrpc.CodeMethodNotFound},
		{"invalid params", `{"jsonrpc":"2.0","id":"1","method":"add","params":[1,2]}`, jsonrpc.CodeInvalidParams},
		{"application error", `{"jsonrpc":"2.0","id":"1","method":"fail"}`, -1001},
		{"plain error", `{"jsonrpc":"2.0","id":"1","method":"crash"}`, jsonrpc.CodeInternalError},
		{"panic", `{"jsonrpc":"2.0","id":"1","method":"panic"}`, jsonrpc.CodeInternalError},
		{"empty batch", `[]`, jsonrpc.CodeInvalidRequest},
	}

	ep := newTestEndpoint(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ep.Invoke(context.Background(), tt.payload)
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if got := errorCode(t, decodeResponse(t, out)); got != tt.want {
				t.Errorf("error code = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInvokeNotification(t *testing.T) {
	ep := newTestEndpoint(t)

	out, err := ep.Invoke(context.Background(), `{"jsonrpc":"2.0","method":"add","params":{"a":1,"b":2}}`)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "" {
		t.Errorf("notification produced output %q, want empty", out)
	}
}

func TestInvokeBatch(t *testing.T) {
	ep := newTestEndpoint(t)

	payload := `[
		{"jsonrpc":"2.0","id":"a","method":"add","params":{"a":1,"b":2}},
		{"jsonrpc":"2.0","method":"add","params":{"a":1,"b":2}},
		{"jsonrpc":"2.0","id":"b","method":"nope"}
	]`
	out, err := ep.Invoke(context.Background(), payload)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	var resps []map[string]any
	if err := json.Unmarshal([]byte(out), &resps); err != nil {
		t.Fatalf("batch response is not an array: %v\noutput: %s", err, out)
	}
	if len(resps) != 2 {
		t.Fatalf("len(batch) = %d, want 2", len(resps))
	}
	if resps[0]["id"] != "a" || resps[1]["id"] != "b" {
		t.Errorf("batch ids = [%v %v], want [a b]", resps[0]["id"], resps[1]["id"])
	}
}

func TestInterceptorStopsPropagation(t *testing.T) {
	ep := newTestEndpoint(t)

	var seen []string
	ep.Use(rpc.InterceptorFunc(func(_ context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
		seen = append(seen, "first")
		if req.Method == "add" {
			return jsonrpc.NewResult(req.ID, "intercepted"), nil
		}
		return nil, nil
	}))
	ep.Use(rpc.InterceptorFunc(func(_ context.Context, _ *jsonrpc.Request) (*jsonrpc.Response, error) {
		seen = append(seen, "second")
		return nil, nil
	}))

	out, err := ep.Invoke(context.Background(), `{"jsonrpc":"2.0","id":"1","method":"add","params":{"a":1,"b":2}}`)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp := decodeResponse(t, out); resp["result"] != "intercepted" {
		t.Errorf("result = %v, want intercepted", resp["result"])
	}
	if len(seen) != 1 {
		t.Errorf("interceptors run = %v, want only first", seen)
	}
}

func TestInterceptorError(t *testing.T) {
	ep := newTestEndpoint(t)
	ep.Use(rpc.InterceptorFunc(func(_ context.Context, _ *jsonrpc.Request) (*jsonrpc.Response, error) {
		return nil, errors.New("queue closed")
	}))

	out, err := ep.Invoke(context.Background(), `{"jsonrpc":"2.0","id":"1","method":"add"}`)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := errorCode(t, decodeResponse(t, out)); got != jsonrpc.CodeInternalError {
		t.Errorf("error code = %d, want %d", got, jsonrpc.CodeInternalError)
	}
}
