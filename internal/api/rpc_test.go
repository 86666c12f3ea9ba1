package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func postRPC(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url+"/rpc", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /rpc: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return resp, nil
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func errorCode(t *testing.T, resp map[string]any) int {
	t.Helper()
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("response has no error member: %v", resp)
	}
	return int(errObj["code"].(float64))
}

func TestRPCSynchronousCall(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, out := postRPC(t, ts.URL, `{"jsonrpc":"2.0","id":"1","method":"echo","params":{"x":1}}`)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	result, ok := out["result"].(map[string]any)
	if !ok || result["x"] != float64(1) {
		t.Errorf("result = %v, want {x:1}", out["result"])
	}
}

func TestRPCDeferredCallReturnsPlaceholder(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Router())
	defer ts.Close()

	_, out := postRPC(t, ts.URL, `{"jsonrpc":"2.0","id":"async_1","method":"echo","params":{"x":1}}`)

	if code := errorCode(t, out); code != -799 {
		t.Fatalf("code = %d, want -799", code)
	}
	errObj := out["error"].(map[string]any)
	if errObj["message"] != "异步执行中" {
		t.Errorf("message = %v", errObj["message"])
	}
	taskID, _ := errObj["data"].(map[string]any)["taskId"].(string)
	if taskID == "" {
		t.Fatalf("placeholder has no taskId: %v", errObj)
	}
	if out["id"] != "async_1" {
		t.Errorf("id = %v, want async_1", out["id"])
	}
	if f.queue.Len() != 1 {
		t.Errorf("queue length = %d, want 1", f.queue.Len())
	}
}

func TestRPCErrors(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		body string
		code int
	}{
		{"parse error", `{"jsonrpc":`, -32700},
		{"unknown method", `{"jsonrpc":"2.0","id":"1","method":"nope"}`, -32601},
		{"application error", `{"jsonrpc":"2.0","id":"sync_1","method":"fail"}`, -1001},
		{"internal error", `{"jsonrpc":"2.0","id":"1","method":"crash"}`, -32603},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := postRPC(t, ts.URL, tt.body)
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want 200", resp.StatusCode)
			}
			if code := errorCode(t, out); code != tt.code {
				t.Errorf("code = %d, want %d", code, tt.code)
			}
		})
	}
}

func TestRPCNotificationNoContent(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, _ := postRPC(t, ts.URL, `{"jsonrpc":"2.0","method":"echo"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}
