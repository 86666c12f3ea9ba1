package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/deferrpc/internal/model"
)

func deferCall(t *testing.T, url, method string) string {
	t.Helper()
	_, out := postRPC(t, url, `{"jsonrpc":"2.0","id":"async_x","method":"`+method+`"}`)
	errObj, ok := out["error"].(map[string]any)
	if !ok {
		t.Fatalf("call was not deferred: %v", out)
	}
	return errObj["data"].(map[string]any)["taskId"].(string)
}

func getAsync(t *testing.T, url, taskID string) (int, asyncResultResponse) {
	t.Helper()
	resp, err := http.Get(url + "/v1/async/" + taskID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body asyncResultResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, body
}

func TestGetAsyncResultLifecycle(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Router())
	defer ts.Close()

	taskID := deferCall(t, ts.URL, "report")

	status, body := getAsync(t, ts.URL, taskID)
	if status != http.StatusAccepted || body.Status != taskPending {
		t.Fatalf("before execution: status = %d, body = %+v", status, body)
	}

	f.runQueued(t)

	status, body = getAsync(t, ts.URL, taskID)
	if status != http.StatusOK || body.Status != taskSuccess {
		t.Fatalf("after execution: status = %d, body = %+v", status, body)
	}
	if body.TaskID != taskID {
		t.Errorf("task_id = %q, want %q", body.TaskID, taskID)
	}
	result, ok := body.Result.(map[string]any)
	if !ok || result["rows"] != float64(3) {
		t.Errorf("result = %v, want {rows:3}", body.Result)
	}
}

func TestGetAsyncResultRecordedError(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Router())
	defer ts.Close()

	taskID := deferCall(t, ts.URL, "fail")
	f.runQueued(t)

	status, body := getAsync(t, ts.URL, taskID)
	if status != http.StatusOK || body.Status != taskError {
		t.Fatalf("status = %d, body = %+v", status, body)
	}
	if body.Error == nil || body.Error.Code != -1001 || body.Error.Message != "X" {
		t.Errorf("error = %+v, want -1001 X", body.Error)
	}
}

func TestGetAsyncResultUnknownTask(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	status, body := getAsync(t, ts.URL, "T9")
	if status != http.StatusAccepted || body.Status != taskPending {
		t.Errorf("status = %d, body = %+v", status, body)
	}
}

func TestGetAsyncResultTaskIDTooLong(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/async/" + strings.Repeat("t", model.MaxTaskIDLength+1))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPollOverRPC(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Router())
	defer ts.Close()

	taskID := deferCall(t, ts.URL, "report")
	poll := `{"jsonrpc":"2.0","id":"p","method":"GetAsyncRequestResult","params":{"taskId":"` + taskID + `"}}`

	_, out := postRPC(t, ts.URL, poll)
	if code := errorCode(t, out); code != -789 {
		t.Fatalf("code = %d, want -789", code)
	}

	f.runQueued(t)

	_, out = postRPC(t, ts.URL, poll)
	result, ok := out["result"].(map[string]any)
	if !ok || result["rows"] != float64(3) {
		t.Errorf("result = %v, want {rows:3}", out)
	}
}

// readEvent reads SSE lines until a complete named event has been seen.
func readEvent(t *testing.T, sc *bufio.Scanner) (string, string) {
	t.Helper()
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
	t.Fatalf("stream ended before an event: %v", sc.Err())
	return "", ""
}

func TestAsyncEventsCompletedTask(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Router())
	defer ts.Close()

	taskID := deferCall(t, ts.URL, "report")
	f.runQueued(t)

	resp, err := http.Get(ts.URL + "/v1/async/" + taskID + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	event, data := readEvent(t, bufio.NewScanner(resp.Body))
	if event != "result" {
		t.Fatalf("event = %q, want result", event)
	}
	var body asyncResultResponse
	if err := json.Unmarshal([]byte(data), &body); err != nil {
		t.Fatalf("decode event data: %v", err)
	}
	if body.Status != taskSuccess || body.TaskID != taskID {
		t.Errorf("event body = %+v", body)
	}
}

func TestAsyncEventsWaitsForCommit(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Router())
	defer ts.Close()

	taskID := deferCall(t, ts.URL, "report")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/async/"+taskID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	// Headers are flushed before the task runs, so the subscriber is in place.
	deadline := time.Now().Add(5 * time.Second)
	for f.notifier.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("events handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.runQueued(t)

	event, data := readEvent(t, bufio.NewScanner(resp.Body))
	if event != "result" {
		t.Fatalf("event = %q, want result", event)
	}
	if !strings.Contains(data, `"status":"success"`) {
		t.Errorf("data = %s, want success", data)
	}
}

func TestAsyncEventsStoreFailureSendsErrorEvent(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Router())
	defer ts.Close()

	taskID := deferCall(t, ts.URL, "report")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/async/"+taskID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	f.store.Close()
	f.notifier.Publish(taskID)

	event, data := readEvent(t, bufio.NewScanner(resp.Body))
	if event != "error" {
		t.Fatalf("event = %q, want error", event)
	}
	if !strings.Contains(data, "failed to resolve result") {
		t.Errorf("data = %s", data)
	}
}
