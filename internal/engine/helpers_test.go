package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/seantiz/deferrpc/internal/cache"
	"github.com/seantiz/deferrpc/internal/codec"
	"github.com/seantiz/deferrpc/internal/model"
	"github.com/seantiz/deferrpc/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// logBuffer is a thread-safe log sink whose entries can be inspected.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *logBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

// count returns how many entries were logged at level with message msg.
func (lb *logBuffer) count(level, msg string) int {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	n := 0
	for _, line := range strings.Split(strings.TrimSpace(lb.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry["level"] == level && entry["msg"] == msg {
			n++
		}
	}
	return n
}

func bufferLogger() (*slog.Logger, *logBuffer) {
	lb := &logBuffer{}
	return slog.New(slog.NewJSONHandler(lb, &slog.HandlerOptions{Level: slog.LevelDebug})), lb
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestResultCache(t *testing.T) (*ResultCache, *cache.Memory) {
	t.Helper()
	mem := cache.NewMemory(cache.Options{})
	t.Cleanup(mem.Close)
	return NewResultCache(mem, codec.JSON(), time.Minute), mem
}

// sequenceIDs returns the given identifiers in order.
type sequenceIDs struct {
	mu  sync.Mutex
	ids []string
}

func (s *sequenceIDs) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.ids[0]
	s.ids = s.ids[1:]
	return id
}

// recordingQueue captures enqueued tasks.
type recordingQueue struct {
	mu    sync.Mutex
	tasks []model.DeferredTask
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, task model.DeferredTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

// capabilityMap answers capability probes from a map.
type capabilityMap struct {
	async map[string]bool
	err   error
	calls int
}

func (c *capabilityMap) IsAsync(method string) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	async, ok := c.async[method]
	if !ok {
		return false, errors.New("unknown method")
	}
	return async, nil
}

// invokerFunc adapts a function to the Invoker interface.
type invokerFunc func(ctx context.Context, payload string) (string, error)

func (f invokerFunc) Invoke(ctx context.Context, payload string) (string, error) {
	return f(ctx, payload)
}

// failingCache fails every operation.
type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache unavailable")
}

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache unavailable")
}

// failingSaveStore wraps a store and fails SaveResult.
type failingSaveStore struct {
	store.ResultStore
	err error
}

func (f *failingSaveStore) SaveResult(context.Context, *model.TaskResult) error {
	return f.err
}

// toJSON re-encodes v so values decoded by different codecs compare equal.
func toJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func modelTask(taskID string) model.DeferredTask {
	return model.DeferredTask{TaskID: taskID, Payload: `{}`}
}
