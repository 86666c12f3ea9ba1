package model

import "time"

// CachePrefix is prepended to a task ID to form its fast-cache key.
const CachePrefix = "async-result-"

// MaxTaskIDLength bounds the task_id column.
const MaxTaskIDLength = 100

// Reserved request ID prefixes.
const (
	SyncPrefix  = "sync_"
	AsyncPrefix = "async_"
)

// CacheKey returns the fast-cache key for a task.
func CacheKey(taskID string) string {
	return CachePrefix + taskID
}

// TaskResult is the durable record of a completed async execution.
// Result holds the response envelope and is nil when the execution produced
// no decodable response.
type TaskResult struct {
	ID        int64          `json:"id"`
	TaskID    string         `json:"task_id"`
	Result    map[string]any `json:"result"`
	CreatedAt time.Time      `json:"created_at"`
}

// DeferredTask is a queued unit of async work. Payload is a complete
// serialized JSON-RPC request that can run without the original context.
type DeferredTask struct {
	TaskID  string `json:"task_id"`
	Payload string `json:"payload"`
}
