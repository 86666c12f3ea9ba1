package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/seantiz/deferrpc/internal/model"
)

// Common errors returned by the MemoryQueue.
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// TaskSource provides read access to queued tasks.
type TaskSource interface {
	Tasks() <-chan model.DeferredTask
}

// MemoryQueue is a bounded in-process work queue. It implements Enqueuer and
// TaskSource.
type MemoryQueue struct {
	mu     sync.RWMutex
	tasks  chan model.DeferredTask
	closed bool
	logger *slog.Logger
}

// NewMemoryQueue creates a queue holding up to size tasks.
func NewMemoryQueue(size int, logger *slog.Logger) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{
		tasks:  make(chan model.DeferredTask, size),
		logger: logger,
	}
}

// Enqueue adds a task without blocking. It fails when the queue is closed or
// full.
func (q *MemoryQueue) Enqueue(ctx context.Context, task model.DeferredTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.tasks <- task:
		q.logger.Debug("task enqueued",
			"task_id", task.TaskID,
			"queue_len", len(q.tasks),
			"queue_cap", cap(q.tasks))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.tasks))
	}
}

// Tasks returns the channel workers consume from. It is closed by Close once
// no more tasks can be enqueued.
func (q *MemoryQueue) Tasks() <-chan model.DeferredTask {
	return q.tasks
}

// Len returns the number of tasks waiting.
func (q *MemoryQueue) Len() int {
	return len(q.tasks)
}

// Close stops accepting tasks. Tasks already queued remain readable.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
	q.logger.Info("task queue closed")
}
