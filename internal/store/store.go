package store

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/deferrpc/internal/model"
)

var (
	// ErrNotFound is returned when no result exists for a task.
	ErrNotFound = errors.New("task result not found")

	// ErrDuplicate is returned when a result for the task was already saved.
	ErrDuplicate = errors.New("task result already exists")

	// ErrInvalidResult is returned when a result fails validation before
	// being stored.
	ErrInvalidResult = errors.New("invalid task result")

	// ErrInvalidFilter is returned when a filter names an unsupported field.
	ErrInvalidFilter = errors.New("invalid filter")
)

// Filter selects results by field equality. Supported fields are "id" and
// "task_id". An empty filter matches every row.
type Filter map[string]any

// ResultStore defines the durable persistence operations for task results.
type ResultStore interface {
	// FindByTaskID returns the result for taskID or ErrNotFound.
	FindByTaskID(ctx context.Context, taskID string) (*model.TaskResult, error)
	// SaveResult inserts r, assigning its ID and CreatedAt. At most one result
	// per task ID is accepted; later saves fail with ErrDuplicate.
	SaveResult(ctx context.Context, r *model.TaskResult) error
	// FindBy returns matching results, newest first.
	FindBy(ctx context.Context, f Filter, limit, offset int) ([]*model.TaskResult, error)
	// Count returns the number of matching results.
	Count(ctx context.Context, f Filter) (int, error)
	// PurgeBefore deletes results created before cutoff and reports how many
	// were removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
