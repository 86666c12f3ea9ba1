package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/deferrpc/internal/model"
)

// TaskExecutor processes one deferred task. Implemented by Executor.
type TaskExecutor interface {
	Execute(ctx context.Context, task model.DeferredTask) error
}

// DeadLetterHandler receives tasks whose execution returned an error.
type DeadLetterHandler func(task model.DeferredTask, err error)

// WorkerPoolConfig holds configuration options for the worker pool.
type WorkerPoolConfig struct {
	// Workers is the number of concurrent consumers. Values below 1 become 1.
	Workers int
	// TaskTimeout bounds a single execution. Zero means no limit.
	TaskTimeout time.Duration
}

// WorkerPool consumes tasks from a TaskSource with a fixed number of
// goroutines.
type WorkerPool struct {
	source     TaskSource
	exec       TaskExecutor
	cfg        WorkerPoolConfig
	logger     *slog.Logger
	deadLetter DeadLetterHandler
}

// NewWorkerPool creates a pool. Call Run to start consuming.
func NewWorkerPool(src TaskSource, exec TaskExecutor, cfg WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	if cfg.Workers <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", cfg.Workers,
			"default_count", 1)
		cfg.Workers = 1
	}

	p := &WorkerPool{
		source: src,
		exec:   exec,
		cfg:    cfg,
		logger: logger,
	}
	p.deadLetter = p.logDeadLetter
	return p
}

// SetDeadLetterHandler replaces the default handler, which logs the failure.
// It must be called before Run.
func (p *WorkerPool) SetDeadLetterHandler(h DeadLetterHandler) {
	if h != nil {
		p.deadLetter = h
	}
}

// Run starts the workers and blocks until ctx is cancelled or the source is
// closed and drained. A task in progress when ctx is cancelled is allowed to
// finish.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting", "workers", p.cfg.Workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			p.work(gctx, i+1)
			return nil
		})
	}
	err := g.Wait()

	p.logger.Info("worker pool stopped")
	return err
}

func (p *WorkerPool) work(ctx context.Context, id int) {
	tasks := p.source.Tasks()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-tasks:
			if !ok {
				return
			}
			p.process(ctx, id, task)
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, worker int, task model.DeferredTask) {
	taskCtx := context.WithoutCancel(ctx)
	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(taskCtx, p.cfg.TaskTimeout)
		defer cancel()
	}

	p.logger.Debug("processing task", "worker", worker, "task_id", task.TaskID)
	if err := p.exec.Execute(taskCtx, task); err != nil {
		deadLetteredTotal.Inc()
		p.deadLetter(task, err)
	}
}

func (p *WorkerPool) logDeadLetter(task model.DeferredTask, err error) {
	p.logger.Error("async task dead-lettered",
		"task_id", task.TaskID,
		"payload", task.Payload,
		"error", err,
	)
}
