package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/seantiz/deferrpc/internal/api"
	"github.com/seantiz/deferrpc/internal/cache"
	"github.com/seantiz/deferrpc/internal/codec"
	"github.com/seantiz/deferrpc/internal/config"
	"github.com/seantiz/deferrpc/internal/engine"
	"github.com/seantiz/deferrpc/internal/model"
	"github.com/seantiz/deferrpc/internal/rpc"
	"github.com/seantiz/deferrpc/internal/store"
)

const (
	drainTimeout = 30 * time.Second
	stopTimeout  = 5 * time.Second
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("deferrpc: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"app_env", cfg.AppEnv,
		"workers", cfg.Workers,
		"cache_codec", cfg.CacheCodec,
		"task_timeout", cfg.TaskTimeout,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	cd, err := codec.ByName(cfg.CacheCodec)
	if err != nil {
		log.Fatalf("invalid cache codec: %v", err)
	}
	mem := cache.NewMemory(cache.Options{DefaultTTL: cfg.CacheTTL})
	defer mem.Close()
	results := engine.NewResultCache(mem, cd, cfg.CacheTTL)

	reg := rpc.NewRegistry()
	registerProcedures(reg)

	endpoint := rpc.NewEndpoint(reg, logger)
	queue := engine.NewMemoryQueue(cfg.QueueSize, logger)
	endpoint.Use(engine.NewDispatcher(engine.DispatcherConfig{
		Production:      cfg.Production(),
		MethodOverrides: cfg.AsyncMethods,
	}, reg, model.ULIDSource{}, queue, logger))

	notifier := engine.NewNotifier()
	resolver := engine.NewResolver(db, results, logger)
	reg.Register(engine.ResultMethod, engine.ResultProcedure(resolver),
		rpc.WithDescription("获取异步任务结果"))

	executor := engine.NewExecutor(db, results, endpoint, notifier, logger)
	pool := engine.NewWorkerPool(queue, executor, engine.WorkerPoolConfig{
		Workers:     cfg.Workers,
		TaskTimeout: cfg.TaskTimeout,
	}, logger)
	janitor := engine.NewJanitor(db, cfg.ResultRetention(), cfg.PurgeInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		if err := pool.Run(ctx); err != nil {
			logger.Error("worker pool stopped", "error", err)
		}
	}()
	var wg sync.WaitGroup
	wg.Go(func() { janitor.Run(ctx) })

	srv := api.NewServer(cfg.ListenAddr, api.Deps{
		Store:    db,
		Registry: reg,
		Endpoint: endpoint,
		Resolver: resolver,
		Notifier: notifier,
		Queue:    queue,
	}, logger)

	runErr := srv.Run(ctx)

	// Stop accepting work and give queued tasks a bounded time to finish.
	queue.Close()
	if n := queue.Len(); n > 0 {
		logger.Info("draining task queue", "pending", n)
	}
	select {
	case <-poolDone:
	case <-time.After(drainTimeout):
		logger.Warn("task queue drain timed out", "pending", queue.Len())
	}
	cancel()
	select {
	case <-poolDone:
	case <-time.After(stopTimeout):
		logger.Error("worker pool did not stop, abandoning running tasks")
	}
	wg.Wait()

	if runErr != nil {
		log.Fatalf("server error: %v", runErr)
	}
}

// registerProcedures installs the methods served by this binary.
func registerProcedures(reg *rpc.Registry) {
	reg.Register("system.ping", rpc.ProcedureFunc(func(context.Context, json.RawMessage) (any, error) {
		return "pong", nil
	}), rpc.WithDescription("liveness probe"))
}
