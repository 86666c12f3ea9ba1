// testserver starts a deferrpc API server with demo procedures for E2E testing.
// Deferral is always enabled. Usage: go run ./cmd/testserver
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/seantiz/deferrpc/internal/api"
	"github.com/seantiz/deferrpc/internal/cache"
	"github.com/seantiz/deferrpc/internal/codec"
	"github.com/seantiz/deferrpc/internal/engine"
	"github.com/seantiz/deferrpc/internal/jsonrpc"
	"github.com/seantiz/deferrpc/internal/model"
	"github.com/seantiz/deferrpc/internal/rpc"
	"github.com/seantiz/deferrpc/internal/store"
)

// stubProcedure is a configurable procedure for E2E tests.
type stubProcedure struct {
	delay  time.Duration
	result any
	err    error
}

func (s *stubProcedure) Call(ctx context.Context, params json.RawMessage) (any, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	var echo any
	if err := rpc.DecodeParams(params, &echo); err != nil {
		return nil, err
	}
	return echo, nil
}

func main() {
	addr := ":8080"
	if v := os.Getenv("DEFERRPC_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	reg := rpc.NewRegistry()
	reg.Register("echo", &stubProcedure{})
	reg.Register("report", &stubProcedure{
		delay:  500 * time.Millisecond,
		result: map[string]any{"rows": 3, "source": "stub-report"},
	}, rpc.AsyncExecute(), rpc.WithDescription("slow report"))
	reg.Register("fail", &stubProcedure{
		delay: 100 * time.Millisecond,
		err:   jsonrpc.NewError(-1001, "X", nil),
	}, rpc.AsyncExecute())

	mem := cache.NewMemory(cache.Options{})
	defer mem.Close()
	results := engine.NewResultCache(mem, codec.JSON(), time.Hour)

	endpoint := rpc.NewEndpoint(reg, logger)
	queue := engine.NewMemoryQueue(64, logger)
	endpoint.Use(engine.NewDispatcher(engine.DispatcherConfig{Production: true}, reg, model.ULIDSource{}, queue, logger))

	notifier := engine.NewNotifier()
	resolver := engine.NewResolver(db, results, logger)
	reg.Register(engine.ResultMethod, engine.ResultProcedure(resolver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	executor := engine.NewExecutor(db, results, endpoint, notifier, logger)
	pool := engine.NewWorkerPool(queue, executor, engine.WorkerPoolConfig{Workers: 2}, logger)
	go pool.Run(ctx)

	srv := api.NewServer(addr, api.Deps{
		Store:    db,
		Registry: reg,
		Endpoint: endpoint,
		Resolver: resolver,
		Notifier: notifier,
		Queue:    queue,
	}, logger)

	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
