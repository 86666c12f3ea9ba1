// Package engine implements the async task lifecycle for JSON-RPC calls.
// The Dispatcher decides inline whether a request is deferred and, if so,
// answers it with a placeholder and enqueues a self-contained task. Workers
// hand queued tasks to the Executor, which runs each task at most once and
// commits its response envelope to the fast cache and then the durable
// store. The Resolver answers polls for a task, preferring the cache and
// falling back to the store.
package engine
