// Package cache provides the fast-access tier for async results: a small
// key/value interface with expiry, and a sharded in-memory implementation
// with a background sweeper and an optional byte budget.
package cache
