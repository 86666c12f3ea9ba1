package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultShards        = 64
	defaultTTL           = time.Hour
	defaultSweepInterval = time.Minute
)

// Options tunes a Memory cache. Zero values select defaults.
type Options struct {
	Shards        int
	DefaultTTL    time.Duration
	SweepInterval time.Duration
	// MaxBytes caps the total size of stored values. 0 means unlimited.
	MaxBytes uint64

	now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Shards <= 0 {
		o.Shards = defaultShards
	}
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = defaultTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = defaultSweepInterval
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Keys    uint64 `json:"keys"`
	Bytes   uint64 `json:"bytes"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Sets    uint64 `json:"sets"`
	Expired uint64 `json:"expired"`
}

// Compile-time interface satisfaction check.
var _ Cache = (*Memory)(nil)

// Memory is a sharded in-memory Cache. It is safe for concurrent use.
type Memory struct {
	opts   Options
	shards []shard
	nowFn  func() time.Time

	closeOnce sync.Once
	closeCh   chan struct{}
	closed    atomic.Bool
	wg        sync.WaitGroup

	keys    atomic.Uint64
	bytes   atomic.Uint64
	hits    atomic.Uint64
	misses  atomic.Uint64
	sets    atomic.Uint64
	expired atomic.Uint64
}

type shard struct {
	mu sync.RWMutex
	m  map[string]entry
}

type entry struct {
	val      []byte
	expireAt int64 // unix nano
}

// NewMemory creates a cache and starts its sweeper. Call Close to stop it.
func NewMemory(opts Options) *Memory {
	opts = opts.withDefaults()
	c := &Memory{
		opts:    opts,
		shards:  make([]shard, opts.Shards),
		nowFn:   opts.now,
		closeCh: make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i].m = make(map[string]entry)
	}

	c.wg.Go(c.sweeper)
	return c
}

// Close stops the sweeper. Further operations return ErrClosed.
func (c *Memory) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closeCh)
	})
	c.wg.Wait()
}

func (c *Memory) shardFor(key string) *shard {
	// FNV-1a 64
	var h uint64 = 1469598103934665603
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211
	}
	return &c.shards[h%uint64(len(c.shards))]
}

// Get returns a copy of the value stored under key.
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if c.closed.Load() {
		return nil, false, ErrClosed
	}

	sh := c.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	sh.mu.RUnlock()

	if !ok || e.expireAt <= c.nowFn().UnixNano() {
		c.misses.Add(1)
		return nil, false, nil
	}

	c.hits.Add(1)
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, true, nil
}

// Set stores a copy of value under key.
func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}

	val := make([]byte, len(value))
	copy(val, value)

	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	old, exists := sh.m[key]
	if !c.reserve(uint64(len(val)), uint64(len(old.val))) {
		return ErrCapacity
	}

	sh.m[key] = entry{val: val, expireAt: c.nowFn().Add(ttl).UnixNano()}
	if !exists {
		c.keys.Add(1)
	}
	c.sets.Add(1)
	return nil
}

// reserve accounts for replacing a value of size released with one of size
// added, failing when the byte budget would be exceeded.
func (c *Memory) reserve(added, released uint64) bool {
	for {
		cur := c.bytes.Load()
		next := cur + added - released
		if c.opts.MaxBytes > 0 && added > released && next > c.opts.MaxBytes {
			return false
		}
		if c.bytes.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Memory) Stats() Stats {
	return Stats{
		Keys:    c.keys.Load(),
		Bytes:   c.bytes.Load(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Expired: c.expired.Load(),
	}
}

func (c *Memory) sweeper() {
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes every expired entry.
func (c *Memory) sweep() {
	now := c.nowFn().UnixNano()
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		for key, e := range sh.m {
			if e.expireAt <= now {
				delete(sh.m, key)
				c.keys.Add(^uint64(0))
				c.bytes.Add(^uint64(len(e.val) - 1))
				c.expired.Add(1)
			}
		}
		sh.mu.Unlock()
	}
}
