package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/seantiz/deferrpc/internal/cache"
	"github.com/seantiz/deferrpc/internal/codec"
	"github.com/seantiz/deferrpc/internal/model"
)

// ResultCache stores response envelopes in the fast cache under
// model.CacheKey(taskID). A nil *ResultCache behaves as an always-missing
// cache.
type ResultCache struct {
	cache cache.Cache
	codec codec.Codec
	ttl   time.Duration
}

// NewResultCache wraps c, encoding envelopes with cd. A ttl of zero uses the
// cache default.
func NewResultCache(c cache.Cache, cd codec.Codec, ttl time.Duration) *ResultCache {
	return &ResultCache{cache: c, codec: cd, ttl: ttl}
}

// Put stores the envelope for taskID.
func (rc *ResultCache) Put(ctx context.Context, taskID string, envelope map[string]any) error {
	if rc == nil || rc.cache == nil {
		return nil
	}
	data, err := rc.codec.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode cached result: %w", err)
	}
	if err := rc.cache.Set(ctx, model.CacheKey(taskID), data, rc.ttl); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Get returns the cached envelope for taskID. A stored null envelope is
// reported as a miss.
func (rc *ResultCache) Get(ctx context.Context, taskID string) (map[string]any, bool, error) {
	if rc == nil || rc.cache == nil {
		return nil, false, nil
	}
	data, ok, err := rc.cache.Get(ctx, model.CacheKey(taskID))
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	var envelope map[string]any
	if err := rc.codec.Unmarshal(data, &envelope); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	if envelope == nil {
		return nil, false, nil
	}
	return envelope, true, nil
}
