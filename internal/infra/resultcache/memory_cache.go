package resultcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/yanqian/weather-insight/internal/domain/insight"
	"github.com/yanqian/weather-insight/pkg/util"
)

const defaultMemorySize = 1024

type entry struct {
	result    insight.InsightResult
	expiresAt time.Time
}

// MemoryCache memoizes insight results in a bounded, expiring LRU.
type MemoryCache struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

// NewMemoryCache builds a cache holding at most size entries, none older than maxTTL.
func NewMemoryCache(size int, maxTTL time.Duration) *MemoryCache {
	if size <= 0 {
		size = defaultMemorySize
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, entry](size, nil, maxTTL),
		now: util.NowUTC,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (insight.InsightResult, bool, error) {
	e, ok := c.lru.Get(key)
	if !ok {
		return insight.InsightResult{}, false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.lru.Remove(key)
		return insight.InsightResult{}, false, nil
	}
	out := e.result
	out.Citations = append([]string{}, e.result.Citations...)
	return out, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, result insight.InsightResult, ttl time.Duration) error {
	if key == "" {
		return nil
	}
	result.Citations = append([]string{}, result.Citations...)
	e := entry{result: result}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.lru.Add(key, e)
	return nil
}

var _ insight.ResultCache = (*MemoryCache)(nil)
