package weathercache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yanqian/weather-insight/internal/domain/insight"
	"github.com/yanqian/weather-insight/pkg/util"
)

// MemoryCache keeps weather snapshots per location in process memory for tests/dev.
type MemoryCache struct {
	mu        sync.RWMutex
	retention time.Duration
	now       func() time.Time
	series    map[string][]insight.WeatherSnapshot
}

// NewMemoryCache constructs a cache that forgets snapshots older than retention.
// A non-positive retention keeps everything.
func NewMemoryCache(retention time.Duration) *MemoryCache {
	return &MemoryCache{
		retention: retention,
		now:       util.NowUTC,
		series:    make(map[string][]insight.WeatherSnapshot),
	}
}

// Range returns snapshots with from <= timestamp <= to, ascending.
func (c *MemoryCache) Range(_ context.Context, loc insight.Location, from, to time.Time) ([]insight.WeatherSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []insight.WeatherSnapshot
	for _, snap := range c.series[loc.Key()] {
		if snap.Timestamp.Before(from) || snap.Timestamp.After(to) {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// Save stores snapshot, replacing any snapshot with the same timestamp.
func (c *MemoryCache) Save(_ context.Context, loc insight.Location, snapshot insight.WeatherSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := loc.Key()
	snapshot.Timestamp = snapshot.Timestamp.UTC()
	series := c.series[key]
	replaced := false
	for i := range series {
		if series[i].Timestamp.Equal(snapshot.Timestamp) {
			series[i] = snapshot
			replaced = true
			break
		}
	}
	if !replaced {
		series = append(series, snapshot)
	}
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	if c.retention > 0 {
		cutoff := c.now().Add(-c.retention)
		idx := sort.Search(len(series), func(i int) bool {
			return !series[i].Timestamp.Before(cutoff)
		})
		series = series[idx:]
	}
	c.series[key] = series
	return nil
}

var _ Store = (*MemoryCache)(nil)
