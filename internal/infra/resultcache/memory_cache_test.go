package resultcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/weather-insight/internal/domain/insight"
)

func TestMemoryCacheHonoursPerEntryTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 19, 8, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(8, time.Hour)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "k", insight.InsightResult{Message: "hi", Citations: []string{"doi:1"}}, time.Minute))
	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hi", got.Message)

	now = now.Add(2 * time.Minute)
	_, ok, err = cache.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(2, time.Hour)

	require.NoError(t, cache.Set(ctx, "a", insight.InsightResult{Message: "a"}, time.Minute))
	require.NoError(t, cache.Set(ctx, "b", insight.InsightResult{Message: "b"}, time.Minute))
	_, _, _ = cache.Get(ctx, "a")
	require.NoError(t, cache.Set(ctx, "c", insight.InsightResult{Message: "c"}, time.Minute))

	_, ok, _ := cache.Get(ctx, "b")
	require.False(t, ok)
	_, ok, _ = cache.Get(ctx, "a")
	require.True(t, ok)
}

func TestMemoryCacheCopiesCitations(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(0, time.Hour)
	citations := []string{"doi:1"}

	require.NoError(t, cache.Set(ctx, "k", insight.InsightResult{Message: "m", Citations: citations}, time.Minute))
	citations[0] = "mutated"

	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"doi:1"}, got.Citations)
}

func TestMemoryCacheReturnsIndependentCitations(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(8, time.Hour)
	require.NoError(t, cache.Set(ctx, "k", insight.InsightResult{Message: "hi", Citations: []string{"doi:1", "doi:2"}}, time.Minute))

	first, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	first.Citations[0] = "mutated"
	first.Citations = append(first.Citations, "extra")

	second, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"doi:1", "doi:2"}, second.Citations)
}
