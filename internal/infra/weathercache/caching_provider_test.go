package weathercache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/weather-insight/internal/domain/insight"
)

func TestCachingProviderWritesReadingBack(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC)
	home := insight.Location{Latitude: 1.3521, Longitude: 103.8198}
	inner := &fixedProvider{reading: insight.WeatherReading{
		Snapshot: insight.WeatherSnapshot{Timestamp: at, PressureHPa: 1006},
		RawJSON:  []byte(`{"current":{}}`),
	}}
	store := NewMemoryCache(0)
	archive := &recordingArchive{}

	provider := NewCachingProvider(inner, store, archive, time.Second, discardLogger())
	reading, err := provider.Current(ctx, home)
	require.NoError(t, err)
	require.Equal(t, 1006.0, reading.Snapshot.PressureHPa)

	cached, err := store.Range(ctx, home, at.Add(-time.Minute), at.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, cached, 1)
	require.Equal(t, 1, archive.calls)
}

func TestCachingProviderSkipsWritesOnFetchError(t *testing.T) {
	ctx := context.Background()
	inner := &fixedProvider{err: errors.New("upstream 502")}
	store := NewMemoryCache(0)
	archive := &recordingArchive{}

	provider := NewCachingProvider(inner, store, archive, time.Second, discardLogger())
	_, err := provider.Current(ctx, insight.Location{})
	require.Error(t, err)
	require.Zero(t, archive.calls)
}

func TestCachingProviderBoundsHangingArchive(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC)
	home := insight.Location{Latitude: 1.3521, Longitude: 103.8198}
	inner := &fixedProvider{reading: insight.WeatherReading{Snapshot: insight.WeatherSnapshot{Timestamp: at}}}
	store := NewMemoryCache(0)

	provider := NewCachingProvider(inner, store, hangingArchive{}, 50*time.Millisecond, discardLogger())

	done := make(chan error, 1)
	go func() {
		_, err := provider.Current(ctx, home)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("current waited on an archive that never answered")
	}

	cached, err := store.Range(ctx, home, at, at)
	require.NoError(t, err)
	require.Len(t, cached, 1)
}

func TestCachingProviderWritesSurviveCallerCancellation(t *testing.T) {
	at := time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC)
	home := insight.Location{Latitude: 51.5}
	ctx, cancel := context.WithCancel(context.Background())
	inner := &fixedProvider{
		reading: insight.WeatherReading{Snapshot: insight.WeatherSnapshot{Timestamp: at}},
		after:   cancel,
	}
	store := &ctxCheckingStore{MemoryCache: NewMemoryCache(0)}

	provider := NewCachingProvider(inner, store, nil, time.Second, discardLogger())
	_, err := provider.Current(ctx, home)
	require.NoError(t, err)
	require.NoError(t, store.ctxErr)

	cached, err := store.Range(context.Background(), home, at, at)
	require.NoError(t, err)
	require.Len(t, cached, 1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedProvider struct {
	reading insight.WeatherReading
	err     error
	after   func()
}

func (p *fixedProvider) Current(ctx context.Context, loc insight.Location) (insight.WeatherReading, error) {
	if p.after != nil {
		p.after()
	}
	return p.reading, p.err
}

type recordingArchive struct {
	calls int
}

func (a *recordingArchive) Archive(ctx context.Context, loc insight.Location, reading insight.WeatherReading) error {
	a.calls++
	return nil
}

type hangingArchive struct{}

func (hangingArchive) Archive(ctx context.Context, loc insight.Location, reading insight.WeatherReading) error {
	<-ctx.Done()
	return ctx.Err()
}

type ctxCheckingStore struct {
	*MemoryCache
	ctxErr error
}

func (s *ctxCheckingStore) Save(ctx context.Context, loc insight.Location, snapshot insight.WeatherSnapshot) error {
	s.ctxErr = ctx.Err()
	return s.MemoryCache.Save(ctx, loc, snapshot)
}
