package weathercache

import (
	"context"
	"log/slog"
	"time"

	"github.com/yanqian/weather-insight/internal/domain/insight"
	"github.com/yanqian/weather-insight/pkg/util"
)

const defaultWriteTimeout = 5 * time.Second

// Store is a weather cache that also accepts new snapshots.
type Store interface {
	insight.WeatherCache
	Save(ctx context.Context, loc insight.Location, snapshot insight.WeatherSnapshot) error
}

// CachingProvider writes every successful reading of the wrapped provider back to the
// store and, when configured, the raw payload archive.
type CachingProvider struct {
	provider     insight.WeatherProvider
	store        Store
	archive      insight.WeatherArchive
	writeTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewCachingProvider wraps provider. archive may be nil.
func NewCachingProvider(provider insight.WeatherProvider, store Store, archive insight.WeatherArchive, writeTimeout time.Duration, logger *slog.Logger) *CachingProvider {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &CachingProvider{
		provider:     provider,
		store:        store,
		archive:      archive,
		writeTimeout: writeTimeout,
		logger:       logger.With("component", "weathercache.provider"),
		now:          util.NowUTC,
	}
}

// Current fetches from the wrapped provider. Write-back failures are logged and never
// fail the read; both writes share one deadline that outlives the caller's cancellation.
func (p *CachingProvider) Current(ctx context.Context, loc insight.Location) (insight.WeatherReading, error) {
	reading, err := p.provider.Current(ctx, loc)
	if err != nil {
		return reading, err
	}
	if reading.Snapshot.Timestamp.IsZero() {
		reading.Snapshot.Timestamp = p.now()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.writeTimeout)
	defer cancel()

	if p.store != nil {
		if err := p.store.Save(writeCtx, loc, reading.Snapshot); err != nil {
			p.logger.Warn("weather cache write failed", "location", loc.Key(), "error", err)
		}
	}
	if p.archive != nil {
		if err := p.archive.Archive(writeCtx, loc, reading); err != nil {
			p.logger.Warn("weather archive failed", "location", loc.Key(), "error", err)
		}
	}
	return reading, nil
}

var _ insight.WeatherProvider = (*CachingProvider)(nil)
