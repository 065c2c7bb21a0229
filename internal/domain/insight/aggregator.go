package insight

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/yanqian/weather-insight/pkg/util"
)

// SymptomStore reads logged symptoms.
type SymptomStore interface {
	ListSince(ctx context.Context, subjectID string, since time.Time) ([]SymptomObservation, error)
}

// ProfileStore reads the user context for a subject.
type ProfileStore interface {
	Get(ctx context.Context, subjectID string) (UserContext, bool, error)
}

// WeatherCache reads recent weather snapshots per location.
type WeatherCache interface {
	Range(ctx context.Context, loc Location, from, to time.Time) ([]WeatherSnapshot, error)
}

// WeatherReading is a provider response with its raw upstream payload.
type WeatherReading struct {
	Snapshot WeatherSnapshot
	Source   string
	RawJSON  []byte
}

// WeatherProvider fetches current conditions.
type WeatherProvider interface {
	Current(ctx context.Context, loc Location) (WeatherReading, error)
}

// WeatherArchive stores raw provider payloads.
type WeatherArchive interface {
	Archive(ctx context.Context, loc Location, reading WeatherReading) error
}

// Aggregator gathers the inputs of one analysis. It never mutates the stores it reads
// and never fails: every collaborator error degrades to missing data.
type Aggregator struct {
	cfg      Config
	symptoms SymptomStore
	profiles ProfileStore
	cache    WeatherCache
	provider WeatherProvider
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewAggregator wires the aggregator. recorder may be nil.
func NewAggregator(cfg Config, symptoms SymptomStore, profiles ProfileStore, cache WeatherCache, provider WeatherProvider, recorder Recorder, logger *slog.Logger) *Aggregator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Aggregator{
		cfg:      cfg.withDefaults(),
		symptoms: symptoms,
		profiles: profiles,
		cache:    cache,
		provider: provider,
		recorder: recorder,
		logger:   logger.With("component", "insight.aggregator"),
		now:      util.NowUTC,
	}
}

// Collect returns the subject's symptoms and weather inside the lookback window, both
// ascending by timestamp. A non-positive lookback uses the configured default.
func (a *Aggregator) Collect(ctx context.Context, subjectID string, lookback time.Duration) Aggregate {
	if lookback <= 0 {
		lookback = a.cfg.Lookback
	}
	now := a.now()
	since := now.Add(-lookback)

	uc := a.loadContext(ctx, subjectID)
	loc := a.cfg.DefaultLocation
	if uc.Location != nil {
		loc = *uc.Location
	}

	symptoms := a.collectSymptoms(ctx, subjectID, since)
	weather := a.collectWeather(ctx, loc, since, now)

	a.logger.Debug("insight inputs collected", "subject", subjectID, "symptoms", len(symptoms), "weather", len(weather))
	return Aggregate{Symptoms: symptoms, Weather: weather, Context: uc}
}

func (a *Aggregator) loadContext(ctx context.Context, subjectID string) UserContext {
	if a.profiles == nil {
		return UserContext{}
	}
	uc, found, err := a.profiles.Get(ctx, subjectID)
	if err != nil {
		a.logger.Warn("profile lookup failed, continuing without context", "subject", subjectID, "error", err)
		return UserContext{}
	}
	if !found {
		return UserContext{}
	}
	return uc
}

func (a *Aggregator) collectSymptoms(ctx context.Context, subjectID string, since time.Time) []SymptomObservation {
	if a.symptoms == nil {
		return nil
	}
	rows, err := a.symptoms.ListSince(ctx, subjectID, since)
	if err != nil {
		a.logger.Warn("symptom lookup failed, continuing without symptoms", "subject", subjectID, "error", err)
		return nil
	}
	out := make([]SymptomObservation, 0, len(rows))
	for _, row := range rows {
		if row.Deleted() || row.Timestamp.Before(since) {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return keepLast(out, a.cfg.MaxSymptoms)
}

func (a *Aggregator) collectWeather(ctx context.Context, loc Location, since, now time.Time) []WeatherSnapshot {
	var cached []WeatherSnapshot
	if a.cache != nil {
		var err error
		cached, err = a.cache.Range(ctx, loc, since, now)
		if err != nil {
			a.logger.Warn("weather cache read failed", "location", loc.Key(), "error", err)
			cached = nil
		}
	}

	if !hasFresh(cached, now.Add(-a.cfg.FreshnessWindow)) {
		if snap, ok := a.fetchCurrent(ctx, loc); ok && !snap.Timestamp.Before(since) {
			cached = append(cached, snap)
		}
	}

	byTime := make(map[int64]WeatherSnapshot, len(cached))
	for _, snap := range cached {
		byTime[snap.Timestamp.Unix()] = snap
	}
	out := make([]WeatherSnapshot, 0, len(byTime))
	for _, snap := range byTime {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return keepLast(out, a.cfg.MaxWeather)
}

type fetchResult struct {
	reading WeatherReading
	err     error
}

// fetchCurrent returns within FetchTimeout even when the provider ignores its context.
func (a *Aggregator) fetchCurrent(ctx context.Context, loc Location) (WeatherSnapshot, bool) {
	if a.provider == nil {
		return WeatherSnapshot{}, false
	}
	fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	done := make(chan fetchResult, 1)
	go func() {
		reading, err := a.provider.Current(fetchCtx, loc)
		done <- fetchResult{reading: reading, err: err}
	}()

	var res fetchResult
	select {
	case res = <-done:
	case <-fetchCtx.Done():
		res.err = fetchCtx.Err()
	}
	if res.err != nil {
		a.recorder.WeatherFetch(false)
		a.logger.Warn("weather fetch failed, continuing without fresh weather", "location", loc.Key(), "error", res.err)
		return WeatherSnapshot{}, false
	}
	a.recorder.WeatherFetch(true)

	snap := res.reading.Snapshot
	if snap.Timestamp.IsZero() {
		snap.Timestamp = a.now()
	}
	return snap, true
}

func hasFresh(snaps []WeatherSnapshot, threshold time.Time) bool {
	for _, snap := range snaps {
		if !snap.Timestamp.Before(threshold) {
			return true
		}
	}
	return false
}

func keepLast[T any](items []T, limit int) []T {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	return items[len(items)-limit:]
}
