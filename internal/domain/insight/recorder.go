package insight

import "time"

// Recorder receives pipeline measurements. *metrics.Collector implements it.
type Recorder interface {
	LoadingStarted()
	LoadingFinished(outcome, kind string, elapsed time.Duration)
	Attempt(n int)
	CacheLookup(hit bool)
	Skipped()
	WeatherFetch(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) LoadingStarted() {}
func (nopRecorder) LoadingFinished(string, string, time.Duration) {}
func (nopRecorder) Attempt(int) {}
func (nopRecorder) CacheLookup(bool) {}
func (nopRecorder) Skipped() {}
func (nopRecorder) WeatherFetch(bool) {}
