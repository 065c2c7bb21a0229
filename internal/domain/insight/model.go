package insight

import (
	"fmt"
	"time"
)

// SymptomObservation is one logged symptom entry.
type SymptomObservation struct {
	ID          string     `json:"id"`
	SubjectID   string     `json:"subjectId"`
	Timestamp   time.Time  `json:"timestamp"`
	SymptomType string     `json:"symptomType"`
	Severity    int        `json:"severity"`
	Notes       string     `json:"notes,omitempty"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// Deleted reports whether the observation was soft-deleted.
func (o SymptomObservation) Deleted() bool {
	return o.DeletedAt != nil
}

// WeatherSnapshot is a point-in-time reading from the weather provider.
type WeatherSnapshot struct {
	Timestamp            time.Time `json:"timestamp"`
	TemperatureC         float64   `json:"temperatureC"`
	ApparentTemperatureC float64   `json:"apparentTemperatureC"`
	HumidityPct          int       `json:"humidityPct"`
	PressureHPa          float64   `json:"pressureHPa"`
	WindSpeedKmh         float64   `json:"windSpeedKmh"`
}

// Location identifies where weather is looked up.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Key is a stable cache key with roughly 1km precision.
func (l Location) Key() string {
	return fmt.Sprintf("%.2f,%.2f", l.Latitude, l.Longitude)
}

// UserContext is the profile slice the pipeline reads. It is owned by the profile store.
type UserContext struct {
	Diagnosis     string    `json:"diagnosis,omitempty"`
	AgeRange      *int      `json:"ageRange,omitempty"`
	Sensitivities []string  `json:"sensitivities,omitempty"`
	Location      *Location `json:"location,omitempty"`
}

// InsightRequest is built fresh for every analysis and never persisted.
type InsightRequest struct {
	Symptoms  []SymptomObservation
	Weather   []WeatherSnapshot
	Diagnosis string
}

// InsightResult is the decoded analysis response.
type InsightResult struct {
	Message   string   `json:"message"`
	Citations []string `json:"citations"`
}

// Aggregate is what the Aggregator hands to the builder.
type Aggregate struct {
	Symptoms []SymptomObservation
	Weather  []WeatherSnapshot
	Context  UserContext
}

// Config wires runtime knobs for the insight pipeline.
type Config struct {
	Lookback        time.Duration
	MaxSymptoms     int
	MaxWeather      int
	FreshnessWindow time.Duration
	FetchTimeout    time.Duration
	RequestTimeout  time.Duration
	CacheTTL        time.Duration
	Retain          time.Duration
	Retry           RetryPolicy
	DefaultLocation Location
}

func (c Config) withDefaults() Config {
	if c.Lookback <= 0 {
		c.Lookback = 72 * time.Hour
	}
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = time.Hour
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 20 * time.Second
	}
	if c.Retain <= 0 {
		c.Retain = 30 * time.Minute
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 1
	}
	return c
}
