package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector groups the service metrics. It satisfies insight.Recorder.
type Collector struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	InsightRequestsTotal   *prometheus.CounterVec
	InsightRequestDuration prometheus.Histogram
	InsightAttemptsTotal   *prometheus.CounterVec
	InsightCacheTotal      *prometheus.CounterVec
	InsightSkippedTotal    prometheus.Counter
	InsightInFlight        prometheus.Gauge

	WeatherFetchTotal *prometheus.CounterVec
}

// NewCollector registers all metrics on a dedicated registry so tests can build
// more than one collector per process.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "weather_insight"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		Registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by route, method, and status",
			},
			[]string{"route", "method", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route"},
		),

		InsightRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "insight_requests_total",
				Help:      "Insight requests resolved, by outcome and error kind",
			},
			[]string{"outcome", "kind"},
		),

		InsightRequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "insight_request_duration_seconds",
				Help:      "Time spent in the loading state per insight request",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),

		InsightAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "insight_attempts_total",
				Help:      "Calls made to the analysis endpoint, by attempt number",
			},
			[]string{"attempt"},
		),

		InsightCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "insight_cache_lookups_total",
				Help:      "Memoized insight lookups by result",
			},
			[]string{"result"},
		),

		InsightSkippedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "insight_skipped_total",
				Help:      "Analyze calls skipped because there was nothing to correlate",
			},
		),

		InsightInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "insight_in_flight",
				Help:      "Presenters currently in the loading state",
			},
		),

		WeatherFetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "weather_fetch_total",
				Help:      "Weather provider fetches by result",
			},
			[]string{"result"},
		),
	}
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// LoadingStarted marks a presenter entering the loading state.
func (c *Collector) LoadingStarted() {
	if c == nil {
		return
	}
	c.InsightInFlight.Inc()
}

// LoadingFinished records how a loading phase ended. kind is empty unless outcome is "failed".
func (c *Collector) LoadingFinished(outcome, kind string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.InsightInFlight.Dec()
	c.InsightRequestsTotal.WithLabelValues(outcome, kind).Inc()
	c.InsightRequestDuration.Observe(elapsed.Seconds())
}

// Attempt counts one call to the analysis endpoint.
func (c *Collector) Attempt(n int) {
	if c == nil {
		return
	}
	c.InsightAttemptsTotal.WithLabelValues(strconv.Itoa(n)).Inc()
}

// CacheLookup counts a memoization lookup.
func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.InsightCacheTotal.WithLabelValues(result).Inc()
}

// Skipped counts an analyze call that had no data.
func (c *Collector) Skipped() {
	if c == nil {
		return
	}
	c.InsightSkippedTotal.Inc()
}

// WeatherFetch counts a provider fetch.
func (c *Collector) WeatherFetch(ok bool) {
	if c == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	c.WeatherFetchTotal.WithLabelValues(result).Inc()
}
