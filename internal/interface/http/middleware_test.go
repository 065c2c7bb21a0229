package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/weather-insight/internal/infra/config"
)

func TestWithRetry_RetriesPostOnServerError(t *testing.T) {
	attempts := 0
	var bodies []string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		raw, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(raw))
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"obs-1"}`))
	})
	cfg := config.RetryConfig{Enabled: true, MaxAttempts: 3, BaseBackoff: time.Millisecond}

	rec := httptest.NewRecorder()
	withRetry(inner, cfg, newTestLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/symptoms", strings.NewReader(`{"severity":4}`)))

	require.Equal(t, 3, attempts)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, `{"id":"obs-1"}`, rec.Body.String())
	for _, body := range bodies {
		require.Equal(t, `{"severity":4}`, body)
	}
}

func TestWithRetry_SkipsExcludedTemplatesAndReads(t *testing.T) {
	cfg := config.RetryConfig{
		Enabled:     true,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		Exclude:     []string{"/analyze", "/api/v1/insights/:subject", "/api/v1/insights/:subject/retry"},
	}
	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/analyze", 1},
		{http.MethodPost, "/api/v1/insights/user-1", 1},
		{http.MethodPost, "/api/v1/insights/user-1/retry", 1},
		{http.MethodGet, "/api/v1/symptoms/user-1", 1},
		{http.MethodPost, "/api/v1/insights/user-1/other", 3},
		{http.MethodPost, "/api/v1/symptoms", 3},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			attempts := 0
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts++
				w.WriteHeader(http.StatusBadGateway)
			})
			rec := httptest.NewRecorder()
			withRetry(inner, cfg, newTestLogger()).ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			require.Equal(t, tc.want, attempts)
			require.Equal(t, http.StatusBadGateway, rec.Code)
		})
	}
}

func TestRouteMatcher(t *testing.T) {
	m := newRouteMatcher([]string{"/analyze", "/api/v1/insights/:subject/stream"})

	require.True(t, m.match("/analyze"))
	require.True(t, m.match("/api/v1/insights/abc/stream"))
	require.False(t, m.match("/api/v1/insights//stream"))
	require.False(t, m.match("/api/v1/insights/abc"))
	require.False(t, m.match("/analyze/extra"))
}

func TestIPRateLimiter_RefillsOverTime(t *testing.T) {
	now := time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC)
	limiter := newIPRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60, Burst: 2}, func() time.Time { return now })

	require.True(t, limiter.allow("10.0.0.1"))
	require.True(t, limiter.allow("10.0.0.1"))
	require.False(t, limiter.allow("10.0.0.1"))
	require.True(t, limiter.allow("10.0.0.2"))

	now = now.Add(30 * time.Second)
	require.True(t, limiter.allow("10.0.0.1"))
	require.True(t, limiter.allow("10.0.0.1"))
	require.False(t, limiter.allow("10.0.0.1"))
}
