package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yanqian/weather-insight/internal/domain/insight"
)

const (
	defaultBaseURL = "https://api.open-meteo.com/v1/forecast"
	currentFields  = "temperature_2m,apparent_temperature,relative_humidity_2m,surface_pressure,wind_speed_10m"
	timeLayout     = "2006-01-02T15:04"
)

// Client fetches current conditions from Open-Meteo.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds an API client.
func NewClient(baseURL string) *Client {
	endpoint := strings.TrimSpace(baseURL)
	if endpoint == "" {
		endpoint = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Current retrieves the latest conditions at loc.
func (c *Client) Current(ctx context.Context, loc insight.Location) (insight.WeatherReading, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', 4, 64))
	query.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', 4, 64))
	query.Set("current", currentFields)
	query.Set("timezone", "GMT")
	query.Set("wind_speed_unit", "kmh")
	endpoint := c.baseURL + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return insight.WeatherReading{}, fmt.Errorf("build weather request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return insight.WeatherReading{}, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return insight.WeatherReading{}, fmt.Errorf("weather request error: status=%d body=%s", resp.StatusCode, string(payload))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return insight.WeatherReading{}, fmt.Errorf("read weather response: %w", err)
	}

	var raw apiResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return insight.WeatherReading{}, fmt.Errorf("decode weather response: %w", err)
	}
	if raw.Error {
		return insight.WeatherReading{}, fmt.Errorf("weather api error: %s", raw.Reason)
	}

	snapshot, err := normalizeCurrent(raw.Current)
	if err != nil {
		return insight.WeatherReading{}, err
	}
	return insight.WeatherReading{
		Snapshot: snapshot,
		Source:   c.baseURL,
		RawJSON:  body,
	}, nil
}

type apiResponse struct {
	Error   bool       `json:"error"`
	Reason  string     `json:"reason"`
	Current *apiRecord `json:"current"`
}

type apiRecord struct {
	Time                string   `json:"time"`
	Temperature         *float64 `json:"temperature_2m"`
	ApparentTemperature *float64 `json:"apparent_temperature"`
	RelativeHumidity    *float64 `json:"relative_humidity_2m"`
	SurfacePressure     *float64 `json:"surface_pressure"`
	WindSpeed           *float64 `json:"wind_speed_10m"`
}

func normalizeCurrent(rec *apiRecord) (insight.WeatherSnapshot, error) {
	if rec == nil {
		return insight.WeatherSnapshot{}, fmt.Errorf("weather response missing current conditions")
	}
	ts, err := parseTime(rec.Time)
	if err != nil {
		return insight.WeatherSnapshot{}, fmt.Errorf("parse weather time %q: %w", rec.Time, err)
	}
	if rec.Temperature == nil || rec.SurfacePressure == nil {
		return insight.WeatherSnapshot{}, fmt.Errorf("weather response missing temperature or pressure")
	}
	snap := insight.WeatherSnapshot{
		Timestamp:    ts,
		TemperatureC: *rec.Temperature,
		PressureHPa:  *rec.SurfacePressure,
	}
	snap.ApparentTemperatureC = valueOr(rec.ApparentTemperature, snap.TemperatureC)
	snap.HumidityPct = int(valueOr(rec.RelativeHumidity, 0) + 0.5)
	snap.WindSpeedKmh = valueOr(rec.WindSpeed, 0)
	return snap, nil
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if ts, err := time.ParseInLocation(timeLayout, value, time.UTC); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
