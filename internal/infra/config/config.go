package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	LLM      LLMConfig      `yaml:"llm"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Insight  InsightConfig  `yaml:"insight"`
	Weather  WeatherConfig  `yaml:"weather"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
	Retry          RetryConfig     `yaml:"retry"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// RetryConfig configures best-effort retries for idempotent requests.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Exclude     []string      `yaml:"exclude"`
}

// LLMConfig contains ChatGPT/OpenAI settings.
type LLMConfig struct {
	APIKey      string  `yaml:"apiKey"`
	BaseURL     string  `yaml:"baseUrl"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

// AnalysisConfig controls the locally hosted analysis endpoint.
type AnalysisConfig struct {
	Prompt          string `yaml:"prompt"`
	MaxPromptTokens int    `yaml:"maxPromptTokens"`
}

// InsightConfig drives the insight pipeline and its client.
type InsightConfig struct {
	APIBaseURL     string             `yaml:"apiBaseUrl"`
	APIToken       string             `yaml:"apiToken"`
	ClientSubject  string             `yaml:"clientSubject"`
	Lookback       time.Duration      `yaml:"lookback"`
	MaxSymptoms    int                `yaml:"maxSymptoms"`
	MaxWeather     int                `yaml:"maxWeather"`
	RequestTimeout time.Duration      `yaml:"requestTimeout"`
	FetchTimeout   time.Duration      `yaml:"fetchTimeout"`
	Freshness      time.Duration      `yaml:"freshness"`
	CacheTTL       time.Duration      `yaml:"cacheTtl"`
	CacheSize      int                `yaml:"cacheSize"`
	Retain         time.Duration      `yaml:"retain"`
	Retry          InsightRetryConfig `yaml:"retry"`
}

// InsightRetryConfig bounds automatic retries of the analysis call.
type InsightRetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	MaxBackoff  time.Duration `yaml:"maxBackoff"`
}

// WeatherConfig selects the weather provider and default location.
type WeatherConfig struct {
	APIBaseURL string        `yaml:"apiBaseUrl"`
	Latitude   float64       `yaml:"latitude"`
	Longitude  float64       `yaml:"longitude"`
	Retention  time.Duration `yaml:"retention"`
}

// AuthConfig controls bearer token issuance and validation.
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	TokenTTL time.Duration `yaml:"tokenTtl"`
}

// StorageConfig groups the persistence backends.
type StorageConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
	Valkey   ValkeyConfig   `yaml:"valkey"`
}

// ValkeyConfig contains connection information for cache storage.
type ValkeyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Prefix  string `yaml:"prefix"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// ArchiveConfig configures raw weather payload archiving to S3-compatible storage.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.HTTP.Address, "HTTP_ADDRESS")
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	setBool(&cfg.HTTP.RateLimit.Enabled, "HTTP_RATE_LIMIT_ENABLED")
	setInt(&cfg.HTTP.RateLimit.RequestsPerMinute, "HTTP_RATE_LIMIT_RPM")
	setInt(&cfg.HTTP.RateLimit.Burst, "HTTP_RATE_LIMIT_BURST")
	setBool(&cfg.HTTP.Retry.Enabled, "HTTP_RETRY_ENABLED")
	setInt(&cfg.HTTP.Retry.MaxAttempts, "HTTP_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.HTTP.Retry.BaseBackoff, "HTTP_RETRY_BASE_BACKOFF")

	setString(&cfg.LLM.APIKey, "LLM_API_KEY")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.LLM.Temperature = float32(parsed)
		}
	}
	setString(&cfg.Analysis.Prompt, "ANALYSIS_PROMPT")
	setInt(&cfg.Analysis.MaxPromptTokens, "ANALYSIS_MAX_PROMPT_TOKENS")

	setString(&cfg.Insight.APIBaseURL, "INSIGHT_API_BASE_URL")
	setString(&cfg.Insight.APIToken, "INSIGHT_API_TOKEN")
	setDuration(&cfg.Insight.Lookback, "INSIGHT_LOOKBACK")
	setInt(&cfg.Insight.MaxSymptoms, "INSIGHT_MAX_SYMPTOMS")
	setInt(&cfg.Insight.MaxWeather, "INSIGHT_MAX_WEATHER")
	setDuration(&cfg.Insight.RequestTimeout, "INSIGHT_REQUEST_TIMEOUT")
	setDuration(&cfg.Insight.FetchTimeout, "INSIGHT_FETCH_TIMEOUT")
	setDuration(&cfg.Insight.Freshness, "INSIGHT_FRESHNESS")
	setDuration(&cfg.Insight.CacheTTL, "INSIGHT_CACHE_TTL")
	setDuration(&cfg.Insight.Retain, "INSIGHT_RETAIN")
	setInt(&cfg.Insight.Retry.MaxAttempts, "INSIGHT_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Insight.Retry.BaseBackoff, "INSIGHT_RETRY_BASE_BACKOFF")
	setDuration(&cfg.Insight.Retry.MaxBackoff, "INSIGHT_RETRY_MAX_BACKOFF")

	setString(&cfg.Weather.APIBaseURL, "WEATHER_API_BASE_URL")
	setFloat(&cfg.Weather.Latitude, "WEATHER_LATITUDE")
	setFloat(&cfg.Weather.Longitude, "WEATHER_LONGITUDE")

	setString(&cfg.Auth.Secret, "AUTH_SECRET")
	setString(&cfg.Auth.Issuer, "AUTH_ISSUER")
	setDuration(&cfg.Auth.TokenTTL, "AUTH_TOKEN_TTL")

	setString(&cfg.Storage.Postgres.DSN, "POSTGRES_DSN")
	if v := os.Getenv("POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Storage.Postgres.MaxConns = int32(parsed)
		}
	}
	setBool(&cfg.Storage.Valkey.Enabled, "VALKEY_ENABLED")
	setString(&cfg.Storage.Valkey.Addr, "VALKEY_ADDR")

	setBool(&cfg.Archive.Enabled, "ARCHIVE_ENABLED")
	setString(&cfg.Archive.Endpoint, "ARCHIVE_ENDPOINT")
	setString(&cfg.Archive.AccessKey, "ARCHIVE_ACCESS_KEY")
	setString(&cfg.Archive.SecretKey, "ARCHIVE_SECRET_KEY")
	setString(&cfg.Archive.Bucket, "ARCHIVE_BUCKET")
	setString(&cfg.Archive.Region, "ARCHIVE_REGION")

	setBool(&cfg.Metrics.Enabled, "METRICS_ENABLED")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             20,
			},
			Retry: RetryConfig{
				Enabled:     true,
				MaxAttempts: 3,
				BaseBackoff: 150 * time.Millisecond,
				Exclude: []string{
					"/analyze",
					"/api/v1/symptoms",
					"/api/v1/insights/:subject",
					"/api/v1/insights/:subject/retry",
					"/api/v1/insights/:subject/stream",
				},
			},
		},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
		},
		Analysis: AnalysisConfig{
			Prompt:          "You help people with chronic conditions notice how weather may relate to their symptoms. You never diagnose or recommend treatment.",
			MaxPromptTokens: 3000,
		},
		Insight: InsightConfig{
			APIBaseURL:     "http://127.0.0.1:8080",
			ClientSubject:  "insight-client",
			Lookback:       72 * time.Hour,
			MaxSymptoms:    200,
			MaxWeather:     200,
			RequestTimeout: 20 * time.Second,
			FetchTimeout:   5 * time.Second,
			Freshness:      time.Hour,
			CacheTTL:       5 * time.Minute,
			CacheSize:      1024,
			Retain:         30 * time.Minute,
			Retry: InsightRetryConfig{
				MaxAttempts: 2,
				BaseBackoff: 500 * time.Millisecond,
				MaxBackoff:  5 * time.Second,
			},
		},
		Weather: WeatherConfig{
			APIBaseURL: "https://api.open-meteo.com/v1/forecast",
			Latitude:   1.3521,
			Longitude:  103.8198,
			Retention:  7 * 24 * time.Hour,
		},
		Auth: AuthConfig{
			Issuer:   "weather-insight",
			TokenTTL: time.Hour,
		},
		Storage: StorageConfig{
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
			Valkey: ValkeyConfig{
				Prefix: "weather-insight",
			},
		},
		Archive: ArchiveConfig{
			Bucket: "weather-raw",
			Region: "auto",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "weather_insight",
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.HTTP.Retry.Enabled {
		if c.HTTP.Retry.MaxAttempts <= 0 {
			return errors.New("http.retry.maxAttempts must be positive")
		}
		if c.HTTP.Retry.BaseBackoff <= 0 {
			return errors.New("http.retry.baseBackoff must be positive")
		}
	}
	if strings.TrimSpace(c.Insight.APIBaseURL) == "" {
		return errors.New("insight.apiBaseUrl cannot be empty")
	}
	if c.Insight.Lookback <= 0 {
		return errors.New("insight.lookback must be positive")
	}
	if c.Insight.MaxSymptoms <= 0 || c.Insight.MaxWeather <= 0 {
		return errors.New("insight.maxSymptoms and insight.maxWeather must be positive")
	}
	if c.Insight.RequestTimeout <= 0 {
		return errors.New("insight.requestTimeout must be positive")
	}
	if c.Insight.FetchTimeout <= 0 {
		return errors.New("insight.fetchTimeout must be positive")
	}
	if c.Insight.CacheTTL < 0 {
		return errors.New("insight.cacheTtl cannot be negative")
	}
	if c.Insight.Retain <= 0 {
		return errors.New("insight.retain must be positive")
	}
	if c.Insight.Retry.MaxAttempts <= 0 {
		return errors.New("insight.retry.maxAttempts must be positive")
	}
	if c.Insight.Retry.MaxBackoff > 0 && c.Insight.Retry.MaxBackoff < c.Insight.Retry.BaseBackoff {
		return errors.New("insight.retry.maxBackoff cannot be below baseBackoff")
	}
	if c.Weather.Latitude < -90 || c.Weather.Latitude > 90 || c.Weather.Longitude < -180 || c.Weather.Longitude > 180 {
		return errors.New("weather.latitude/longitude out of range")
	}
	if c.Analysis.MaxPromptTokens < 0 {
		return errors.New("analysis.maxPromptTokens cannot be negative")
	}
	if c.Storage.Valkey.Enabled && strings.TrimSpace(c.Storage.Valkey.Addr) == "" {
		return errors.New("storage.valkey.addr cannot be empty when valkey is enabled")
	}
	if c.Archive.Enabled {
		if strings.TrimSpace(c.Archive.Endpoint) == "" || strings.TrimSpace(c.Archive.Bucket) == "" {
			return errors.New("archive.endpoint and archive.bucket are required when archiving is enabled")
		}
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.tokenTtl must be positive")
	}
	return nil
}
