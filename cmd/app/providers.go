package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"
	"golang.org/x/oauth2"

	"github.com/yanqian/weather-insight/internal/domain/analysis"
	"github.com/yanqian/weather-insight/internal/domain/auth"
	"github.com/yanqian/weather-insight/internal/domain/insight"
	"github.com/yanqian/weather-insight/internal/domain/journal"
	"github.com/yanqian/weather-insight/internal/infra/config"
	"github.com/yanqian/weather-insight/internal/infra/insightapi"
	"github.com/yanqian/weather-insight/internal/infra/llm/chatgpt"
	"github.com/yanqian/weather-insight/internal/infra/profilerepo"
	"github.com/yanqian/weather-insight/internal/infra/resultcache"
	"github.com/yanqian/weather-insight/internal/infra/symptomrepo"
	"github.com/yanqian/weather-insight/internal/infra/weather/openmeteo"
	"github.com/yanqian/weather-insight/internal/infra/weatherarchive"
	"github.com/yanqian/weather-insight/internal/infra/weathercache"
	"github.com/yanqian/weather-insight/pkg/metrics"
)

// symptomRepository serves both the journal writes and the aggregator reads.
type symptomRepository interface {
	journal.SymptomRepository
	insight.SymptomStore
}

type profileRepository interface {
	journal.ProfileRepository
	insight.ProfileStore
}

func provideInsightConfig(cfg *config.Config) insight.Config {
	return insight.Config{
		Lookback:        cfg.Insight.Lookback,
		MaxSymptoms:     cfg.Insight.MaxSymptoms,
		MaxWeather:      cfg.Insight.MaxWeather,
		FreshnessWindow: cfg.Insight.Freshness,
		FetchTimeout:    cfg.Insight.FetchTimeout,
		RequestTimeout:  cfg.Insight.RequestTimeout,
		CacheTTL:        cfg.Insight.CacheTTL,
		Retain:          cfg.Insight.Retain,
		Retry: insight.RetryPolicy{
			MaxAttempts: cfg.Insight.Retry.MaxAttempts,
			BaseBackoff: cfg.Insight.Retry.BaseBackoff,
			MaxBackoff:  cfg.Insight.Retry.MaxBackoff,
		},
		DefaultLocation: insight.Location{Latitude: cfg.Weather.Latitude, Longitude: cfg.Weather.Longitude},
	}
}

func provideAuthConfig(cfg *config.Config) auth.Config {
	return auth.Config{
		Secret:   cfg.Auth.Secret,
		Issuer:   cfg.Auth.Issuer,
		TokenTTL: cfg.Auth.TokenTTL,
	}
}

func provideAnalysisConfig(cfg *config.Config) analysis.Config {
	return analysis.Config{
		Model:           cfg.LLM.Model,
		Temperature:     cfg.LLM.Temperature,
		Prompt:          cfg.Analysis.Prompt,
		MaxPromptTokens: cfg.Analysis.MaxPromptTokens,
	}
}

func provideMetrics(cfg *config.Config) *metrics.Collector {
	return metrics.NewCollector(cfg.Metrics.Namespace)
}

func provideRecorder(collector *metrics.Collector) insight.Recorder {
	return collector
}

// provideAnalysisService returns nil when no LLM key is configured; /analyze then answers 503.
func provideAnalysisService(cfg *config.Config, analysisCfg analysis.Config, logger *slog.Logger) analysis.Service {
	client, err := chatgpt.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	if err != nil {
		logger.Warn("llm not configured, analysis endpoint disabled", "error", err)
		return nil
	}
	return analysis.NewService(analysisCfg, client, logger)
}

func provideTokenSource(cfg *config.Config, authSvc auth.Service, logger *slog.Logger) oauth2.TokenSource {
	var issuer auth.Issuer
	if cfg.Auth.Secret != "" {
		issuer = authSvc
	}
	if strings.TrimSpace(cfg.Insight.APIToken) == "" && issuer == nil {
		logger.Warn("no insight api token or auth secret configured, analysis calls are unauthenticated")
	}
	return auth.NewTokenSource(cfg.Insight.APIToken, issuer, cfg.Insight.ClientSubject)
}

func provideInsightSender(cfg *config.Config, tokens oauth2.TokenSource) insight.Sender {
	return insightapi.NewClient(cfg.Insight.APIBaseURL, tokens, &http.Client{})
}

func provideWeatherProvider(cfg *config.Config, store weathercache.Store, archive insight.WeatherArchive, logger *slog.Logger) insight.WeatherProvider {
	return weathercache.NewCachingProvider(openmeteo.NewClient(cfg.Weather.APIBaseURL), store, archive, cfg.Insight.FetchTimeout, logger)
}

func provideWeatherArchive(cfg *config.Config, logger *slog.Logger) insight.WeatherArchive {
	if !cfg.Archive.Enabled {
		return nil
	}
	archive, err := weatherarchive.NewMinioArchive(cfg.Archive.Endpoint, cfg.Archive.AccessKey, cfg.Archive.SecretKey, cfg.Archive.Bucket, cfg.Archive.Region, logger)
	if err != nil {
		logger.Error("failed to initialize weather archive, archiving disabled", "error", err)
		return nil
	}
	logger.Info("weather archive enabled", "bucket", cfg.Archive.Bucket)
	return archive
}

func providePostgresPool(cfg *config.Config, logger *slog.Logger) *pgxpool.Pool {
	dsn := strings.TrimSpace(cfg.Storage.Postgres.DSN)
	if dsn == "" {
		logger.Info("postgres dsn not set, using memory repositories")
		return nil
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory repositories", "error", err)
		return nil
	}
	if cfg.Storage.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Storage.Postgres.MaxConns
	}
	if cfg.Storage.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Storage.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory repositories", "error", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory repositories", "error", err)
		pool.Close()
		return nil
	}
	logger.Info("postgres repositories enabled")
	return pool
}

func provideSymptomRepository(pool *pgxpool.Pool) symptomRepository {
	if pool == nil {
		return symptomrepo.NewMemoryRepository()
	}
	return symptomrepo.NewPostgresRepository(pool)
}

func provideProfileRepository(pool *pgxpool.Pool) profileRepository {
	if pool == nil {
		return profilerepo.NewMemoryRepository()
	}
	return profilerepo.NewPostgresRepository(pool)
}

func provideJournalSymptoms(repo symptomRepository) journal.SymptomRepository { return repo }

func provideJournalProfiles(repo profileRepository) journal.ProfileRepository { return repo }

func provideSymptomStore(repo symptomRepository) insight.SymptomStore { return repo }

func provideProfileStore(repo profileRepository) insight.ProfileStore { return repo }

// provideValkeyClient returns nil when valkey is disabled or unreachable.
func provideValkeyClient(cfg *config.Config, logger *slog.Logger) valkey.Client {
	if !cfg.Storage.Valkey.Enabled {
		return nil
	}
	opt, err := buildValkeyOptions(cfg.Storage.Valkey.Addr)
	if err != nil {
		logger.Error("invalid valkey configuration, falling back to memory caches", "error", err)
		return nil
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, falling back to memory caches", "error", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, falling back to memory caches", "error", err)
		client.Close()
		return nil
	}
	logger.Info("valkey caches enabled", "addr", cfg.Storage.Valkey.Addr)
	return client
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	if strings.Contains(addr, "://") {
		return valkey.ParseURL(addr)
	}
	return valkey.ClientOption{InitAddress: []string{addr}}, nil
}

func provideWeatherStore(cfg *config.Config, client valkey.Client) weathercache.Store {
	if client == nil {
		return weathercache.NewMemoryCache(cfg.Weather.Retention)
	}
	return weathercache.NewValkeyCache(client, cfg.Storage.Valkey.Prefix, cfg.Weather.Retention)
}

// provideWeatherCache hands the aggregator a read-only view of the store.
func provideWeatherCache(store weathercache.Store) insight.WeatherCache {
	return store
}

func provideResultCache(cfg *config.Config, client valkey.Client) insight.ResultCache {
	if cfg.Insight.CacheTTL <= 0 {
		return nil
	}
	if client == nil {
		return resultcache.NewMemoryCache(cfg.Insight.CacheSize, cfg.Insight.CacheTTL)
	}
	return resultcache.NewValkeyCache(client, cfg.Storage.Valkey.Prefix)
}
