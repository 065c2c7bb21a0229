//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/weather-insight/internal/bootstrap"
	"github.com/yanqian/weather-insight/internal/domain/auth"
	"github.com/yanqian/weather-insight/internal/domain/insight"
	"github.com/yanqian/weather-insight/internal/domain/journal"
	"github.com/yanqian/weather-insight/internal/infra/config"
	httpiface "github.com/yanqian/weather-insight/internal/interface/http"
	"github.com/yanqian/weather-insight/pkg/logger"
)

func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		provideInsightConfig,
		provideAuthConfig,
		provideAnalysisConfig,
		provideMetrics,
		provideRecorder,
		provideAnalysisService,
		provideTokenSource,
		provideInsightSender,
		provideWeatherProvider,
		provideWeatherArchive,
		providePostgresPool,
		provideSymptomRepository,
		provideProfileRepository,
		provideJournalSymptoms,
		provideJournalProfiles,
		provideSymptomStore,
		provideProfileStore,
		provideValkeyClient,
		provideWeatherStore,
		provideWeatherCache,
		provideResultCache,
		auth.NewService,
		journal.NewService,
		insight.NewAggregator,
		insight.NewService,
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
