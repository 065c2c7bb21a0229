package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanqian/weather-insight/internal/domain/auth"
	"github.com/yanqian/weather-insight/internal/infra/config"
	"github.com/yanqian/weather-insight/pkg/metrics"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler, authSvc auth.Service, collector *metrics.Collector) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(handler.logger),
		metricsMiddleware(collector),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
		errorHandlingMiddleware(handler.logger),
		rateLimitMiddleware(cfg.HTTP.RateLimit, handler.logger),
	)

	router.GET("/healthz", handler.Health)
	if cfg.Metrics.Enabled && collector != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(collector.Registry, promhttp.HandlerOpts{})))
	}

	router.POST("/analyze", authMiddleware(authSvc), handler.Analyze)

	api := router.Group("/api/v1")
	{
		api.POST("/symptoms", handler.LogSymptom)
		api.GET("/symptoms/:subject", handler.ListSymptoms)
		api.DELETE("/symptoms/:subject/:id", handler.DeleteSymptom)

		api.GET("/profiles/:subject", handler.GetProfile)
		api.PUT("/profiles/:subject", handler.UpdateProfile)

		api.POST("/insights/:subject", handler.TriggerInsight)
		api.GET("/insights/:subject", handler.GetInsight)
		api.DELETE("/insights/:subject", handler.CancelInsight)
		api.POST("/insights/:subject/retry", handler.RetryInsight)
		api.GET("/insights/:subject/stream", handler.StreamInsight)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        withRetry(router, cfg.HTTP.Retry, handler.logger),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
