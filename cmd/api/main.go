package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/jobs"
	"server/internal/metrics"
	"server/internal/providers/genai"
	"server/internal/viz"
)

func main() {
	// .env is optional.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	geminiClient, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: &http.Client{Timeout: cfg.GeminiTimeout},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure gemini client")
	}

	registry := viz.NewRegistry(geminiClient, logger)
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)
	store := jobs.NewStore()

	manager := jobs.NewManager(store, registry, collector, logger, jobs.Config{
		MaxAttempts:    cfg.JobMaxAttempts,
		RetryBaseDelay: cfg.JobRetryBase,
		TTL:            cfg.JobTTL,
		MaxWorkers:     cfg.JobMaxWorkers,
		SweepInterval:  cfg.JobSweepInterval,
	})

	app := handlers.NewApp(manager, logger, promRegistry)
	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("model", geminiClient.Model()).Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	manager.Shutdown()
	logger.Info().Msg("server stopped")
}
