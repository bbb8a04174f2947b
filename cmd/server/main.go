package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dengueviewer/atlas-service/internal/adapter/httpapi"
	kafkaadapter "github.com/dengueviewer/atlas-service/internal/adapter/kafka"
	"github.com/dengueviewer/atlas-service/internal/atlas"
	"github.com/dengueviewer/atlas-service/internal/config"
	"github.com/dengueviewer/atlas-service/internal/forecast"
	"github.com/dengueviewer/atlas-service/internal/observability"
)

// forecastRegion is the monthly region the forecast model trains on.
const forecastRegion = "thailand"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	regions, err := config.LoadRegions(cfg.RegionsFile, cfg.DataDir)
	if err != nil {
		logger.Error("failed to load region descriptors", "error", err)
		os.Exit(1)
	}

	// Case export is feature-flagged via EXPORT_ENABLED.
	var exporter atlas.Exporter
	var writer *kafkaadapter.Writer
	if cfg.ExportEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		exporter = writer
		logger.Info("case export enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("case export disabled")
	}

	a := atlas.New(regions, exporter, logger, metrics, cfg.SimplifyTolerance, cfg.SliceCacheSize)

	var model httpapi.ModelProvider
	if a.Has(forecastRegion) {
		model = forecast.NewService(a, forecastRegion, cfg.ForecastCutoffYear, logger, metrics)
	} else {
		logger.Info("forecast model disabled, region not configured", "region", forecastRegion)
	}

	srv := httpapi.NewServer(cfg.HTTPAddr, a, model, a, cfg.CORSOrigins, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Warm the world map so the first page load does not pay the build.
	go a.Warm(ctx, "global")

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
