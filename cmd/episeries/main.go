// Command episeries builds the world from the global and national feeds,
// hands it to the configured sinks, and optionally serves the query API.
//
// Exit status:
//
//	0  success
//	1  malformed input (feed or reference format, unreadable files)
//	2  invalid configuration or usage
//	3  the global feed structure disagrees with the built hierarchy
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/episeries-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/episeries-etl/internal/adapter/kafka"
	"github.com/couchcryptid/episeries-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/episeries-etl/internal/config"
	"github.com/couchcryptid/episeries-etl/internal/domain"
	"github.com/couchcryptid/episeries-etl/internal/export"
	"github.com/couchcryptid/episeries-etl/internal/observability"
	"github.com/couchcryptid/episeries-etl/internal/pipeline"
	"github.com/couchcryptid/episeries-etl/internal/reference"
	"github.com/couchcryptid/episeries-etl/internal/snapshot"
)

const (
	exitOK        = 0
	exitFormat    = 1
	exitUsage     = 2
	exitStructure = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		return exitUsage
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitUsage
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ref, err := reference.Load(cfg.CountyReference, cfg.StateReference)
	if err != nil {
		logger.Error("failed to load reference tables", "error", err)
		return exitCode(err)
	}
	counties, states := ref.Counts()
	logger.Info("reference tables loaded", "counties", counties, "states", states)

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var builder pipeline.Builder = pipeline.NewIngester(pipeline.IngestOptions{
		GlobalDir:   cfg.GlobalFeedDir,
		NationalDir: cfg.NationalFeedDir,
		Smooth:      cfg.Smooth,
		Workers:     cfg.AggregateWorkers,
	}, ref, geocoder, logger, metrics)
	if cfg.SnapshotPath != "" {
		sources := []string{cfg.GlobalFeedDir, cfg.NationalFeedDir, cfg.CountyReference, cfg.StateReference}
		builder = snapshot.NewCachedBuilder(builder, cfg.SnapshotPath, sources, cfg.AggregateWorkers, logger, metrics)
	}

	var loaders []pipeline.Loader
	if cfg.ExportDir != "" {
		loaders = append(loaders,
			export.NewStandard(cfg.ExportDir, logger, metrics),
			export.NewTransposed(cfg.ExportDir, logger, metrics),
			export.NewShapefile(cfg.ExportDir, logger, metrics),
		)
	}
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger, metrics)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		loaders = append(loaders, writer)
	}

	p := pipeline.New(builder, loaders, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Serve {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
			return exitCode(err)
		}
		return exitOK
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	code := exitOK
	if err := p.Run(ctx); err != nil {
		logger.Error("pipeline error", "error", err)
		code = exitCode(err)
		stop()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return code
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrStructure):
		return exitStructure
	case errors.Is(err, domain.ErrUsage):
		return exitUsage
	default:
		return exitFormat
	}
}
