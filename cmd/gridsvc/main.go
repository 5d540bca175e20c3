package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/element-grid-service/internal/adapter/dataset"
	"github.com/couchcryptid/element-grid-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/element-grid-service/internal/adapter/kafka"
	"github.com/couchcryptid/element-grid-service/internal/adapter/mapbox"
	"github.com/couchcryptid/element-grid-service/internal/config"
	"github.com/couchcryptid/element-grid-service/internal/domain"
	"github.com/couchcryptid/element-grid-service/internal/observability"
	"github.com/couchcryptid/element-grid-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", "element-grid")
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("service exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	source, err := dataset.NewFileSource(cfg.DatasetPath, cfg.DatasetFormat)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{pipeline.WithReloadInterval(cfg.ReloadInterval)}

	if cfg.SamplesPath != "" {
		samples, err := dataset.NewFileSource(cfg.SamplesPath, cfg.SamplesFormat)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithSamples(samples, cfg.SampleFields))
		logger.Info("samples enabled", "path", cfg.SamplesPath, "join", cfg.SampleFields.Join)
	}

	// Geocoding is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		var geocoder domain.Geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		opts = append(opts, pipeline.WithGeocoder(geocoder, cfg.GeoFields))
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		opts = append(opts, pipeline.WithPublisher(writer))
		logger.Info("layout publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaLayoutTopic)
	}

	p := pipeline.New(source, domain.Options{Fields: cfg.Fields, Bounds: cfg.Bounds}, logger, metrics, opts...)
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return p.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if writer != nil {
			if err := writer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
