package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/quake-alert-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/quake-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/quake-alert-service/internal/adapter/line"
	"github.com/couchcryptid/quake-alert-service/internal/adapter/mapbox"
	"github.com/couchcryptid/quake-alert-service/internal/adapter/usgs"
	"github.com/couchcryptid/quake-alert-service/internal/config"
	"github.com/couchcryptid/quake-alert-service/internal/domain"
	"github.com/couchcryptid/quake-alert-service/internal/notify"
	"github.com/couchcryptid/quake-alert-service/internal/observability"
	"github.com/couchcryptid/quake-alert-service/internal/poller"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	var opts []poller.Option
	opts = append(opts, poller.WithClock(clock))

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		opts = append(opts, poller.WithGeocoder(mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)))
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var writer *kafkaadapter.Writer
	if cfg.ArchiveEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		opts = append(opts, poller.WithArchive(writer))
		logger.Info("alert archive enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAlertTopic)
	}

	feed := usgs.NewClient(cfg.FeedURL, cfg.FeedTimeout, metrics, logger)
	channel := line.NewClient(cfg.LineChannelAccessToken, cfg.LineBaseURL, cfg.LineTimeout, logger)
	dispatcher := notify.New(channel, notify.Options{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseRetryDelay,
	}, clock, metrics, logger)

	settings := poller.Settings{
		Region: domain.BoundingBox{
			LatMin: cfg.LatMin,
			LatMax: cfg.LatMax,
			LonMin: cfg.LonMin,
			LonMax: cfg.LonMax,
		},
		MinMagnitude:    cfg.MinMagnitude,
		CheckInterval:   cfg.CheckInterval,
		MessageDelay:    cfg.MessageDelay,
		Dedup:           cfg.DedupEnabled,
		AnnounceTimeout: cfg.ShutdownTimeout,
	}
	p := poller.New(feed, dispatcher, domain.NewFormatter(cfg.Location), settings, logger, metrics, opts...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start polling loop. Run returns after its own shutdown announcement.
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		runErr = <-done
	case runErr = <-done:
	}
	if runErr != nil {
		logger.Error("poller error", "error", runErr, "state", p.State().String())
	}

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
	if runErr != nil {
		cancel()
		os.Exit(1)
	}
}
