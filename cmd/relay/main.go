package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/thevtm/baker-news/internal/cache"
	"github.com/thevtm/baker-news/internal/db"
	"github.com/thevtm/baker-news/internal/hub"
	"github.com/thevtm/baker-news/internal/relay"
	"github.com/thevtm/baker-news/internal/store"
	"github.com/thevtm/baker-news/pkg/config"
	"github.com/thevtm/baker-news/pkg/logging"
	"github.com/thevtm/baker-news/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if !cfg.Redis.Enabled {
		fmt.Fprintln(os.Stderr, "The relay publishes through Redis: redis_url is required")
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Baker News Relay")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer redisCache.Close()

	var waker store.Waker
	if cfg.Database.Notify {
		listener, err := db.NewListener(cfg.Database.URL, logger)
		if err != nil {
			logger.Fatal("Failed to listen for appended facts", zap.Error(err))
		}
		defer listener.Close()
		waker = listener
	}

	// Delivery to API processes is best-effort: events published while no
	// API process is subscribed are archived without reaching a feed.
	bridge := hub.NewBridge(redisCache, cfg.Redis.Channel, logger)
	worker, err := relay.NewWorker(database.Queue(), database.Store(), waker, bridge, relay.OptionsFromConfig(cfg.Relay), logger)
	if err != nil {
		logger.Fatal("Failed to create relay worker", zap.Error(err))
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.PrometheusEnabled {
		metricsServer := telemetry.MetricsServer(&cfg.Telemetry)
		go func() {
			logger.Info("Metrics server starting", zap.String("address", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
		defer metricsServer.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Supervise(ctx)
	}()

	logger.Info("Relay initialized, waiting for interrupt...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down relay...")
	cancel()
	<-done
	logger.Info("Relay exited")
}
