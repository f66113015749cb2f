package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thevtm/baker-news/internal/api"
	"github.com/thevtm/baker-news/internal/cache"
	"github.com/thevtm/baker-news/internal/commands"
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
	if err := cfg.ValidateServer(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Baker News API Server")

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

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer redisCache.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var workers sync.WaitGroup

	eventHub := hub.New(cfg.Hub.BufferSize, logger)
	st := database.Store()

	// Events reach the hub either from the embedded relay or, when the relay
	// runs as its own process, through Redis.
	if redisCache != nil {
		bridge := hub.NewBridge(redisCache, cfg.Redis.Channel, logger)
		workers.Add(1)
		go func() {
			defer workers.Done()
			forward(ctx, bridge, eventHub, logger)
		}()
	}

	if cfg.Relay.Embedded {
		var publisher relay.Publisher = hub.Local{Hub: eventHub}
		if redisCache != nil {
			// Other API replicas listen on Redis, and so does this one. A
			// publish nobody received is retried, so events are not lost
			// while the forwarder resubscribes.
			publisher = hub.NewBridge(redisCache, cfg.Redis.Channel, logger).RequireReceivers()
		}

		var waker store.Waker
		if cfg.Database.Notify {
			listener, err := db.NewListener(cfg.Database.URL, logger)
			if err != nil {
				logger.Fatal("Failed to listen for appended facts", zap.Error(err))
			}
			defer listener.Close()
			waker = listener
		}

		worker, err := relay.NewWorker(database.Queue(), st, waker, publisher, relay.OptionsFromConfig(cfg.Relay), logger)
		if err != nil {
			logger.Fatal("Failed to create relay worker", zap.Error(err))
		}
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Supervise(ctx)
		}()
	}

	var metricsServer *http.Server
	if cfg.Telemetry.Enabled && cfg.Telemetry.PrometheusEnabled {
		metricsServer = telemetry.MetricsServer(&cfg.Telemetry)
		go func() {
			logger.Info("Metrics server starting", zap.String("address", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	checks := []api.HealthCheck{{Name: "database", Check: database.Health}}
	if redisCache != nil {
		checks = append(checks, api.HealthCheck{Name: "redis", Check: redisCache.Health})
	}
	engine := newEngine(st, eventHub, logger, checks...)

	// Create HTTP server
	srv := newHTTPServer(ctx, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), engine)

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Request contexts derive from ctx, so cancelling it also ends open
	// feed streams before HTTP is drained.
	cancel()
	workers.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// newEngine builds the gin engine serving commands, feeds and health checks
func newEngine(st store.Store, eventHub *hub.Hub, logger *zap.Logger, checks ...api.HealthCheck) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	router := api.NewRouter(commands.New(st, logger), st, eventHub, logger, checks...)
	router.SetupRoutes(engine)
	return engine
}

// newHTTPServer creates the API server. Every request context is derived
// from ctx.
func newHTTPServer(ctx context.Context, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

// forward keeps the Redis bridge feeding the hub, resubscribing after failures
func forward(ctx context.Context, bridge *hub.Bridge, h *hub.Hub, logger *zap.Logger) {
	for {
		err := bridge.Forward(ctx, h)
		if ctx.Err() != nil {
			return
		}
		logger.Error("Event forwarding stopped, resubscribing", zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
