// Command pagestated runs the session page store registry with its idle page
// cleaner and the admin HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/objectfs/pagestate/internal/circuit"
	"github.com/objectfs/pagestate/internal/config"
	"github.com/objectfs/pagestate/internal/datastore"
	"github.com/objectfs/pagestate/internal/metrics"
	"github.com/objectfs/pagestate/internal/pagestore"
	"github.com/objectfs/pagestate/internal/render"
	"github.com/objectfs/pagestate/pkg/api"
	"github.com/objectfs/pagestate/pkg/retry"
	"github.com/objectfs/pagestate/pkg/types"
	"github.com/objectfs/pagestate/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "pagestated: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.NewDefault()
	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Monitoring.Metrics.Enabled,
		Namespace: cfg.Monitoring.Metrics.Namespace,
	})
	if err != nil {
		return err
	}

	dataStore, err := openDataStore(ctx, cfg.DataStore, logger)
	if err != nil {
		return err
	}
	if dataStore != nil {
		if _, err := datastore.PurgeSessions(ctx, dataStore, logger); err != nil {
			_ = dataStore.Close()
			return err
		}
	}
	var breaker *circuit.Breaker
	if dataStore != nil && cfg.DataStore.CircuitBreaker.Enabled {
		guarded := datastore.NewGuardedStore(dataStore, circuit.Config{
			MaxFailures: cfg.DataStore.CircuitBreaker.MaxFailures,
			OpenTimeout: cfg.DataStore.CircuitBreaker.OpenTimeout,
		}, logger)
		breaker = guarded.Breaker()
		dataStore = guarded
	}
	if dataStore != nil {
		defer func() {
			if err := dataStore.Close(); err != nil {
				logger.Warn("failed to close data store", map[string]interface{}{"error": err})
			}
		}()
	}

	strategy, err := newStrategy(cfg)
	if err != nil {
		return err
	}

	var serializer types.Serializer = pagestore.GobSerializer{}
	if cfg.PageStore.Compression {
		serializer = pagestore.NewCompressingSerializer(serializer)
	}

	registry, err := pagestore.NewRegistry(pagestore.StoreOptions{
		Strategy:   strategy,
		DataStore:  dataStore,
		Serializer: serializer,
		Metrics:    collector,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	cleaner := pagestore.NewCleaner(registry, pagestore.CleanerConfig{
		TTL:      cfg.PageStore.PageTTL,
		Interval: cfg.PageStore.CleanupInterval,
	}, logger)
	if err := cleaner.Start(ctx); err != nil {
		return err
	}

	buffers, err := render.NewLRUBufferStore(cfg.Render.BufferCapacity)
	if err != nil {
		return err
	}
	renderStrategy, err := render.ParseRenderStrategy(cfg.Render.RenderStrategy)
	if err != nil {
		return err
	}
	redirectPolicy, err := render.ParseRedirectPolicy(cfg.Render.RedirectPolicy)
	if err != nil {
		return err
	}
	engine, err := render.NewEngine(render.Config{
		Strategy:                       renderStrategy,
		EnableRedirectForStatelessPage: cfg.Render.EnableRedirectForStatelessPage,
		DefaultPolicy:                  redirectPolicy,
	}, buffers, collector, logger)
	if err != nil {
		return err
	}

	serverConfig := api.DefaultServerConfig()
	serverConfig.Address = cfg.Global.APIAddress
	server := api.NewServer(serverConfig, registry, api.Options{
		Buffers:  buffers,
		Metrics:  collector.Handler(),
		Breaker:  breaker,
		Renderer: engine,
		Logger:   logger,
	})
	server.StartBackground()

	var metricsServer *http.Server
	if collector.Enabled() && cfg.Global.MetricsPort > 0 {
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Global.MetricsPort),
			Handler:           collector.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", map[string]interface{}{"error": err})
			}
		}()
	}

	logger.Info("pagestated started", map[string]interface{}{
		"eviction_policy": strategy.Name(),
		"data_store":      cfg.DataStore.Type,
		"render_strategy": engine.Config().Strategy.String(),
		"redirect_policy": engine.Config().DefaultPolicy.String(),
		"api_address":     serverConfig.Address,
	})

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown failed", map[string]interface{}{"error": err})
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", map[string]interface{}{"error": err})
		}
	}
	cleaner.Stop()
	return registry.Close(shutdownCtx)
}

func newLogger(cfg *config.Configuration) (*utils.StructuredLogger, func(), error) {
	level, err := utils.ParseLogLevel(cfg.Global.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	format, err := utils.ParseLogFormat(cfg.Global.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	loggerConfig := utils.DefaultStructuredLoggerConfig()
	loggerConfig.Level = level
	loggerConfig.Format = format

	closeLog := func() {}
	if cfg.Global.LogFile != "" {
		maxBytes, err := cfg.LogMaxSizeValue()
		if err != nil {
			return nil, nil, err
		}
		file, err := utils.NewRotatingFile(utils.RotationConfig{
			Path:       cfg.Global.LogFile,
			MaxBytes:   maxBytes,
			MaxBackups: cfg.Global.LogMaxBackups,
			Compress:   cfg.Global.LogCompress,
		})
		if err != nil {
			return nil, nil, err
		}
		loggerConfig.Output = file
		closeLog = func() { _ = file.Close() }
	}

	logger, err := utils.NewStructuredLogger(loggerConfig)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return logger, closeLog, nil
}

func newStrategy(cfg *config.Configuration) (pagestore.EvictionStrategy, error) {
	switch cfg.PageStore.EvictionPolicy {
	case config.EvictionPolicySize:
		maxBytes, err := cfg.MaxBytesValue()
		if err != nil {
			return nil, err
		}
		return pagestore.NewSizeStrategy(maxBytes)
	default:
		return pagestore.NewCountStrategy(cfg.PageStore.MaxPages)
	}
}

func openDataStore(ctx context.Context, cfg config.DataStoreConfig, logger *utils.StructuredLogger) (types.DataStore, error) {
	switch cfg.Type {
	case config.DataStoreMemory:
		return datastore.NewMemoryStore(), nil
	case config.DataStoreBolt:
		return datastore.OpenBoltStore(cfg.Path, logger)
	case config.DataStoreS3:
		retryConfig := retry.DefaultConfig()
		retryConfig.MaxAttempts = cfg.Retry.MaxAttempts
		retryConfig.InitialDelay = cfg.Retry.InitialDelay
		retryConfig.MaxDelay = cfg.Retry.MaxDelay

		s3Config := datastore.S3Config{
			Bucket:         cfg.Bucket,
			Prefix:         cfg.Prefix,
			Region:         cfg.Region,
			Endpoint:       cfg.Endpoint,
			ForcePathStyle: cfg.ForcePathStyle,
			AccessKeyID:    cfg.AccessKeyID,
			SecretKey:      cfg.SecretKey,
			Retry:          retryConfig,
		}
		client, err := datastore.NewS3Client(ctx, s3Config)
		if err != nil {
			return nil, err
		}
		return datastore.NewS3Store(client, s3Config, logger)
	default:
		return nil, nil
	}
}
