package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"farm-telemetry-backend/config"
	"farm-telemetry-backend/internal/api"
	"farm-telemetry-backend/internal/db"
	"farm-telemetry-backend/internal/export"
	"farm-telemetry-backend/internal/inference"
	"farm-telemetry-backend/internal/logging"
	"farm-telemetry-backend/internal/metrics"
	"farm-telemetry-backend/internal/notification"
	"farm-telemetry-backend/internal/sensor"
	"farm-telemetry-backend/internal/store"
	"farm-telemetry-backend/internal/telemetry"
	"farm-telemetry-backend/internal/timeparse"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, "farmd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("farmd stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("configuration loaded", zap.Int("sensors", len(cfg.Telemetry.Sensors)), zap.String("timezone", cfg.Telemetry.Timezone))

	catalog, err := cfg.Sensors.Catalog(sensor.DefaultCatalog())
	if err != nil {
		return fmt.Errorf("failed to build sensor catalog: %w", err)
	}
	norm := timeparse.New(cfg.Telemetry.Location())

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	appStore := store.NewGormStore(gormDB)
	logger.Info("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	var webpushOptions *webpush.Options
	var alerts telemetry.Dispatcher
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, logger)
		pool.Start(ctx)
		alerts = pool
	} else {
		logger.Warn("VAPID keys are not configured, push alerts are disabled")
	}

	client := telemetry.NewClient(cfg.Telemetry.BaseURL, cfg.Telemetry.HistoryPath, cfg.Telemetry.AggregatePath,
		cfg.Telemetry.Auth, cfg.Telemetry.Timeout)
	svc := telemetry.NewService(cfg.Telemetry, client, appStore, catalog, norm, alerts, m, logger.Named("telemetry"))
	if err := svc.Warm(ctx); err != nil {
		logger.Warn("failed to warm reading cache", zap.Error(err))
	}
	go svc.Run(ctx)

	if cfg.Realtime.Enabled {
		rt := telemetry.NewRealtime(telemetry.NewMQTTClient(cfg.Realtime), cfg.Realtime, svc, logger.Named("realtime"))
		if err := rt.Start(ctx); err != nil {
			logger.Error("realtime subscription unavailable, relying on polling", zap.Error(err))
		}
	}

	handler := api.NewHandler(api.Deps{
		Store:       appStore,
		WebPush:     webpushOptions,
		Telemetry:   svc,
		Catalog:     catalog,
		Exporter:    export.New(catalog, norm),
		Diseases:    inference.NewClient(cfg.Inference.BaseURL, cfg.Inference.Timeout, inference.DefaultTable(), logger.Named("inference")),
		Metrics:     m,
		Logger:      logger.Named("http"),
		Normalizer:  norm,
		PageSize:    cfg.Export.PageSize,
		NoticeAfter: cfg.Export.NoticeAfter,
	})

	opts := api.DefaultRouterOptions()
	opts.RateLimit = rate.Limit(cfg.Server.RateLimitPerSec)
	opts.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	opts.ClientIPHeader = cfg.Server.RequestIPHeader

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(ctx, handler, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutdown signal received, stopping services", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	logger.Info("server gracefully stopped")
	return nil
}
