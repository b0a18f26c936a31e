package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidleathers/risk-forecast-engine/internal/api/rest"
	"github.com/davidleathers/risk-forecast-engine/internal/app"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/config"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	zapLogger, err := telemetry.NewZapLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return err
	}
	defer func() { _ = zapLogger.Sync() }()

	a, err := app.New(ctx, cfg, zapLogger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	routerConfig := rest.DefaultConfig()
	routerConfig.Version = "v1"
	routerConfig.Service = a.Service
	routerConfig.Metrics = a.Metrics
	routerConfig.Logger = logger
	routerConfig.ValidateRequests = cfg.Server.ValidateRequests
	routerConfig.RequestsPerSecond = float64(cfg.Security.RateLimit.RequestsPerSecond)
	routerConfig.BurstSize = cfg.Security.RateLimit.BurstSize
	routerConfig.EnableRateLimiting = cfg.Security.RateLimit.RequestsPerSecond > 0
	if a.History != nil {
		routerConfig.History = a.History
	}

	handler, err := rest.NewRouter(routerConfig)
	if err != nil {
		return err
	}

	logger.Info("starting risk forecast engine",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"history_backend", cfg.History.Backend,
	)

	return rest.NewServer(cfg, handler, logger).Run(ctx)
}
