// Package app wires configuration into a ready forecasting service
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/config"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/history"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/risk-forecast-engine/internal/metrics"
	"github.com/davidleathers/risk-forecast-engine/internal/service/forecasting"
	"github.com/davidleathers/risk-forecast-engine/internal/service/riskforecast"
)

const meterName = "github.com/davidleathers/risk-forecast-engine"

// App holds the long-lived components built from a Config
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Telemetry *telemetry.Provider
	Metrics   *metrics.Registry
	Engine    *riskforecast.Engine
	Service   *forecasting.Service
	// History is nil when the history backend is "none".
	History  history.Store
	Recorder *forecasting.Recorder
}

// New builds every component in dependency order. The caller must Close the
// returned App.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = cfg.Version
	tcfg.Environment = cfg.Environment
	tcfg.Enabled = cfg.Telemetry.Enabled
	tcfg.SamplingRate = cfg.Telemetry.SampleRate
	if cfg.Telemetry.ServiceName != "" {
		tcfg.ServiceName = cfg.Telemetry.ServiceName
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}

	provider, err := telemetry.InitializeOpenTelemetry(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	a.Telemetry = provider

	a.Metrics, err = metrics.NewRegistryWithProvider(provider.MeterProvider, meterName)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}

	a.Engine, err = riskforecast.NewEngine(
		cfg.Forecast.Tables(riskforecast.DefaultTables()),
		logger.Named("engine"),
		riskforecast.WithParallelism(cfg.Forecast.Parallelism),
	)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	a.History, err = history.Open(ctx, cfg, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	opts := []forecasting.Option{forecasting.WithMetrics(a.Metrics)}
	if a.History != nil {
		opts = append(opts, forecasting.WithHistory(a.History))
		a.Recorder = forecasting.NewRecorder(a.History, cfg.History.Backend, a.Metrics, logger)
	}

	a.Service = forecasting.NewService(a.Engine, logger.Named("forecasting"), forecasting.Config{
		HistoryWindow:  cfg.History.Window,
		HistoryTimeout: cfg.History.Timeout,
		HistoryBackend: cfg.History.Backend,
	}, opts...)

	return a, nil
}

// Close releases the history store and flushes telemetry
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	if a.Telemetry != nil {
		errs = append(errs, a.Telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
