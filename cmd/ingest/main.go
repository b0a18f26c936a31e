package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-forecast-engine/internal/app"
	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/config"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/risk-forecast-engine/internal/service/forecasting"
)

// Command-line flags
var (
	configPath = flag.String("config", "", "Path to configuration file")
	mode       = flag.String("mode", "record", "Operation mode: record, purge")
	tenant     = flag.String("tenant", "", "Tenant UUID")
	input      = flag.String("input", "-", "Signal context JSON file, - for stdin")
	incidents  = flag.String("incidents", "", "Comma separated domains with an incident since the last run")
	days       = flag.Int("days", 365, "Purge snapshots older than this many days")
	dryRun     = flag.Bool("dry-run", false, "Compute forecasts without writing history")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewZapLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("operation failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("operation completed", zap.String("mode", *mode))
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	tenantID, err := uuid.Parse(*tenant)
	if err != nil {
		return fmt.Errorf("tenant must be a UUID: %w", err)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	switch *mode {
	case "record":
		return runRecord(ctx, a, tenantID, logger)
	case "purge":
		return runPurge(ctx, a, tenantID, logger)
	default:
		return fmt.Errorf("unknown mode: %s", *mode)
	}
}

// runRecord forecasts one signal context and appends the posture of every
// applicable domain to the tenant's history
func runRecord(ctx context.Context, a *app.App, tenantID uuid.UUID, logger *zap.Logger) error {
	sc, err := readContext(*input)
	if err != nil {
		return err
	}

	result, err := a.Service.Forecast(ctx, forecasting.Request{TenantID: tenantID, Context: sc})
	if err != nil {
		return fmt.Errorf("forecast failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}

	if *dryRun {
		logger.Info("DRY RUN: history not written", zap.Int("forecasts", len(result.Forecasts)))
		return nil
	}
	if a.Recorder == nil {
		return fmt.Errorf("history backend is %q; nothing to record into", a.Config.History.Backend)
	}

	n, err := a.Recorder.Record(ctx, result, parseIncidents(*incidents))
	if err != nil {
		return err
	}

	logger.Info("history recorded",
		zap.String("tenant_id", tenantID.String()),
		zap.String("run_id", result.RunID.String()),
		zap.Int("snapshots", n),
	)
	return nil
}

// runPurge drops snapshots older than the cutoff for every built-in domain
func runPurge(ctx context.Context, a *app.App, tenantID uuid.UUID, logger *zap.Logger) error {
	if a.History == nil {
		return fmt.Errorf("history backend is %q; nothing to purge", a.Config.History.Backend)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -*days)
	logger.Info("purging history",
		zap.String("tenant_id", tenantID.String()),
		zap.Time("cutoff", cutoff),
		zap.Bool("dry_run", *dryRun),
	)
	if *dryRun {
		return nil
	}

	var total int64
	for _, d := range a.Engine.Domains() {
		n, err := a.History.Purge(ctx, tenantID, d, cutoff)
		if err != nil {
			return fmt.Errorf("purging %s: %w", d, err)
		}
		total += n
	}

	logger.Info("history purged", zap.Int64("snapshots_removed", total))
	return nil
}

func readContext(path string) (forecast.SignalContext, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return forecast.SignalContext{}, fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var sc forecast.SignalContext
	if err := json.NewDecoder(r).Decode(&sc); err != nil {
		return forecast.SignalContext{}, fmt.Errorf("decoding signal context: %w", err)
	}
	return sc, nil
}

func parseIncidents(s string) map[forecast.Domain]bool {
	out := make(map[forecast.Domain]bool)
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out[forecast.Domain(part)] = true
		}
	}
	return out
}
