package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/config"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/risk-forecast-engine/internal/service/forecasting"
	"github.com/davidleathers/risk-forecast-engine/internal/service/riskforecast"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	input := flag.String("input", "-", "Signal context JSON file, - for stdin")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// stdout carries the result document
	logger := telemetry.NewLogger(cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, *input, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("evaluation failed", "error", err)
		os.Exit(1)
	}
}

// run evaluates one signal context without a history store and writes the
// result as JSON to out. Logs go to logger only.
func run(ctx context.Context, cfg *config.Config, input string, stdin io.Reader, out io.Writer, logger *slog.Logger) error {
	r := stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var sc forecast.SignalContext
	if err := json.NewDecoder(r).Decode(&sc); err != nil {
		return fmt.Errorf("decoding signal context: %w", err)
	}

	engine, err := riskforecast.NewEngine(
		cfg.Forecast.Tables(riskforecast.DefaultTables()),
		zap.NewNop(),
		riskforecast.WithParallelism(cfg.Forecast.Parallelism),
	)
	if err != nil {
		return err
	}

	svc := forecasting.NewService(engine, zap.NewNop(), forecasting.DefaultConfig())
	result, err := svc.Forecast(ctx, forecasting.Request{TenantID: uuid.New(), Context: sc})
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "evaluation completed",
		"run_id", result.RunID.String(),
		"material", len(result.Forecasts),
		"evaluated", result.Evaluated,
	)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
