package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/config"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/risk-forecast-engine/migrations"
)

// migrator is the subset of migrations.Migrator the actions use
type migrator interface {
	Up(steps int) error
	Down(steps int) error
	Version() (uint, bool, error)
	Force(version int) error
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		action     = flag.String("action", "up", "Migration action: up, down, version, force")
		steps      = flag.Int("steps", 0, "Number of migrations to run (0 = all)")
		version    = flag.Int("version", -1, "Version to force (force action)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(telemetry.SetupLogger(cfg.LogLevel))

	if cfg.Database.URL == "" {
		slog.Error("database.url is required")
		os.Exit(1)
	}

	m, err := migrations.New(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to open migrations", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := runAction(m, *action, *steps, *version); err != nil {
		slog.Error("migration failed", "action", *action, "error", err)
		os.Exit(1)
	}
}

func runAction(m migrator, action string, steps, version int) error {
	switch action {
	case "up":
		if err := m.Up(steps); err != nil {
			return err
		}
	case "down":
		if err := m.Down(steps); err != nil {
			return err
		}
	case "force":
		if version < 0 {
			return fmt.Errorf("version is required for force action")
		}
		if err := m.Force(version); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown action %q", action)
	}

	current, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("reading version: %w", err)
	}
	slog.Info("schema version", "action", action, "version", current, "dirty", dirty)
	return nil
}
