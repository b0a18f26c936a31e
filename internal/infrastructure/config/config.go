package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
	"github.com/davidleathers/risk-forecast-engine/internal/service/riskforecast"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels, so RFE_SERVER__PORT sets server.port and
// RFE_LOG_LEVEL sets log_level.
const EnvPrefix = "RFE_"

// DefaultPath is read when no explicit path is given and the file exists
const DefaultPath = "configs/config.yaml"

// History backends
const (
	HistoryBackendNone     = "none"
	HistoryBackendRedis    = "redis"
	HistoryBackendPostgres = "postgres"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment" validate:"required"`
	LogLevel    string `koanf:"log_level" validate:"oneof=debug info warn error"`

	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	History   HistoryConfig   `koanf:"history"`
	Forecast  ForecastConfig  `koanf:"forecast"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Security  SecurityConfig  `koanf:"security"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// ValidateRequests checks incoming requests against the OpenAPI document.
	ValidateRequests bool `koanf:"validate_requests"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int32         `koanf:"max_conns" validate:"min=1"`
	MinConns        int32         `koanf:"min_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"min=0"`
	PoolSize int    `koanf:"pool_size" validate:"min=1"`
}

// HistoryConfig selects and bounds the forecast history store
type HistoryConfig struct {
	Backend string        `koanf:"backend" validate:"oneof=none redis postgres"`
	Window  int           `koanf:"window" validate:"min=1,max=1000"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	// Retention caps how many snapshots the Redis store keeps per domain.
	Retention int `koanf:"retention" validate:"min=1"`
}

// ForecastConfig overrides parts of the default calibration
type ForecastConfig struct {
	ProbabilityCap       float64            `koanf:"probability_cap" validate:"gt=0,lte=1"`
	SuppressionThreshold float64            `koanf:"suppression_threshold" validate:"gte=0,lte=1"`
	HorizonDays          int                `koanf:"horizon_days" validate:"min=1"`
	Currency             string             `koanf:"currency" validate:"len=3"`
	Parallelism          int                `koanf:"parallelism" validate:"min=0,max=64"`
	RegionMultipliers    map[string]float64 `koanf:"region_multipliers"`
}

type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	ServiceName  string  `koanf:"service_name" validate:"required"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	SampleRate   float64 `koanf:"sample_rate" validate:"gte=0,lte=1"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second" validate:"min=0"`
	BurstSize         int `koanf:"burst_size" validate:"min=0"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	tables := riskforecast.DefaultTables()

	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			DB:       0,
			PoolSize: 10,
		},
		History: HistoryConfig{
			Backend:   HistoryBackendNone,
			Window:    24,
			Timeout:   2 * time.Second,
			Retention: 365,
		},
		Forecast: ForecastConfig{
			ProbabilityCap:       tables.ProbabilityCap,
			SuppressionThreshold: tables.SuppressionThreshold,
			HorizonDays:          tables.HorizonDays,
			Currency:             tables.Currency,
			Parallelism:          0,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "risk-forecast-engine",
			SampleRate:  1.0,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 50,
				BurstSize:         100,
			},
		},
	}
}

// Load reads defaults, then the YAML file at path (or DefaultPath when path is
// empty and the file exists), then RFE_ environment variables
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks field constraints and that the forecast overrides produce a
// consistent calibration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Security.RateLimit.RequestsPerSecond > 0 && c.Security.RateLimit.BurstSize < 1 {
		return fmt.Errorf("invalid config: security.rate_limit.burst_size must be at least 1 when rate limiting is enabled")
	}
	if c.History.Backend == HistoryBackendRedis && c.Redis.URL == "" {
		return fmt.Errorf("invalid config: history backend redis requires redis.url")
	}
	if c.History.Backend == HistoryBackendPostgres && c.Database.URL == "" {
		return fmt.Errorf("invalid config: history backend postgres requires database.url")
	}

	if err := c.Forecast.Tables(riskforecast.DefaultTables()).Validate(); err != nil {
		return fmt.Errorf("invalid forecast config: %w", err)
	}

	return nil
}

// Tables applies the overrides to base. Region codes are matched case
// insensitively; environment variables always arrive lowercased.
func (f ForecastConfig) Tables(base riskforecast.Tables) riskforecast.Tables {
	t := base.Clone()

	t.ProbabilityCap = f.ProbabilityCap
	t.SuppressionThreshold = f.SuppressionThreshold
	t.HorizonDays = f.HorizonDays
	t.Currency = strings.ToUpper(f.Currency)

	if len(f.RegionMultipliers) > 0 && t.RegionMultipliers == nil {
		t.RegionMultipliers = make(map[string]float64, len(f.RegionMultipliers))
	}
	for region, factor := range f.RegionMultipliers {
		key := strings.ToUpper(strings.TrimSpace(region))
		if strings.EqualFold(key, forecast.DefaultRegion) {
			key = forecast.DefaultRegion
		}
		t.RegionMultipliers[key] = factor
	}

	return t
}

// IsProduction reports whether the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
