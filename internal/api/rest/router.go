package rest

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davidleathers/risk-forecast-engine/internal/metrics"
	"github.com/davidleathers/risk-forecast-engine/internal/service/forecasting"
)

// Config holds API configuration
type Config struct {
	Version string
	Service *forecasting.Service
	// History is pinged by the health endpoint; nil when disabled.
	History HealthChecker
	Metrics *metrics.Registry
	Logger  *slog.Logger

	EnableRateLimiting bool
	RequestsPerSecond  float64
	BurstSize          int

	// ValidateRequests checks API requests against the OpenAPI document
	// before they reach a handler.
	ValidateRequests bool
}

// DefaultConfig returns defaults; Service must still be set
func DefaultConfig() *Config {
	return &Config{
		Version:            "v1",
		Logger:             slog.Default(),
		EnableRateLimiting: true,
		RequestsPerSecond:  50,
		BurstSize:          100,
	}
}

// NewRouter wires handlers and middleware
func NewRouter(config *Config) (http.Handler, error) {
	if config == nil || config.Service == nil {
		return nil, fmt.Errorf("forecasting service is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	base := NewBaseHandler(config.Version, config.Logger)
	handlers := NewHandlers(base, config.Service, config.History)

	var apiMiddleware []Middleware
	if config.EnableRateLimiting && config.RequestsPerSecond > 0 {
		limiter := newClientRateLimiter(config.RequestsPerSecond, config.BurstSize)
		apiMiddleware = append(apiMiddleware, rateLimitMiddleware(limiter, base))
	}
	if config.ValidateRequests {
		cv, err := NewContractValidator()
		if err != nil {
			return nil, err
		}
		apiMiddleware = append(apiMiddleware, contractMiddleware(cv, base))
	}

	mux := http.NewServeMux()
	handle := func(pattern, route string, h http.HandlerFunc, mws ...Middleware) {
		mws = append([]Middleware{observeMiddleware(config.Logger, config.Metrics, route)}, mws...)
		mux.Handle(pattern, chain(h, mws...))
	}

	handle("POST /api/v1/tenants/{tenantID}/forecasts", "/api/v1/tenants/{tenantID}/forecasts", handlers.CreateForecast, apiMiddleware...)
	handle("GET /api/v1/forecast/tables", "/api/v1/forecast/tables", handlers.GetTables, apiMiddleware...)
	handle("GET /api/v1/openapi.yaml", "/api/v1/openapi.yaml", handlers.GetOpenAPI)
	handle("GET /healthz", "/healthz", handlers.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	return chain(mux, recoveryMiddleware(base), requestIDMiddleware), nil
}
