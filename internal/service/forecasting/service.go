package forecasting

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/errors"
	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/risk-forecast-engine/internal/metrics"
	"github.com/davidleathers/risk-forecast-engine/internal/service/riskforecast"
)

const serviceName = "forecasting"

// Config bounds the history lookups made for each request
type Config struct {
	// HistoryWindow is the number of snapshots read per domain.
	HistoryWindow int
	// HistoryTimeout bounds all history reads of one request.
	HistoryTimeout time.Duration
	// HistoryBackend labels metrics and logs.
	HistoryBackend string
}

// DefaultConfig returns the configuration used when none is supplied
func DefaultConfig() Config {
	return Config{
		HistoryWindow:  24,
		HistoryTimeout: 2 * time.Second,
		HistoryBackend: "none",
	}
}

// Request asks for a forecast of one tenant's posture
type Request struct {
	TenantID uuid.UUID
	Context  forecast.SignalContext
}

// Result wraps an engine report with run metadata
type Result struct {
	RunID          uuid.UUID `json:"run_id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	ContextVersion string    `json:"context_version"`
	GeneratedAt    time.Time `json:"generated_at"`
	// HistoryUnavailable is set when the history store could not be read
	// and the forecasts were computed without a trend.
	HistoryUnavailable bool `json:"history_unavailable"`
	// Warnings lists inputs that were not recognized and resolved to defaults.
	Warnings []string `json:"warnings,omitempty"`
	riskforecast.Report
}

// Service is the application entry point for forecasts. It resolves history,
// runs the engine and records telemetry.
type Service struct {
	engine  *riskforecast.Engine
	history HistoryReader
	metrics *metrics.Registry
	tracer  trace.Tracer
	logger  *zap.Logger
	config  Config
	now     func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithHistory sets the store history is read from
func WithHistory(reader HistoryReader) Option {
	return func(s *Service) { s.history = reader }
}

// WithMetrics records evaluations on registry
func WithMetrics(registry *metrics.Registry) Option {
	return func(s *Service) { s.metrics = registry }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a forecasting service around engine
func NewService(engine *riskforecast.Engine, logger *zap.Logger, config Config, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = defaults.HistoryWindow
	}
	if config.HistoryTimeout <= 0 {
		config.HistoryTimeout = defaults.HistoryTimeout
	}
	if config.HistoryBackend == "" {
		config.HistoryBackend = defaults.HistoryBackend
	}

	s := &Service{
		engine: engine,
		tracer: telemetry.Tracer("github.com/davidleathers/risk-forecast-engine/internal/service/forecasting"),
		logger: logger.Named(serviceName),
		config: config,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the underlying engine
func (s *Service) Engine() *riskforecast.Engine {
	return s.engine
}

// Forecast validates the request, attaches stored history when the caller
// supplied none, and evaluates every registered domain.
func (s *Service) Forecast(ctx context.Context, req Request) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, s.tracer, serviceName, "Forecast",
		attribute.String("tenant.id", req.TenantID.String()),
	)
	defer span.End()

	if err := s.validate(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	warnings := s.defaulted(req.Context)
	if len(warnings) > 0 {
		s.logger.Warn("unrecognized inputs resolved to defaults",
			append(telemetry.TraceFields(ctx),
				zap.String("tenant_id", req.TenantID.String()),
				zap.Strings("warnings", warnings),
			)...,
		)
	}

	sc := req.Context
	historyUnavailable := false
	if len(sc.History) == 0 && s.history != nil {
		history, err := s.loadHistory(ctx, req.TenantID)
		if err != nil {
			if ctx.Err() != nil {
				telemetry.RecordError(span, ctx.Err())
				return nil, ctx.Err()
			}
			historyUnavailable = true
			span.AddEvent("history_unavailable")
			s.logger.Warn("forecasting without history",
				append(telemetry.TraceFields(ctx),
					zap.String("tenant_id", req.TenantID.String()),
					zap.String("backend", s.config.HistoryBackend),
					zap.Error(err),
				)...,
			)
		}
		sc = sc.WithHistory(history)
	}

	if err := ctx.Err(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	start := time.Now()
	report := s.engine.Evaluate(sc)
	elapsed := time.Since(start)

	s.recordEvaluation(ctx, report, elapsed)
	span.SetAttributes(
		attribute.Int("forecast.material", len(report.Forecasts)),
		attribute.Int("forecast.evaluated", report.Evaluated),
	)

	result := &Result{
		RunID:              uuid.New(),
		TenantID:           req.TenantID,
		ContextVersion:     forecast.ContextVersion,
		GeneratedAt:        s.now().UTC(),
		HistoryUnavailable: historyUnavailable,
		Warnings:           warnings,
		Report:             report,
	}

	s.logger.Debug("forecast evaluated",
		zap.String("run_id", result.RunID.String()),
		zap.String("tenant_id", req.TenantID.String()),
		zap.Int("material", len(report.Forecasts)),
		zap.Duration("elapsed", elapsed),
	)

	return result, nil
}

func (s *Service) validate(req Request) error {
	if req.TenantID == uuid.Nil {
		return errors.ErrInvalidTenant
	}

	known := make(map[forecast.Domain]bool)
	for _, d := range s.engine.Domains() {
		known[d] = true
	}
	for d := range req.Context.Exposure {
		if !known[d] {
			return errors.ErrUnknownDomain.WithDetails(map[string]any{"domain": string(d)})
		}
	}
	for i, snap := range req.Context.History {
		if math.IsNaN(snap.Probability) || snap.Probability < 0 || snap.Probability > 1 {
			return errors.ErrInvalidContext.WithDetails(map[string]any{
				"field": "history",
				"index": i,
			})
		}
	}

	return nil
}

// defaulted describes the inputs the engine will replace with defaults.
// Unrecognized exposure levels and sizes are not errors.
func (s *Service) defaulted(sc forecast.SignalContext) []string {
	var warnings []string
	for _, d := range s.engine.Domains() {
		level, ok := sc.Exposure[d]
		if !ok || level.IsValid() {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("exposure %q for %s is not recognized, using %s",
			string(level), d, s.engine.Tables().ExposureFor(d, forecast.SignalContext{})))
	}
	if sc.OrganizationSize != "" && !sc.OrganizationSize.IsValid() {
		warnings = append(warnings, fmt.Sprintf("organization_size %q is not recognized, using %s",
			string(sc.OrganizationSize), sc.Size()))
	}
	return warnings
}

// loadHistory reads every domain concurrently. Domains that were read before
// a failure are still returned alongside the error.
func (s *Service) loadHistory(ctx context.Context, tenantID uuid.UUID) ([]forecast.HistorySnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.HistoryTimeout)
	defer cancel()

	domains := s.engine.Domains()
	perDomain := make([][]forecast.HistorySnapshot, len(domains))

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range domains {
		g.Go(func() error {
			snaps, err := s.history.Recent(gctx, tenantID, d, s.config.HistoryWindow)
			if err != nil {
				return errors.Wrap(err, "reading history for "+string(d))
			}
			perDomain[i] = snaps
			return nil
		})
	}
	err := g.Wait()

	if s.metrics != nil {
		s.metrics.RecordHistoryLoad(ctx, float64(time.Since(start).Microseconds())/1000, s.config.HistoryBackend, err == nil)
	}

	var history []forecast.HistorySnapshot
	for i, snaps := range perDomain {
		for _, snap := range snaps {
			// Stores key by domain; anything else is dropped.
			if snap.Domain == domains[i] {
				history = append(history, snap)
			}
		}
	}
	return history, err
}

func (s *Service) recordEvaluation(ctx context.Context, report riskforecast.Report, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	material := make(map[string]string, len(report.Forecasts))
	probabilities := make([]float64, 0, len(report.Forecasts))
	for _, f := range report.Forecasts {
		material[string(f.Domain)] = string(f.RiskLevel)
		probabilities = append(probabilities, f.Probability)
	}
	suppressed := make([]string, 0, len(report.NotMaterial))
	for _, d := range report.NotMaterial {
		suppressed = append(suppressed, string(d))
	}

	s.metrics.RecordEvaluation(ctx, float64(elapsed.Microseconds())/1000, material, probabilities, suppressed)
}
