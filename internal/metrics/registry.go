package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds the forecast engine's instruments
type Registry struct {
	meter metric.Meter

	// Forecast metrics
	EvaluationDuration  metric.Float64Histogram
	EvaluationCounter   metric.Int64Counter
	ForecastCounter     metric.Int64Counter
	SuppressedCounter   metric.Int64Counter
	ForecastProbability metric.Float64Histogram
	LastRunForecasts    metric.Int64ObservableGauge

	// History metrics
	HistoryLoadDuration metric.Float64Histogram
	HistoryFailures     metric.Int64Counter
	HistoryAppends      metric.Int64Counter

	// API metrics
	APIRequestDuration metric.Float64Histogram
	APIRequestCounter  metric.Int64Counter

	mu               sync.RWMutex
	lastRunForecasts int64
}

// NewRegistry creates the instruments on the global meter provider
func NewRegistry(meterName string) (*Registry, error) {
	return NewRegistryWithProvider(otel.GetMeterProvider(), meterName)
}

// NewRegistryWithProvider creates the instruments on mp
func NewRegistryWithProvider(mp metric.MeterProvider, meterName string) (*Registry, error) {
	r := &Registry{meter: mp.Meter(meterName)}

	if err := r.initForecastMetrics(); err != nil {
		return nil, err
	}

	if err := r.initHistoryMetrics(); err != nil {
		return nil, err
	}

	if err := r.initAPIMetrics(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) initForecastMetrics() error {
	var err error

	r.EvaluationDuration, err = r.meter.Float64Histogram(
		"rfe.forecast.evaluation_duration",
		metric.WithDescription("Duration of a full forecast evaluation in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 500),
	)
	if err != nil {
		return err
	}

	r.EvaluationCounter, err = r.meter.Int64Counter(
		"rfe.forecast.evaluations_total",
		metric.WithDescription("Total number of forecast evaluations"),
	)
	if err != nil {
		return err
	}

	r.ForecastCounter, err = r.meter.Int64Counter(
		"rfe.forecast.material_total",
		metric.WithDescription("Forecasts that cleared the materiality threshold"),
	)
	if err != nil {
		return err
	}

	r.SuppressedCounter, err = r.meter.Int64Counter(
		"rfe.forecast.suppressed_total",
		metric.WithDescription("Domains evaluated below the materiality threshold"),
	)
	if err != nil {
		return err
	}

	r.ForecastProbability, err = r.meter.Float64Histogram(
		"rfe.forecast.probability",
		metric.WithDescription("Distribution of reported probabilities"),
		metric.WithExplicitBucketBoundaries(0.12, 0.2, 0.25, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8),
	)
	if err != nil {
		return err
	}

	r.LastRunForecasts, err = r.meter.Int64ObservableGauge(
		"rfe.forecast.last_run_material",
		metric.WithDescription("Number of material forecasts in the most recent evaluation"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.lastRunForecasts)
			return nil
		}),
	)

	return err
}

func (r *Registry) initHistoryMetrics() error {
	var err error

	r.HistoryLoadDuration, err = r.meter.Float64Histogram(
		"rfe.history.load_duration",
		metric.WithDescription("Duration of history loads in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 5, 10, 50, 100, 500, 1000, 5000),
	)
	if err != nil {
		return err
	}

	r.HistoryFailures, err = r.meter.Int64Counter(
		"rfe.history.failures_total",
		metric.WithDescription("History store calls that failed"),
	)
	if err != nil {
		return err
	}

	r.HistoryAppends, err = r.meter.Int64Counter(
		"rfe.history.appends_total",
		metric.WithDescription("Snapshots appended to the history store"),
	)

	return err
}

func (r *Registry) initAPIMetrics() error {
	var err error

	r.APIRequestDuration, err = r.meter.Float64Histogram(
		"rfe.api.request_duration",
		metric.WithDescription("API request duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000),
	)
	if err != nil {
		return err
	}

	r.APIRequestCounter, err = r.meter.Int64Counter(
		"rfe.api.request_total",
		metric.WithDescription("Total number of API requests"),
	)

	return err
}

// RecordEvaluation records one engine run. material maps each reported
// domain to its risk level; suppressed lists the domains below threshold.
func (r *Registry) RecordEvaluation(ctx context.Context, durationMS float64, material map[string]string, probabilities []float64, suppressed []string) {
	r.EvaluationDuration.Record(ctx, durationMS)
	r.EvaluationCounter.Add(ctx, 1)

	for domain, level := range material {
		r.ForecastCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("domain", domain),
			attribute.String("risk_level", level),
		))
	}
	for _, p := range probabilities {
		r.ForecastProbability.Record(ctx, p)
	}
	for _, domain := range suppressed {
		r.SuppressedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("domain", domain)))
	}

	r.mu.Lock()
	r.lastRunForecasts = int64(len(material))
	r.mu.Unlock()
}

// RecordHistoryLoad records a history store read
func (r *Registry) RecordHistoryLoad(ctx context.Context, durationMS float64, backend string, success bool) {
	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.Bool("success", success),
	)

	r.HistoryLoadDuration.Record(ctx, durationMS, attrs)
	if !success {
		r.HistoryFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("operation", "load"),
		))
	}
}

// RecordHistoryAppend records a history store write of n snapshots
func (r *Registry) RecordHistoryAppend(ctx context.Context, backend string, n int, err error) {
	if err != nil {
		r.HistoryFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("operation", "append"),
		))
		return
	}
	r.HistoryAppends.Add(ctx, int64(n), metric.WithAttributes(attribute.String("backend", backend)))
}

// RecordAPIRequest records API request metrics
func (r *Registry) RecordAPIRequest(ctx context.Context, duration float64, method, path string, statusCode int) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status_code", statusCode),
	}

	r.APIRequestDuration.Record(ctx, duration, metric.WithAttributes(attrs...))
	r.APIRequestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
