package forecasting

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/errors"
	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/risk-forecast-engine/internal/metrics"
)

// Recorder appends forecast runs to a history store. It is used by the
// ingestion side; the forecasting path itself never writes history.
type Recorder struct {
	store   HistoryWriter
	backend string
	metrics *metrics.Registry
	logger  *zap.Logger
}

// NewRecorder creates a recorder writing to store
func NewRecorder(store HistoryWriter, backend string, registry *metrics.Registry, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:   store,
		backend: backend,
		metrics: registry,
		logger:  logger.Named("recorder"),
	}
}

// Snapshots converts the postures of a result into history snapshots stamped
// with the result's generation time. Every applicable domain is recorded,
// including the ones below the materiality threshold, and the probability
// excludes the trend so later projections fit observed posture only.
func Snapshots(result *Result, incidents map[forecast.Domain]bool) []forecast.HistorySnapshot {
	if result == nil {
		return nil
	}
	out := make([]forecast.HistorySnapshot, 0, len(result.Postures))
	for _, p := range result.Postures {
		out = append(out, forecast.HistorySnapshot{
			Domain:           p.Domain,
			RecordedAt:       result.GeneratedAt,
			Probability:      p.Probability,
			IncidentOccurred: incidents[p.Domain],
		})
	}
	return out
}

// Record appends a result's snapshots and returns how many were written
func (r *Recorder) Record(ctx context.Context, result *Result, incidents map[forecast.Domain]bool) (int, error) {
	if result == nil || result.TenantID == uuid.Nil {
		return 0, errors.ErrInvalidTenant
	}

	snapshots := Snapshots(result, incidents)
	if len(snapshots) == 0 {
		return 0, nil
	}

	err := r.store.Append(ctx, result.TenantID, snapshots)
	if r.metrics != nil {
		r.metrics.RecordHistoryAppend(ctx, r.backend, len(snapshots), err)
	}
	if err != nil {
		r.logger.Error("failed to append history",
			append(telemetry.TraceFields(ctx),
				zap.String("tenant_id", result.TenantID.String()),
				zap.String("run_id", result.RunID.String()),
				zap.Error(err),
			)...,
		)
		return 0, errors.ErrHistoryStore.WithCause(err)
	}

	return len(snapshots), nil
}
