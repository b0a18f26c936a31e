package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/config"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/telemetry"
)

const (
	insertSnapshotSQL = `
		INSERT INTO risk_history (tenant_id, domain, recorded_at, probability, incident_occurred)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, domain, recorded_at) DO UPDATE
		SET probability = EXCLUDED.probability,
		    incident_occurred = EXCLUDED.incident_occurred`

	recentSnapshotsSQL = `
		SELECT domain, recorded_at, probability, incident_occurred
		FROM risk_history
		WHERE tenant_id = $1 AND domain = $2
		ORDER BY recorded_at DESC
		LIMIT $3`

	purgeSnapshotsSQL = `
		DELETE FROM risk_history
		WHERE tenant_id = $1 AND domain = $2 AND recorded_at < $3`
)

// PostgresStore reads and writes the risk_history table
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewPostgresStore opens a connection pool and verifies it
func NewPostgresStore(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*PostgresStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	store := NewPostgresStoreFromPool(pool, logger)
	store.logger.Info("postgres history store initialized",
		zap.Int32("max_conns", poolConfig.MaxConns))
	return store, nil
}

// NewPostgresStoreFromPool wraps an existing pool
func NewPostgresStoreFromPool(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{
		pool:   pool,
		logger: logger.Named("history.postgres"),
		tracer: telemetry.Tracer("github.com/davidleathers/risk-forecast-engine/internal/infrastructure/history"),
	}
}

// Append inserts snapshots in one batch. A snapshot with the same tenant,
// domain and timestamp replaces the stored one.
func (s *PostgresStore) Append(ctx context.Context, tenantID uuid.UUID, snapshots []forecast.HistorySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	ctx, span := telemetry.StartStoreSpan(ctx, s.tracer, "postgresql", "INSERT")
	defer span.End()

	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(insertSnapshotSQL,
			tenantID,
			string(snap.Domain),
			snap.RecordedAt.UTC(),
			snap.Probability,
			snap.IncidentOccurred,
		)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("postgres history append failed",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("snapshots", len(snapshots)),
			zap.Error(err))
		return fmt.Errorf("postgres history append failed: %w", err)
	}
	return nil
}

// Recent returns up to limit snapshots, newest first
func (s *PostgresStore) Recent(ctx context.Context, tenantID uuid.UUID, domain forecast.Domain, limit int) ([]forecast.HistorySnapshot, error) {
	if limit <= 0 {
		return nil, nil
	}

	ctx, span := telemetry.StartStoreSpan(ctx, s.tracer, "postgresql", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, recentSnapshotsSQL, tenantID, string(domain), limit)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("postgres history read failed: %w", err)
	}

	snaps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (forecast.HistorySnapshot, error) {
		var (
			snap forecast.HistorySnapshot
			name string
		)
		if err := row.Scan(&name, &snap.RecordedAt, &snap.Probability, &snap.IncidentOccurred); err != nil {
			return snap, err
		}
		snap.Domain = forecast.Domain(name)
		return snap, nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("postgres history scan failed: %w", err)
	}
	return snaps, nil
}

// Purge deletes snapshots recorded before cutoff for a tenant and domain
func (s *PostgresStore) Purge(ctx context.Context, tenantID uuid.UUID, domain forecast.Domain, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, purgeSnapshotsSQL, tenantID, string(domain), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres history purge failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
