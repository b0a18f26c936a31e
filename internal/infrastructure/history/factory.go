package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/config"
)

// Store is a history backend the process owns
type Store interface {
	Recent(ctx context.Context, tenantID uuid.UUID, domain forecast.Domain, limit int) ([]forecast.HistorySnapshot, error)
	Append(ctx context.Context, tenantID uuid.UUID, snapshots []forecast.HistorySnapshot) error
	Purge(ctx context.Context, tenantID uuid.UUID, domain forecast.Domain, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Open connects to the configured backend. It returns a nil Store when
// history is disabled.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.History.Backend {
	case config.HistoryBackendNone, "":
		logger.Info("history store disabled")
		return nil, nil
	case config.HistoryBackendRedis:
		store, err := NewRedisStore(ctx, &cfg.Redis, cfg.History.Retention, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.HistoryBackendPostgres:
		store, err := NewPostgresStore(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}
