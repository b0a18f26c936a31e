package forecasting

import (
	"context"

	"github.com/google/uuid"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
)

// HistoryReader returns a tenant's most recent snapshots for one domain.
// Implementations return at most limit snapshots, newest first or in any
// order; the engine sorts them.
type HistoryReader interface {
	Recent(ctx context.Context, tenantID uuid.UUID, domain forecast.Domain, limit int) ([]forecast.HistorySnapshot, error)
}

// HistoryWriter stores snapshots for a tenant. Only the ingestion side writes.
type HistoryWriter interface {
	Append(ctx context.Context, tenantID uuid.UUID, snapshots []forecast.HistorySnapshot) error
}

// HistoryStore is a store that can be both read and written
type HistoryStore interface {
	HistoryReader
	HistoryWriter
}
