package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
)

// MockHistoryStore is a testify mock of the history store interfaces
type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) Recent(ctx context.Context, tenantID uuid.UUID, domain forecast.Domain, limit int) ([]forecast.HistorySnapshot, error) {
	args := m.Called(ctx, tenantID, domain, limit)
	if fn, ok := args.Get(0).(func() []forecast.HistorySnapshot); ok {
		return fn(), args.Error(1)
	}
	snaps, _ := args.Get(0).([]forecast.HistorySnapshot)
	return snaps, args.Error(1)
}

func (m *MockHistoryStore) Append(ctx context.Context, tenantID uuid.UUID, snapshots []forecast.HistorySnapshot) error {
	args := m.Called(ctx, tenantID, snapshots)
	return args.Error(0)
}

// ExpectEmptyHistory stubs Recent to return nothing for every domain
func (m *MockHistoryStore) ExpectEmptyHistory() *mock.Call {
	return m.On("Recent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
}
