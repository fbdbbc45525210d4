package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/meerabeer/nfo-agent/internal/buffer"
	"github.com/meerabeer/nfo-agent/internal/models"
)

// MockBuffer is a mock implementation of buffer.Buffer.
type MockBuffer struct {
	mock.Mock
}

func (m *MockBuffer) Append(ctx context.Context, h models.Heartbeat) (int64, error) {
	args := m.Called(ctx, h)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBuffer) Unsynced(ctx context.Context, limit int) ([]models.Heartbeat, error) {
	args := m.Called(ctx, limit)
	rows, _ := args.Get(0).([]models.Heartbeat)
	return rows, args.Error(1)
}

func (m *MockBuffer) MarkSynced(ctx context.Context, ids []int64) error {
	return m.Called(ctx, ids).Error(0)
}

func (m *MockBuffer) Prune(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBuffer) MostRecent(ctx context.Context) (*models.Heartbeat, error) {
	args := m.Called(ctx)
	hb, _ := args.Get(0).(*models.Heartbeat)
	return hb, args.Error(1)
}

func (m *MockBuffer) Amend(ctx context.Context, id int64, patch buffer.Patch) error {
	return m.Called(ctx, id, patch).Error(0)
}

func (m *MockBuffer) Stats(ctx context.Context) (buffer.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(buffer.Stats), args.Error(1)
}

func (m *MockBuffer) Close() error {
	return m.Called().Error(0)
}
