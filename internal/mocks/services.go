package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/meerabeer/nfo-agent/internal/models"
	"github.com/meerabeer/nfo-agent/internal/services"
	"github.com/meerabeer/nfo-agent/internal/session"
	"github.com/meerabeer/nfo-agent/pkg/location"
)

// MockFlusher is a mock implementation of services.Flusher.
type MockFlusher struct {
	mock.Mock
}

func (m *MockFlusher) Flush(ctx context.Context, limit int) (services.FlushResult, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).(services.FlushResult), args.Error(1)
}

func (m *MockFlusher) Pending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockFlushRequester is a mock implementation of services.FlushRequester.
type MockFlushRequester struct {
	mock.Mock
}

func (m *MockFlushRequester) RequestFlush(reason string) error {
	return m.Called(reason).Error(0)
}

// MockMonitor is a mock implementation of connectivity.Monitor.
type MockMonitor struct {
	mock.Mock
}

func (m *MockMonitor) Available(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

// MockNotifier is a mock implementation of notify.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, alert models.Alert) error {
	return m.Called(ctx, alert).Error(0)
}

// MockProvider is a mock implementation of location.Provider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) GetLocation(ctx context.Context) (location.Sample, error) {
	args := m.Called(ctx)
	return args.Get(0).(location.Sample), args.Error(1)
}

// MockCapability implements capability.BackgroundCapability and services.CapabilityHolder.
type MockCapability struct {
	mock.Mock
}

func (m *MockCapability) Granted() bool {
	return m.Called().Bool(0)
}

func (m *MockCapability) Request(ctx context.Context, actorID, reason string) error {
	return m.Called(ctx, actorID, reason).Error(0)
}

func (m *MockCapability) Grant() {
	m.Called()
}

func (m *MockCapability) Revoke() {
	m.Called()
}

// MockWatchdogStore is a mock implementation of services.WatchdogStore.
type MockWatchdogStore struct {
	mock.Mock
}

func (m *MockWatchdogStore) LoadState() (models.WatchdogState, error) {
	args := m.Called()
	return args.Get(0).(models.WatchdogState), args.Error(1)
}

func (m *MockWatchdogStore) SaveState(state models.WatchdogState) error {
	return m.Called(state).Error(0)
}

// MockBootStateStore is a mock implementation of services.BootStateStore.
type MockBootStateStore struct {
	mock.Mock
}

func (m *MockBootStateStore) LoadSession() (session.Context, error) {
	args := m.Called()
	return args.Get(0).(session.Context), args.Error(1)
}

func (m *MockBootStateStore) LoadBootMarker() (models.BootMarker, error) {
	args := m.Called()
	return args.Get(0).(models.BootMarker), args.Error(1)
}

func (m *MockBootStateStore) SaveBootMarker(marker models.BootMarker) error {
	return m.Called(marker).Error(0)
}

// MockSampler is a mock implementation of services.SamplerController.
type MockSampler struct {
	mock.Mock
}

func (m *MockSampler) Start() error  { return m.Called().Error(0) }
func (m *MockSampler) Stop() error   { return m.Called().Error(0) }
func (m *MockSampler) Running() bool { return m.Called().Bool(0) }

// MockWatchdog is a mock implementation of services.WatchdogController.
type MockWatchdog struct {
	mock.Mock
}

func (m *MockWatchdog) Arm()    { m.Called() }
func (m *MockWatchdog) Disarm() { m.Called() }

// MockBoundary is a mock implementation of services.BoundaryFinalizer.
type MockBoundary struct {
	mock.Mock
}

func (m *MockBoundary) Finalize(ctx context.Context, ev session.Event) (services.BoundaryResult, error) {
	args := m.Called(ctx, ev)
	return args.Get(0).(services.BoundaryResult), args.Error(1)
}

// MockRecoverer is a mock implementation of services.Recoverer.
type MockRecoverer struct {
	mock.Mock
}

func (m *MockRecoverer) Run(ctx context.Context) (services.RecoveryOutcome, error) {
	args := m.Called(ctx)
	return args.Get(0).(services.RecoveryOutcome), args.Error(1)
}

// MockService is a mock implementation of registry.Service.
type MockService struct {
	mock.Mock
}

func (m *MockService) Start() error { return m.Called().Error(0) }
func (m *MockService) Stop() error  { return m.Called().Error(0) }
