package mocks

import (
	"downloadrelay/observability/types"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of the Provider interface
type MockProvider struct {
	mock.Mock
}

// Logger mocks the Logger method
func (m *MockProvider) Logger(component string) types.Logger {
	args := m.Called(component)
	if logger, ok := args.Get(0).(types.Logger); ok {
		return logger
	}
	return nil
}

// Metrics mocks the Metrics method
func (m *MockProvider) Metrics(component string) types.Metrics {
	args := m.Called(component)
	if metrics, ok := args.Get(0).(types.Metrics); ok {
		return metrics
	}
	return nil
}

// Close mocks the Close method
func (m *MockProvider) Close() error {
	args := m.Called()
	return args.Error(0)
}

// NewPermissiveProvider returns a MockProvider handing out permissive
// loggers and metrics for every component.
func NewPermissiveProvider() *MockProvider {
	p := &MockProvider{}
	p.On("Logger", mock.Anything).Return(NewPermissiveLogger()).Maybe()
	p.On("Metrics", mock.Anything).Return(NewPermissiveMetrics()).Maybe()
	p.On("Close").Return(nil).Maybe()
	return p
}
