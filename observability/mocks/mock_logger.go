// Package mocks provides testify mocks for the observability contracts.
package mocks

import (
	"context"

	"downloadrelay/observability/types"

	"github.com/stretchr/testify/mock"
)

// MockLogger is a mock implementation of the Logger interface
type MockLogger struct {
	mock.Mock
}

// Info mocks the Info method
func (m *MockLogger) Info(ctx context.Context, msg string, fields types.Fields) {
	m.Called(ctx, msg, fields)
}

// Error mocks the Error method
func (m *MockLogger) Error(ctx context.Context, msg string, err error, fields types.Fields) {
	m.Called(ctx, msg, err, fields)
}

// Warn mocks the Warn method
func (m *MockLogger) Warn(ctx context.Context, msg string, fields types.Fields) {
	m.Called(ctx, msg, fields)
}

// Debug mocks the Debug method
func (m *MockLogger) Debug(ctx context.Context, msg string, fields types.Fields) {
	m.Called(ctx, msg, fields)
}

// WithFields mocks the WithFields method
func (m *MockLogger) WithFields(fields types.Fields) types.Logger {
	args := m.Called(fields)
	if logger, ok := args.Get(0).(types.Logger); ok {
		return logger
	}
	return m
}

// NewPermissiveLogger returns a MockLogger that accepts any call.
func NewPermissiveLogger() *MockLogger {
	l := &MockLogger{}
	l.On("Info", mock.Anything, mock.Anything, mock.Anything).Maybe()
	l.On("Warn", mock.Anything, mock.Anything, mock.Anything).Maybe()
	l.On("Debug", mock.Anything, mock.Anything, mock.Anything).Maybe()
	l.On("Error", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	l.On("WithFields", mock.Anything).Return(l).Maybe()
	return l
}
