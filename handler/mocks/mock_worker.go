package mocks

import (
	"context"

	"downloadrelay/handler"

	"github.com/stretchr/testify/mock"
)

// MockWorker is a mock implementation of the Worker interface.
type MockWorker struct {
	mock.Mock
}

var _ handler.Worker = (*MockWorker)(nil)

// Name returns the mock worker name
func (m *MockWorker) Name() string {
	args := m.Called()
	return args.String(0)
}

// Process mocks the request processing
func (m *MockWorker) Process(ctx context.Context, request handler.Request) (handler.Response, error) {
	args := m.Called(ctx, request)
	return args.Get(0).(handler.Response), args.Error(1)
}

// Health mocks the health check
func (m *MockWorker) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// ExpectProcess sets up an expectation for Process with a specific method
func (m *MockWorker) ExpectProcess(method string, response handler.Response, err error) *mock.Call {
	return m.On("Process",
		mock.Anything,
		mock.MatchedBy(func(req handler.Request) bool {
			return req.Method == method
		}),
	).Return(response, err)
}

// ExpectProcessAny sets up an expectation for any Process call
func (m *MockWorker) ExpectProcessAny(response handler.Response, err error) *mock.Call {
	return m.On("Process", mock.Anything, mock.Anything).Return(response, err)
}

// MockClassifyingWorker is a MockWorker that also implements
// handler.ErrorClassifier.
type MockClassifyingWorker struct {
	MockWorker
}

var _ handler.ErrorClassifier = (*MockClassifyingWorker)(nil)

// ClassifyError mocks the conversion of a transfer error into a response
func (m *MockClassifyingWorker) ClassifyError(requestID string, err error) handler.Response {
	args := m.Called(requestID, err)
	return args.Get(0).(handler.Response)
}
