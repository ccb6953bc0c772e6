package mocks

import (
	"context"

	"downloadrelay/internal/relay"

	"github.com/stretchr/testify/mock"
)

// MockFetcher is a mock implementation of relay.Fetcher.
type MockFetcher struct {
	mock.Mock
}

var _ relay.Fetcher = (*MockFetcher)(nil)

// Fetch mocks an upstream fetch
func (m *MockFetcher) Fetch(ctx context.Context, rawURL string) (*relay.Upstream, error) {
	args := m.Called(ctx, rawURL)
	if upstream, ok := args.Get(0).(*relay.Upstream); ok {
		return upstream, args.Error(1)
	}
	return nil, args.Error(1)
}
