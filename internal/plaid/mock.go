// Package plaid provides a client for interacting with the Plaid API.
package plaid

import (
	"context"
	"sync"

	"github.com/Veraticus/spice-sync/internal/model"
)

// MockClient is a mock implementation of ChangeFeed for testing.
type MockClient struct {
	// Function that can be set by tests to control behavior
	SyncTransactionsFn func(ctx context.Context, accessToken, cursor string) (*model.SyncBatch, error)

	// Call tracking
	SyncTransactionsCalls []SyncTransactionsCall
	mu                    sync.Mutex
}

// SyncTransactionsCall records the parameters of a SyncTransactions call.
type SyncTransactionsCall struct {
	AccessToken string
	Cursor      string
}

// NewMockClient creates a new mock Plaid client.
func NewMockClient() *MockClient {
	return &MockClient{
		SyncTransactionsCalls: []SyncTransactionsCall{},
	}
}

// SyncTransactions implements ChangeFeed.SyncTransactions.
func (m *MockClient) SyncTransactions(ctx context.Context, accessToken, cursor string) (*model.SyncBatch, error) {
	m.mu.Lock()
	m.SyncTransactionsCalls = append(m.SyncTransactionsCalls, SyncTransactionsCall{
		AccessToken: accessToken,
		Cursor:      cursor,
	})
	fn := m.SyncTransactionsFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, accessToken, cursor)
	}

	// Default behavior: nothing changed, cursor unchanged
	return &model.SyncBatch{NextCursor: cursor}, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockClient) Calls() []SyncTransactionsCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SyncTransactionsCall(nil), m.SyncTransactionsCalls...)
}

// Reset clears all call tracking.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SyncTransactionsCalls = []SyncTransactionsCall{}
}

// Ensure MockClient implements ChangeFeed interface.
var _ ChangeFeed = (*MockClient)(nil)
