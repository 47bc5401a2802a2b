// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spice-sync/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, email string) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	// Account operations
	UpsertAccounts(ctx context.Context, accounts []model.Account) error
	GetAccountsByProviderIDs(ctx context.Context, userID string, accountIDs []string) ([]model.Account, error)
	ListAccounts(ctx context.Context, userID string) ([]model.Account, error)
	ListCredentials(ctx context.Context, userID string) ([]CredentialSummary, error)
	DeleteAccount(ctx context.Context, id int64) error

	// Transaction operations
	InsertTransactions(ctx context.Context, transactions []model.Transaction) (int, error)
	UpdateTransactions(ctx context.Context, transactions []model.Transaction) (int, error)
	DeleteTransactions(ctx context.Context, userID string, transactionIDs []string) (int, error)
	GetTransactionsByProviderID(ctx context.Context, userID, transactionID string) ([]model.Transaction, error)
	GetAccountTransactions(ctx context.Context, accountRef int64, start, end time.Time) ([]model.Transaction, error)
	CountTransactions(ctx context.Context, userID string) (int, error)

	// Cursor operations
	GetCursor(ctx context.Context, userID, accessCredential string) (string, error)
	SetCursor(ctx context.Context, userID, accessCredential, cursor string) error

	// Sync lease operations
	AcquireSyncLock(ctx context.Context, userID, accessCredential, owner string, ttl time.Duration) error
	ReleaseSyncLock(ctx context.Context, userID, accessCredential, owner string) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// CredentialSummary describes one distinct access credential among a user's accounts.
type CredentialSummary struct {
	AccessCredential string
	AccountCount     int
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
