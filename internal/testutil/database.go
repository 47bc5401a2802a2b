// Package testutil provides test fixtures for spice-sync packages.
// It offers a migrated SQLite database per test and helpers for seeding it.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/spice-sync/internal/model"
	"github.com/Veraticus/spice-sync/internal/storage"
	"github.com/shopspring/decimal"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a migrated SQLite database in the test's temp dir.
// The database is closed when the test finishes.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	user := db.MustCreateUser("ana@example.com")
//	db.MustSeedAccount(user.ID, "acc-1", "access-1")
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "spice-sync.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// MustCreateUser creates a user or fails the test.
func (db *TestDB) MustCreateUser(email string) *model.User {
	db.t.Helper()
	user, err := db.Storage.CreateUser(context.Background(), email)
	if err != nil {
		db.t.Fatalf("failed to create user %q: %v", email, err)
	}
	return user
}

// MustSeedAccount upserts a bank account for the user and returns the stored row.
func (db *TestDB) MustSeedAccount(userID, accountID, credential string) model.Account {
	db.t.Helper()
	ctx := context.Background()

	err := db.Storage.UpsertAccounts(ctx, []model.Account{{
		UserID:           userID,
		AccountID:        accountID,
		AccessCredential: credential,
		Name:             "Checking " + accountID,
		Type:             model.AccountTypeBank,
		Balance:          decimal.NewFromInt(1000),
	}})
	if err != nil {
		db.t.Fatalf("failed to seed account %q: %v", accountID, err)
	}

	accounts, err := db.Storage.GetAccountsByProviderIDs(ctx, userID, []string{accountID})
	if err != nil {
		db.t.Fatalf("failed to load seeded account %q: %v", accountID, err)
	}
	if len(accounts) != 1 {
		db.t.Fatalf("expected 1 seeded account %q, got %d", accountID, len(accounts))
	}
	return accounts[0]
}

// MustSetCursor stores a cursor or fails the test.
func (db *TestDB) MustSetCursor(userID, credential, cursor string) {
	db.t.Helper()
	if err := db.Storage.SetCursor(context.Background(), userID, credential, cursor); err != nil {
		db.t.Fatalf("failed to set cursor: %v", err)
	}
}

// MustTransactions returns the user's stored rows for a provider transaction ID.
func (db *TestDB) MustTransactions(userID, transactionID string) []model.Transaction {
	db.t.Helper()
	txns, err := db.Storage.GetTransactionsByProviderID(context.Background(), userID, transactionID)
	if err != nil {
		db.t.Fatalf("failed to load transaction %q: %v", transactionID, err)
	}
	return txns
}

// MustCountTransactions counts the user's stored transactions or fails the test.
func (db *TestDB) MustCountTransactions(userID string) int {
	db.t.Helper()
	n, err := db.Storage.CountTransactions(context.Background(), userID)
	if err != nil {
		db.t.Fatalf("failed to count transactions: %v", err)
	}
	return n
}
