package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/spice-sync/internal/model"
	"github.com/shopspring/decimal"
)

func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func createTestUser(t *testing.T, store *SQLiteStorage, email string) *model.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), email)
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}
	return user
}

// seedAccount upserts one account and returns the stored row.
func seedAccount(t *testing.T, store *SQLiteStorage, userID, accountID, credential string) model.Account {
	t.Helper()
	ctx := context.Background()

	err := store.UpsertAccounts(ctx, []model.Account{{
		UserID:           userID,
		AccountID:        accountID,
		AccessCredential: credential,
		Name:             "Checking " + accountID,
		Type:             model.AccountTypeBank,
		Balance:          decimal.NewFromInt(100),
	}})
	if err != nil {
		t.Fatalf("Failed to seed account: %v", err)
	}

	accounts, err := store.GetAccountsByProviderIDs(ctx, userID, []string{accountID})
	if err != nil || len(accounts) == 0 {
		t.Fatalf("Failed to load seeded account: %v", err)
	}
	return accounts[len(accounts)-1]
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteStorage("  "); err == nil {
		t.Fatal("Expected error for empty path")
	}
}

func TestSQLiteStorage_ForeignKeysEnabled(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	var enabled int
	if err := store.db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("Failed to read pragma: %v", err)
	}
	if enabled != 1 {
		t.Errorf("foreign_keys = %d, want 1", enabled)
	}
}

func TestSQLiteStorage_Users(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, store, "Alice@Example.com ")
	if user.ID == "" {
		t.Fatal("Expected generated user ID")
	}
	if user.Email != "alice@example.com" {
		t.Errorf("Email = %q, want normalized address", user.Email)
	}

	if _, err := store.CreateUser(ctx, "alice@example.com"); err == nil {
		t.Error("Expected duplicate email to fail")
	}

	byEmail, err := store.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.ID != user.ID {
		t.Errorf("GetUserByEmail returned %s, want %s", byEmail.ID, user.ID)
	}

	createTestUser(t, store, "bob@example.com")
	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("Expected 2 users, got %d", len(users))
	}
}
