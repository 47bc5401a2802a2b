package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/spice-sync/internal/common"
	"github.com/Veraticus/spice-sync/internal/model"
	"github.com/shopspring/decimal"
)

func TestSQLiteStorage_UpsertAccounts_UpdatesInPlace(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	user := createTestUser(t, store, "upsert@example.com")

	acct := model.Account{
		UserID:           user.ID,
		AccountID:        "a1",
		AccessCredential: "access-1",
		Name:             "Checking",
		Type:             model.AccountTypeBank,
		Balance:          decimal.RequireFromString("100.00"),
	}
	if err := store.UpsertAccounts(ctx, []model.Account{acct}); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	acct.Balance = decimal.RequireFromString("250.75")
	acct.Institution = "First Platypus Bank"
	if err := store.UpsertAccounts(ctx, []model.Account{acct}); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	accounts, err := store.ListAccounts(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("Expected 1 account, got %d", len(accounts))
	}
	if !accounts[0].Balance.Equal(decimal.RequireFromString("250.75")) {
		t.Errorf("Balance = %s, want 250.75", accounts[0].Balance)
	}
	if accounts[0].Institution != "First Platypus Bank" {
		t.Errorf("Institution = %q", accounts[0].Institution)
	}
}

func TestSQLiteStorage_UpsertAccounts_DefaultsAndKeys(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	user := createTestUser(t, store, "keys@example.com")

	accounts := []model.Account{
		{UserID: user.ID, AccountID: "a1", AccessCredential: "access-1", Name: "Checking", Type: model.AccountTypeBank, Institution: "Unlisted Bank"},
		// A different name is a different identity.
		{UserID: user.ID, AccountID: "a1", AccessCredential: "access-1", Name: "Checking (renamed)", Type: model.AccountTypeBank, Institution: "Unlisted Bank"},
		{UserID: user.ID, AccountID: "a2", AccessCredential: "access-2", Name: "Card", Type: model.AccountTypeCreditCard, Institution: "Unlisted Bank"},
	}
	if err := store.UpsertAccounts(ctx, accounts); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	stored, err := store.ListAccounts(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("Expected 3 accounts, got %d", len(stored))
	}
	for _, acct := range stored {
		// The configured default reaches storage untouched.
		if acct.Institution != "Unlisted Bank" {
			t.Errorf("Account %s institution = %q, want %q", acct.AccountID, acct.Institution, "Unlisted Bank")
		}
	}

	creds, err := store.ListCredentials(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListCredentials failed: %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("Expected 2 credentials, got %d", len(creds))
	}
	if creds[0].AccessCredential != "access-1" || creds[0].AccountCount != 2 {
		t.Errorf("Unexpected first credential: %+v", creds[0])
	}
}

func TestSQLiteStorage_UpsertAccounts_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	err := store.UpsertAccounts(context.Background(), []model.Account{{UserID: "u", AccountID: "a"}})
	if !errors.Is(err, ErrInvalidAccount) {
		t.Errorf("Expected ErrInvalidAccount, got %v", err)
	}
}

func TestSQLiteStorage_GetAccountsByProviderIDs_ScopedToUser(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	alice := createTestUser(t, store, "alice@example.com")
	bob := createTestUser(t, store, "bob@example.com")
	seedAccount(t, store, alice.ID, "shared", "access-a")
	seedAccount(t, store, bob.ID, "shared", "access-b")

	accounts, err := store.GetAccountsByProviderIDs(ctx, alice.ID, []string{"shared", "missing"})
	if err != nil {
		t.Fatalf("GetAccountsByProviderIDs failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0].AccessCredential != "access-a" {
		t.Errorf("Expected only alice's account, got %+v", accounts)
	}

	none, err := store.GetAccountsByProviderIDs(ctx, alice.ID, nil)
	if err != nil || none != nil {
		t.Errorf("Expected nil result for empty ID list, got %v, %v", none, err)
	}
}

func TestSQLiteStorage_DeleteAccount_CascadesTransactions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, store, "cascade@example.com")
	acct := seedAccount(t, store, user.ID, "a1", "access-1")

	_, err := store.InsertTransactions(ctx, []model.Transaction{{
		AccountRef:      acct.ID,
		UserID:          user.ID,
		TransactionID:   "t1",
		Amount:          decimal.RequireFromString("9.99"),
		Datetime:        time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		TransactionType: model.DefaultTransactionType,
		PaymentChannel:  model.DefaultPaymentChannel,
	}})
	if err != nil {
		t.Fatalf("InsertTransactions failed: %v", err)
	}

	if err := store.DeleteAccount(ctx, acct.ID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}

	count, err := store.CountTransactions(ctx, user.ID)
	if err != nil {
		t.Fatalf("CountTransactions failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected cascade to remove transactions, %d remain", count)
	}

	if err := store.DeleteAccount(ctx, acct.ID); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
}
