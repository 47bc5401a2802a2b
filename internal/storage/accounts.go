package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-sync/internal/common"
	"github.com/Veraticus/spice-sync/internal/model"
	"github.com/Veraticus/spice-sync/internal/service"
)

const accountColumns = `id, user_id, account_id, access_credential, name,
	account_type, balance, institution, created_at, updated_at`

// UpsertAccounts inserts or updates accounts keyed on
// (user_id, account_id, access_credential, name) in one transaction.
// Institution is stored as given; callers apply their own default.
func (s *SQLiteStorage) UpsertAccounts(ctx context.Context, accounts []model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(accounts) == 0 {
		return nil
	}
	for i := range accounts {
		if err := validateAccount(&accounts[i]); err != nil {
			return fmt.Errorf("account at index %d: %w", i, err)
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO accounts (
				user_id, account_id, access_credential, name,
				account_type, balance, institution
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, account_id, access_credential, name) DO UPDATE SET
				account_type = excluded.account_type,
				balance = excluded.balance,
				institution = excluded.institution,
				updated_at = CURRENT_TIMESTAMP
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, acct := range accounts {
			if _, err := stmt.ExecContext(ctx,
				acct.UserID,
				acct.AccountID,
				acct.AccessCredential,
				acct.Name,
				string(acct.Type),
				acct.Balance,
				acct.Institution,
			); err != nil {
				return fmt.Errorf("failed to upsert account %s: %w", acct.AccountID, err)
			}
		}
		return nil
	})
}

// GetAccountsByProviderIDs loads a user's accounts whose provider account_id is in accountIDs.
func (s *SQLiteStorage) GetAccountsByProviderIDs(ctx context.Context, userID string, accountIDs []string) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if len(accountIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(accountIDs)+1)
	args = append(args, userID)
	for _, id := range accountIDs {
		args = append(args, id)
	}

	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE user_id = ? AND account_id IN (` + placeholders(len(accountIDs)) + `)
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanAccounts(rows)
}

// ListAccounts returns all accounts owned by a user.
func (s *SQLiteStorage) ListAccounts(ctx context.Context, userID string) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE user_id = ?
		ORDER BY institution, name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanAccounts(rows)
}

// ListCredentials returns the distinct access credentials among a user's accounts,
// in the order they were first linked.
func (s *SQLiteStorage) ListCredentials(ctx context.Context, userID string) ([]service.CredentialSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT access_credential, COUNT(*)
		FROM accounts
		WHERE user_id = ?
		GROUP BY access_credential
		ORDER BY MIN(id)
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var creds []service.CredentialSummary
	for rows.Next() {
		var cred service.CredentialSummary
		if err := rows.Scan(&cred.AccessCredential, &cred.AccountCount); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// DeleteAccount removes an account and, by cascade, its transactions.
func (s *SQLiteStorage) DeleteAccount(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

func scanAccounts(rows *sql.Rows) ([]model.Account, error) {
	var accounts []model.Account
	for rows.Next() {
		var acct model.Account
		var accountType string
		if err := rows.Scan(
			&acct.ID,
			&acct.UserID,
			&acct.AccountID,
			&acct.AccessCredential,
			&acct.Name,
			&accountType,
			&acct.Balance,
			&acct.Institution,
			&acct.CreatedAt,
			&acct.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		acct.Type = model.AccountType(accountType)
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
