package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/spice-sync/internal/model"
)

// maxBatchParams keeps IN lists well under SQLite's bound-variable limit.
const maxBatchParams = 500

const transactionColumns = `t.id, t.account_ref, t.user_id, a.account_id, t.transaction_id,
	t.amount, t.description, t.merchant_name, t.datetime,
	t.transaction_type, t.payment_channel, t.created_at`

// InsertTransactions bulk-inserts transactions in a single database transaction.
// Rows whose (user_id, transaction_id) already exists are ignored; the number of
// newly inserted rows is returned.
func (s *SQLiteStorage) InsertTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if len(transactions) == 0 {
		return 0, nil
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, err
	}

	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transactions (
				account_ref, user_id, transaction_id, amount, description,
				merchant_name, datetime, transaction_type, payment_channel
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, transaction_id) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, txn := range transactions {
			result, err := stmt.ExecContext(ctx,
				txn.AccountRef,
				txn.UserID,
				txn.TransactionID,
				txn.Amount,
				txn.Description,
				nullString(txn.MerchantName),
				txn.Datetime.UTC(),
				txn.TransactionType,
				txn.PaymentChannel,
			)
			if err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", txn.TransactionID, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// UpdateTransactions overwrites existing transactions matched by
// (user_id, transaction_id). Transactions with no matching row are left alone;
// the number of updated rows is returned.
func (s *SQLiteStorage) UpdateTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if len(transactions) == 0 {
		return 0, nil
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, err
	}

	updated := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE transactions SET
				account_ref = ?,
				amount = ?,
				description = ?,
				merchant_name = ?,
				datetime = ?,
				transaction_type = ?,
				payment_channel = ?
			WHERE user_id = ? AND transaction_id = ?
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, txn := range transactions {
			result, err := stmt.ExecContext(ctx,
				txn.AccountRef,
				txn.Amount,
				txn.Description,
				nullString(txn.MerchantName),
				txn.Datetime.UTC(),
				txn.TransactionType,
				txn.PaymentChannel,
				txn.UserID,
				txn.TransactionID,
			)
			if err != nil {
				return fmt.Errorf("failed to update transaction %s: %w", txn.TransactionID, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			updated += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// DeleteTransactions removes a user's transactions by provider transaction_id.
// Unknown IDs are ignored.
func (s *SQLiteStorage) DeleteTransactions(ctx context.Context, userID string, transactionIDs []string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	if len(transactionIDs) == 0 {
		return 0, nil
	}

	deleted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(transactionIDs); start += maxBatchParams {
			end := min(start+maxBatchParams, len(transactionIDs))
			chunk := transactionIDs[start:end]

			args := make([]any, 0, len(chunk)+1)
			args = append(args, userID)
			for _, id := range chunk {
				args = append(args, id)
			}

			result, err := tx.ExecContext(ctx, `DELETE FROM transactions
				WHERE user_id = ? AND transaction_id IN (`+placeholders(len(chunk))+`)`, args...)
			if err != nil {
				return fmt.Errorf("failed to delete transactions: %w", err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			deleted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// GetTransactionsByProviderID returns the user's rows carrying transactionID.
func (s *SQLiteStorage) GetTransactionsByProviderID(ctx context.Context, userID, transactionID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+transactionColumns+`
		FROM transactions t
		JOIN accounts a ON a.id = t.account_ref
		WHERE t.user_id = ? AND t.transaction_id = ?
		ORDER BY t.id`, userID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

// GetAccountTransactions returns an account's transactions between start and end
// inclusive, oldest first.
func (s *SQLiteStorage) GetAccountTransactions(ctx context.Context, accountRef int64, start, end time.Time) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateDateRange(start, end); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+transactionColumns+`
		FROM transactions t
		JOIN accounts a ON a.id = t.account_ref
		WHERE t.account_ref = ? AND t.datetime >= ? AND t.datetime <= ?
		ORDER BY t.datetime, t.id`, accountRef, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

// CountTransactions returns how many transactions a user has stored.
func (s *SQLiteStorage) CountTransactions(ctx context.Context, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var transactions []model.Transaction
	for rows.Next() {
		var txn model.Transaction
		var merchant sql.NullString
		if err := rows.Scan(
			&txn.ID,
			&txn.AccountRef,
			&txn.UserID,
			&txn.AccountID,
			&txn.TransactionID,
			&txn.Amount,
			&txn.Description,
			&merchant,
			&txn.Datetime,
			&txn.TransactionType,
			&txn.PaymentChannel,
			&txn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if merchant.Valid {
			txn.MerchantName = merchant.String
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
