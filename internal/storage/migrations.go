package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					email TEXT UNIQUE NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS accounts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					account_id TEXT NOT NULL,
					access_credential TEXT NOT NULL,
					name TEXT NOT NULL,
					account_type TEXT NOT NULL,
					balance TEXT NOT NULL DEFAULT '0',
					institution TEXT NOT NULL DEFAULT 'Unknown',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (user_id, account_id, access_credential, name),
					FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_accounts_user_account ON accounts(user_id, account_id)`,
				`CREATE INDEX idx_accounts_credential ON accounts(user_id, access_credential)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					account_ref INTEGER NOT NULL,
					user_id TEXT NOT NULL,
					transaction_id TEXT NOT NULL,
					amount TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					merchant_name TEXT,
					datetime DATETIME NOT NULL,
					transaction_type TEXT NOT NULL,
					payment_channel TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (account_ref) REFERENCES accounts(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_transactions_account_datetime ON transactions(account_ref, datetime)`,

				`CREATE TABLE IF NOT EXISTS cursors (
					user_id TEXT NOT NULL,
					access_credential TEXT NOT NULL,
					cursor TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (user_id, access_credential),
					FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
				)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Add sync lease table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS sync_locks (
					user_id TEXT NOT NULL,
					access_credential TEXT NOT NULL,
					owner TEXT NOT NULL,
					expires_at INTEGER NOT NULL,
					PRIMARY KEY (user_id, access_credential)
				)
			`)
			return err
		},
	},
	{
		Version:     3,
		Description: "Enforce per-user transaction_id uniqueness",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				// Keep the oldest row for any duplicates written before the constraint existed
				`DELETE FROM transactions WHERE id NOT IN (
					SELECT MIN(id) FROM transactions GROUP BY user_id, transaction_id
				)`,
				`CREATE UNIQUE INDEX idx_transactions_user_txn ON transactions(user_id, transaction_id)`,
			})
		},
	},
}

// SchemaVersion returns the schema version currently recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
