package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/spice-sync/internal/common"
)

// GetCursor returns the stored resume cursor for a (user, credential) pair,
// or common.ErrNotFound when the pair has never been synced.
func (s *SQLiteStorage) GetCursor(ctx context.Context, userID, accessCredential string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(userID, "userID"); err != nil {
		return "", err
	}
	if err := validateString(accessCredential, "accessCredential"); err != nil {
		return "", err
	}

	var cursor string
	err := s.db.QueryRowContext(ctx, `
		SELECT cursor FROM cursors
		WHERE user_id = ? AND access_credential = ?
	`, userID, accessCredential).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get cursor: %w", err)
	}
	return cursor, nil
}

// SetCursor stores the resume cursor, replacing any previous value for the pair.
func (s *SQLiteStorage) SetCursor(ctx context.Context, userID, accessCredential, cursor string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(accessCredential, "accessCredential"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (user_id, access_credential, cursor)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, access_credential) DO UPDATE SET
			cursor = excluded.cursor,
			updated_at = CURRENT_TIMESTAMP
	`, userID, accessCredential, cursor)
	if err != nil {
		return fmt.Errorf("failed to set cursor: %w", err)
	}
	return nil
}
