package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/spice-sync/internal/common"
)

// AcquireSyncLock takes the sync lease for a (user, credential) pair.
// The lease is granted when no lease exists, the current one has expired,
// or owner already holds it (which renews it). Otherwise common.ErrSyncInProgress
// is returned.
func (s *SQLiteStorage) AcquireSyncLock(ctx context.Context, userID, accessCredential, owner string, ttl time.Duration) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(accessCredential, "accessCredential"); err != nil {
		return err
	}
	if err := validateString(owner, "owner"); err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_locks (user_id, access_credential, owner, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, access_credential) DO UPDATE SET
			owner = excluded.owner,
			expires_at = excluded.expires_at
		WHERE sync_locks.expires_at <= ? OR sync_locks.owner = excluded.owner
	`, userID, accessCredential, owner, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to acquire sync lock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return common.ErrSyncInProgress
	}
	return nil
}

// ReleaseSyncLock drops the lease if owner still holds it.
func (s *SQLiteStorage) ReleaseSyncLock(ctx context.Context, userID, accessCredential, owner string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_locks
		WHERE user_id = ? AND access_credential = ? AND owner = ?
	`, userID, accessCredential, owner)
	if err != nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	return nil
}
