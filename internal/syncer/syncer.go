// Package syncer drives incremental sync rounds from the aggregator change
// feed into local storage.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-sync/internal/common"
	"github.com/Veraticus/spice-sync/internal/plaid"
	"github.com/Veraticus/spice-sync/internal/service"
	"github.com/google/uuid"
)

// Syncer orchestrates sync rounds per (user, access credential).
type Syncer struct {
	storage      service.Storage
	feed         plaid.ChangeFeed
	accounts     *AccountReconciler
	transactions *TransactionReconciler
	logger       *slog.Logger
	config       Config
}

// SyncResult describes one completed round for a credential.
type SyncResult struct {
	UserID           string
	AccessCredential string
	PreviousCursor   string
	NextCursor       string
	Delta            DeltaResult
	AccountsUpserted int
	Duration         time.Duration
}

// Success reports whether every transaction phase of the round completed.
func (r *SyncResult) Success() bool {
	return r != nil && r.Delta.Success()
}

// CredentialOutcome is one credential's round within a multi-credential sync.
type CredentialOutcome struct {
	Err              error
	Result           *SyncResult
	AccessCredential string
	AccountCount     int
}

// Success reports whether the round ran and all its phases completed.
func (o CredentialOutcome) Success() bool {
	return o.Err == nil && o.Result.Success()
}

// UserSyncResult aggregates the rounds for all of a user's credentials.
type UserSyncResult struct {
	UserID   string
	Outcomes []CredentialOutcome
}

// Success reports whether every credential synced cleanly.
func (r *UserSyncResult) Success() bool {
	for _, o := range r.Outcomes {
		if !o.Success() {
			return false
		}
	}
	return true
}

// BatchSummary contains statistics about a sync of all users.
type BatchSummary struct {
	Users                int
	Credentials          int
	CredentialsFailed    int
	TotalAccounts        int
	SuccessfulAccounts   int
	FailedAccounts       int
	TransactionsAdded    int
	TransactionsModified int
	TransactionsRemoved  int
	Duration             time.Duration
}

// ProgressFunc is called after each credential round of a batch.
type ProgressFunc func(done, total int, outcome CredentialOutcome)

// New creates a syncer with the given dependencies.
func New(storage service.Storage, feed plaid.ChangeFeed, config Config) (*Syncer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	transactions, err := NewTransactionReconciler(storage, config)
	if err != nil {
		return nil, err
	}

	return &Syncer{
		storage:      storage,
		feed:         feed,
		config:       config,
		accounts:     NewAccountReconciler(storage, config),
		transactions: transactions,
		logger:       common.ComponentLogger("syncer"),
	}, nil
}

// SyncCredential runs one round: fetch, reconcile accounts, store the cursor,
// then apply the transaction delta.
//
// The cursor is stored before transactions are applied. A crash between the
// two loses that delta; the next round resumes after it.
//
// The credential lease lasts Config.LockTTL and is renewed once the fetch
// returns, before anything is written. If the fetch outlived the lease and
// another round took it, this round writes nothing and returns
// common.ErrSyncInProgress. The writes after renewal must finish within one
// TTL for the exclusion to hold.
//
// Returns common.ErrSyncInProgress if another round holds the credential and
// an error wrapping common.ErrRemoteFetch if the fetch failed, in which case
// nothing was written. Transaction phase failures are reported in the result.
func (s *Syncer) SyncCredential(ctx context.Context, userID, accessCredential string) (*SyncResult, error) {
	start := time.Now()

	if accessCredential == "" {
		return nil, fmt.Errorf("access credential is required")
	}
	if _, err := s.storage.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	owner := uuid.NewString()
	if err := s.storage.AcquireSyncLock(ctx, userID, accessCredential, owner, s.config.LockTTL); err != nil {
		return nil, fmt.Errorf("failed to lock credential for user %s: %w", userID, err)
	}
	defer func() {
		if err := s.storage.ReleaseSyncLock(context.WithoutCancel(ctx), userID, accessCredential, owner); err != nil {
			s.logger.Warn("Failed to release sync lock", "user_id", userID, "error", err)
		}
	}()

	cursor, err := s.storage.GetCursor(ctx, userID, accessCredential)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: failed to read cursor: %w", common.ErrPersistence, err)
	}

	s.logger.Info("Starting sync round",
		"user_id", userID,
		"has_cursor", cursor != "")

	batch, err := s.feed.SyncTransactions(ctx, accessCredential, cursor)
	if err != nil {
		if !errors.Is(err, common.ErrRemoteFetch) {
			err = fmt.Errorf("%w: %w", common.ErrRemoteFetch, err)
		}
		s.logger.Error("Sync fetch failed", "user_id", userID, "error", err)
		return nil, err
	}

	if err := s.storage.AcquireSyncLock(ctx, userID, accessCredential, owner, s.config.LockTTL); err != nil {
		s.logger.Error("Lost sync lock during fetch", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to renew lock for user %s: %w", userID, err)
	}

	upserted, err := s.accounts.Reconcile(ctx, userID, accessCredential, batch.Accounts)
	if err != nil {
		return nil, err
	}

	if err := s.storage.SetCursor(ctx, userID, accessCredential, batch.NextCursor); err != nil {
		return nil, fmt.Errorf("%w: failed to store cursor: %w", common.ErrPersistence, err)
	}

	delta := s.transactions.ApplyDelta(ctx, userID, batch.Added, batch.Modified, batch.Removed)

	result := &SyncResult{
		UserID:           userID,
		AccessCredential: accessCredential,
		PreviousCursor:   cursor,
		NextCursor:       batch.NextCursor,
		AccountsUpserted: upserted,
		Delta:            delta,
		Duration:         time.Since(start),
	}

	s.logger.Info("Sync round complete",
		"user_id", userID,
		"accounts", upserted,
		"success", result.Success(),
		"duration", result.Duration)

	return result, nil
}

// SyncAllCredentialsForUser runs one round per distinct credential among the
// user's accounts, continuing past failures.
func (s *Syncer) SyncAllCredentialsForUser(ctx context.Context, userID string) (*UserSyncResult, error) {
	credentials, err := s.storage.ListCredentials(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials for user %s: %w", userID, err)
	}

	result := &UserSyncResult{UserID: userID}
	for _, cred := range credentials {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Outcomes = append(result.Outcomes, s.syncOutcome(ctx, userID, cred))
	}
	return result, nil
}

// SyncAll syncs every credential of every user. Individual failures are
// counted and logged; only context cancellation stops the batch.
func (s *Syncer) SyncAll(ctx context.Context, progress ProgressFunc) (*BatchSummary, error) {
	start := time.Now()
	summary := &BatchSummary{}

	users, err := s.storage.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	summary.Users = len(users)

	type job struct {
		userID string
		cred   service.CredentialSummary
	}
	var jobs []job
	for _, user := range users {
		credentials, err := s.storage.ListCredentials(ctx, user.ID)
		if err != nil {
			s.logger.Error("Failed to list credentials", "user_id", user.ID, "error", err)
			continue
		}
		for _, cred := range credentials {
			jobs = append(jobs, job{userID: user.ID, cred: cred})
		}
	}

	s.logger.Info("Starting batch sync",
		"users", len(users),
		"credentials", len(jobs))

	for i, j := range jobs {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}

		outcome := s.syncOutcome(ctx, j.userID, j.cred)

		summary.Credentials++
		summary.TotalAccounts += outcome.AccountCount
		if outcome.Success() {
			summary.SuccessfulAccounts += outcome.AccountCount
		} else {
			summary.CredentialsFailed++
			summary.FailedAccounts += outcome.AccountCount
		}
		if outcome.Result != nil {
			summary.TransactionsAdded += outcome.Result.Delta.Added.Applied
			summary.TransactionsModified += outcome.Result.Delta.Modified.Applied
			summary.TransactionsRemoved += outcome.Result.Delta.Removed.Applied
		}

		if progress != nil {
			progress(i+1, len(jobs), outcome)
		}
	}

	summary.Duration = time.Since(start)

	s.logger.Info("Batch sync complete",
		"credentials", summary.Credentials,
		"failed_credentials", summary.CredentialsFailed,
		"accounts", summary.TotalAccounts,
		"successful_accounts", summary.SuccessfulAccounts,
		"failed_accounts", summary.FailedAccounts,
		"duration", summary.Duration)

	return summary, nil
}

func (s *Syncer) syncOutcome(ctx context.Context, userID string, cred service.CredentialSummary) CredentialOutcome {
	result, err := s.SyncCredential(ctx, userID, cred.AccessCredential)
	outcome := CredentialOutcome{
		AccessCredential: cred.AccessCredential,
		AccountCount:     cred.AccountCount,
		Result:           result,
		Err:              err,
	}

	if outcome.Success() {
		s.logger.Info("Synced credential",
			"user_id", userID,
			"accounts", cred.AccountCount)
	} else {
		s.logger.Error("Failed to sync credential",
			"user_id", userID,
			"accounts", cred.AccountCount,
			"error", err)
	}
	return outcome
}
