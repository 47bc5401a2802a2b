package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-sync/internal/common"
	"github.com/Veraticus/spice-sync/internal/model"
	"github.com/Veraticus/spice-sync/internal/service"
)

// AccountReconciler upserts the aggregator's account snapshots for one credential.
type AccountReconciler struct {
	storage service.Storage
	logger  *slog.Logger
	config  Config
}

// NewAccountReconciler creates an account reconciler.
func NewAccountReconciler(storage service.Storage, config Config) *AccountReconciler {
	return &AccountReconciler{
		storage: storage,
		config:  config,
		logger:  common.ComponentLogger("accounts"),
	}
}

// Reconcile upserts every snapshot keyed on (user, account_id, credential, name)
// in one storage transaction and returns how many were written.
func (r *AccountReconciler) Reconcile(ctx context.Context, userID, accessCredential string, snapshots []model.AccountSnapshot) (int, error) {
	accounts := make([]model.Account, 0, len(snapshots))
	for _, snap := range snapshots {
		if r.config.excludes(snap.Type) {
			r.logger.Debug("Skipping excluded account type",
				"account_id", snap.AccountID,
				"type", snap.Type)
			continue
		}

		institution := snap.InstitutionName
		if institution == "" {
			institution = r.config.Defaults.Institution
		}

		accounts = append(accounts, model.Account{
			UserID:           userID,
			AccountID:        snap.AccountID,
			AccessCredential: accessCredential,
			Name:             snap.Name,
			Type:             snap.Type,
			Balance:          snap.CurrentBalance,
			Institution:      institution,
		})
	}

	if err := r.storage.UpsertAccounts(ctx, accounts); err != nil {
		return 0, fmt.Errorf("%w: failed to upsert accounts: %w", common.ErrPersistence, err)
	}

	r.logger.Debug("Reconciled accounts",
		"user_id", userID,
		"received", len(snapshots),
		"upserted", len(accounts))

	return len(accounts), nil
}
