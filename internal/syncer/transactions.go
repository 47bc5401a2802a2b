package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-sync/internal/common"
	"github.com/Veraticus/spice-sync/internal/model"
	"github.com/Veraticus/spice-sync/internal/service"
)

var errMissingDate = errors.New("record has neither datetime nor date")

// Accepted layouts for datetimes without an offset.
// offsetDatetimeLayouts covers "T" or space separators, optional seconds,
// optional whitespace before the offset, and Z, ±HH:MM, ±HHMM or ±HH offsets.
// Fractional seconds are accepted by time.Parse without a layout element.
var offsetDatetimeLayouts = func() []string {
	var layouts []string
	for _, sep := range []string{"T", " "} {
		for _, clock := range []string{"15:04:05", "15:04"} {
			for _, gap := range []string{"", " "} {
				for _, zone := range []string{"Z07:00", "Z0700", "Z07"} {
					layouts = append(layouts, "2006-01-02"+sep+clock+gap+zone)
				}
			}
		}
	}
	return layouts
}()

var naiveDatetimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// AccountCache maps provider account_id to the stored account.
// It lives for a single ApplyDelta call.
type AccountCache map[string]model.Account

// PhaseResult reports one reconciliation phase.
type PhaseResult struct {
	Err      error
	Applied  int // Rows inserted, updated or deleted
	Filtered int // Records dropped by the expense filter
	Skipped  int // Records with no resolvable account or date
}

// Success reports whether the phase completed.
func (p PhaseResult) Success() bool {
	return p.Err == nil
}

// DeltaResult holds the outcome of each phase of one delta.
type DeltaResult struct {
	Added    PhaseResult
	Modified PhaseResult
	Removed  PhaseResult
}

// Success reports whether all three phases completed.
func (d DeltaResult) Success() bool {
	return d.Added.Success() && d.Modified.Success() && d.Removed.Success()
}

// TransactionReconciler applies added, modified and removed records to storage.
type TransactionReconciler struct {
	storage  service.Storage
	logger   *slog.Logger
	location *time.Location
	config   Config
}

// NewTransactionReconciler creates a transaction reconciler.
func NewTransactionReconciler(storage service.Storage, config Config) (*TransactionReconciler, error) {
	loc, err := config.Location()
	if err != nil {
		return nil, err
	}
	return &TransactionReconciler{
		storage:  storage,
		config:   config,
		location: loc,
		logger:   common.ComponentLogger("transactions"),
	}, nil
}

// ApplyDelta runs the add, modify and remove phases in order. A failing phase
// does not stop the others.
func (r *TransactionReconciler) ApplyDelta(ctx context.Context, userID string, added, modified []model.TxnRecord, removed []string) DeltaResult {
	cache := AccountCache{}

	result := DeltaResult{
		Added:    r.Add(ctx, userID, added, cache),
		Modified: r.Modify(ctx, userID, modified, cache),
		Removed:  r.Remove(ctx, userID, removed),
	}

	r.logger.Info("Applied transaction delta",
		"user_id", userID,
		"added", result.Added.Applied,
		"modified", result.Modified.Applied,
		"removed", result.Removed.Applied,
		"filtered", result.Added.Filtered+result.Modified.Filtered,
		"skipped", result.Added.Skipped+result.Modified.Skipped)

	return result
}

// Add inserts new expense records in one bulk operation. Records whose
// transaction_id the user already has are ignored.
func (r *TransactionReconciler) Add(ctx context.Context, userID string, records []model.TxnRecord, cache AccountCache) PhaseResult {
	txns, result := r.prepare(ctx, userID, records, cache)
	if result.Err != nil || len(txns) == 0 {
		return r.finish("add", result)
	}

	inserted, err := r.storage.InsertTransactions(ctx, txns)
	if err != nil {
		result.Err = fmt.Errorf("%w: failed to insert transactions: %w", common.ErrPersistence, err)
		return r.finish("add", result)
	}
	result.Applied = inserted

	return r.finish("add", result)
}

// Modify updates existing rows matched by (user, transaction_id). Records
// with no matching row change nothing.
func (r *TransactionReconciler) Modify(ctx context.Context, userID string, records []model.TxnRecord, cache AccountCache) PhaseResult {
	txns, result := r.prepare(ctx, userID, records, cache)
	if result.Err != nil || len(txns) == 0 {
		return r.finish("modify", result)
	}

	updated, err := r.storage.UpdateTransactions(ctx, txns)
	if err != nil {
		result.Err = fmt.Errorf("%w: failed to update transactions: %w", common.ErrPersistence, err)
		return r.finish("modify", result)
	}
	result.Applied = updated

	return r.finish("modify", result)
}

// Remove deletes the user's rows whose transaction_id is listed.
// Unknown ids are ignored; an empty list issues no query.
func (r *TransactionReconciler) Remove(ctx context.Context, userID string, transactionIDs []string) PhaseResult {
	var result PhaseResult
	if len(transactionIDs) == 0 {
		return result
	}

	deleted, err := r.storage.DeleteTransactions(ctx, userID, transactionIDs)
	if err != nil {
		result.Err = fmt.Errorf("%w: failed to delete transactions: %w", common.ErrPersistence, err)
		return r.finish("remove", result)
	}
	result.Applied = deleted

	return r.finish("remove", result)
}

// prepare filters records to expenses, resolves their accounts and
// normalizes them into storage rows.
func (r *TransactionReconciler) prepare(ctx context.Context, userID string, records []model.TxnRecord, cache AccountCache) ([]model.Transaction, PhaseResult) {
	var result PhaseResult

	candidates := make([]model.TxnRecord, 0, len(records))
	for _, rec := range records {
		if !rec.IsExpense() {
			result.Filtered++
			r.logger.Debug("Dropping non-expense transaction",
				"transaction_id", rec.TransactionID,
				"amount", rec.Amount.String())
			continue
		}
		candidates = append(candidates, rec)
	}
	if len(candidates) == 0 {
		return nil, result
	}

	if err := r.resolveAccounts(ctx, userID, candidates, cache); err != nil {
		result.Err = err
		return nil, result
	}

	txns := make([]model.Transaction, 0, len(candidates))
	for _, rec := range candidates {
		account, ok := cache[rec.AccountID]
		if !ok {
			result.Skipped++
			r.logger.Warn("Skipping transaction",
				"transaction_id", rec.TransactionID,
				"account_id", rec.AccountID,
				"error", common.ErrAccountNotFound)
			continue
		}

		datetime, err := r.normalizeDatetime(rec)
		if err != nil {
			result.Skipped++
			r.logger.Warn("Skipping transaction with unusable date",
				"transaction_id", rec.TransactionID,
				"date", rec.Date,
				"datetime", rec.Datetime,
				"error", err)
			continue
		}

		txns = append(txns, r.buildTransaction(userID, rec, account, datetime))
	}

	return txns, result
}

// resolveAccounts loads every account_id not yet in cache with one lookup.
func (r *TransactionReconciler) resolveAccounts(ctx context.Context, userID string, records []model.TxnRecord, cache AccountCache) error {
	seen := make(map[string]bool)
	var missing []string
	for _, rec := range records {
		if _, ok := cache[rec.AccountID]; ok || seen[rec.AccountID] {
			continue
		}
		seen[rec.AccountID] = true
		missing = append(missing, rec.AccountID)
	}
	if len(missing) == 0 {
		return nil
	}

	accounts, err := r.storage.GetAccountsByProviderIDs(ctx, userID, missing)
	if err != nil {
		return fmt.Errorf("%w: failed to load accounts: %w", common.ErrPersistence, err)
	}
	// Later rows win when a user has the same account_id under two credentials.
	for _, account := range accounts {
		cache[account.AccountID] = account
	}
	return nil
}

func (r *TransactionReconciler) buildTransaction(userID string, rec model.TxnRecord, account model.Account, datetime time.Time) model.Transaction {
	txnType := r.config.Defaults.TransactionType
	if rec.PersonalFinanceCategory != nil && rec.PersonalFinanceCategory.Primary != "" {
		txnType = rec.PersonalFinanceCategory.Primary
	}

	channel := rec.PaymentChannel
	if channel == "" {
		channel = r.config.Defaults.PaymentChannel
	}

	return model.Transaction{
		UserID:          userID,
		TransactionID:   rec.TransactionID,
		AccountID:       account.AccountID,
		AccountRef:      account.ID,
		Amount:          rec.Amount,
		Description:     rec.Description,
		MerchantName:    rec.MerchantName,
		Datetime:        datetime,
		TransactionType: txnType,
		PaymentChannel:  channel,
	}
}

// normalizeDatetime prefers the explicit datetime and falls back to local
// midnight on the record's date, also when the datetime does not parse.
func (r *TransactionReconciler) normalizeDatetime(rec model.TxnRecord) (time.Time, error) {
	var dtErr error
	if rec.Datetime != "" {
		t, err := parseDatetime(rec.Datetime, r.location)
		if err == nil {
			return t, nil
		}
		dtErr = err
	}
	if rec.Date != "" {
		d, err := time.ParseInLocation(time.DateOnly, rec.Date, r.location)
		if err != nil {
			return time.Time{}, errors.Join(dtErr, fmt.Errorf("invalid date %q: %w", rec.Date, err))
		}
		return d, nil
	}
	if dtErr != nil {
		return time.Time{}, dtErr
	}
	return time.Time{}, errMissingDate
}

// parseDatetime parses an ISO-8601 datetime. Values without an offset are
// placed in loc.
func parseDatetime(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range offsetDatetimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveDatetimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", value)
}

func (r *TransactionReconciler) finish(phase string, result PhaseResult) PhaseResult {
	if result.Err != nil {
		r.logger.Error("Transaction phase failed",
			"phase", phase,
			"error", result.Err)
	}
	return result
}
