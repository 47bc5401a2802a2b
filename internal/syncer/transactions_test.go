package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/spice-sync/internal/common"
	"github.com/Veraticus/spice-sync/internal/model"
	"github.com/Veraticus/spice-sync/internal/service"
	"github.com/Veraticus/spice-sync/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// faultyStorage wraps a real store, failing selected calls and counting account lookups.
type faultyStorage struct {
	service.Storage
	insertErr      error
	updateErr      error
	accountLookups int
}

func (f *faultyStorage) InsertTransactions(ctx context.Context, txns []model.Transaction) (int, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	return f.Storage.InsertTransactions(ctx, txns)
}

func (f *faultyStorage) UpdateTransactions(ctx context.Context, txns []model.Transaction) (int, error) {
	if f.updateErr != nil {
		return 0, f.updateErr
	}
	return f.Storage.UpdateTransactions(ctx, txns)
}

func (f *faultyStorage) GetAccountsByProviderIDs(ctx context.Context, userID string, ids []string) ([]model.Account, error) {
	f.accountLookups++
	return f.Storage.GetAccountsByProviderIDs(ctx, userID, ids)
}

func newTestReconciler(t *testing.T, store service.Storage) *TransactionReconciler {
	t.Helper()
	r, err := NewTransactionReconciler(store, testConfig())
	require.NoError(t, err)
	return r
}

func expense(id, accountID, amount string) model.TxnRecord {
	return model.TxnRecord{
		TransactionID: id,
		AccountID:     accountID,
		Amount:        decimal.RequireFromString(amount),
		Date:          "2024-03-10",
	}
}

func TestTransactionReconciler_Add_ExpenseFilter(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	user := db.MustCreateUser("ana@example.com")
	db.MustSeedAccount(user.ID, "a1", "access-1")
	r := newTestReconciler(t, db.Storage)

	result := r.Add(ctx, user.ID, []model.TxnRecord{
		expense("t1", "a1", "10.00"),
		expense("t2", "a1", "0"),
		expense("t3", "a1", "-25.00"),
		expense("t4", "a1", "0.01"),
	}, AccountCache{})

	require.NoError(t, result.Err)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 2, result.Filtered)
	assert.Equal(t, 2, db.MustCountTransactions(user.ID))
	assert.Empty(t, db.MustTransactions(user.ID, "t2"))
	assert.Empty(t, db.MustTransactions(user.ID, "t3"))
}

func TestTransactionReconciler_Add_SkipsUnresolvable(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	user := db.MustCreateUser("ana@example.com")
	db.MustSeedAccount(user.ID, "a1", "access-1")
	r := newTestReconciler(t, db.Storage)

	undated := expense("t3", "a1", "5")
	undated.Date = ""
	garbled := expense("t4", "a1", "5")
	garbled.Date = "05/01/2024"
	compactOffset := expense("t5", "a1", "5")
	compactOffset.Datetime = "2024-01-05T10:00:00+0530"
	badDatetime := expense("t6", "a1", "5")
	badDatetime.Datetime = "not a time"

	result := r.Add(ctx, user.ID, []model.TxnRecord{
		expense("t1", "a1", "10"),
		expense("t2", "ghost", "10"),
		undated,
		garbled,
		compactOffset,
		badDatetime,
	}, AccountCache{})

	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.Applied)
	assert.Equal(t, 3, result.Skipped)
	assert.Len(t, db.MustTransactions(user.ID, "t1"), 1)
	assert.Len(t, db.MustTransactions(user.ID, "t5"), 1)
	assert.Len(t, db.MustTransactions(user.ID, "t6"), 1)
}

func TestTransactionReconciler_Add_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	user := db.MustCreateUser("ana@example.com")
	db.MustSeedAccount(user.ID, "a1", "access-1")
	r := newTestReconciler(t, db.Storage)

	records := []model.TxnRecord{expense("t1", "a1", "10")}

	first := r.Add(ctx, user.ID, records, AccountCache{})
	second := r.Add(ctx, user.ID, records, AccountCache{})

	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, 1, first.Applied)
	assert.Equal(t, 0, second.Applied)
	assert.Equal(t, 1, db.MustCountTransactions(user.ID))
}

func TestTransactionReconciler_Add_Mapping(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	user := db.MustCreateUser("ana@example.com")
	account := db.MustSeedAccount(user.ID, "a1", "access-1")
	r := newTestReconciler(t, db.Storage)

	rec := expense("t1", "a1", "18.75")
	rec.Description = "SQ *BLUE BOTTLE"
	rec.MerchantName = "Blue Bottle"
	rec.PaymentChannel = "in store"
	rec.Datetime = "2024-03-10T08:15:00Z"
	rec.PersonalFinanceCategory = &model.FinanceCategory{Primary: "FOOD_AND_DRINK", Detailed: "FOOD_AND_DRINK_COFFEE"}

	result := r.Add(ctx, user.ID, []model.TxnRecord{rec}, AccountCache{})
	require.NoError(t, result.Err)

	txns := db.MustTransactions(user.ID, "t1")
	require.Len(t, txns, 1)
	got := txns[0]
	assert.Equal(t, account.ID, got.AccountRef)
	assert.Equal(t, "a1", got.AccountID)
	assert.Equal(t, "SQ *BLUE BOTTLE", got.Description)
	assert.Equal(t, "Blue Bottle", got.MerchantName)
	assert.Equal(t, "in store", got.PaymentChannel)
	assert.Equal(t, "FOOD_AND_DRINK", got.TransactionType)
	assert.True(t, time.Date(2024, 3, 10, 8, 15, 0, 0, time.UTC).Equal(got.Datetime))
}

func TestTransactionReconciler_Modify(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	user := db.MustCreateUser("ana@example.com")
	db.MustSeedAccount(user.ID, "a1", "access-1")
	r := newTestReconciler(t, db.Storage)

	require.NoError(t, r.Add(ctx, user.ID, []model.TxnRecord{expense("t1", "a1", "10")}, AccountCache{}).Err)

	t.Run("updates existing row", func(t *testing.T) {
		changed := expense("t1", "a1", "12.34")
		changed.MerchantName = "Corner Deli"

		result := r.Modify(ctx, user.ID, []model.TxnRecord{changed}, AccountCache{})
		require.NoError(t, result.Err)
		assert.Equal(t, 1, result.Applied)

		txns := db.MustTransactions(user.ID, "t1")
		require.Len(t, txns, 1)
		assert.True(t, decimal.RequireFromString("12.34").Equal(txns[0].Amount))
		assert.Equal(t, "Corner Deli", txns[0].MerchantName)
	})

	t.Run("missing id is a no-op", func(t *testing.T) {
		result := r.Modify(ctx, user.ID, []model.TxnRecord{expense("t-missing", "a1", "99")}, AccountCache{})
		require.NoError(t, result.Err)
		assert.Equal(t, 0, result.Applied)
		assert.Empty(t, db.MustTransactions(user.ID, "t-missing"))
		assert.Equal(t, 1, db.MustCountTransactions(user.ID))
	})

	t.Run("refund modification is filtered", func(t *testing.T) {
		result := r.Modify(ctx, user.ID, []model.TxnRecord{expense("t1", "a1", "-12.34")}, AccountCache{})
		require.NoError(t, result.Err)
		assert.Equal(t, 1, result.Filtered)

		txns := db.MustTransactions(user.ID, "t1")
		require.Len(t, txns, 1)
		assert.True(t, txns[0].Amount.IsPositive())
	})
}

func TestTransactionReconciler_Remove(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	user := db.MustCreateUser("ana@example.com")
	db.MustSeedAccount(user.ID, "a1", "access-1")
	r := newTestReconciler(t, db.Storage)

	require.NoError(t, r.Add(ctx, user.ID, []model.TxnRecord{
		expense("t1", "a1", "10"),
		expense("t2", "a1", "20"),
	}, AccountCache{}).Err)

	tests := []struct {
		name        string
		ids         []string
		wantApplied int
		wantLeft    int
	}{
		{name: "empty list", ids: nil, wantApplied: 0, wantLeft: 2},
		{name: "unknown ids", ids: []string{"nope"}, wantApplied: 0, wantLeft: 2},
		{name: "known and unknown", ids: []string{"t1", "nope"}, wantApplied: 1, wantLeft: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := r.Remove(ctx, user.ID, tt.ids)
			require.NoError(t, result.Err)
			assert.Equal(t, tt.wantApplied, result.Applied)
			assert.Equal(t, tt.wantLeft, db.MustCountTransactions(user.ID))
		})
	}
}

func TestTransactionReconciler_ApplyDelta_PhasesIndependent(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	user := db.MustCreateUser("ana@example.com")
	db.MustSeedAccount(user.ID, "a1", "access-1")

	seed := newTestReconciler(t, db.Storage)
	require.NoError(t, seed.Add(ctx, user.ID, []model.TxnRecord{
		expense("t1", "a1", "10"),
		expense("t2", "a1", "20"),
	}, AccountCache{}).Err)

	store := &faultyStorage{Storage: db.Storage, insertErr: errors.New("disk full")}
	r := newTestReconciler(t, store)

	result := r.ApplyDelta(ctx, user.ID,
		[]model.TxnRecord{expense("t3", "a1", "30")},
		[]model.TxnRecord{expense("t1", "a1", "11")},
		[]string{"t2"},
	)

	assert.False(t, result.Success())
	assert.ErrorIs(t, result.Added.Err, common.ErrPersistence)
	assert.NoError(t, result.Modified.Err)
	assert.NoError(t, result.Removed.Err)
	assert.Equal(t, 1, result.Modified.Applied)
	assert.Equal(t, 1, result.Removed.Applied)

	assert.Empty(t, db.MustTransactions(user.ID, "t3"))
	assert.Empty(t, db.MustTransactions(user.ID, "t2"))
	assert.Equal(t, 1, store.accountLookups, "modify phase should reuse accounts cached by add")
}

func TestTransactionReconciler_ResolveAccounts_BatchesLookups(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	user := db.MustCreateUser("ana@example.com")
	db.MustSeedAccount(user.ID, "a1", "access-1")
	db.MustSeedAccount(user.ID, "a2", "access-1")

	store := &faultyStorage{Storage: db.Storage}
	r := newTestReconciler(t, store)

	cache := AccountCache{}
	result := r.Add(ctx, user.ID, []model.TxnRecord{
		expense("t1", "a1", "1"),
		expense("t2", "a2", "2"),
		expense("t3", "a1", "3"),
	}, cache)
	require.NoError(t, result.Err)

	assert.Equal(t, 1, store.accountLookups)
	assert.Len(t, cache, 2)

	// Fully cached accounts need no lookup.
	require.NoError(t, r.Add(ctx, user.ID, []model.TxnRecord{expense("t4", "a2", "4")}, cache).Err)
	assert.Equal(t, 1, store.accountLookups)
}

func TestTransactionReconciler_AccountsScopedToUser(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	ana := db.MustCreateUser("ana@example.com")
	ben := db.MustCreateUser("ben@example.com")
	db.MustSeedAccount(ana.ID, "shared-id", "access-ana")
	r := newTestReconciler(t, db.Storage)

	result := r.Add(ctx, ben.ID, []model.TxnRecord{expense("t1", "shared-id", "10")}, AccountCache{})
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, db.MustCountTransactions(ben.ID))
}

func TestTransactionReconciler_NormalizeDatetime(t *testing.T) {
	loc, err := time.LoadLocation(testTimezone)
	require.NoError(t, err)

	r := &TransactionReconciler{location: loc}

	tests := []struct {
		want    time.Time
		name    string
		rec     model.TxnRecord
		wantErr bool
	}{
		{
			name: "date only is local midnight",
			rec:  model.TxnRecord{Date: "2024-01-05"},
			want: time.Date(2024, 1, 5, 0, 0, 0, 0, loc),
		},
		{
			name: "datetime with offset",
			rec:  model.TxnRecord{Datetime: "2024-01-05T10:30:00-08:00", Date: "2024-01-04"},
			want: time.Date(2024, 1, 5, 18, 30, 0, 0, time.UTC),
		},
		{
			name: "utc datetime with fraction",
			rec:  model.TxnRecord{Datetime: "2024-01-05T10:30:00.123Z"},
			want: time.Date(2024, 1, 5, 10, 30, 0, 123000000, time.UTC),
		},
		{
			name: "naive datetime uses configured zone",
			rec:  model.TxnRecord{Datetime: "2024-01-05T10:30:00"},
			want: time.Date(2024, 1, 5, 10, 30, 0, 0, loc),
		},
		{
			name: "naive datetime with space separator",
			rec:  model.TxnRecord{Datetime: "2024-07-05 23:59:59"},
			want: time.Date(2024, 7, 5, 23, 59, 59, 0, loc),
		},
		{
			name: "compact offset",
			rec:  model.TxnRecord{Datetime: "2024-01-05T10:00:00+0530"},
			want: time.Date(2024, 1, 5, 4, 30, 0, 0, time.UTC),
		},
		{
			name: "hour-only offset",
			rec:  model.TxnRecord{Datetime: "2024-01-05T10:00:00+05"},
			want: time.Date(2024, 1, 5, 5, 0, 0, 0, time.UTC),
		},
		{
			name: "space before offset",
			rec:  model.TxnRecord{Datetime: "2024-01-05 10:00:00 -07:00"},
			want: time.Date(2024, 1, 5, 17, 0, 0, 0, time.UTC),
		},
		{
			name: "offset without seconds",
			rec:  model.TxnRecord{Datetime: "2024-01-05T10:00Z"},
			want: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "unparseable datetime falls back to date",
			rec:  model.TxnRecord{Datetime: "yesterday", Date: "2024-01-05"},
			want: time.Date(2024, 1, 5, 0, 0, 0, 0, loc),
		},
		{
			name:    "unparseable datetime without date",
			rec:     model.TxnRecord{Datetime: "yesterday"},
			wantErr: true,
		},
		{
			name:    "unparseable datetime and date",
			rec:     model.TxnRecord{Datetime: "yesterday", Date: "soon"},
			wantErr: true,
		},
		{
			name:    "invalid date",
			rec:     model.TxnRecord{Date: "2024-13-40"},
			wantErr: true,
		},
		{
			name:    "no date at all",
			rec:     model.TxnRecord{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.normalizeDatetime(tt.rec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}
