package plaid

import (
	"time"

	"github.com/Veraticus/spice-sync/internal/model"
	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"
)

// mapAccount converts a Plaid account into a sync snapshot.
func mapAccount(account plaid.AccountBase, institution string) model.AccountSnapshot {
	balances := account.GetBalances()

	// Current can be null for some credit products; fall back to available.
	balance := decimal.Zero
	if current, ok := balances.GetCurrentOk(); ok && current != nil {
		balance = decimal.NewFromFloat(*current)
	} else if available, ok := balances.GetAvailableOk(); ok && available != nil {
		balance = decimal.NewFromFloat(*available)
	}

	return model.AccountSnapshot{
		AccountID:       account.GetAccountId(),
		Name:            account.GetName(),
		Type:            model.ParseAccountType(string(account.GetType())),
		CurrentBalance:  balance,
		InstitutionName: institution,
	}
}

// mapTransaction converts a Plaid transaction into a change-feed record.
// Amounts keep Plaid's sign: positive is money leaving the account.
func mapTransaction(pt plaid.Transaction) model.TxnRecord {
	record := model.TxnRecord{
		TransactionID:  pt.GetTransactionId(),
		AccountID:      pt.GetAccountId(),
		Amount:         decimal.NewFromFloat(pt.GetAmount()),
		Description:    pt.GetName(),
		MerchantName:   pt.GetMerchantName(),
		Date:           pt.GetDate(),
		PaymentChannel: string(pt.GetPaymentChannel()),
	}

	if dt, ok := pt.GetDatetimeOk(); ok && dt != nil && !dt.IsZero() {
		record.Datetime = dt.Format(time.RFC3339)
	}

	if pfc, ok := pt.GetPersonalFinanceCategoryOk(); ok && pfc != nil {
		record.PersonalFinanceCategory = &model.FinanceCategory{
			Primary:  pfc.GetPrimary(),
			Detailed: pfc.GetDetailed(),
		}
	}

	return record
}
