package model

import "github.com/shopspring/decimal"

// AccountSnapshot is the aggregator's view of one account at sync time.
type AccountSnapshot struct {
	CurrentBalance  decimal.Decimal
	AccountID       string
	Name            string
	Type            AccountType
	InstitutionName string // Empty when the provider did not report one
}

// FinanceCategory is the provider's category hierarchy for a transaction.
type FinanceCategory struct {
	Primary  string
	Detailed string
}

// TxnRecord is one added or modified transaction in a change-feed batch.
// Either Date (YYYY-MM-DD) or Datetime (ISO-8601) is expected.
type TxnRecord struct {
	Amount                  decimal.Decimal
	PersonalFinanceCategory *FinanceCategory
	TransactionID           string
	AccountID               string
	Description             string
	MerchantName            string
	Date                    string
	Datetime                string
	PaymentChannel          string
}

// IsExpense reports whether the record moved money out of the account.
// Only expenses are stored.
func (r *TxnRecord) IsExpense() bool {
	return r.Amount.IsPositive()
}

// SyncBatch is the result of one incremental fetch from the aggregator.
type SyncBatch struct {
	Accounts   []AccountSnapshot
	Added      []TxnRecord
	Modified   []TxnRecord
	Removed    []string
	NextCursor string
}
