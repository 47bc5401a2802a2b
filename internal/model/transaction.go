package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fallback values applied when the aggregator leaves a field empty.
const (
	DefaultTransactionType = "UNCATEGORIZED"
	DefaultPaymentChannel  = "OTHER"
	DefaultInstitution     = "Unknown"
)

// Transaction is a persisted expense belonging to exactly one Account.
type Transaction struct {
	Datetime        time.Time
	CreatedAt       time.Time
	Amount          decimal.Decimal // Positive means money left the account
	UserID          string
	TransactionID   string // Provider-assigned natural key, unique per user
	AccountID       string // Provider account_id of the owning account
	Description     string
	MerchantName    string // Empty when the provider had none
	TransactionType string
	PaymentChannel  string
	ID              int64
	AccountRef      int64 // Row id of the owning Account
}
