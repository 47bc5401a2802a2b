package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies a linked account.
type AccountType string

// Account types surfaced from the provider's raw type string.
const (
	AccountTypeBank       AccountType = "bank"
	AccountTypeCreditCard AccountType = "credit_card"
	AccountTypeLoan       AccountType = "loan"
	AccountTypeInvestment AccountType = "investment"
	AccountTypeOther      AccountType = "other"
)

// ParseAccountType maps a provider type string onto an AccountType.
// Unknown strings map to AccountTypeOther.
func ParseAccountType(raw string) AccountType {
	switch raw {
	case "bank", "depository":
		return AccountTypeBank
	case "credit_card", "credit":
		return AccountTypeCreditCard
	case "loan":
		return AccountTypeLoan
	case "investment", "brokerage":
		return AccountTypeInvestment
	default:
		return AccountTypeOther
	}
}

// Account is a bank connection account owned by a user.
// (UserID, AccountID, AccessCredential, Name) identifies it for upserts.
type Account struct {
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Balance          decimal.Decimal
	UserID           string
	AccountID        string
	AccessCredential string
	Name             string
	Type             AccountType
	Institution      string
	ID               int64
}
