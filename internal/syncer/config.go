package syncer

import (
	"fmt"
	"time"

	"github.com/Veraticus/spice-sync/internal/common"
	"github.com/Veraticus/spice-sync/internal/model"
)

// Defaults are the fallback values applied when the aggregator omits a field.
type Defaults struct {
	TransactionType string
	PaymentChannel  string
	Institution     string
}

// Config holds configuration options for sync rounds.
type Config struct {
	Defaults Defaults
	// Timezone names the IANA zone for naive datetimes and date-only records.
	// "Local" uses the process zone.
	Timezone string
	// ExcludedAccountTypes are skipped by account reconciliation. Empty means none.
	ExcludedAccountTypes []model.AccountType
	LockTTL              time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Timezone: "Local",
		LockTTL:  10 * time.Minute,
		Defaults: Defaults{
			TransactionType: model.DefaultTransactionType,
			PaymentChannel:  model.DefaultPaymentChannel,
			Institution:     model.DefaultInstitution,
		},
	}
}

// Validate checks the configuration and fills empty defaults.
func (c *Config) Validate() error {
	if c.LockTTL <= 0 {
		return fmt.Errorf("%w: sync lock ttl must be positive, got %s", common.ErrInvalidConfig, c.LockTTL)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Defaults.TransactionType == "" {
		c.Defaults.TransactionType = model.DefaultTransactionType
	}
	if c.Defaults.PaymentChannel == "" {
		c.Defaults.PaymentChannel = model.DefaultPaymentChannel
	}
	if c.Defaults.Institution == "" {
		c.Defaults.Institution = model.DefaultInstitution
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q: %w", common.ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) excludes(t model.AccountType) bool {
	for _, excluded := range c.ExcludedAccountTypes {
		if excluded == t {
			return true
		}
	}
	return false
}
