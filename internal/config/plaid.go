package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/Veraticus/spice-sync/internal/common"
	"github.com/Veraticus/spice-sync/internal/plaid"
	"github.com/spf13/viper"
)

// LoadPlaidConfig loads Plaid API configuration from Viper and environment variables.
// It follows this precedence:
// 1. Viper configuration (from config file or SPICE_ env vars)
// 2. Direct environment variables (PLAID_*)
// 3. Default values
func LoadPlaidConfig() (plaid.Config, error) {
	cfg := plaid.Config{
		ClientID:     viper.GetString("plaid.client_id"),
		Secret:       viper.GetString("plaid.secret"),
		Environment:  viper.GetString("plaid.environment"),
		ClientName:   viper.GetString("plaid.client_name"),
		CountryCodes: viper.GetStringSlice("plaid.country_codes"),
	}

	if cfg.ClientID == "" {
		cfg.ClientID = os.Getenv("PLAID_CLIENT_ID")
	}
	if cfg.Secret == "" {
		cfg.Secret = os.Getenv("PLAID_SECRET")
	}
	if cfg.Environment == "" {
		cfg.Environment = os.Getenv("PLAID_ENV")
	}
	if cfg.Environment == "" {
		cfg.Environment = "sandbox"
	}
	if len(cfg.CountryCodes) == 0 {
		if v := os.Getenv("PLAID_COUNTRY_CODES"); v != "" {
			cfg.CountryCodes = strings.Split(v, ",")
		}
	}

	if err := cfg.Validate(); err != nil {
		return plaid.Config{}, fmt.Errorf("%w: %w", common.ErrMissingConfig, err)
	}
	return cfg, nil
}
