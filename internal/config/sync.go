package config

import (
	"fmt"

	"github.com/Veraticus/spice-sync/internal/model"
	"github.com/Veraticus/spice-sync/internal/syncer"
	"github.com/spf13/viper"
)

// LoadSyncConfig builds the sync configuration from Viper, starting from
// syncer.DefaultConfig for unset keys.
func LoadSyncConfig() (syncer.Config, error) {
	cfg := syncer.DefaultConfig()

	if v := viper.GetString("sync.timezone"); v != "" {
		cfg.Timezone = v
	}
	if viper.IsSet("sync.lock_ttl") {
		cfg.LockTTL = viper.GetDuration("sync.lock_ttl")
	}
	for _, t := range viper.GetStringSlice("sync.exclude_account_types") {
		parsed := model.ParseAccountType(t)
		if parsed == model.AccountTypeOther && t != string(model.AccountTypeOther) {
			return syncer.Config{}, fmt.Errorf("unknown account type in sync.exclude_account_types: %q", t)
		}
		cfg.ExcludedAccountTypes = append(cfg.ExcludedAccountTypes, parsed)
	}

	if v := viper.GetString("sync.defaults.transaction_type"); v != "" {
		cfg.Defaults.TransactionType = v
	}
	if v := viper.GetString("sync.defaults.payment_channel"); v != "" {
		cfg.Defaults.PaymentChannel = v
	}
	if v := viper.GetString("sync.defaults.institution"); v != "" {
		cfg.Defaults.Institution = v
	}

	if err := cfg.Validate(); err != nil {
		return syncer.Config{}, err
	}
	return cfg, nil
}
