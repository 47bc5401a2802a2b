package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/spice-sync/internal/common"
	"github.com/Veraticus/spice-sync/internal/model"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SPICE_DATA", "/var/lib/spice")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/db/spice.db", filepath.Join(home, "db/spice.db")},
		{"$SPICE_DATA/spice.db", "/var/lib/spice/spice.db"},
		{"/abs/path.db", "/abs/path.db"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestLoadPlaidConfig(t *testing.T) {
	t.Run("viper keys take precedence", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		t.Setenv("PLAID_CLIENT_ID", "env-id")

		viper.Set("plaid.client_id", "viper-id")
		viper.Set("plaid.secret", "viper-secret")
		viper.Set("plaid.environment", "production")
		viper.Set("plaid.country_codes", []string{"US", "CA"})

		cfg, err := LoadPlaidConfig()
		require.NoError(t, err)
		assert.Equal(t, "viper-id", cfg.ClientID)
		assert.Equal(t, "production", cfg.Environment)
		assert.Equal(t, []string{"US", "CA"}, cfg.CountryCodes)
	})

	t.Run("falls back to PLAID env vars", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		t.Setenv("PLAID_CLIENT_ID", "env-id")
		t.Setenv("PLAID_SECRET", "env-secret")
		t.Setenv("PLAID_ENV", "")
		t.Setenv("PLAID_COUNTRY_CODES", "US,GB")

		cfg, err := LoadPlaidConfig()
		require.NoError(t, err)
		assert.Equal(t, "env-id", cfg.ClientID)
		assert.Equal(t, "env-secret", cfg.Secret)
		assert.Equal(t, "sandbox", cfg.Environment)
		assert.Equal(t, []string{"US", "GB"}, cfg.CountryCodes)
	})

	t.Run("missing credentials", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		t.Setenv("PLAID_CLIENT_ID", "")
		t.Setenv("PLAID_SECRET", "")

		_, err := LoadPlaidConfig()
		assert.ErrorIs(t, err, common.ErrMissingConfig)
	})
}

func TestLoadSyncConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		cfg, err := LoadSyncConfig()
		require.NoError(t, err)
		assert.Equal(t, "Local", cfg.Timezone)
		assert.Equal(t, 10*time.Minute, cfg.LockTTL)
		assert.Empty(t, cfg.ExcludedAccountTypes)
		assert.Equal(t, model.DefaultTransactionType, cfg.Defaults.TransactionType)
	})

	t.Run("overrides", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		viper.Set("sync.timezone", "Europe/Lisbon")
		viper.Set("sync.lock_ttl", "90s")
		viper.Set("sync.exclude_account_types", []string{"credit", "loan"})
		viper.Set("sync.defaults.institution", "Mystery Bank")

		cfg, err := LoadSyncConfig()
		require.NoError(t, err)
		assert.Equal(t, "Europe/Lisbon", cfg.Timezone)
		assert.Equal(t, 90*time.Second, cfg.LockTTL)
		assert.Equal(t, []model.AccountType{model.AccountTypeCreditCard, model.AccountTypeLoan}, cfg.ExcludedAccountTypes)
		assert.Equal(t, "Mystery Bank", cfg.Defaults.Institution)
	})

	t.Run("rejects unknown account type", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		viper.Set("sync.exclude_account_types", []string{"savings-bond"})

		_, err := LoadSyncConfig()
		assert.Error(t, err)
	})

	t.Run("rejects bad timezone", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		viper.Set("sync.timezone", "Nowhere/Special")

		_, err := LoadSyncConfig()
		assert.ErrorIs(t, err, common.ErrInvalidConfig)
	})
}

func TestDatabasePath(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", "")

	assert.Equal(t, filepath.Join(home, ".local/share/spice-sync/spice-sync.db"), DatabasePath())

	t.Setenv("XDG_DATA_HOME", "/srv/data")
	assert.Equal(t, "/srv/data/spice-sync/spice-sync.db", DatabasePath())

	viper.Set("database.path", "/tmp/other.db")
	assert.Equal(t, "/tmp/other.db", DatabasePath())
}
