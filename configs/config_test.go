package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("WEBHOOK_SECRET", "hook")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "10.00", cfg.MinWithdrawal.StringFixed(2))
	assert.Equal(t, "0.5", cfg.ReferrerShare.String())
	assert.Equal(t, "0 6 * * *", cfg.StipendSchedule)
	assert.False(t, cfg.Development())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("WEBHOOK_SECRET", "hook")
	t.Setenv("MIN_WITHDRAWAL", "25.50")
	t.Setenv("REFERRER_SHARE", "0.25")
	t.Setenv("ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "25.50", cfg.MinWithdrawal.StringFixed(2))
	assert.Equal(t, "0.25", cfg.ReferrerShare.String())
	assert.True(t, cfg.Development())
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("WEBHOOK_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("WEBHOOK_SECRET")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsPolicyOutOfRange(t *testing.T) {
	cases := map[string][2]string{
		"negative share":   {"REFERRER_SHARE", "-0.5"},
		"share above one":  {"REFERRER_SHARE", "1.2"},
		"zero minimum":     {"MIN_WITHDRAWAL", "0"},
		"negative minimum": {"MIN_WITHDRAWAL", "-10"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "secret")
			t.Setenv("WEBHOOK_SECRET", "hook")
			t.Setenv(kv[0], kv[1])

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), kv[0])
		})
	}
}

func TestLoadAcceptsShareBounds(t *testing.T) {
	for _, share := range []string{"0", "1"} {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("WEBHOOK_SECRET", "hook")
		t.Setenv("REFERRER_SHARE", share)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, share, cfg.ReferrerShare.String())
	}
}

func TestLoadForMigrateNeedsNoSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("WEBHOOK_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("WEBHOOK_SECRET")
	t.Setenv("DATABASE_URL", "postgres://academy@localhost/academy")

	cfg, err := LoadForMigrate()
	require.NoError(t, err)
	assert.Equal(t, "postgres://academy@localhost/academy", cfg.DatabaseURL)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadForMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")

	_, err := LoadForMigrate()
	assert.Error(t, err)
}
