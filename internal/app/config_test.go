package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://ledger@localhost/ledger")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "X-Tenant-ID", cfg.TenantHeader)
	require.Equal(t, 5*time.Second, cfg.Ledger.LockTimeout)
	require.Equal(t, 3, cfg.Ledger.DueSoonDays)
	require.Equal(t, time.Minute, cfg.Ledger.DashboardCacheTTL)
	require.Equal(t, "0 3 * * *", cfg.Ledger.RecurringCron)
	require.Equal(t, 7*24*time.Hour, cfg.Ledger.KeyRetention)
	require.Equal(t, "pt-BR", cfg.Ledger.Locale)
	require.Equal(t, "BRL", cfg.Ledger.Currency)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LEDGER_DUE_SOON_DAYS", "7")
	t.Setenv("LEDGER_LOCK_TIMEOUT", "750ms")
	t.Setenv("TENANT_HEADER", "X-Org")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 7, cfg.Ledger.DueSoonDays)
	require.Equal(t, 750*time.Millisecond, cfg.Ledger.LockTimeout)
	require.Equal(t, "X-Org", cfg.TenantHeader)
}

func TestLoadConfigRejectsNegativeWindow(t *testing.T) {
	t.Setenv("LEDGER_DUE_SOON_DAYS", "-1")
	_, err := LoadConfig()
	require.Error(t, err)
}
