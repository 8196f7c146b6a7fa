package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_PORT", "MONGODB_URI", "MONGODB_DB_NAME", "GOOGLE_SHEETS_CREDENTIALS_PATH",
		"GOOGLE_SHEET_DATABASE_ID", "REPORT_CRON_SCHEDULE", "TIMEZONE", "FARM_ADMIN_USERNAME",
		"FARM_ADMIN_PASSWORD", "AUTH_TOKEN_TTL", "FARM_REMOTE_URL", "FARM_DATA_DIR",
		"GATEWAY_TIMEOUT", "SYNC_LIVE_INTERVAL", "SYNC_PENDING_INTERVAL", "SYNC_RETRY_MIN",
		"SYNC_RETRY_MAX", "SYNC_BATCH_SIZE", "CONNECTIVITY_PROBE_INTERVAL", "AUTH_OFFLINE_GRACE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http://localhost:8080", cfg.Client.RemoteURL)
	assert.Equal(t, 15*time.Second, cfg.Client.GatewayTimeout)
	assert.Equal(t, 5*time.Second, cfg.Client.SyncPendingInterval)
	assert.Equal(t, time.Second, cfg.Client.SyncRetryMin)
	assert.Equal(t, 10*time.Minute, cfg.Client.SyncRetryMax)
	assert.Equal(t, 100, cfg.Client.SyncBatchSize)
	assert.True(t, cfg.Client.OfflineGrace)
	assert.Empty(t, cfg.MongoDB.URI)
	assert.False(t, cfg.Sheets.Enabled())
}

func TestLoad_EnvFileOverrides(t *testing.T) {
	clearEnv(t)

	envFile := filepath.Join(t.TempDir(), "test.env")
	content := "FARM_REMOTE_URL=https://farm.example.com/\nGATEWAY_TIMEOUT=3s\nAUTH_OFFLINE_GRACE=false\nSYNC_BATCH_SIZE=25\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	// godotenv does not override variables that are already set, even empty ones.
	for _, key := range []string{"FARM_REMOTE_URL", "GATEWAY_TIMEOUT", "AUTH_OFFLINE_GRACE", "SYNC_BATCH_SIZE"} {
		require.NoError(t, os.Unsetenv(key))
	}
	t.Cleanup(func() {
		for _, key := range []string{"FARM_REMOTE_URL", "GATEWAY_TIMEOUT", "AUTH_OFFLINE_GRACE", "SYNC_BATCH_SIZE"} {
			_ = os.Unsetenv(key)
		}
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "https://farm.example.com", cfg.Client.RemoteURL)
	assert.Equal(t, 3*time.Second, cfg.Client.GatewayTimeout)
	assert.False(t, cfg.Client.OfflineGrace)
	assert.Equal(t, 25, cfg.Client.SyncBatchSize)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GATEWAY_TIMEOUT", "soon")
		_, err := Load(filepath.Join(t.TempDir(), "none.env"))
		assert.ErrorContains(t, err, "GATEWAY_TIMEOUT")
	})

	t.Run("half configured sheets", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GOOGLE_SHEET_DATABASE_ID", "sheet-id")
		_, err := Load(filepath.Join(t.TempDir(), "none.env"))
		assert.ErrorContains(t, err, "must be set together")
	})

	t.Run("half configured admin", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("FARM_ADMIN_USERNAME", "admin")
		_, err := Load(filepath.Join(t.TempDir(), "none.env"))
		assert.ErrorContains(t, err, "FARM_ADMIN_PASSWORD")
	})

	t.Run("bad timezone", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TIMEZONE", "Mars/Olympus")
		_, err := Load(filepath.Join(t.TempDir(), "none.env"))
		assert.ErrorContains(t, err, "TIMEZONE")
	})
}

func TestValidate_Nil(t *testing.T) {
	var cfg *Config
	assert.Error(t, cfg.Validate())
}
