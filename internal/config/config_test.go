package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
app:
  env: dev
postgres:
  dsn: postgres://localhost/wb
search:
  interval: 30s
`)
	t.Setenv("APP_TELEGRAM_TOKEN", "from-env")
	t.Setenv("APP_TELEGRAM_ADMIN_CHAT_ID", "-100500")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, int64(-100500), cfg.Telegram.AdminChatID)
	assert.Equal(t, 30*time.Second, cfg.Search.Interval)
	assert.Equal(t, 4*time.Hour, cfg.Search.Expiry)
	assert.Equal(t, 100, cfg.Search.BatchSize)
	assert.Equal(t, 3, cfg.Search.MarketplaceUTCOffsetHours)
	assert.Equal(t, uint64(3), cfg.RabbitMQ.PublishRetries)
	assert.Equal(t, 2*time.Second, cfg.RabbitMQ.PublishDelay)
	assert.Equal(t, 5, cfg.RabbitMQ.MaxDeliveries)
	assert.Equal(t, 10*time.Second, cfg.RabbitMQ.RetryDelay)
	assert.Equal(t, 30, cfg.Ingest.LookbackDays)
	assert.NoError(t, cfg.Validate())
}

func TestValidateNamesMissingKey(t *testing.T) {
	path := writeConfig(t, "app:\n  env: prod\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.token")

	cfg.Telegram.Token = "t"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.dsn")

	cfg.Postgres.DSN = "dsn"
	require.NoError(t, cfg.Validate())
	err = cfg.ValidateWorker()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marketplace.token")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, DefaultPath, Path(""))
	t.Setenv("CONFIG_PATH", "/etc/bot.yaml")
	assert.Equal(t, "/etc/bot.yaml", Path(""))
	assert.Equal(t, "x.yaml", Path("x.yaml"))
}
