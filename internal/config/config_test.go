package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json5"))
	require.NoError(t, err)

	require.Equal(t, 100, cfg.Fetch.PageSize)
	require.Equal(t, 4, cfg.Fetch.Retry.MaxAttempts)
	require.Equal(t, 4*time.Second, cfg.Fetch.Retry.BaseDelay.Std())
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Len(t, cfg.Sources, 2)

	src, ok := cfg.Source("uniqlo")
	require.True(t, ok)
	require.Equal(t, "UNIQLO", src.Name)
}

func TestLoadLocalOverrideWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{
		// base file
		log_level: 'debug',
		fetch: { page_size: 50, retry: { base_delay: '1s', max_delay: '10s' } },
		report: { output_dir: 'out' },
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{
		fetch: { page_size: 20 },
		sources: [
			{ name: 'TEST', api_url: 'http://localhost:9999/products', product_url: 'http://localhost/{productId}' },
		],
	}`)

	cfg, err := Load(filepath.Join(dir, "config.json5"))
	require.NoError(t, err)

	require.Equal(t, 20, cfg.Fetch.PageSize)
	require.Equal(t, time.Second, cfg.Fetch.Retry.BaseDelay.Std())
	require.Equal(t, 10*time.Second, cfg.Fetch.Retry.MaxDelay.Std())
	require.Equal(t, 4, cfg.Fetch.Retry.MaxAttempts)
	require.Equal(t, "out", cfg.Report.OutputDir)
	require.Len(t, cfg.Sources, 1)
	require.Equal(t, "TEST", cfg.Sources[0].Name)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://watcher@localhost/prices?sslmode=disable")
	t.Setenv("TELEGRAM_CHAT_ID", "424242")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "postgres://watcher@localhost/prices?sslmode=disable", cfg.Database.DSN)
	require.Equal(t, int64(424242), cfg.Telegram.ChatID)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Fetch.PageSize = 0
	cfg.Database.Driver = "mysql"
	cfg.Sources = append(cfg.Sources, cfg.Sources[0])
	cfg.Schedule.Cron = "every 8 hours"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "page_size")
	require.Contains(t, err.Error(), "mysql")
	require.Contains(t, err.Error(), "duplicate name")
	require.Contains(t, err.Error(), "schedule.cron")
}
