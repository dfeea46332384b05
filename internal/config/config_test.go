package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage = "memory"
log_level = "debug"

[server]
port = 9090

[engine]
async_trades = true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "memory", cfg.Storage)
	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Engine.AsyncTrades)
	// untouched fields keep their defaults
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9090
`), 0o644))

	t.Setenv("PREDICTD_SERVER_PORT", "7070")
	t.Setenv("PREDICTD_STORAGE", "memory")
	t.Setenv("PREDICTD_REDIS_ENABLED", "false")
	t.Setenv("PREDICTD_AGENT_RESOLUTION_INTERVAL", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Storage)
	require.False(t, cfg.Redis.Enabled)
	require.Equal(t, 30*time.Second, cfg.Agent.ResolutionInterval)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cfg := Defaults()
	cfg.Storage = "sqlite"
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Chain.Enabled = true
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.LogLevel = "verbose"
	require.Error(t, cfg.Validate())
}
