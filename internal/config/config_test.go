package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoConfigFileOrEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Defaults().Port, cfg.Port)
	require.Equal(t, Defaults().Host, cfg.Host)
}

func TestLoadEnvVarsOnlyConsultedWithoutConfigFile(t *testing.T) {
	t.Setenv("MCP_SERVER_PORT", "7000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.Port)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigFileWinsOverEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9001\nhost: 127.0.0.1\n"), 0o644))

	t.Setenv("MCP_SERVER_PORT", "7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9001, cfg.Port)
	require.Equal(t, "127.0.0.1", cfg.Host)
}

func TestLoadMissingConfigFileFallsBackToEnv(t *testing.T) {
	t.Setenv("MCP_SERVER_HOST", "10.0.0.1")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", cfg.Host)
}
