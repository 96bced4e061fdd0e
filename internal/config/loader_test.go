package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path, nil)
	require.NoError(t, err)
	require.Equal(t, path, resolved)
	require.Equal(t, Default().Addr, cfg.Addr)
	require.Equal(t, 3*time.Second, cfg.Chat.JoinTimeout)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "default config should be written")
}

func TestLoadEnvAndFlagPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9000\"\nchat:\n  persist_retries: 7\n"), 0o600))

	t.Setenv("SHELFX_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("SHELFX_CHAT_MAX_BODY_LENGTH", "12")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", "", "")
	require.NoError(t, flags.Parse([]string{"--addr", ":7000"}))

	cfg, _, err := Load(nil, path, flags)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Addr)
	require.Equal(t, 7, cfg.Chat.PersistRetries)
	require.Equal(t, "/tmp/from-env.db", cfg.DatabasePath)
	require.Equal(t, 12, cfg.Chat.MaxBodyLength)
}
