package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()

	fs := pflag.NewFlagSet("chatd", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), newFlags(t), "")
	require.NoError(t, err)

	require.Equal(t, DefaultPort, cfg.Port)
	require.Equal(t, ":8080", cfg.ListenAddr())
	require.Equal(t, 100, cfg.Backlog)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.Empty(t, cfg.SSHAddr)
	require.Empty(t, cfg.HTTPAddr)
}

func TestLoadPrecedence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "chatd.yaml")
	require.NoError(t, os.WriteFile(file, []byte(
		"port: 7000\nhttp_addr: \":9100\"\nlog_level: debug\nbacklog: 20\n",
	), 0o600))

	t.Setenv("FCHAT_HTTP_ADDR", ":9200")
	t.Setenv("FCHAT_BACKLOG", "30")

	cfg, err := Load(viper.New(), newFlags(t, "--backlog=40"), file)
	require.NoError(t, err)

	require.Equal(t, 7000, cfg.Port, "file beats default")
	require.Equal(t, "debug", cfg.LogLevel, "file beats default")
	require.Equal(t, ":9200", cfg.HTTPAddr, "env beats file")
	require.Equal(t, 40, cfg.Backlog, "flag beats env")
}

func TestLoadParsesDurations(t *testing.T) {
	t.Setenv("FCHAT_SHUTDOWN_TIMEOUT", "250ms")

	cfg, err := Load(viper.New(), nil, "")
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, cfg.ShutdownTimeout)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	_, err := Load(viper.New(), newFlags(t, "--port=70000", "--backlog=-1"), "")
	require.ErrorContains(t, err, "port 70000 out of range")
	require.ErrorContains(t, err, "backlog -1 must not be negative")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), nil, filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config file")
}
