// Package config resolves server settings from flags, FCHAT_* environment
// variables, an optional YAML file, and defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "FCHAT"

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8080
)

const (
	keyHost            = "host"
	keyPort            = "port"
	keySSHAddr         = "ssh_addr"
	keyHTTPAddr        = "http_addr"
	keyHostKey         = "host_key"
	keyLogLevel        = "log_level"
	keyBacklog         = "backlog"
	keyShutdownTimeout = "shutdown_timeout"
)

// Config holds the server configuration
type Config struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	SSHAddr         string        `mapstructure:"ssh_addr"`  // empty disables the SSH transport
	HTTPAddr        string        `mapstructure:"http_addr"` // empty disables WebSocket, metrics and health
	HostKey         string        `mapstructure:"host_key"`  // empty uses an ephemeral key
	LogLevel        string        `mapstructure:"log_level"`
	Backlog         int           `mapstructure:"backlog"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ListenAddr is the TCP address the frame listener binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Backlog < 0 {
		errs = append(errs, fmt.Errorf("backlog %d must not be negative", c.Backlog))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout %s must be positive", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"host":             keyHost,
	"port":             keyPort,
	"ssh-addr":         keySSHAddr,
	"http-addr":        keyHTTPAddr,
	"host-key":         keyHostKey,
	"log-level":        keyLogLevel,
	"backlog":          keyBacklog,
	"shutdown-timeout": keyShutdownTimeout,
}

// RegisterFlags defines the server flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("host", "", "Interface to bind (empty = all interfaces)")
	fs.Int("port", DefaultPort, "TCP port for framed chat clients")
	fs.String("ssh-addr", "", "Address for the SSH transport (empty = disabled)")
	fs.String("http-addr", "", "Address for WebSocket, /metrics and /healthz (empty = disabled)")
	fs.String("host-key", "", "Path to the SSH host key (generated if missing, ephemeral if empty)")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Int("backlog", 100, "Number of recent messages replayed to new clients")
	fs.Duration("shutdown-timeout", 10*time.Second, "How long to wait for queued messages on shutdown")
}

// Load resolves the configuration. fs may be nil; file may be empty.
func Load(v *viper.Viper, fs *pflag.FlagSet, file string) (*Config, error) {
	v.SetDefault(keyHost, "")
	v.SetDefault(keyPort, DefaultPort)
	v.SetDefault(keySSHAddr, "")
	v.SetDefault(keyHTTPAddr, "")
	v.SetDefault(keyHostKey, "")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyBacklog, 100)
	v.SetDefault(keyShutdownTimeout, 10*time.Second)

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %q: %w", name, err)
				}
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
