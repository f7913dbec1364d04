// Package config loads vaultsync settings from the config file, environment,
// and flags, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds all vaultsync settings.
type Config struct {
	// DataDir is where workspace databases and the registry live.
	DataDir string `mapstructure:"data_dir"`

	// DeviceID uniquely identifies this device in snapshot metadata.
	// Generated on first run if empty.
	DeviceID string `mapstructure:"device_id"`

	// DeviceName is the human-readable device label carried in snapshot
	// metadata and used when naming conflict copies made by other devices.
	DeviceName string `mapstructure:"device_name"`

	// Username tags conflict copies in shared workspaces.
	Username string `mapstructure:"username"`

	// CredentialsFile is the OAuth client credentials JSON path.
	CredentialsFile string `mapstructure:"credentials_file"`

	// TokenFile is where the OAuth token is cached.
	TokenFile string `mapstructure:"token_file"`

	Sync   SyncConfig   `mapstructure:"sync"`
	Daemon DaemonConfig `mapstructure:"daemon"`
	Log    LogConfig    `mapstructure:"log"`
}

// SyncConfig holds sync engine settings.
type SyncConfig struct {
	// FailingThreshold is how many consecutive failures mark a workspace
	// failing rather than degraded.
	FailingThreshold int `mapstructure:"failing_threshold"`

	// BackoffBase is the first retry delay after a failure.
	BackoffBase time.Duration `mapstructure:"backoff_base"`

	// BackoffMax caps the retry delay.
	BackoffMax time.Duration `mapstructure:"backoff_max"`
}

// DaemonConfig holds background daemon settings.
type DaemonConfig struct {
	// SyncInterval is how often every workspace syncs regardless of
	// local activity.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// DebounceInterval batches rapid local writes into one sync.
	DebounceInterval time.Duration `mapstructure:"debounce_interval"`

	// DashboardPort enables the WebSocket dashboard when non-zero.
	DashboardPort int `mapstructure:"dashboard_port"`
}

// LogConfig holds log file rotation settings for the daemon.
type LogConfig struct {
	// File is the daemon log path. Empty logs to stderr only.
	File string `mapstructure:"file"`

	// MaxSizeMB rotates the log once it exceeds this size.
	MaxSizeMB int `mapstructure:"max_size_mb"`

	// MaxBackups is how many rotated files to keep.
	MaxBackups int `mapstructure:"max_backups"`

	// MaxAgeDays removes rotated files older than this.
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// Dir returns the vaultsync config directory, honoring VAULTSYNC_HOME.
func Dir() string {
	if dir := os.Getenv("VAULTSYNC_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vaultsync"
	}
	return filepath.Join(home, ".vaultsync")
}

// Load reads config from cfgFile (or the default location), the environment
// (VAULTSYNC_ prefix), and built-in defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	dir := Dir()
	v.SetDefault("data_dir", filepath.Join(dir, "data"))
	// Viper only surfaces environment overrides through Unmarshal for keys
	// it already knows about, so every key gets a default.
	v.SetDefault("device_id", "")
	v.SetDefault("device_name", "")
	v.SetDefault("username", "")
	v.SetDefault("credentials_file", filepath.Join(dir, "credentials.json"))
	v.SetDefault("token_file", filepath.Join(dir, "token.json"))
	v.SetDefault("sync.failing_threshold", 3)
	v.SetDefault("sync.backoff_base", 30*time.Second)
	v.SetDefault("sync.backoff_max", 30*time.Minute)
	v.SetDefault("daemon.sync_interval", 5*time.Minute)
	v.SetDefault("daemon.debounce_interval", 2*time.Second)
	v.SetDefault("daemon.dashboard_port", 0)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix("VAULTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; defaults apply. An
		// explicit --config path that fails to load is not.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.DeviceName == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.DeviceName = host
		}
	}
	if cfg.Username == "" {
		cfg.Username = os.Getenv("USER")
	}

	return &cfg, nil
}

// EnsureDeviceID returns a stable device ID, generating and persisting one
// under the config directory on first run.
func (c *Config) EnsureDeviceID() (string, error) {
	if c.DeviceID != "" {
		return c.DeviceID, nil
	}

	path := filepath.Join(Dir(), "device_id")
	if data, err := os.ReadFile(path); err == nil {
		c.DeviceID = strings.TrimSpace(string(data))
		if c.DeviceID != "" {
			return c.DeviceID, nil
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(Dir(), 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	c.DeviceID = id
	return id, nil
}

// LogWriter returns the daemon log destination. When a log file is configured
// it is size-rotated; otherwise everything goes to stderr.
func (c *Config) LogWriter() io.Writer {
	if c.Log.File == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   c.Log.File,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
		Compress:   true,
	}
}
