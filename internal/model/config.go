package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// APIConfig holds settings for the remote auth API.
type APIConfig struct {
	// BaseURL is the root URL of the API server (e.g., http://localhost:8000).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds each HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// RetryConfig selects how the push client schedules whole-cycle reconnects
// once every candidate URL has failed.
type RetryConfig struct {
	// Policy is "fixed" or "exponential".
	Policy string `mapstructure:"policy" yaml:"policy"`

	// DelayMs is the fixed delay, or the base delay for exponential backoff.
	DelayMs int `mapstructure:"delay_ms" yaml:"delay_ms"`

	// MaxDelayMs caps exponential backoff.
	MaxDelayMs int `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`

	// MaxAttempts stops scheduling after this many consecutive failed
	// cycles. Zero means unbounded.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// PushConfig holds settings for the notification push channel.
type PushConfig struct {
	DirectURL        string      `mapstructure:"direct_url" yaml:"direct_url"`
	Path             string      `mapstructure:"path" yaml:"path"`
	ProxyPath        string      `mapstructure:"proxy_path" yaml:"proxy_path"`
	ConnectTimeoutMs int         `mapstructure:"connect_timeout_ms" yaml:"connect_timeout_ms"`
	PingIntervalMs   int         `mapstructure:"ping_interval_ms" yaml:"ping_interval_ms"`
	Retry            RetryConfig `mapstructure:"retry" yaml:"retry"`
}

// SupervisorConfig holds the timings of the connection supervisor.
type SupervisorConfig struct {
	SettleDelayMs    int  `mapstructure:"settle_delay_ms" yaml:"settle_delay_ms"`
	SubscribeDelayMs int  `mapstructure:"subscribe_delay_ms" yaml:"subscribe_delay_ms"`
	HealthIntervalMs int  `mapstructure:"health_interval_ms" yaml:"health_interval_ms"`
	VerifyUser       bool `mapstructure:"verify_user" yaml:"verify_user"`
}

// StorageConfig locates the local database.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SessionConfig selects where the bearer token is kept.
type SessionConfig struct {
	// Backend is "kv" (local database) or "keyring" (system keyring).
	Backend string `mapstructure:"backend" yaml:"backend"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API        APIConfig        `mapstructure:"api" yaml:"api"`
	Push       PushConfig       `mapstructure:"push" yaml:"push"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Display    DisplayConfig    `mapstructure:"display" yaml:"display"`
}

// envPrefix scopes environment overrides, e.g. AUTHNOTIFY_API_BASE_URL.
const envPrefix = "AUTHNOTIFY"

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/authnotify/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "authnotify", "config.yaml")
}

// DefaultDataDir returns the directory holding the database and log file.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "authnotify")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:8000",
			TimeoutSec: 30,
		},
		Push: PushConfig{
			DirectURL:        "ws://localhost:8000/api/notifications/ws",
			Path:             "/api/notifications/ws",
			ProxyPath:        "/api/ws-proxy",
			ConnectTimeoutMs: 5000,
			PingIntervalMs:   30000,
			Retry: RetryConfig{
				Policy:     "fixed",
				DelayMs:    5000,
				MaxDelayMs: 60000,
			},
		},
		Supervisor: SupervisorConfig{
			SettleDelayMs:    1000,
			SubscribeDelayMs: 1000,
			HealthIntervalMs: 30000,
			VerifyUser:       true,
		},
		Storage: StorageConfig{
			Path: filepath.Join(DefaultDataDir(), "authnotify.db"),
		},
		Session: SessionConfig{
			Backend: "kv",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Display: DisplayConfig{
			Theme: "default",
		},
	}
}

// setDefaults registers every default with v so missing keys resolve and
// environment overrides are discoverable by Unmarshal.
func setDefaults(v *viper.Viper, cfg *AppConfig) {
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.timeout_sec", cfg.API.TimeoutSec)
	v.SetDefault("push.direct_url", cfg.Push.DirectURL)
	v.SetDefault("push.path", cfg.Push.Path)
	v.SetDefault("push.proxy_path", cfg.Push.ProxyPath)
	v.SetDefault("push.connect_timeout_ms", cfg.Push.ConnectTimeoutMs)
	v.SetDefault("push.ping_interval_ms", cfg.Push.PingIntervalMs)
	v.SetDefault("push.retry.policy", cfg.Push.Retry.Policy)
	v.SetDefault("push.retry.delay_ms", cfg.Push.Retry.DelayMs)
	v.SetDefault("push.retry.max_delay_ms", cfg.Push.Retry.MaxDelayMs)
	v.SetDefault("push.retry.max_attempts", cfg.Push.Retry.MaxAttempts)
	v.SetDefault("supervisor.settle_delay_ms", cfg.Supervisor.SettleDelayMs)
	v.SetDefault("supervisor.subscribe_delay_ms", cfg.Supervisor.SubscribeDelayMs)
	v.SetDefault("supervisor.health_interval_ms", cfg.Supervisor.HealthIntervalMs)
	v.SetDefault("supervisor.verify_user", cfg.Supervisor.VerifyUser)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("session.backend", cfg.Session.Backend)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("display.theme", cfg.Display.Theme)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory is loaded first so AUTHNOTIFY_*
// variables defined there override file values. If the file does not
// exist, defaults (plus environment overrides) are returned.
func LoadConfig(path string) (*AppConfig, error) {
	// A missing .env is the common case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultAppConfig())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("push", cfg.Push)
	v.Set("supervisor", cfg.Supervisor)
	v.Set("storage", cfg.Storage)
	v.Set("session", cfg.Session)
	v.Set("log", cfg.Log)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// Validate rejects values the rest of the program cannot work with.
func (c *AppConfig) Validate() error {
	switch c.Push.Retry.Policy {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("push.retry.policy must be fixed or exponential, got %q", c.Push.Retry.Policy)
	}
	switch c.Session.Backend {
	case "kv", "keyring":
	default:
		return fmt.Errorf("session.backend must be kv or keyring, got %q", c.Session.Backend)
	}
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	return nil
}

// RequestTimeout returns the per-request API timeout.
func (c APIConfig) RequestTimeout() time.Duration {
	return ms(c.TimeoutSec * 1000)
}

// ConnectTimeout returns how long a candidate URL may take to open.
func (c PushConfig) ConnectTimeout() time.Duration { return ms(c.ConnectTimeoutMs) }

// PingInterval returns the keep-alive period.
func (c PushConfig) PingInterval() time.Duration { return ms(c.PingIntervalMs) }

// SettleDelay returns the wait before connecting after a token change.
func (c SupervisorConfig) SettleDelay() time.Duration { return ms(c.SettleDelayMs) }

// SubscribeDelay returns the wait between connecting and subscribing.
func (c SupervisorConfig) SubscribeDelay() time.Duration { return ms(c.SubscribeDelayMs) }

// HealthInterval returns the period of the reconnect health check.
func (c SupervisorConfig) HealthInterval() time.Duration { return ms(c.HealthIntervalMs) }

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
