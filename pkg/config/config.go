package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Chat    ChatConfig    `mapstructure:"chat"`
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

// ServerConfig holds agent backend connection configuration.
type ServerConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	TimeoutStr string        `mapstructure:"timeout"` // For parsing string duration
}

// RetryConfig holds stream reconnection configuration.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	BaseDelayStr string        `mapstructure:"base_delay"` // For parsing string duration
}

// ChatConfig holds conversation configuration.
type ChatConfig struct {
	SessionID    string `mapstructure:"session_id"`
	ShowThinking bool   `mapstructure:"show_thinking"`
	Streaming    bool   `mapstructure:"streaming"`
}

var (
	global *Config
	mu     sync.RWMutex
)

// SetDefaults registers every configuration default with viper.
func SetDefaults() {
	viper.SetDefault("server.url", "http://localhost:5000")
	viper.SetDefault("server.timeout", "30s")
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_delay", "1s")
	viper.SetDefault("chat.session_id", "default")
	viper.SetDefault("chat.show_thinking", true)
	viper.SetDefault("chat.streaming", true)
	viper.SetDefault("logging.log_file", "tripwire.log")
	viper.SetDefault("logging.preserve", false)
	viper.SetDefault("logging.level", "info")
}

// Load reads configuration from the given file (optional), environment and
// defaults, and installs the result as the global config.
func Load(cfgFile string) (*Config, error) {
	SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(SettingsDir())
		viper.SetConfigName("settings")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TRIPWIRE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; anything else is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	mu.Lock()
	global = cfg
	mu.Unlock()
	return cfg, nil
}

// Get returns the global configuration, loading defaults if Load was never
// called.
func Get() *Config {
	mu.RLock()
	cfg := global
	mu.RUnlock()
	if cfg != nil {
		return cfg
	}

	cfg, err := Load("")
	if err != nil {
		// Defaults alone cannot fail to unmarshal; fall back to zero value
		// to keep callers nil-safe.
		cfg = &Config{}
	}
	return cfg
}

// Set installs cfg as the global configuration. Used by tests.
func Set(cfg *Config) {
	mu.Lock()
	global = cfg
	mu.Unlock()
}

// SettingsDir returns the directory holding the settings file and logs.
func SettingsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tripwire"
	}
	return filepath.Join(home, ".tripwire")
}

// BuildSettingsPath resolves a filename relative to the settings directory.
func BuildSettingsPath(filename string) string {
	return filepath.Join(SettingsDir(), filename)
}

func parseDurations(cfg *Config) error {
	var err error
	if cfg.Server.Timeout, err = parseDuration(cfg.Server.TimeoutStr, 30*time.Second); err != nil {
		return fmt.Errorf("invalid server.timeout: %w", err)
	}
	if cfg.Retry.BaseDelay, err = parseDuration(cfg.Retry.BaseDelayStr, time.Second); err != nil {
		return fmt.Errorf("invalid retry.base_delay: %w", err)
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
