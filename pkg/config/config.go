// Package config loads service configuration from YAML with environment
// variable overrides. Precedence, lowest to highest: built-in defaults,
// config file, WEBRUNNER_* environment variables.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation.
const (
	DefaultListenAddr      = "127.0.0.1:8080"
	DefaultDatabasePath    = "data/sessions.db"
	DefaultScreenshotsDir  = "data/screenshots"
	DefaultLogsDir         = "data/logs"
	DefaultMaxConcurrent   = 4
	DefaultRetryBackoffMs  = 1000
	DefaultNavTimeoutMs    = 30000
	DefaultViewportWidth   = 1280
	DefaultViewportHeight  = 720
	DefaultShutdownTimeout = 15
)

// Config is the complete service configuration.
type Config struct {
	Server      ServerConfig  `yaml:"server"`
	Storage     StorageConfig `yaml:"storage"`
	Browser     BrowserConfig `yaml:"browser"`
	Engine      EngineConfig  `yaml:"engine"`
	Screenshots string        `yaml:"screenshots_dir"`
	LogsDir     string        `yaml:"logs_dir"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	ListenAddr         string `yaml:"listen_addr"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec"`
}

// StorageConfig controls the session database.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// BrowserConfig controls how browser sessions are launched.
type BrowserConfig struct {
	Headless       bool   `yaml:"headless"`
	NoSandbox      bool   `yaml:"no_sandbox"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	UserAgent      string `yaml:"user_agent"`
	NavTimeoutMs   int    `yaml:"nav_timeout_ms"`
}

// EngineConfig controls test execution.
type EngineConfig struct {
	MaxConcurrent  int `yaml:"max_concurrent"`
	RetryBackoffMs int `yaml:"retry_backoff_ms"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:         DefaultListenAddr,
			ShutdownTimeoutSec: DefaultShutdownTimeout,
		},
		Storage: StorageConfig{
			DatabasePath: DefaultDatabasePath,
		},
		Browser: BrowserConfig{
			Headless:       true,
			ViewportWidth:  DefaultViewportWidth,
			ViewportHeight: DefaultViewportHeight,
			NavTimeoutMs:   DefaultNavTimeoutMs,
		},
		Engine: EngineConfig{
			MaxConcurrent:  DefaultMaxConcurrent,
			RetryBackoffMs: DefaultRetryBackoffMs,
		},
		Screenshots: DefaultScreenshotsDir,
		LogsDir:     DefaultLogsDir,
	}
}

// Load reads the config file at path if it exists, then applies environment
// overrides and validates. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Missing file falls through to defaults.
		default:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WEBRUNNER_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("WEBRUNNER_DATABASE_PATH"); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := os.Getenv("WEBRUNNER_SCREENSHOTS_DIR"); v != "" {
		cfg.Screenshots = v
	}
	if v := os.Getenv("WEBRUNNER_LOGS_DIR"); v != "" {
		cfg.LogsDir = v
	}
	if v := os.Getenv("WEBRUNNER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Browser.Headless = b
		}
	}
	if v := os.Getenv("WEBRUNNER_NO_SANDBOX"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Browser.NoSandbox = b
		}
	}
	if v := os.Getenv("WEBRUNNER_USER_AGENT"); v != "" {
		cfg.Browser.UserAgent = v
	}
	if v := os.Getenv("WEBRUNNER_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.MaxConcurrent = n
		}
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen_addr %q: %w", c.Server.ListenAddr, err)
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path must not be empty")
	}
	if c.Screenshots == "" {
		return fmt.Errorf("screenshots_dir must not be empty")
	}
	if c.LogsDir == "" {
		return fmt.Errorf("logs_dir must not be empty")
	}
	if c.Engine.MaxConcurrent < 1 {
		return fmt.Errorf("engine.max_concurrent must be at least 1, got %d", c.Engine.MaxConcurrent)
	}
	if c.Engine.RetryBackoffMs < 0 {
		return fmt.Errorf("engine.retry_backoff_ms must not be negative, got %d", c.Engine.RetryBackoffMs)
	}
	if c.Browser.ViewportWidth < 1 || c.Browser.ViewportHeight < 1 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d",
			c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}
	if c.Browser.NavTimeoutMs < 1000 {
		return fmt.Errorf("browser.nav_timeout_ms must be at least 1000, got %d", c.Browser.NavTimeoutMs)
	}
	return nil
}
