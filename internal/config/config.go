package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
	Player     PlayerConfig     `mapstructure:"player"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds backend endpoints
type ServerConfig struct {
	URL          string        `mapstructure:"url"`           // REST base URL
	WebsocketURL string        `mapstructure:"websocket_url"` // Realtime notifications
	Timeout      time.Duration `mapstructure:"timeout"`       // Per-request fetch timeout
}

// PaginationConfig holds infinite-scroll tuning
type PaginationConfig struct {
	PageSize        int           `mapstructure:"page_size"`
	ScrollThreshold int           `mapstructure:"scroll_threshold"` // Rows from the bottom that trigger a load
	Debounce        time.Duration `mapstructure:"debounce"`
}

// CacheConfig holds segment cache settings
type CacheConfig struct {
	MaxSegments    int           `mapstructure:"max_segments"`
	Path           string        `mapstructure:"path"` // Empty disables snapshots
	SnapshotMaxAge time.Duration `mapstructure:"snapshot_max_age"`
}

// RealtimeConfig holds WebSocket reconnect and heartbeat settings
type RealtimeConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	InitialBackoff       time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff           time.Duration `mapstructure:"max_backoff"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

// PlayerConfig holds media player configuration
type PlayerConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:          "http://localhost:5000",
			WebsocketURL: "ws://localhost:8766",
			Timeout:      15 * time.Second,
		},
		Pagination: PaginationConfig{
			PageSize:        50,
			ScrollThreshold: 5,
			Debounce:        250 * time.Millisecond,
		},
		Cache: CacheConfig{
			MaxSegments:    16,
			Path:           defaultCachePath(),
			SnapshotMaxAge: 24 * time.Hour,
		},
		Realtime: RealtimeConfig{
			Enabled:              true,
			HeartbeatInterval:    30 * time.Second,
			InitialBackoff:       time.Second,
			MaxBackoff:           30 * time.Second,
			MaxReconnectAttempts: 10,
		},
		Player: PlayerConfig{
			Command: "mpv",
			Args:    []string{},
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "tagflow", "tagflow.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "tagflow", "tagflow.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "tagflow")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "tagflow")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "tagflow", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "tagflow", "cache")
	}
}

var envReplacer = strings.NewReplacer(".", "_")

// LoadConfig loads configuration from the default locations and environment
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(defaultConfigPath())
	v.AddConfigPath(".")
	return load(v)
}

// LoadConfigFile loads configuration from an explicit file path
func LoadConfigFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	// Environment variable overrides, e.g. TAGFLOW_SERVER_URL
	v.SetEnvPrefix("TAGFLOW")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()
	bindEnv(v)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// bindEnv registers every key so AutomaticEnv applies during Unmarshal
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"server.url", "server.websocket_url", "server.timeout",
		"pagination.page_size", "pagination.scroll_threshold", "pagination.debounce",
		"cache.max_segments", "cache.path", "cache.snapshot_max_age",
		"realtime.enabled", "realtime.heartbeat_interval", "realtime.initial_backoff",
		"realtime.max_backoff", "realtime.max_reconnect_attempts",
		"player.command", "player.args",
		"logging.file", "logging.level",
	} {
		_ = v.BindEnv(key)
	}
}

// SaveConfig writes the configuration to the default config file
func SaveConfig(cfg *Config) error {
	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return SaveConfigFile(cfg, filepath.Join(configPath, "config.yaml"))
}

// SaveConfigFile writes the configuration to path
func SaveConfigFile(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	v := viper.New()

	// Set fields individually to ensure correct key names (snake_case)
	v.Set("server.url", cfg.Server.URL)
	v.Set("server.websocket_url", cfg.Server.WebsocketURL)
	v.Set("server.timeout", cfg.Server.Timeout.String())

	v.Set("pagination.page_size", cfg.Pagination.PageSize)
	v.Set("pagination.scroll_threshold", cfg.Pagination.ScrollThreshold)
	v.Set("pagination.debounce", cfg.Pagination.Debounce.String())

	v.Set("cache.max_segments", cfg.Cache.MaxSegments)
	v.Set("cache.path", cfg.Cache.Path)
	v.Set("cache.snapshot_max_age", cfg.Cache.SnapshotMaxAge.String())

	v.Set("realtime.enabled", cfg.Realtime.Enabled)
	v.Set("realtime.heartbeat_interval", cfg.Realtime.HeartbeatInterval.String())
	v.Set("realtime.initial_backoff", cfg.Realtime.InitialBackoff.String())
	v.Set("realtime.max_backoff", cfg.Realtime.MaxBackoff.String())
	v.Set("realtime.max_reconnect_attempts", cfg.Realtime.MaxReconnectAttempts)

	v.Set("player.command", cfg.Player.Command)
	v.Set("player.args", cfg.Player.Args)

	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the client cannot run with
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.url must be an absolute URL, got %q", c.Server.URL)
	}
	if c.Realtime.Enabled {
		ws, err := url.Parse(c.Server.WebsocketURL)
		if err != nil || (ws.Scheme != "ws" && ws.Scheme != "wss") {
			return fmt.Errorf("server.websocket_url must be a ws:// or wss:// URL, got %q", c.Server.WebsocketURL)
		}
		if c.Realtime.HeartbeatInterval <= 0 {
			return fmt.Errorf("realtime.heartbeat_interval must be positive")
		}
		if c.Realtime.InitialBackoff <= 0 || c.Realtime.MaxBackoff < c.Realtime.InitialBackoff {
			return fmt.Errorf("realtime backoff must satisfy 0 < initial_backoff <= max_backoff")
		}
		if c.Realtime.MaxReconnectAttempts <= 0 {
			return fmt.Errorf("realtime.max_reconnect_attempts must be positive")
		}
	}
	if c.Pagination.PageSize <= 0 {
		return fmt.Errorf("pagination.page_size must be positive")
	}
	if c.Cache.MaxSegments <= 0 {
		return fmt.Errorf("cache.max_segments must be positive")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}
	return nil
}

// ClearCache removes all persisted segment snapshots
func ClearCache(cfg *Config) error {
	if cfg.Cache.Path == "" {
		return nil
	}
	if err := os.RemoveAll(cfg.Cache.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
