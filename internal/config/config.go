package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/polyscan/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Scanner    ScannerConfig    `mapstructure:"scanner"`
	Storage    StorageConfig    `mapstructure:"storage"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// PolymarketConfig holds gamma API and event filter configuration
type PolymarketConfig struct {
	GammaAPIURL         string        `mapstructure:"gamma_api_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	PageSize            int           `mapstructure:"page_size"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	UserAgent           string        `mapstructure:"user_agent"`
	TagSlug             string        `mapstructure:"tag_slug"`
	Order               string        `mapstructure:"order"`
	Ascending           bool          `mapstructure:"ascending"`
	Volume24hrMin       float64       `mapstructure:"volume_24hr_min"`
	LiquidityMin        float64       `mapstructure:"liquidity_min"`
	VolumeFilterOR      bool          `mapstructure:"volume_filter_or"` // true = OR (union), false = AND (intersection)
}

// ScannerConfig holds the poll loop configuration
type ScannerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	ErrorCooldown time.Duration `mapstructure:"error_cooldown"`
	MaxMoves      int           `mapstructure:"max_moves"`
}

// StorageConfig selects the state mirror backend
type StorageConfig struct {
	Backend     string `mapstructure:"backend"` // file, sqlite, redis or none
	DataDir     string `mapstructure:"data_dir"`
	DBPath      string `mapstructure:"db_path"`
	RedisURL    string `mapstructure:"redis_url"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

// HTTPConfig holds the query API server configuration
type HTTPConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	HistoryWindow  time.Duration `mapstructure:"history_window"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Websocket      bool          `mapstructure:"websocket"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	MinLevel       string        `mapstructure:"min_level"`
	MaxMoves       int           `mapstructure:"max_moves"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional .env file, the config file
// at path and POLYSCAN_* environment variables, in increasing priority.
// An empty path skips the config file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	// POLYSCAN_SCANNER_INTERVAL overrides scanner.interval
	v.SetEnvPrefix("POLYSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Polymarket defaults
	v.SetDefault("polymarket.gamma_api_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.timeout", "20s")
	v.SetDefault("polymarket.page_size", 100)
	v.SetDefault("polymarket.max_retries", 3)
	v.SetDefault("polymarket.retry_delay", "2s")
	v.SetDefault("polymarket.max_idle_conns", 10)
	v.SetDefault("polymarket.max_idle_conns_per_host", 10)
	v.SetDefault("polymarket.idle_conn_timeout", "90s")
	v.SetDefault("polymarket.user_agent", "polyscan/1.0")
	v.SetDefault("polymarket.tag_slug", "")
	v.SetDefault("polymarket.order", "")
	v.SetDefault("polymarket.ascending", false)
	v.SetDefault("polymarket.volume_24hr_min", 0.0) // 0 = no filter
	v.SetDefault("polymarket.liquidity_min", 0.0)   // 0 = no filter
	v.SetDefault("polymarket.volume_filter_or", true)

	// Scanner defaults
	v.SetDefault("scanner.interval", "5s")
	v.SetDefault("scanner.error_cooldown", "5s")
	v.SetDefault("scanner.max_moves", 500)

	// Storage defaults
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.db_path", "./data/polyscan.db")
	v.SetDefault("storage.redis_url", "redis://localhost:6379/0")
	v.SetDefault("storage.redis_prefix", "polyscan:")

	// HTTP defaults
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.history_window", "5m")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.websocket", true)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.min_level", "high")
	v.SetDefault("telegram.max_moves", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Polymarket config
	if c.Polymarket.GammaAPIURL == "" {
		return fmt.Errorf("polymarket.gamma_api_url is required")
	}
	if c.Polymarket.Timeout <= 0 {
		return fmt.Errorf("polymarket.timeout must be positive")
	}
	if c.Polymarket.PageSize < 1 || c.Polymarket.PageSize > 500 {
		return fmt.Errorf("polymarket.page_size must be between 1 and 500")
	}
	if c.Polymarket.MaxRetries < 1 {
		return fmt.Errorf("polymarket.max_retries must be at least 1")
	}
	if c.Polymarket.RetryDelay < 0 {
		return fmt.Errorf("polymarket.retry_delay must not be negative")
	}
	if c.Polymarket.Volume24hrMin < 0 {
		return fmt.Errorf("polymarket.volume_24hr_min must not be negative")
	}
	if c.Polymarket.LiquidityMin < 0 {
		return fmt.Errorf("polymarket.liquidity_min must not be negative")
	}

	// Validate Scanner config
	if c.Scanner.Interval < time.Second {
		return fmt.Errorf("scanner.interval must be at least 1 second")
	}
	if c.Scanner.ErrorCooldown < 0 {
		return fmt.Errorf("scanner.error_cooldown must not be negative")
	}
	if c.Scanner.MaxMoves < 1 {
		return fmt.Errorf("scanner.max_moves must be at least 1")
	}

	// Validate Storage config
	switch c.Storage.Backend {
	case "file":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.data_dir is required for the file backend")
		}
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required for the sqlite backend")
		}
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis backend")
		}
	case "none":
	default:
		return fmt.Errorf("storage.backend must be one of: file, sqlite, redis, none")
	}

	// Validate HTTP config
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required when http is enabled")
	}
	if c.HTTP.HistoryWindow < 0 {
		return fmt.Errorf("http.history_window must not be negative")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if level, ok := models.ParseNotificationLevel(c.Telegram.MinLevel); !ok || level == models.LevelNone {
		return fmt.Errorf("telegram.min_level must be one of: low, medium, high")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// NotificationLevel returns the parsed telegram.min_level.
func (c *Config) NotificationLevel() models.NotificationLevel {
	level, _ := models.ParseNotificationLevel(c.Telegram.MinLevel)
	return level
}
