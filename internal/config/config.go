package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Remote services
	ServerURL      string        `mapstructure:"server-url"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`

	// Notifications
	NotifyDuration time.Duration `mapstructure:"notify-duration"`

	// Export
	ExportDir      string `mapstructure:"export-dir"`
	ExportEncoding string `mapstructure:"export-encoding"`

	// Local state
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`
	LockPath   string `mapstructure:"lock-path"`

	// S3 upload of exports (disabled when bucket is empty)
	S3Bucket string `mapstructure:"s3-bucket"`
	S3Region string `mapstructure:"s3-region"`
	S3Prefix string `mapstructure:"s3-prefix"`

	LogLevel string `mapstructure:"log-level"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	viper.SetDefault("server-url", "http://localhost:8000")
	viper.SetDefault("request-timeout", time.Duration(0))
	viper.SetDefault("notify-duration", 9*time.Second)
	viper.SetDefault("export-dir", ".")
	viper.SetDefault("export-encoding", "utf-8")
	viper.SetDefault("sqlite-path", ".artifacts/history.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm")
	viper.SetDefault("lock-path", ".artifacts/session.lock")
	viper.SetDefault("s3-bucket", "")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("s3-prefix", "exports")
	viper.SetDefault("log-level", "info")

	// Environment variables (will be ROIVOL_SERVER_URL, etc.)
	viper.SetEnvPrefix("ROIVOL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.roivol")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server-url must be an http(s) url, got %q", c.ServerURL)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request-timeout must be non-negative")
	}
	if c.NotifyDuration <= 0 {
		return fmt.Errorf("notify-duration must be positive")
	}
	switch strings.ToLower(c.ExportEncoding) {
	case "utf-8", "utf8", "gb18030", "gbk":
	default:
		return fmt.Errorf("export-encoding must be utf-8, gb18030 or gbk, got %q", c.ExportEncoding)
	}
	if c.ExportDir == "" {
		return fmt.Errorf("export-dir cannot be empty")
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return fmt.Errorf("s3-region cannot be empty when s3-bucket is set")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps the log-level setting to a slog level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log-level must be debug, info, warn or error, got %q", level)
	}
}
