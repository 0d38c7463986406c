// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPollInterval is returned when POLL_INTERVAL is not positive.
	ErrInvalidPollInterval = errors.New("config: POLL_INTERVAL must be positive")
	// ErrInvalidMaxPollAttempts is returned when MAX_POLL_ATTEMPTS is negative.
	ErrInvalidMaxPollAttempts = errors.New("config: MAX_POLL_ATTEMPTS must not be negative")
	// ErrInvalidSubmitRate is returned when SUBMIT_RATE_PER_MINUTE is negative.
	ErrInvalidSubmitRate = errors.New("config: SUBMIT_RATE_PER_MINUTE must not be negative")
	// ErrInvalidDownloadTimeout is returned when DOWNLOAD_TIMEOUT is not positive.
	ErrInvalidDownloadTimeout = errors.New("config: DOWNLOAD_TIMEOUT must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" json:"allowed_origins,omitempty"`

	// Credential selected at startup; the key can still be switched at runtime.
	GeminiAPIKey string `env:"GEMINI_API_KEY" json:"-"` // Masked in JSON

	// Generation defaults
	Model       string `env:"VEO_MODEL, default=veo-3.1-fast-generate-preview" json:"model"`
	Resolution  string `env:"VEO_RESOLUTION, default=720p" json:"resolution"`
	AspectRatio string `env:"VEO_ASPECT_RATIO, default=16:9" json:"aspect_ratio"`

	// Processing settings
	PollInterval        time.Duration `env:"POLL_INTERVAL, default=10s" json:"poll_interval"`
	MaxPollAttempts     int           `env:"MAX_POLL_ATTEMPTS, default=0" json:"max_poll_attempts"`
	DownloadTimeout     time.Duration `env:"DOWNLOAD_TIMEOUT, default=2m" json:"download_timeout"`
	SubmitRatePerMinute int           `env:"SUBMIT_RATE_PER_MINUTE, default=0" json:"submit_rate_per_minute"`
	PromptTemplatesFile string        `env:"PROMPT_TEMPLATES_FILE" json:"prompt_templates_file,omitempty"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/veo-studio" json:"temp_dir"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that numeric settings are in range.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.MaxPollAttempts < 0 {
		return ErrInvalidMaxPollAttempts
	}
	if c.SubmitRatePerMinute < 0 {
		return ErrInvalidSubmitRate
	}
	if c.DownloadTimeout <= 0 {
		return ErrInvalidDownloadTimeout
	}
	return nil
}

// PromptTemplates is the content of PROMPT_TEMPLATES_FILE.
//
//	[prompt_templates]
//	social_promo = """..."""
type PromptTemplates struct {
	PromptTemplates struct {
		SocialPromo string `toml:"social_promo"`
	} `toml:"prompt_templates"`
}

// LoadPromptTemplates decodes the prompt template file. An unset path
// yields empty templates, meaning the built-in ones are used.
func (c *Config) LoadPromptTemplates() (*PromptTemplates, error) {
	tpl := &PromptTemplates{}
	if c.PromptTemplatesFile == "" {
		return tpl, nil
	}
	if _, err := toml.DecodeFile(c.PromptTemplatesFile, tpl); err != nil {
		return nil, fmt.Errorf("config: decode prompt templates: %w", err)
	}
	return tpl, nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs. Records logged with a
// context carrying a span get trace_id and span_id attributes.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(withSpanContext(handler))
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, GeminiAPIKey: %s, Model: %s, Resolution: %s, AspectRatio: %s, PollInterval: %s, MaxPollAttempts: %d, DownloadTimeout: %s, SubmitRatePerMinute: %d, TempDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		mask(c.GeminiAPIKey),
		c.Model,
		c.Resolution,
		c.AspectRatio,
		c.PollInterval,
		c.MaxPollAttempts,
		c.DownloadTimeout,
		c.SubmitRatePerMinute,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	return "****"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
