// Package config loads and validates service configuration from YAML and
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Research   ResearchConfig   `mapstructure:"research"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// PolymarketConfig holds Polymarket API configuration
type PolymarketConfig struct {
	GammaAPIURL       string        `mapstructure:"gamma_api_url"`
	CLOBAPIURL        string        `mapstructure:"clob_api_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelayBase    time.Duration `mapstructure:"retry_delay_base"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// AlertsConfig holds alert engine configuration
type AlertsConfig struct {
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	WebhookMaxRetries int           `mapstructure:"webhook_max_retries"`
	WebhookRetryDelay time.Duration `mapstructure:"webhook_retry_delay"`
	WebhookTimeout    time.Duration `mapstructure:"webhook_timeout"`
}

// ResearchConfig holds research pipeline configuration
type ResearchConfig struct {
	APIBaseURL string        `mapstructure:"api_base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxSources int           `mapstructure:"max_sources"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// EmailConfig holds outbound email (SMTP) configuration
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	From     string `mapstructure:"from"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// NotifyConfig groups the notification channels
type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Email    EmailConfig    `mapstructure:"email"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath            string `mapstructure:"db_path"`
	MaxTriggerRecords int    `mapstructure:"max_trigger_records"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("ALITHOS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("polymarket.gamma_api_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.clob_api_url", "https://clob.polymarket.com")
	v.SetDefault("polymarket.timeout", "30s")
	v.SetDefault("polymarket.max_retries", 3)
	v.SetDefault("polymarket.retry_delay_base", "1s")
	v.SetDefault("polymarket.requests_per_second", 5.0)
	v.SetDefault("polymarket.burst", 10)

	v.SetDefault("alerts.tick_interval", "5s")
	v.SetDefault("alerts.webhook_max_retries", 3)
	v.SetDefault("alerts.webhook_retry_delay", "1s")
	v.SetDefault("alerts.webhook_timeout", "10s")

	v.SetDefault("research.api_base_url", "https://api.openai.com/v1")
	v.SetDefault("research.model", "gpt-4o-mini")
	v.SetDefault("research.timeout", "180s")
	v.SetDefault("research.max_sources", 12)

	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.max_retries", 3)
	v.SetDefault("notify.telegram.retry_delay_base", "1s")
	v.SetDefault("notify.email.enabled", false)
	v.SetDefault("notify.email.smtp_port", 587)

	v.SetDefault("storage.db_path", "./data/alithos.db")
	v.SetDefault("storage.max_trigger_records", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Polymarket.GammaAPIURL == "" {
		return fmt.Errorf("polymarket.gamma_api_url is required")
	}
	if c.Polymarket.CLOBAPIURL == "" {
		return fmt.Errorf("polymarket.clob_api_url is required")
	}
	if c.Polymarket.Timeout < time.Second {
		return fmt.Errorf("polymarket.timeout must be at least 1 second")
	}
	if c.Polymarket.MaxRetries < 1 {
		return fmt.Errorf("polymarket.max_retries must be at least 1")
	}
	if c.Polymarket.RequestsPerSecond <= 0 {
		return fmt.Errorf("polymarket.requests_per_second must be positive")
	}
	if c.Polymarket.Burst < 1 {
		return fmt.Errorf("polymarket.burst must be at least 1")
	}

	if c.Alerts.TickInterval < time.Second {
		return fmt.Errorf("alerts.tick_interval must be at least 1 second")
	}
	if c.Alerts.WebhookMaxRetries < 1 {
		return fmt.Errorf("alerts.webhook_max_retries must be at least 1")
	}
	if c.Alerts.WebhookTimeout < time.Second {
		return fmt.Errorf("alerts.webhook_timeout must be at least 1 second")
	}

	if c.Research.APIBaseURL == "" {
		return fmt.Errorf("research.api_base_url is required")
	}
	if c.Research.Model == "" {
		return fmt.Errorf("research.model is required")
	}
	if c.Research.Timeout < 10*time.Second {
		return fmt.Errorf("research.timeout must be at least 10 seconds")
	}
	if c.Research.MaxSources < 1 {
		return fmt.Errorf("research.max_sources must be at least 1")
	}

	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Notify.Email.Enabled {
		if c.Notify.Email.SMTPHost == "" {
			return fmt.Errorf("notify.email.smtp_host is required when email is enabled")
		}
		if c.Notify.Email.From == "" {
			return fmt.Errorf("notify.email.from is required when email is enabled")
		}
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxTriggerRecords < 1 {
		return fmt.Errorf("storage.max_trigger_records must be at least 1")
	}

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
