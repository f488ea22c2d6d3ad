// Package config provides centralized configuration management with
// environment variable support for secure credential handling.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Metricool MetricoolConfig
	Notion    NotionConfig
	Sync      SyncConfig
	Trigger   TriggerConfig
	Log       LogConfig
}

// MetricoolConfig holds analytics source API settings
type MetricoolConfig struct {
	BaseURL             string `validate:"required,url"`
	Token               string `validate:"required"`
	UserID              string `validate:"required"`
	BlogID              string `validate:"required"`
	CallsPerSecond      int    `validate:"gte=1"`
	CallsPerMinute      int    `validate:"gte=1"`
	MaxRateLimitRetries int    `validate:"gte=0"`
	MaxRateLimitWaitSec int    `validate:"gte=1"`
	TimeoutSec          int    `validate:"gte=1"`
}

// NotionConfig holds destination workspace settings
type NotionConfig struct {
	BaseURL          string `validate:"required,url"`
	Token            string `validate:"required"`
	DatabaseID       string `validate:"required"`
	Version          string `validate:"required"`
	CallsPerSecond   int    `validate:"gte=1"`
	CallsPerMinute   int    `validate:"gte=1"`
	MaxRetries       int    `validate:"gte=0"`
	InitialBackoffMs int    `validate:"gte=1"`
}

// SyncConfig holds orchestrator settings
type SyncConfig struct {
	Platforms       []string `validate:"required,min=1,dive,required"`
	YearsBack       int      `validate:"gte=1"`
	WindowDays      int      `validate:"gte=1"`
	BatchSize       int      `validate:"gte=1"`
	WindowPauseMs   int      `validate:"gte=0"`
	PlatformPauseMs int      `validate:"gte=0"`
	BatchPauseMs    int      `validate:"gte=0"`
	DryRun          bool
}

// TriggerConfig holds webhook listener settings
type TriggerConfig struct {
	Host           string
	Port           int      `validate:"gte=1,lte=65535"`
	ScriptDir      string   `validate:"required"`
	Interpreter    string   `validate:"required"`
	AllowedScripts []string `validate:"dive,required"`
	RateLimitRPM   int      `validate:"gte=0"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `validate:"oneof=trace debug info warn error"`
	Format string `validate:"oneof=json console"`
}

// DefaultPlatforms is the platform list synced when none is configured.
var DefaultPlatforms = []string{"facebook", "instagram", "linkedin", "youtube", "tiktok"}

var validate = validator.New()

// Load reads configuration from an optional .env file, an optional config
// file and environment variables. Environment variables take precedence over
// config file values. Tokens should ONLY be set via environment variables in
// production.
func Load(configFile string) (*Config, error) {
	// .env is a convenience for local runs; a missing file is fine
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional if env vars are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Metricool: MetricoolConfig{
			BaseURL:             getString(v, "metricool.base_url", "METRICOOL_BASE_URL", "https://app.metricool.com/api"),
			Token:               getString(v, "metricool.token", "METRICOOL_TOKEN", ""),
			UserID:              getString(v, "metricool.user_id", "METRICOOL_USER_ID", ""),
			BlogID:              getString(v, "metricool.blog_id", "METRICOOL_BLOG_ID", ""),
			CallsPerSecond:      getInt(v, "metricool.calls_per_second", "METRICOOL_CALLS_PER_SECOND", 2),
			CallsPerMinute:      getInt(v, "metricool.calls_per_minute", "METRICOOL_CALLS_PER_MINUTE", 100),
			MaxRateLimitRetries: getInt(v, "metricool.max_rate_limit_retries", "METRICOOL_MAX_RATE_LIMIT_RETRIES", 5),
			MaxRateLimitWaitSec: getInt(v, "metricool.max_rate_limit_wait_seconds", "METRICOOL_MAX_RATE_LIMIT_WAIT", 600),
			TimeoutSec:          getInt(v, "metricool.timeout_seconds", "METRICOOL_TIMEOUT", 30),
		},
		Notion: NotionConfig{
			BaseURL:          getString(v, "notion.base_url", "NOTION_BASE_URL", "https://api.notion.com/v1"),
			Token:            getString(v, "notion.token", "NOTION_TOKEN", ""),
			DatabaseID:       getString(v, "notion.database_id", "NOTION_DATABASE_ID", ""),
			Version:          getString(v, "notion.version", "NOTION_VERSION", "2022-06-28"),
			CallsPerSecond:   getInt(v, "notion.calls_per_second", "NOTION_CALLS_PER_SECOND", 3),
			CallsPerMinute:   getInt(v, "notion.calls_per_minute", "NOTION_CALLS_PER_MINUTE", 100),
			MaxRetries:       getInt(v, "notion.max_retries", "NOTION_MAX_RETRIES", 3),
			InitialBackoffMs: getInt(v, "notion.initial_backoff_ms", "NOTION_INITIAL_BACKOFF_MS", 1000),
		},
		Sync: SyncConfig{
			Platforms:       getList(v, "sync.platforms", "SYNC_PLATFORMS", DefaultPlatforms),
			YearsBack:       getInt(v, "sync.years_back", "SYNC_YEARS_BACK", 5),
			WindowDays:      getInt(v, "sync.window_days", "SYNC_WINDOW_DAYS", 30),
			BatchSize:       getInt(v, "sync.batch_size", "SYNC_BATCH_SIZE", 10),
			WindowPauseMs:   getInt(v, "sync.window_pause_ms", "SYNC_WINDOW_PAUSE_MS", 100),
			PlatformPauseMs: getInt(v, "sync.platform_pause_ms", "SYNC_PLATFORM_PAUSE_MS", 1000),
			BatchPauseMs:    getInt(v, "sync.batch_pause_ms", "SYNC_BATCH_PAUSE_MS", 500),
			DryRun:          v.GetBool("sync.dry_run"),
		},
		Trigger: TriggerConfig{
			Host:           getString(v, "trigger.host", "TRIGGER_HOST", "0.0.0.0"),
			Port:           getInt(v, "trigger.port", "PORT", 5000),
			ScriptDir:      getString(v, "trigger.script_dir", "TRIGGER_SCRIPT_DIR", "scripts"),
			Interpreter:    getString(v, "trigger.interpreter", "TRIGGER_INTERPRETER", "python3"),
			AllowedScripts: getList(v, "trigger.allowed_scripts", "TRIGGER_ALLOWED_SCRIPTS", nil),
			RateLimitRPM:   getInt(v, "trigger.rate_limit_rpm", "TRIGGER_RATE_LIMIT_RPM", 60),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getString(v, "log.level", "LOG_LEVEL", "info")),
			Format: strings.ToLower(getString(v, "log.format", "LOG_FORMAT", "json")),
		},
	}

	return cfg, nil
}

// ValidateForSync checks the sections the sync command depends on.
func (c *Config) ValidateForSync() error {
	for _, section := range []interface{}{c.Metricool, c.Notion, c.Sync, c.Log} {
		if err := validate.Struct(section); err != nil {
			return fmt.Errorf("invalid sync configuration: %w", err)
		}
	}
	return nil
}

// ValidateForTrigger checks the sections the webhook listener depends on.
func (c *Config) ValidateForTrigger() error {
	for _, section := range []interface{}{c.Trigger, c.Log} {
		if err := validate.Struct(section); err != nil {
			return fmt.Errorf("invalid trigger configuration: %w", err)
		}
	}
	return nil
}

// Addr returns the listen address for the webhook listener
func (c *TriggerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxRateLimitWait returns the cumulative Retry-After budget per request
func (c *MetricoolConfig) MaxRateLimitWait() time.Duration {
	return time.Duration(c.MaxRateLimitWaitSec) * time.Second
}

// Timeout returns the HTTP client timeout
func (c *MetricoolConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// InitialBackoff returns the first conflict retry delay
func (c *NotionConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMs) * time.Millisecond
}

// bindEnvVars explicitly binds environment variables to viper keys
func bindEnvVars(v *viper.Viper) {
	// Metricool
	v.BindEnv("metricool.token", "METRICOOL_TOKEN")
	v.BindEnv("metricool.user_id", "METRICOOL_USER_ID")
	v.BindEnv("metricool.blog_id", "METRICOOL_BLOG_ID")

	// Notion
	v.BindEnv("notion.token", "NOTION_TOKEN")
	v.BindEnv("notion.database_id", "NOTION_DATABASE_ID")

	// Sync
	v.BindEnv("sync.dry_run", "SYNC_DRY_RUN")

	// Trigger
	v.BindEnv("trigger.port", "PORT")
}

// getString gets a string value, preferring env var over config file
func getString(v *viper.Viper, viperKey, envKey, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if val := v.GetString(viperKey); val != "" {
		return val
	}
	return defaultVal
}

// getInt gets an int value, preferring env var over config file
func getInt(v *viper.Viper, viperKey, envKey string, defaultVal int) int {
	if val := os.Getenv(envKey); val != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return intVal
		}
	}
	if v.IsSet(viperKey) {
		return v.GetInt(viperKey)
	}
	return defaultVal
}

// getList reads a comma-separated env var or a YAML list
func getList(v *viper.Viper, viperKey, envKey string, defaultVal []string) []string {
	if val := os.Getenv(envKey); val != "" {
		return splitList(val)
	}
	if vals := v.GetStringSlice(viperKey); len(vals) > 0 {
		return vals
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
