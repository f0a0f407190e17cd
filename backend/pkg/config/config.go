package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	apperrors "bizgraph-bot/backend/pkg/errors"
)

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

// Neo4jConfig holds graph database settings
type Neo4jConfig struct {
	URI      string `envconfig:"NEO4J_URI" default:"bolt://localhost:7687"`
	User     string `envconfig:"NEO4J_USER" default:"neo4j"`
	Password string `envconfig:"NEO4J_PASSWORD" default:"password"`
	Database string `envconfig:"NEO4J_DATABASE" default:"neo4j"`
}

// LLMConfig holds settings for the OpenAI-compatible endpoint
type LLMConfig struct {
	BaseURL     string        `envconfig:"LLM_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta/openai"`
	APIKey      string        `envconfig:"LLM_API_KEY"`
	Model       string        `envconfig:"LLM_MODEL" default:"gemini-2.0-flash"`
	Temperature float32       `envconfig:"LLM_TEMPERATURE" default:"0.2"`
	Timeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `envconfig:"WEBHOOK_URL"`
	Listen string `envconfig:"WEBHOOK_LISTEN" default:"0.0.0.0"`
	Port   int    `envconfig:"WEBHOOK_PORT" default:"8443"`
}

// TelegramConfig holds Telegram bot settings
type TelegramConfig struct {
	Token           string        `envconfig:"TELEGRAM_BOT_TOKEN"`
	RunMode         string        `envconfig:"TELEGRAM_RUN_MODE" default:"longpoll"`
	LongPollTimeout time.Duration `envconfig:"TELEGRAM_LONGPOLL_TIMEOUT" default:"10s"`
	Webhook         WebhookConfig
	// AllowedUserIDs restricts the bot to these senders; empty allows everyone
	AllowedUserIDs    []int64       `envconfig:"TELEGRAM_ALLOWED_USERS"`
	RateLimitInterval time.Duration `envconfig:"TELEGRAM_RATE_LIMIT" default:"1s"`
	Workers           int           `envconfig:"TELEGRAM_WORKERS" default:"16"`
}

// MemoryConfig holds chat session memory settings
type MemoryConfig struct {
	// Path of the bbolt file; empty keeps sessions in process memory
	Path          string `envconfig:"MEMORY_PATH" default:"data/sessions.db"`
	HistoryLimit  int    `envconfig:"MEMORY_HISTORY_LIMIT" default:"10"`
	ContextTurns  int    `envconfig:"MEMORY_CONTEXT_TURNS" default:"5"`
	MaxSessions   int    `envconfig:"MEMORY_MAX_SESSIONS" default:"100"`
	RetentionDays int    `envconfig:"MEMORY_RETENTION_DAYS" default:"30"`
	PruneSchedule string `envconfig:"MEMORY_PRUNE_SCHEDULE" default:"@daily"`
}

// LedgerConfig holds the optional Postgres mirror settings
type LedgerConfig struct {
	DSN string `envconfig:"LEDGER_DSN"`
}

// LogConfig holds log sink settings
type LogConfig struct {
	File       string `envconfig:"LOG_FILE"`
	MaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
	MaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`
	MaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"14"`
}

// Config holds all application configuration
type Config struct {
	// App
	Port string `envconfig:"PORT" default:"8080"`
	Env  string `envconfig:"ENV" default:"development"`

	Neo4j    Neo4jConfig
	LLM      LLMConfig
	Telegram TelegramConfig
	Memory   MemoryConfig
	Ledger   LedgerConfig
	Log      LogConfig

	ProfilePath string `envconfig:"BUSINESS_PROFILE" default:"profile.yaml"`
	// AllowGraphWrites lets generated Cypher create or update data
	AllowGraphWrites bool `envconfig:"ALLOW_GRAPH_WRITES" default:"true"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration values are set and normalizes the run mode
func (c *Config) Validate() error {
	if c.Neo4j.URI == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_URI")
	}
	if c.Neo4j.User == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_USER")
	}
	if c.LLM.BaseURL == "" {
		return apperrors.NewConfigMissingRequired("LLM_BASE_URL")
	}
	if c.LLM.Model == "" {
		return apperrors.NewConfigMissingRequired("LLM_MODEL")
	}

	rm := strings.ToLower(strings.TrimSpace(c.Telegram.RunMode))
	switch rm {
	case "", "polling", RunModeLongpoll:
		rm = RunModeLongpoll
	case RunModeWebhook:
		if strings.TrimSpace(c.Telegram.Webhook.URL) == "" {
			return apperrors.NewConfigValidationFailed("WEBHOOK_URL", "required when TELEGRAM_RUN_MODE is webhook")
		}
		if c.Telegram.Webhook.Port <= 0 {
			return apperrors.NewConfigValidationFailed("WEBHOOK_PORT", "must be > 0")
		}
	default:
		return apperrors.NewConfigValidationFailed("TELEGRAM_RUN_MODE", fmt.Sprintf("invalid value %q; allowed: webhook, longpoll", c.Telegram.RunMode))
	}
	c.Telegram.RunMode = rm

	if c.Telegram.Workers <= 0 {
		return apperrors.NewConfigValidationFailed("TELEGRAM_WORKERS", "must be > 0")
	}
	if c.Memory.MaxSessions < 0 || c.Memory.RetentionDays < 0 {
		return apperrors.NewConfigValidationFailed("MEMORY", "limits must be >= 0")
	}
	// Telegram token and LLM API key are optional for development
	return nil
}

// LedgerEnabled reports whether the Postgres mirror is configured
func (c *Config) LedgerEnabled() bool {
	return strings.TrimSpace(c.Ledger.DSN) != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
