package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":5000"`

	// Storage
	DBPath       string        `envconfig:"DB_PATH" default:"builder.db"`
	RunRetention time.Duration `envconfig:"RUN_RETENTION" default:"720h"` // finished run records older than this are pruned

	// Auth: "jwt" verifies Bearer/cookie tokens, "none" trusts X-Owner-ID (local only)
	AuthMode  string        `envconfig:"AUTH_MODE" default:"jwt"`
	JWTSecret string        `envconfig:"JWT_SECRET"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"720h"`

	// HTTP surface
	CORSOrigins    string `envconfig:"CORS_ORIGINS"`
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"40"`

	// Generation provider
	LLMProvider     string `envconfig:"LLM_PROVIDER" default:"gemini"` // "gemini", "anthropic" or "fake" (offline, deterministic)
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	GeminiModel     string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-5"`
	PromptsFile     string `envconfig:"PROMPTS_FILE"` // YAML override of the built-in prompt templates

	// Orchestrator
	ProviderCallTimeout time.Duration `envconfig:"PROVIDER_CALL_TIMEOUT" default:"90s"`
	ProviderRetries     int           `envconfig:"PROVIDER_RETRIES" default:"3"`
	RecoverInterrupted  bool          `envconfig:"RECOVER_INTERRUPTED" default:"true"`
	ShutdownTimeout     time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// IsDevelopment reports whether the process runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// ProviderAPIKey returns the API key of the selected LLM provider.
func (c *Config) ProviderAPIKey() string {
	if strings.EqualFold(c.LLMProvider, "anthropic") {
		return c.AnthropicAPIKey
	}
	return c.GeminiAPIKey
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.AuthMode) {
	case "none":
	case "jwt":
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("invalid AUTH_MODE %q, expected jwt or none", c.AuthMode)
	}

	switch strings.ToLower(c.LLMProvider) {
	case "gemini", "anthropic", "fake":
	default:
		return fmt.Errorf("invalid LLM_PROVIDER %q, expected gemini, anthropic or fake", c.LLMProvider)
	}

	if c.ProviderCallTimeout <= 0 {
		return fmt.Errorf("PROVIDER_CALL_TIMEOUT must be positive")
	}
	if c.ProviderRetries < 1 {
		return fmt.Errorf("PROVIDER_RETRIES must be at least 1")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
