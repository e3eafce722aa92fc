package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Extraction configuration
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Custody provider configuration
	CustodyAPIURL    string
	CustodyAPIKey    string
	CustodyAPISecret string

	// Dashboard API configuration
	DashboardToken string

	// Execution configuration
	SettlementTimeout time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Extraction configuration
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required"))
	}
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini")

	// Custody provider configuration
	cfg.CustodyAPIURL = os.Getenv("CUSTODY_API_URL")
	if cfg.CustodyAPIURL == "" {
		errs = append(errs, fmt.Errorf("CUSTODY_API_URL is required"))
	}
	cfg.CustodyAPIKey = os.Getenv("CUSTODY_API_KEY")
	if cfg.CustodyAPIKey == "" {
		errs = append(errs, fmt.Errorf("CUSTODY_API_KEY is required"))
	}
	cfg.CustodyAPISecret = os.Getenv("CUSTODY_API_SECRET")
	if cfg.CustodyAPISecret == "" {
		errs = append(errs, fmt.Errorf("CUSTODY_API_SECRET is required"))
	}

	// Dashboard API configuration
	cfg.DashboardToken = os.Getenv("DASHBOARD_TOKEN")
	if cfg.DashboardToken == "" {
		errs = append(errs, fmt.Errorf("DASHBOARD_TOKEN is required"))
	}

	// Execution configuration
	settlementTimeout, err := parseDuration("SETTLEMENT_TIMEOUT", "2m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SettlementTimeout = settlementTimeout
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.OpenAIAPIKey == "" {
		errs = append(errs, fmt.Errorf("OpenAIAPIKey is required"))
	}

	if c.OpenAIModel == "" {
		errs = append(errs, fmt.Errorf("OpenAIModel is required"))
	}

	if c.CustodyAPIURL == "" {
		errs = append(errs, fmt.Errorf("CustodyAPIURL is required"))
	}

	if c.CustodyAPIKey == "" {
		errs = append(errs, fmt.Errorf("CustodyAPIKey is required"))
	}

	if c.CustodyAPISecret == "" {
		errs = append(errs, fmt.Errorf("CustodyAPISecret is required"))
	}

	if c.DashboardToken == "" {
		errs = append(errs, fmt.Errorf("DashboardToken is required"))
	}

	if c.SettlementTimeout < time.Second {
		errs = append(errs, fmt.Errorf("SettlementTimeout must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}
