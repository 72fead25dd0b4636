// Package config loads process configuration from the environment.
//
// Every key is read with the INBOXGATE_ prefix, for example
// INBOXGATE_DATABASE_URL. A .env file in the working directory is loaded
// first when present; real environment variables take precedence over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix.
const Prefix = "INBOXGATE"

// Config is the process configuration.
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" default:"inboxgate.db"`

	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `envconfig:"GOOGLE_REDIRECT_URL" default:"http://localhost:8080/oauth/callback"`

	PolicyFile  string `envconfig:"POLICY_FILE"`
	DefaultUser string `envconfig:"DEFAULT_USER"`
	APIToken    string `envconfig:"API_TOKEN"`

	ToolTimeout   time.Duration `envconfig:"TOOL_TIMEOUT" default:"30s"`
	ApprovalTTL   time.Duration `envconfig:"APPROVAL_TTL" default:"24h"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`

	HTTPAddr       string `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsAddr    string `envconfig:"METRICS_ADDR" default:":9090"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile reads the dotenv file at path, then the environment. A missing
// file is skipped; a malformed one is an error.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return FromEnv()
}

// FromEnv reads the configuration from the environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s_DATABASE_URL must not be empty", Prefix)
	}
	if c.ToolTimeout < 0 {
		return fmt.Errorf("%s_TOOL_TIMEOUT must not be negative", Prefix)
	}
	if c.ApprovalTTL < 0 {
		return fmt.Errorf("%s_APPROVAL_TTL must not be negative", Prefix)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%s_SWEEP_INTERVAL must be positive", Prefix)
	}
	return nil
}

// GoogleConfigured reports whether OAuth client credentials are set.
func (c *Config) GoogleConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}
