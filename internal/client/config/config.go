package config

import (
	"time"
)

const (
	DefaultAPIBaseURL   = "https://anansi-ilua.onrender.com"
	DefaultDatabasePath = "anansi.db"
	DefaultCallbackAddr = "127.0.0.1:8765"
	DefaultLogLevel     = "info"
)

// Config holds runtime settings for the Anansi CLI.
type Config struct {
	// APIBaseURL prefixes the account, compute and health endpoints.
	APIBaseURL string
	// BackendBaseURL prefixes the marketplace endpoints. Empty means APIBaseURL.
	BackendBaseURL string
	DatabasePath   string
	// CallbackAddr is the host:port the login callback server listens on.
	CallbackAddr string
	LogLevel     string

	AWSClientID   string
	AzureClientID string

	CloudLoginTimeout time.Duration
	PollInterval      time.Duration

	// OnlineCheckInterval is how often the CLI probes server health.
	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = DefaultAPIBaseURL
	c.BackendBaseURL = ""
	c.DatabasePath = DefaultDatabasePath
	c.CallbackAddr = DefaultCallbackAddr
	c.LogLevel = DefaultLogLevel
	c.CloudLoginTimeout = 10 * time.Minute
	c.PollInterval = 10 * time.Second
	c.OnlineCheckInterval = 30 * time.Second
}

// Backend returns BackendBaseURL, falling back to APIBaseURL.
func (c *Config) Backend() string {
	if c.BackendBaseURL != "" {
		return c.BackendBaseURL
	}
	return c.APIBaseURL
}

// LoadConfig constructs a Config, applies defaults, then overlays the
// environment (including a .env file), a JSON file and command-line flags.
// Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
