package config

import (
	"os"

	"github.com/joho/godotenv"
)

const (
	EnvAWSClientID   = "ANANSI_AWS_OIDC_CLIENT_ID"
	EnvAzureClientID = "ANANSI_AZURE_OIDC_CLIENT_ID"
	EnvBackendBase   = "ANANSI_BACKEND_BASE"
	EnvAPIBase       = "ANANSI_API_BASE"
)

// parseEnv overlays Config with environment variables. A .env file in the
// working directory is loaded first if present; variables already set in
// the process environment win over the file.
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	setFromEnv(&cfg.APIBaseURL, EnvAPIBase)
	setFromEnv(&cfg.BackendBaseURL, EnvBackendBase)
	setFromEnv(&cfg.AWSClientID, EnvAWSClientID)
	setFromEnv(&cfg.AzureClientID, EnvAzureClientID)
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
