package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/anansi/internal/flagx"
	"github.com/dmitrijs2005/anansi/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// accept "10s" as well as integer nanoseconds. Absent fields keep the value
// from earlier sources.
type JsonConfig struct {
	APIBaseURL          string         `json:"api_base_url"`
	BackendBaseURL      string         `json:"backend_base_url"`
	DatabasePath        string         `json:"database_path"`
	CallbackAddr        string         `json:"callback_addr"`
	LogLevel            string         `json:"log_level"`
	AWSClientID         string         `json:"aws_oidc_client_id"`
	AzureClientID       string         `json:"azure_oidc_client_id"`
	CloudLoginTimeout   timex.Duration `json:"cloud_login_timeout"`
	PollInterval        timex.Duration `json:"poll_interval"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c/-config (or ANANSI_CONFIG). It panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	overlay(&cfg.APIBaseURL, jc.APIBaseURL)
	overlay(&cfg.BackendBaseURL, jc.BackendBaseURL)
	overlay(&cfg.DatabasePath, jc.DatabasePath)
	overlay(&cfg.CallbackAddr, jc.CallbackAddr)
	overlay(&cfg.LogLevel, jc.LogLevel)
	overlay(&cfg.AWSClientID, jc.AWSClientID)
	overlay(&cfg.AzureClientID, jc.AzureClientID)
	if jc.CloudLoginTimeout.Duration > 0 {
		cfg.CloudLoginTimeout = jc.CloudLoginTimeout.Duration
	}
	if jc.PollInterval.Duration > 0 {
		cfg.PollInterval = jc.PollInterval.Duration
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
