package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/anansi/internal/flagx"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setArgs(t *testing.T, args ...string) {
	t.Helper()
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })
	os.Args = append([]string{"testbin"}, args...)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvAPIBase, EnvBackendBase, EnvAWSClientID, EnvAzureClientID, flagx.ConfigEnvVar} {
		t.Setenv(k, "")
	}
}

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "https://anansi-ilua.onrender.com", c.APIBaseURL)
	assert.Equal(t, "anansi.db", c.DatabasePath)
	assert.Equal(t, "127.0.0.1:8765", c.CallbackAddr)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 10*time.Minute, c.CloudLoginTimeout)
	assert.Equal(t, 10*time.Second, c.PollInterval)
	assert.Equal(t, 30*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, c.APIBaseURL, c.Backend())
}

func TestBackend(t *testing.T) {
	c := Config{APIBaseURL: "https://api", BackendBaseURL: "https://backend"}
	assert.Equal(t, "https://backend", c.Backend())
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	setArgs(t)

	cfg := LoadConfig()
	require.NotNil(t, cfg)

	var want Config
	want.LoadDefaults()
	assert.Empty(t, cmp.Diff(&want, cfg))
}

func TestParseEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAWSClientID, "aws-id")
	t.Setenv(EnvAzureClientID, "azure-id")
	t.Setenv(EnvBackendBase, "https://backend.example")

	var cfg Config
	cfg.LoadDefaults()
	parseEnv(&cfg)

	assert.Equal(t, "aws-id", cfg.AWSClientID)
	assert.Equal(t, "azure-id", cfg.AzureClientID)
	assert.Equal(t, "https://backend.example", cfg.BackendBaseURL)
	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
}

func TestParseJson(t *testing.T) {
	clearEnv(t)
	path := writeTempJSON(t, map[string]any{
		"api_base_url":        "https://api.example",
		"aws_oidc_client_id":  "aws-json",
		"cloud_login_timeout": "2m",
		"poll_interval":       5000000000,
	})

	t.Run("loads from flag", func(t *testing.T) {
		setArgs(t, "-config", path)
		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "https://api.example", cfg.APIBaseURL)
		assert.Equal(t, "aws-json", cfg.AWSClientID)
		assert.Equal(t, 2*time.Minute, cfg.CloudLoginTimeout)
		assert.Equal(t, 5*time.Second, cfg.PollInterval)
		assert.Equal(t, DefaultDatabasePath, cfg.DatabasePath, "absent fields keep earlier values")
	})

	t.Run("loads from env", func(t *testing.T) {
		setArgs(t)
		t.Setenv(flagx.ConfigEnvVar, path)
		cfg := &Config{}
		parseJson(cfg)
		assert.Equal(t, "https://api.example", cfg.APIBaseURL)
	})

	t.Run("no file leaves config untouched", func(t *testing.T) {
		setArgs(t)
		cfg := &Config{APIBaseURL: "keep"}
		parseJson(cfg)
		assert.Equal(t, "keep", cfg.APIBaseURL)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		setArgs(t, "-c", bad)
		require.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		setArgs(t, "-c", filepath.Join(t.TempDir(), "nope.json"))
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected Config
	}{
		{
			name: "all flags",
			args: []string{"-a", "https://a", "-b", "https://b", "-d", "/tmp/x.db", "-l", "127.0.0.1:0", "-v", "debug", "-i", "5"},
			expected: Config{
				APIBaseURL: "https://a", BackendBaseURL: "https://b", DatabasePath: "/tmp/x.db",
				CallbackAddr: "127.0.0.1:0", LogLevel: "debug", OnlineCheckInterval: 5 * time.Second,
			},
		},
		{
			name:     "unrelated flags are ignored",
			args:     []string{"-c", "cfg.json", "-a=https://a", "-x", "1"},
			expected: Config{APIBaseURL: "https://a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setArgs(t, tt.args...)
			cfg := &Config{}
			require.NotPanics(t, func() { parseFlags(cfg) })
			assert.Empty(t, cmp.Diff(&tt.expected, cfg))
		})
	}
}

func TestParseFlags_BadIntervalPanics(t *testing.T) {
	setArgs(t, "-i", "abc")
	require.Panics(t, func() { parseFlags(&Config{}) })
}

func TestLoadConfig_Precedence(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIBase, "https://env")
	t.Setenv(EnvAWSClientID, "aws-env")
	path := writeTempJSON(t, map[string]any{
		"api_base_url":       "https://json",
		"aws_oidc_client_id": "aws-json",
	})
	setArgs(t, "-c", path, "-a", "https://flag")

	cfg := LoadConfig()
	assert.Equal(t, "https://flag", cfg.APIBaseURL)
	assert.Equal(t, "aws-json", cfg.AWSClientID)
}
