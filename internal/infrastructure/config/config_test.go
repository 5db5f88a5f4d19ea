package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.False(t, cfg.Server.H2C)

	// Idle config
	assert.Equal(t, 30*time.Second, cfg.Idle.Threshold)
	assert.Equal(t, 5*time.Second, cfg.Idle.VisibilityGrace)
	assert.Equal(t, time.Second, cfg.Idle.TickInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Idle.DebounceWindow)

	// Revalidation config
	assert.Equal(t, time.Second, cfg.Revalidation.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Revalidation.CapDelay)
	assert.Equal(t, 3, cfg.Revalidation.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Revalidation.FocusThrottle)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	assert.NoError(t, cfg.Validate())
}

// unsetEnv clears keys for the test and restores them afterwards.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if prev, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { os.Setenv(key, prev) })
		}
	}
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                      "9000",
		"HOST":                      "127.0.0.1",
		"SERVER_H2C":                "true",
		"LOG_LEVEL":                 "debug",
		"LOG_DEV":                   "true",
		"RATE_LIMIT_RPS":            "500",
		"RATE_LIMIT_BURST":          "1000",
		"RATE_LIMIT_ENABLED":        "false",
		"IDLE_THRESHOLD":            "1m",
		"IDLE_VISIBILITY_GRACE":     "2s",
		"REVALIDATE_MAX_RETRIES":    "5",
		"REVALIDATE_FOCUS_THROTTLE": "10s",
		"PRODUCER_TIMEOUT":          "250ms",
		"RENDERER_ENABLED":          "false",
		"FETCH_BASE_URL":            "http://upstream:9000",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.True(t, cfg.Server.H2C)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, time.Minute, cfg.Idle.Threshold)
	assert.Equal(t, 2*time.Second, cfg.Idle.VisibilityGrace)
	assert.Equal(t, 5, cfg.Revalidation.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Revalidation.FocusThrottle)
	assert.Equal(t, 250*time.Millisecond, cfg.Producer.Timeout)
	assert.False(t, cfg.Renderer.Enabled)
	assert.Equal(t, "http://upstream:9000", cfg.Fetch.BaseURL)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	unsetEnv(t, "IDLE_THRESHOLD")
	t.Setenv("IDLE_THRESHOLD", "soon")

	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, 30*time.Second, cfg.Idle.Threshold)
}

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "coordinator.yaml",
			content: `IDLE_THRESHOLD: 45s
REVALIDATE_MAX_RETRIES: 2
RENDERER_ENABLED: false
PORT: "7000"
`,
		},
		{
			name: "toml",
			file: "coordinator.toml",
			content: `IDLE_THRESHOLD = "45s"
REVALIDATE_MAX_RETRIES = 2
RENDERER_ENABLED = false
PORT = "7000"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetEnv(t, "IDLE_THRESHOLD", "REVALIDATE_MAX_RETRIES", "RENDERER_ENABLED", "PORT")
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			cfg, err := LoadFile(path)
			require.NoError(t, err)

			assert.Equal(t, 45*time.Second, cfg.Idle.Threshold)
			assert.Equal(t, 2, cfg.Revalidation.MaxRetries)
			assert.False(t, cfg.Renderer.Enabled)
			assert.Equal(t, "7000", cfg.Server.Port)

			_, leaked := os.LookupEnv("IDLE_THRESHOLD")
			assert.False(t, leaked, "file keys must not stay in the environment")
		})
	}
}

func TestEnvironmentWinsOverFile(t *testing.T) {
	unsetEnv(t, "HOST")
	path := filepath.Join(t.TempDir(), "coordinator.yml")
	require.NoError(t, os.WriteFile(path, []byte("PORT: \"7000\"\nHOST: 10.0.0.1\n"), 0o600))
	t.Setenv("PORT", "9100")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "10.0.0.1", cfg.Server.Host)
	assert.Equal(t, "9100", os.Getenv("PORT"))
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	ini := filepath.Join(dir, "coordinator.ini")
	require.NoError(t, os.WriteFile(ini, []byte("PORT=1"), 0o600))
	_, err = LoadFile(ini)
	assert.ErrorContains(t, err, "unsupported")

	nested := filepath.Join(dir, "nested.yaml")
	require.NoError(t, os.WriteFile(nested, []byte("idle:\n  threshold: 5s\n"), 0o600))
	_, err = LoadFile(nested)
	assert.ErrorContains(t, err, "nested")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default ok", func(*Config) {}, ""},
		{"zero threshold", func(c *Config) { c.Idle.Threshold = 0 }, "IDLE_THRESHOLD"},
		{"cap below base", func(c *Config) { c.Revalidation.CapDelay = 500 * time.Millisecond }, "REVALIDATE_CAP_DELAY"},
		{"negative retries", func(c *Config) { c.Revalidation.MaxRetries = -1 }, "REVALIDATE_MAX_RETRIES"},
		{"zero producer timeout", func(c *Config) { c.Producer.Timeout = 0 }, "PRODUCER_TIMEOUT"},
		{"bad rate limit", func(c *Config) { c.RateLimit.RequestsPerSecond = 0 }, "RATE_LIMIT_RPS"},
		{"rate limit disabled", func(c *Config) {
			c.RateLimit.Enabled = false
			c.RateLimit.RequestsPerSecond = 0
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
