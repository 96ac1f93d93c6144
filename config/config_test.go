package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena/common"
	"github.com/codearena/arena/common/env"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arena.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func reloadEnv(t *testing.T) {
	t.Helper()
	env.Load("")
	t.Cleanup(func() { env.Load("") })
}

func TestLoadDefaults(t *testing.T) {
	reloadEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, common.DefaultAPIURL, cfg.API.BaseURL)
	assert.Equal(t, time.Second, cfg.Poll.Interval)
	assert.Equal(t, 5*time.Minute, cfg.PollMaxDuration())
	assert.Zero(t, cfg.Poll.MaxAttempts)
}

func TestLoadFile(t *testing.T) {
	reloadEnv(t)
	path := writeConfig(t, `
api:
  base_url: https://arena.example.com
  timeout: 10s
  max_retries: 4
poll:
  interval: 500ms
  max_attempts: 20
  max_duration: -1s
log:
  level: debug
telemetry:
  endpoint: otel.example.com:4317
  traces: true
  sample_rate: 0.5
sentry:
  dsn: https://key@sentry.example.com/1
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://arena.example.com", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 4, cfg.API.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, 20, cfg.Poll.MaxAttempts)
	assert.Zero(t, cfg.PollMaxDuration(), "negative max_duration disables the bound")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "otel.example.com:4317", cfg.Telemetry.Endpoint)
	assert.True(t, cfg.Telemetry.TracesEnabled)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
	assert.Equal(t, "https://key@sentry.example.com/1", cfg.Sentry.DSN)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv(env.APIURL, "http://127.0.0.1:9999")
	t.Setenv(env.PollInterval, "2s")
	reloadEnv(t)

	cfg, err := Load(writeConfig(t, "api:\n  base_url: https://arena.example.com\npoll:\n  interval: 500ms\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.API.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
}

func TestLoadInvalid(t *testing.T) {
	reloadEnv(t)
	tests := map[string]string{
		"bad yaml":         "api: [",
		"bad scheme":       "api:\n  base_url: ftp://arena.example.com\n",
		"negative retries": "poll:\n  max_attempts: -1\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}
