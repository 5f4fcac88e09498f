package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 90.0, cfg.Matcher.Threshold)
	assert.Equal(t, 100, cfg.Hub.HistoryCap)
	assert.Equal(t, 3*time.Second, cfg.Streaming.ConnectTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Streaming.SimulationDelay)
	assert.Equal(t, time.Hour, cfg.Registry.Interval)
	assert.Equal(t, time.Minute, cfg.Registry.Backoff)
	assert.Len(t, cfg.Generator.Streams, 5)
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFrom_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
environment: staging
matcher:
  threshold: 85
streaming:
  redis_url: localhost:6390
  simulation_delay: 50ms
generator:
  streams:
    transactions:
      topic: transaction-stream
      interval: 1s
      batch_size: 10
      priority: high
      enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("SCREENING_HUB__HISTORY_CAP", "25")
	t.Setenv("SCREENING_LOG_LEVEL", "debug")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 85.0, cfg.Matcher.Threshold)
	assert.Equal(t, "localhost:6390", cfg.Streaming.RedisURL)
	assert.Equal(t, 50*time.Millisecond, cfg.Streaming.SimulationDelay)
	assert.Equal(t, 25, cfg.Hub.HistoryCap)
	assert.Equal(t, "debug", cfg.LogLevel)

	tx := cfg.Generator.Streams["transactions"]
	assert.Equal(t, time.Second, tx.Interval)
	assert.Equal(t, 10, tx.BatchSize)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above 100", func(c *Config) { c.Matcher.Threshold = 120 }},
		{"near miss above threshold", func(c *Config) { c.Matcher.NearMissThreshold = 95 }},
		{"zero history cap", func(c *Config) { c.Hub.HistoryCap = 0 }},
		{"registry enabled without url", func(c *Config) {
			c.Registry.Enabled = true
			c.Registry.BaseURL = ""
		}},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"stream without topic", func(c *Config) {
			c.Generator.Streams["broken"] = StreamConfig{Interval: time.Second, BatchSize: 1}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
