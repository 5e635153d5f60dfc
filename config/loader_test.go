package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-relay/types"
)

func TestDefaults(t *testing.T) {
	config := Defaults()

	assert.Equal(t, "sai-relay", config.Name)
	assert.Equal(t, time.Second, config.Scheduler.MinimumSpacing)
	assert.Equal(t, 1, config.Scheduler.MaxConcurrent)
	assert.Equal(t, 6*time.Hour, config.TTL.Default)
	assert.True(t, config.Cache.Enabled)
	assert.Equal(t, "memory", config.Cache.Persistent.Type)
}

func TestLoader_LoadFromFile(t *testing.T) {
	configYAML := `
name: test-relay
scheduler:
  max_concurrent: 3
cache:
  enabled: true
  memory:
    max_entries: 500
    cleanup_interval: 1m
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0644))

	config, err := NewLoader().LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "test-relay", config.Name)
	assert.Equal(t, 3, config.Scheduler.MaxConcurrent)
	assert.Equal(t, 500, config.Cache.Memory.MaxEntries)
	assert.Equal(t, "1m", config.Cache.Memory.CleanupInterval)

	// Unset keys keep their defaults.
	assert.Equal(t, time.Second, config.Scheduler.MinimumSpacing)
	assert.Equal(t, 6*time.Hour, config.TTL.Default)
}

func TestLoader_FileNotFound(t *testing.T) {
	_, err := NewLoader().LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = NewLoader().LoadFromFile("")
	assert.ErrorIs(t, err, types.ErrConfigNotFound)
}

func TestLoader_ValidateRejectsBadConcurrency(t *testing.T) {
	config := Defaults()
	config.Scheduler.MaxConcurrent = 0

	err := NewLoader().Validate(config)
	assert.Error(t, err)
}

func TestManager_FromConfig(t *testing.T) {
	manager, err := NewManagerFromConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "sai-relay", manager.GetConfig().Name)

	custom := Defaults()
	custom.Name = "custom-relay"

	manager, err = NewManagerFromConfig(custom)
	require.NoError(t, err)
	assert.Equal(t, "custom-relay", manager.GetConfig().Name)
}
