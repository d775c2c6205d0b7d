package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcwire/aircore/internal/logger"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestApplyDefaults_API(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, "127.0.0.1:8620", cfg.API.Listen)
	assert.NotZero(t, cfg.API.SessionTTL)
}

func TestApplyDefaults_Subsystems(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, 3, cfg.Queue.DownloadSlots)
	assert.Equal(t, 3, cfg.Upload.StandardSlots)
	assert.Equal(t, 1, cfg.Share.RefreshWorkers)
	assert.NotZero(t, cfg.Hub.FloodPeriod)
}

func TestApplyDefaults_ShareHashCacheDir(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/aircore"}
	ApplyDefaults(cfg)

	assert.Equal(t, "/var/lib/aircore/hashcache", cfg.Share.HashCacheDir)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: logger.Config{Level: "DEBUG", Format: "json", Output: "/var/log/aircore.log"},
	}
	cfg.Queue.DownloadSlots = 10

	ApplyDefaults(cfg)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/log/aircore.log", cfg.Logging.Output)
	assert.Equal(t, 10, cfg.Queue.DownloadSlots)
	// Untouched fields in the same struct still get their defaults.
	assert.NotZero(t, cfg.Queue.ChunkSize)
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, Validate(cfg))
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.NotEmpty(t, cfg.Logging.Level)
	assert.NotEmpty(t, cfg.Identity.Nick)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Share.HashCacheDir)
}
