package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_MissingNick(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Identity.Nick = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for missing identity nick")
	}
}

func TestValidate_MissingDataDir(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.DataDir = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for missing data dir")
	}
}

func TestValidate_APIEnabledRequiresListenAndSecret(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Enabled = true
	cfg.API.Listen = ""
	cfg.API.JWTSecret = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for enabled API missing listen/secret")
	}
}

func TestValidate_APIDisabledAllowsEmptySecret(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Enabled = false
	cfg.API.Listen = ""
	cfg.API.JWTSecret = ""

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected disabled API to skip listen/secret requirement, got: %v", err)
	}
}

func TestValidate_JWTSecretTooShort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Enabled = true
	cfg.API.Listen = "127.0.0.1:8620"
	cfg.API.JWTSecret = "short"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for short JWT secret")
	}
}

func TestValidate_MetricsEnabledRequiresListen(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Listen = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for enabled metrics missing listen address")
	}
}

func TestValidate_QueueDownloadSlotsRequired(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Queue.DownloadSlots = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for zero download slots")
	}
}

func TestValidate_HubReconnectBoundsOrdered(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Hub.ReconnectDelayMin = 10 * cfg.Hub.ReconnectDelayMax

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error when ReconnectDelayMax is below ReconnectDelayMin")
	}
}

func TestValidate_LogLevelAcceptsBothCases(t *testing.T) {
	for _, level := range []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"} {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}
}

func TestApplyDefaults_DoesNotNormalizeCase(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "info"
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected ApplyDefaults to leave an already-set level untouched, got %q", cfg.Logging.Level)
	}
}
