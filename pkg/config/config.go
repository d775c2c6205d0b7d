// Package config loads and validates aircore host configuration: the
// identity a host presents on hubs, the data directory the core uses for
// its hash cache and download temp files, and the tunables for each
// subsystem (queue, upload, hub, share).
//
// Configuration sources, in order of precedence:
//  1. Environment variables (AIRCORE_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dcwire/aircore/internal/logger"
	"github.com/dcwire/aircore/pkg/hub"
	"github.com/dcwire/aircore/pkg/queue"
	"github.com/dcwire/aircore/pkg/share"
	"github.com/dcwire/aircore/pkg/upload"
)

// Config is the full set of tunables a host supplies to an aircore core
// instance.
//
// The core itself stays a library with no opinion on where this comes
// from; a host reads it with Load/MustLoad and passes the result to
// core.State.Initialize.
type Config struct {
	// Identity is presented to every hub this host connects to.
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`

	// DataDir roots the hash-verification cache database and any
	// on-disk staging the core needs. Created with 0700 permissions if
	// missing.
	DataDir string `mapstructure:"data_dir" validate:"required" yaml:"data_dir"`

	// Logging controls log output behavior.
	Logging logger.Config `mapstructure:"logging" yaml:"logging"`

	// Metrics controls the Prometheus metrics HTTP endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API controls the JSON-over-HTTP API server's listen address and
	// session token signing.
	API APIConfig `mapstructure:"api" yaml:"api"`

	// TLS configures the hub connection's client certificate, used for
	// ADCS (TLS-secured ADC) hubs that request client auth.
	TLS TLSConfig `mapstructure:"tls" yaml:"tls"`

	// Queue tunes the download queue and bundle engine.
	Queue queue.Config `mapstructure:"queue" yaml:"queue"`

	// Upload tunes the upload slot manager.
	Upload upload.Config `mapstructure:"upload" yaml:"upload"`

	// Hub tunes flood defense, reconnect timing and search pacing
	// shared by every hub connection this host opens.
	Hub hub.Config `mapstructure:"hub" yaml:"hub"`

	// Share tunes the content index's refresh and validation behavior.
	Share share.Config `mapstructure:"share" yaml:"share"`

	// Profiling controls continuous Pyroscope profiling of the running
	// host process.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// IdentityConfig is the identity a host presents on every hub it joins.
type IdentityConfig struct {
	// CID is the persistent client identifier advertised to ADC hubs
	// and derived into a PID for NMDC $MyINFO lock/key exchange. Left
	// empty, a host should generate and persist one before first
	// connecting; the core does not invent one on its own.
	CID string `mapstructure:"cid" yaml:"cid,omitempty"`

	// Nick is shown to other users; NMDC hubs additionally validate it
	// against their character restrictions.
	Nick string `mapstructure:"nick" validate:"required" yaml:"nick"`

	Description string `mapstructure:"description" yaml:"description,omitempty"`
	Email       string `mapstructure:"email" yaml:"email,omitempty"`
}

// MetricsConfig controls the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" validate:"required_if=Enabled true" yaml:"listen,omitempty"`
}

// APIConfig controls the JSON-over-HTTP API boundary. A host that never
// calls pkg/api leaves this disabled.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" validate:"required_if=Enabled true" yaml:"listen,omitempty"`

	// JWTSecret signs API session permission tokens. Required to be at
	// least 32 bytes so a host cannot accidentally ship a brute-forceable
	// secret.
	JWTSecret string `mapstructure:"jwt_secret" validate:"required_if=Enabled true,omitempty,min=32" yaml:"jwt_secret,omitempty"`

	// OperatorUsername names the single local account the API accepts
	// logins for. aircored fronts one peer, not a multi-user system.
	OperatorUsername string `mapstructure:"operator_username" validate:"required_if=Enabled true" yaml:"operator_username,omitempty"`

	// OperatorPasswordHash is a bcrypt hash produced by "aircored passwd",
	// never a plaintext password. Config files are routinely copied
	// around and checked into host-specific dotfile repos, so only the
	// hash is ever persisted here.
	OperatorPasswordHash string `mapstructure:"operator_password_hash" validate:"required_if=Enabled true" yaml:"operator_password_hash,omitempty"`

	// SessionTTL bounds how long an issued session token is honored.
	SessionTTL time.Duration `mapstructure:"session_ttl" validate:"required,gt=0" yaml:"session_ttl"`
}

// ProfilingConfig controls continuous CPU/memory profiling of the host
// process via Pyroscope. Off by default: it is a production diagnostic
// aid, not something a development host needs.
type ProfilingConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Server  string `mapstructure:"server" validate:"required_if=Enabled true" yaml:"server,omitempty"`

	// ProfileTypes selects which sample types to collect. Empty means
	// Pyroscope's own default set (cpu + in-use memory).
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types,omitempty"`
}

// TLSConfig configures client TLS for ADCS hub connections.
type TLSConfig struct {
	CertFile           string `mapstructure:"cert_file" yaml:"cert_file,omitempty"`
	KeyFile            string `mapstructure:"key_file" yaml:"key_file,omitempty"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// Load loads configuration from file, environment and defaults.
//
// configPath may be empty, in which case the default location
// ($XDG_CONFIG_HOME/aircore/config.yaml, falling back to ~/.config) is
// used. A missing config file is not an error: Load returns
// GetDefaultConfig() in that case.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, returning a host-actionable error if no
// config file exists at an explicitly requested path.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Create one first:\n"+
				"  aircored init\n\n"+
				"Or specify a custom config file:\n"+
				"  aircored <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML, creating parent directories as
// needed.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper wires environment variable overrides (AIRCORE_*, with "."
// replaced by "_" so AIRCORE_UPLOAD_DELAY_GRACE_DURATION overrides
// upload.delay_grace_duration) and the YAML config file search path.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("AIRCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks composes the mapstructure decode hooks this config
// needs beyond viper's defaults: time.Duration parsing from human-readable
// strings like "30s".
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(durationDecodeHook())
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/aircore, falling back to
// ~/.config/aircore, or "." if the home directory cannot be resolved.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "aircore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "aircore")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path, exposed for the
// init command.
func GetConfigDir() string {
	return getConfigDir()
}
