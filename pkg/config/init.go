package config

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"os"
	"path/filepath"
)

// InitConfig writes a starter configuration file to the default location,
// returning the path written. It fails if a file already exists there
// unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a starter configuration file to path, generating
// a fresh identity CID and API signing secret so the file is immediately
// loadable without further edits. It fails if path already exists unless
// force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cid, err := generateCID()
	if err != nil {
		return fmt.Errorf("failed to generate identity: %w", err)
	}
	secret, err := generateSecret()
	if err != nil {
		return fmt.Errorf("failed to generate API secret: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.Identity.CID = cid
	cfg.API.JWTSecret = secret

	return SaveConfig(cfg, path)
}

// generateCID returns a fresh 192-bit ADC client identifier in its base32
// textual form, the same unpadded alphabet used for TTH values on the
// wire.
func generateCID() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// generateSecret returns a random 32-byte API session-token signing
// secret in its base32 textual form.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}
