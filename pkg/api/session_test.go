package api

import (
	"strings"
	"testing"
	"time"

	"github.com/dcwire/aircore/pkg/config"
)

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled:    true,
		Listen:     "127.0.0.1:0",
		JWTSecret:  strings.Repeat("a", 32),
		SessionTTL: time.Minute,
	}
}

func TestJWTServiceIssueAndValidate(t *testing.T) {
	svc, err := NewJWTService(testAPIConfig())
	if err != nil {
		t.Fatalf("NewJWTService failed: %v", err)
	}

	token, expiresAt, err := svc.Issue("operator")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if expiresAt.Before(time.Now()) {
		t.Error("expected expiry in the future")
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.Subject != "operator" {
		t.Errorf("expected subject 'operator', got %q", claims.Subject)
	}
}

func TestJWTServiceRejectsShortSecret(t *testing.T) {
	cfg := testAPIConfig()
	cfg.JWTSecret = "too-short"
	if _, err := NewJWTService(cfg); err != ErrInvalidSecretLength {
		t.Errorf("expected ErrInvalidSecretLength, got %v", err)
	}
}

func TestJWTServiceRejectsTamperedToken(t *testing.T) {
	svc, err := NewJWTService(testAPIConfig())
	if err != nil {
		t.Fatalf("NewJWTService failed: %v", err)
	}
	token, _, err := svc.Issue("operator")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := svc.Validate(token + "x"); err == nil {
		t.Error("expected tampered token to fail validation")
	}
}

func TestJWTServiceRejectsExpiredToken(t *testing.T) {
	cfg := testAPIConfig()
	cfg.SessionTTL = time.Nanosecond
	svc, err := NewJWTService(cfg)
	if err != nil {
		t.Fatalf("NewJWTService failed: %v", err)
	}
	token, _, err := svc.Issue("operator")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	time.Sleep(time.Millisecond)

	if _, err := svc.Validate(token); err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestCredentialsVerify(t *testing.T) {
	creds, err := NewCredentials("operator", "correct-horse-battery")
	if err != nil {
		t.Fatalf("NewCredentials failed: %v", err)
	}

	if !creds.Verify("operator", "correct-horse-battery") {
		t.Error("expected matching credentials to verify")
	}
	if creds.Verify("operator", "wrong-password") {
		t.Error("expected wrong password to fail verification")
	}
	if creds.Verify("someone-else", "correct-horse-battery") {
		t.Error("expected wrong username to fail verification")
	}
}

func TestNewCredentialsFromHash(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	creds, err := NewCredentialsFromHash("operator", hash)
	if err != nil {
		t.Fatalf("NewCredentialsFromHash failed: %v", err)
	}
	if !creds.Verify("operator", "correct-horse-battery") {
		t.Error("expected credentials built from a hash to verify the original password")
	}
}

func TestNewCredentialsFromHashRejectsMalformed(t *testing.T) {
	if _, err := NewCredentialsFromHash("operator", "not-a-bcrypt-hash"); err == nil {
		t.Error("expected a malformed hash to be rejected")
	}
}

func TestValidatePasswordBounds(t *testing.T) {
	if err := ValidatePassword("short"); err == nil {
		t.Error("expected short password to be rejected")
	}
	if err := ValidatePassword(strings.Repeat("a", MaxPasswordLength+1)); err == nil {
		t.Error("expected overlong password to be rejected")
	}
	if err := ValidatePassword(strings.Repeat("a", MinPasswordLength)); err != nil {
		t.Errorf("expected minimum-length password to be accepted, got: %v", err)
	}
}
