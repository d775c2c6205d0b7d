// Package api exposes the content index, download queue, upload manager
// and hub registry held by pkg/core.State through a thin JSON boundary: a
// chi router behind a JWT-authenticated session, with local credentials
// hashed by bcrypt and long-running requests answered through a uuid-keyed
// continuation map instead of blocking the serving goroutine.
package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/dcwire/aircore/pkg/config"
)

// Common errors returned by session issuance and validation.
var (
	ErrInvalidToken        = errors.New("api: invalid session token")
	ErrExpiredToken        = errors.New("api: session token has expired")
	ErrInvalidSecretLength = errors.New("api: JWT secret must be at least 32 characters")
	ErrInvalidCredentials  = errors.New("api: invalid credentials")
)

// MinPasswordLength is the shortest local password Credentials accepts.
const MinPasswordLength = 8

// MaxPasswordLength is bcrypt's input limit; longer passwords are
// rejected rather than silently truncated.
const MaxPasswordLength = 72

// DefaultBcryptCost balances hashing time against brute-force resistance
// for a single-operator local credential.
const DefaultBcryptCost = 10

// Claims identifies the operator a session token was issued to. A session
// carries no roles: every authenticated caller may drive the full API,
// since this boundary fronts one local host rather than a multi-tenant
// control plane.
type Claims struct {
	jwt.RegisteredClaims
	Subject string `json:"sub"`
}

// JWTService signs and validates session tokens for the API boundary.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewJWTService builds a JWTService from the host's API configuration.
func NewJWTService(cfg config.APIConfig) (*JWTService, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTService{secret: []byte(cfg.JWTSecret), issuer: "aircored", ttl: ttl}, nil
}

// Issue mints a signed session token for subject, valid for the
// service's configured TTL.
func (s *JWTService) Issue(subject string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Subject: subject,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("api: sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies tokenString, returning its claims.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("api: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Session is the authenticated identity attached to a request once a
// session token (or an explicit caller-supplied Session, for in-process
// callers of Server.Handler) has been validated.
type Session struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Credentials verifies the single local operator password this host's
// API accepts. It holds one bcrypt hash rather than a user store, since
// aircored fronts one peer's own share, not a multi-tenant system.
type Credentials struct {
	username string
	hash     []byte
}

// HashPassword validates and bcrypt-hashes password for storage in
// config.APIConfig.OperatorPasswordHash. It is the function behind
// "aircored passwd".
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultBcryptCost)
	if err != nil {
		return "", fmt.Errorf("api: hash password: %w", err)
	}
	return string(hash), nil
}

// NewCredentials hashes password with bcrypt and binds it to username.
func NewCredentials(username, password string) (*Credentials, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultBcryptCost)
	if err != nil {
		return nil, fmt.Errorf("api: hash password: %w", err)
	}
	return &Credentials{username: username, hash: hash}, nil
}

// NewCredentialsFromHash binds username to an already-computed bcrypt
// hash, e.g. one loaded from config.APIConfig.OperatorPasswordHash rather
// than a plaintext password typed at a prompt. It rejects a malformed
// hash immediately rather than deferring the failure to the first login.
func NewCredentialsFromHash(username, hash string) (*Credentials, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("api: invalid password hash: %w", err)
	}
	return &Credentials{username: username, hash: []byte(hash)}, nil
}

// Verify reports whether username and password match the bound credential.
func (c *Credentials) Verify(username, password string) bool {
	if c == nil || username != c.username {
		return false
	}
	return bcrypt.CompareHashAndPassword(c.hash, []byte(password)) == nil
}

// ValidatePassword enforces the length bounds bcrypt and this API impose.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("api: password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("api: password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}
