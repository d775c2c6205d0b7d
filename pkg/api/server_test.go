package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dcwire/aircore/pkg/config"
	"github.com/dcwire/aircore/pkg/connmgr"
	"github.com/dcwire/aircore/pkg/core"
)

func testServer(t *testing.T) (*Server, *core.State) {
	t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Share.HashCacheDir = filepath.Join(cfg.DataDir, "hashcache")
	cfg.Identity.CID = "testcid"
	cfg.API = testAPIConfig()

	hash, err := HashPassword("correct-horse-battery")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	cfg.API.OperatorUsername = "operator"
	cfg.API.OperatorPasswordHash = hash

	st := core.New()
	ctx := context.Background()
	if err := st.Initialize(ctx, cfg, connmgr.NewFake()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Shutdown(ctx) })

	srv, err := NewServer(cfg.API, st)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv, st
}

func TestHealthUnauthenticated(t *testing.T) {
	srv, _ := testServer(t)

	status, body := srv.Handler(http.MethodGet, "/health", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("expected health response to report ok, got %s", body)
	}
}

func TestLoginSuccessAndFailure(t *testing.T) {
	srv, _ := testServer(t)

	body := []byte(`{"username":"operator","password":"correct-horse-battery"}`)
	status, resp := srv.Handler(http.MethodPost, "/api/v1/auth/login", body, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, resp)
	}

	var loginResp loginResponse
	if err := json.Unmarshal(resp, &loginResp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	if loginResp.Token == "" {
		t.Error("expected a non-empty token")
	}
	if loginResp.ExpiresAt.Before(time.Now()) {
		t.Error("expected expiry in the future")
	}

	badBody := []byte(`{"username":"operator","password":"wrong-password"}`)
	status, _ = srv.Handler(http.MethodPost, "/api/v1/auth/login", badBody, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", status)
	}
}

func TestStatusRequiresSession(t *testing.T) {
	srv, _ := testServer(t)

	status, _ := srv.Handler(http.MethodGet, "/api/v1/status", nil, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401 without a session, got %d", status)
	}

	sess := &Session{Subject: "operator"}
	status, body := srv.Handler(http.MethodGet, "/api/v1/status", nil, sess)
	if status != http.StatusOK {
		t.Fatalf("expected 200 with a session, got %d: %s", status, body)
	}

	var statusResp statusResponse
	if err := json.Unmarshal(body, &statusResp); err != nil {
		t.Fatalf("failed to decode status response: %v", err)
	}
	if statusResp.RunID == "" {
		t.Error("expected a non-empty run id")
	}
}

func TestSharesEmptyByDefault(t *testing.T) {
	srv, _ := testServer(t)
	sess := &Session{Subject: "operator"}

	status, body := srv.Handler(http.MethodGet, "/api/v1/shares", nil, sess)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var roots []rootResponse
	if err := json.Unmarshal(body, &roots); err != nil {
		t.Fatalf("failed to decode shares response: %v", err)
	}
	if len(roots) != 0 {
		t.Errorf("expected no configured share roots, got %v", roots)
	}
}

func TestRefreshThenPollContinuation(t *testing.T) {
	srv, _ := testServer(t)
	sess := &Session{Subject: "operator"}

	status, body := srv.Handler(http.MethodPost, "/api/v1/shares/refresh", []byte(`{"paths":[]}`), sess)
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", status, body)
	}

	var refreshResp refreshResponse
	if err := json.Unmarshal(body, &refreshResp); err != nil {
		t.Fatalf("failed to decode refresh response: %v", err)
	}
	if refreshResp.ContinuationToken == "" {
		t.Fatal("expected a non-empty continuation token")
	}

	status, body = srv.Handler(http.MethodGet, "/api/v1/continuations/"+refreshResp.ContinuationToken, nil, sess)
	if status != http.StatusOK {
		t.Fatalf("expected 200 polling a known continuation, got %d: %s", status, body)
	}
}

func TestContinuationNotFound(t *testing.T) {
	srv, _ := testServer(t)
	sess := &Session{Subject: "operator"}

	status, _ := srv.Handler(http.MethodGet, "/api/v1/continuations/does-not-exist", nil, sess)
	if status != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown continuation token, got %d", status)
	}
}
