package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/dcwire/aircore/internal/logger"
	"github.com/dcwire/aircore/pkg/config"
	"github.com/dcwire/aircore/pkg/core"
)

// Server is the HTTP front door onto a core.State: a chi router plus the
// net/http.Server that serves it when a host wants a real listener, and
// a direct, in-process Handler entrypoint for callers (tests, a GUI
// shell) that want typed request/response bytes without opening a port.
type Server struct {
	router http.Handler
	http   *http.Server
	cont   *ContinuationStore
}

// NewServer builds a Server wired to st, using cfg's listen address, JWT
// secret and session TTL, and cfg's operator username/password-hash as
// the single local credential login checks against.
func NewServer(cfg config.APIConfig, st *core.State) (*Server, error) {
	jwtSvc, err := NewJWTService(cfg)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	creds, err := NewCredentialsFromHash(cfg.OperatorUsername, cfg.OperatorPasswordHash)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	cont := NewContinuationStore(5 * time.Minute)
	router := NewRouter(st, jwtSvc, creds, cont)

	return &Server{
		router: router,
		http:   &http.Server{Addr: cfg.Listen, Handler: router},
		cont:   cont,
	}, nil
}

// ListenAndServe blocks serving HTTP on the configured address until ctx
// is canceled, then gracefully shuts the listener down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler drives a single request through the router in-process, without
// a real socket. session, if non-nil, is attached to the request context
// ahead of time so the caller bypasses Bearer-token validation entirely
// — this is the path a GUI shell or test embeds the API through.
func (s *Server) Handler(method, path string, body []byte, session *Session) (status int, respBody []byte) {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if session != nil {
		req = req.WithContext(withSession(req.Context(), session))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec.Code, rec.Body.Bytes()
}
