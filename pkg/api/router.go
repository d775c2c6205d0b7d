package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dcwire/aircore/internal/logger"
	"github.com/dcwire/aircore/pkg/core"
	"github.com/dcwire/aircore/pkg/share"
)

// NewRouter builds the chi router fronting st. jwtSvc issues and
// validates session tokens; creds holds the single local operator
// credential login checks against.
//
// Routes:
//   - GET  /health                       - liveness probe, unauthenticated
//   - POST /api/v1/auth/login            - exchange credentials for a session token
//   - GET  /api/v1/status                - run id, uptime, hub list, index/queue summary
//   - GET  /api/v1/shares                 - registered share roots
//   - POST /api/v1/shares/refresh         - queue a refresh, returns a continuation token
//   - GET  /api/v1/continuations/{token}  - poll a deferred operation's result
func NewRouter(st *core.State, jwtSvc *JWTService, creds *Credentials, cont *ContinuationStore) http.Handler {
	waiters := NewRefreshWaiters()
	st.Refresh().AddListener(func(completion share.RefreshCompletion) {
		for _, token := range waiters.Take(RefreshKey(completion.Task.Paths)) {
			cont.Resolve(token, completion.Stats, nil)
		}
	})

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", healthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", loginHandler(jwtSvc, creds))

		r.Group(func(r chi.Router) {
			r.Use(requireSession(jwtSvc))

			r.Get("/status", statusHandler(st))
			r.Get("/shares", sharesHandler(st))
			r.Post("/shares/refresh", refreshHandler(st, cont, waiters))
			r.Get("/continuations/{token}", continuationHandler(cont))
		})
	})

	return r
}

// requestLogger logs every request through the internal structured
// logger, at DEBUG for the health probe and INFO otherwise.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		args := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}
		if r.URL.Path == "/health" {
			logger.Debug("api request completed", args...)
		} else {
			logger.Info("api request completed", args...)
		}
	})
}
