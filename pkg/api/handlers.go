package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dcwire/aircore/pkg/core"
	"github.com/dcwire/aircore/pkg/share"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// healthHandler answers liveness probes; it never touches core.State so
// it stays reachable even mid-Initialize.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func loginHandler(jwtSvc *JWTService, creds *Credentials) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if !creds.Verify(req.Username, req.Password) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		token, expiresAt, err := jwtSvc.Issue(req.Username)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not issue session")
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
	}
}

type statusResponse struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	Hubs       []string  `json:"hubs"`
	FileCount  int       `json:"file_count"`
	UploadWait int       `json:"upload_waiting"`
}

func statusHandler(st *core.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{
			RunID:      st.RunID(),
			StartedAt:  st.StartedAt(),
			Hubs:       st.Hubs(),
			FileCount:  st.Index().FileCount(),
			UploadWait: st.Upload().WaitingQueueLen(),
		})
	}
}

type rootResponse struct {
	VirtualName string `json:"virtual_name"`
	RealPath    string `json:"real_path"`
	Incoming    bool   `json:"incoming"`
}

func sharesHandler(st *core.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roots := st.Index().Roots()
		out := make([]rootResponse, 0, len(roots))
		for _, root := range roots {
			out = append(out, rootResponse{VirtualName: root.VirtualName, RealPath: root.RealPath, Incoming: root.Incoming})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type refreshRequest struct {
	Paths []string `json:"paths"`
}

type refreshResponse struct {
	ContinuationToken string `json:"continuation_token"`
}

// refreshHandler queues a non-blocking refresh and immediately returns a
// continuation token; the single completion listener registered in
// NewRouter resolves it once the scan finishes, so the request goroutine
// never blocks on filesystem I/O.
func refreshHandler(st *core.State, cont *ContinuationStore, waiters *RefreshWaiters) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "malformed request body")
				return
			}
		}

		c := cont.New()
		waiters.Await(RefreshKey(req.Paths), c.Token)
		st.Refresh().Queue(share.RefreshTask{Type: share.RefreshAll, Priority: share.RefreshManual, Paths: req.Paths})

		writeJSON(w, http.StatusAccepted, refreshResponse{ContinuationToken: c.Token})
	}
}

func continuationHandler(cont *ContinuationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		c, ok := cont.Get(token)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown continuation token")
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}
