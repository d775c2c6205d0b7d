package api

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Continuation is a pending long-running operation (a queued refresh, a
// slot wait) an API caller can poll for instead of blocking the request
// goroutine on it. The owning component's worker resolves the token when
// the work finishes; a handler goroutine never waits on it directly.
type Continuation struct {
	Token     string
	CreatedAt time.Time
	Done      bool
	Result    any
	Err       string
}

// ContinuationStore tracks outstanding continuations by a uuid token. It
// is the deferred-response mechanism SPEC_FULL.md's API boundary calls
// for: a worker resolves a token asynchronously, and a later poll of
// GET /api/v1/continuations/{token} returns whatever it left behind.
type ContinuationStore struct {
	mu      sync.Mutex
	pending map[string]*Continuation
	ttl     time.Duration
}

// NewContinuationStore builds a store that forgets resolved continuations
// after ttl has elapsed since creation.
func NewContinuationStore(ttl time.Duration) *ContinuationStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ContinuationStore{pending: make(map[string]*Continuation), ttl: ttl}
}

// New registers a fresh, unresolved continuation and returns its token.
func (s *ContinuationStore) New() *Continuation {
	c := &Continuation{Token: uuid.NewString(), CreatedAt: time.Now()}
	s.mu.Lock()
	s.pending[c.Token] = c
	s.mu.Unlock()
	return c
}

// Resolve records the outcome of the continuation identified by token. A
// second call overwrites the first; callers resolve exactly once.
func (s *ContinuationStore) Resolve(token string, result any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.pending[token]
	if !ok {
		return
	}
	c.Done = true
	c.Result = result
	c.Err = ""
	if err != nil {
		c.Err = err.Error()
	}
}

// Get returns a snapshot of the continuation for token. Before the lookup
// it prunes every resolved continuation created more than ttl ago, so the
// map does not grow unbounded; whether a continuation was observed plays
// no part in pruning.
func (s *ContinuationStore) Get(token string) (Continuation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for t, c := range s.pending {
		if c.Done && now.Sub(c.CreatedAt) > s.ttl {
			delete(s.pending, t)
		}
	}

	c, ok := s.pending[token]
	if !ok {
		return Continuation{}, false
	}
	return *c, true
}

// RefreshWaiters maps a refresh task's path signature to the
// continuation tokens waiting on its completion. A single
// share.CompletionListener registered once at router construction
// consults this table, rather than the handler registering a fresh
// listener (and leaking it) on every request.
type RefreshWaiters struct {
	mu      sync.Mutex
	waiting map[string][]string
}

// NewRefreshWaiters builds an empty waiter table.
func NewRefreshWaiters() *RefreshWaiters {
	return &RefreshWaiters{waiting: make(map[string][]string)}
}

// Await registers token as waiting on the refresh task identified by key.
func (w *RefreshWaiters) Await(key, token string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waiting[key] = append(w.waiting[key], token)
}

// Take returns and clears every token waiting on key.
func (w *RefreshWaiters) Take(key string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	tokens := w.waiting[key]
	delete(w.waiting, key)
	return tokens
}

// RefreshKey derives the waiter-table key for a refresh task's paths.
func RefreshKey(paths []string) string {
	return strings.Join(paths, "\x00")
}
