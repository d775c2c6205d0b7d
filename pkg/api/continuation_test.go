package api

import (
	"errors"
	"testing"
	"time"
)

func TestContinuationStoreNewGetResolve(t *testing.T) {
	store := NewContinuationStore(time.Minute)

	c := store.New()
	if c.Token == "" {
		t.Fatal("expected a non-empty token")
	}

	got, ok := store.Get(c.Token)
	if !ok {
		t.Fatal("expected newly created continuation to be found")
	}
	if got.Done {
		t.Error("expected a freshly created continuation to be unresolved")
	}

	store.Resolve(c.Token, "the-result", nil)

	got, ok = store.Get(c.Token)
	if !ok {
		t.Fatal("expected resolved continuation to still be found before ttl pruning")
	}
	if !got.Done {
		t.Error("expected continuation to be marked done after Resolve")
	}
	if got.Result != "the-result" {
		t.Errorf("expected result 'the-result', got %v", got.Result)
	}
	if got.Err != "" {
		t.Errorf("expected no error string, got %q", got.Err)
	}
}

func TestContinuationStoreResolveWithError(t *testing.T) {
	store := NewContinuationStore(time.Minute)
	c := store.New()

	store.Resolve(c.Token, nil, errors.New("boom"))

	got, ok := store.Get(c.Token)
	if !ok {
		t.Fatal("expected continuation to be found")
	}
	if got.Err != "boom" {
		t.Errorf("expected error string 'boom', got %q", got.Err)
	}
}

func TestContinuationStoreGetUnknownToken(t *testing.T) {
	store := NewContinuationStore(time.Minute)
	if _, ok := store.Get("does-not-exist"); ok {
		t.Error("expected lookup of an unknown token to fail")
	}
}

func TestContinuationStoreResolveUnknownTokenIsNoop(t *testing.T) {
	store := NewContinuationStore(time.Minute)
	store.Resolve("does-not-exist", "x", nil)
}

func TestContinuationStorePrunesExpiredResolved(t *testing.T) {
	store := NewContinuationStore(time.Millisecond)
	c := store.New()
	store.Resolve(c.Token, "done", nil)

	time.Sleep(5 * time.Millisecond)

	if _, ok := store.Get(c.Token); ok {
		t.Error("expected a long-resolved continuation past its ttl to be pruned")
	}
}

func TestContinuationStoreDoesNotPruneUnresolved(t *testing.T) {
	store := NewContinuationStore(time.Millisecond)
	c := store.New()

	time.Sleep(5 * time.Millisecond)

	if _, ok := store.Get(c.Token); !ok {
		t.Error("expected an unresolved continuation to survive past its ttl")
	}
}

func TestRefreshWaitersAwaitAndTake(t *testing.T) {
	w := NewRefreshWaiters()
	key := RefreshKey([]string{"/share/a", "/share/b"})

	w.Await(key, "token-1")
	w.Await(key, "token-2")

	tokens := w.Take(key)
	if len(tokens) != 2 || tokens[0] != "token-1" || tokens[1] != "token-2" {
		t.Errorf("expected [token-1 token-2], got %v", tokens)
	}

	if tokens := w.Take(key); len(tokens) != 0 {
		t.Errorf("expected Take to clear waiters, got %v", tokens)
	}
}

func TestRefreshKeyDeterministic(t *testing.T) {
	paths := []string{"/share/a", "/share/b"}
	if RefreshKey(paths) != RefreshKey(paths) {
		t.Error("expected RefreshKey to be deterministic for the same paths")
	}
	if RefreshKey([]string{"/share/a"}) == RefreshKey([]string{"/share/b"}) {
		t.Error("expected different paths to produce different keys")
	}
}
