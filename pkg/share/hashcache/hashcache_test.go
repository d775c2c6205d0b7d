//go:build integration

package hashcache_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dcwire/aircore/pkg/share/hashcache"
	"github.com/dcwire/aircore/pkg/tth"
)

func openTestCache(t *testing.T) *hashcache.Cache {
	t.Helper()
	c, err := hashcache.Open(filepath.Join(t.TempDir(), "hashcache.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() {
		c.Close()
	})
	return c
}

func TestCacheMissesOnUnknownPath(t *testing.T) {
	c := openTestCache(t)
	if _, ok := c.Lookup("/share/movie.mkv", 100, time.Now()); ok {
		t.Fatalf("expected miss for unknown path")
	}
}

func TestCacheHitsOnMatchingSizeAndModTime(t *testing.T) {
	c := openTestCache(t)
	mod := time.Now().Truncate(time.Second)
	var want tth.Sum
	want[0] = 0xAB

	if err := c.Store("/share/movie.mkv", 1234, mod, want); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	got, ok := c.Lookup("/share/movie.mkv", 1234, mod)
	if !ok {
		t.Fatalf("expected hit after Store")
	}
	if got != want {
		t.Fatalf("TTH = %x, want %x", got, want)
	}
}

func TestCacheMissesWhenSizeChanges(t *testing.T) {
	c := openTestCache(t)
	mod := time.Now().Truncate(time.Second)
	var sum tth.Sum

	if err := c.Store("/share/movie.mkv", 1234, mod, sum); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	if _, ok := c.Lookup("/share/movie.mkv", 9999, mod); ok {
		t.Fatalf("expected miss when size changed")
	}
}

func TestCacheMissesWhenModTimeChanges(t *testing.T) {
	c := openTestCache(t)
	mod := time.Now().Truncate(time.Second)
	var sum tth.Sum

	if err := c.Store("/share/movie.mkv", 1234, mod, sum); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	if _, ok := c.Lookup("/share/movie.mkv", 1234, mod.Add(time.Hour)); ok {
		t.Fatalf("expected miss when mod time changed")
	}
}

func TestCacheForgetRemovesEntry(t *testing.T) {
	c := openTestCache(t)
	mod := time.Now().Truncate(time.Second)
	var sum tth.Sum

	if err := c.Store("/share/movie.mkv", 1234, mod, sum); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	if err := c.Forget("/share/movie.mkv"); err != nil {
		t.Fatalf("Forget() failed: %v", err)
	}
	if _, ok := c.Lookup("/share/movie.mkv", 1234, mod); ok {
		t.Fatalf("expected miss after Forget")
	}
}
