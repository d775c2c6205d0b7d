package queue

import (
	"testing"
	"time"

	"github.com/dcwire/aircore/internal/ids"
	"github.com/dcwire/aircore/pkg/tth"
)

func TestSearchQueuePopReturnsNilWhenEmpty(t *testing.T) {
	q := NewSearchQueue()
	if req := q.PopNext(); req != nil {
		t.Fatalf("PopNext on empty queue = %+v, want nil", req)
	}
}

func TestSearchQueueEnqueueThenPop(t *testing.T) {
	q := NewSearchQueue()
	bundle := NewBundle(ids.Token(1), "/downloads/release", PriorityNormal, false)
	bundle.AddItem(NewQueueItem(ids.Token(2), "/downloads/release/a.bin", "", 1024, tth.Sum{}, PriorityNormal))

	q.Enqueue(bundle)
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}

	req := q.PopNext()
	if req == nil {
		t.Fatal("expected a search request")
	}
	if req.Bundle != bundle {
		t.Fatal("PopNext returned a different bundle")
	}
	if len(req.Files) != 1 {
		t.Fatalf("Files = %v, want one entry", req.Files)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() after pop = %d, want 0", q.Len())
	}
	if bundle.LastSearch.IsZero() {
		t.Fatal("expected LastSearch to be stamped")
	}
}

func TestSearchQueueSuppressesReenqueueWithinInterval(t *testing.T) {
	q := NewSearchQueue()
	bundle := NewBundle(ids.Token(1), "/downloads/release", PriorityNormal, false)
	bundle.LastSearch = time.Now()

	q.Enqueue(bundle)
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 (too soon since last search)", q.Len())
	}
}

func TestSearchQueuePrefersRecentBundle(t *testing.T) {
	q := NewSearchQueue()
	old := NewBundle(ids.Token(1), "/downloads/old", PriorityNormal, false)
	old.Added = time.Now().Add(-time.Hour)
	recent := NewBundle(ids.Token(2), "/downloads/new", PriorityNormal, false)

	q.Enqueue(old)
	q.Enqueue(recent)

	req := q.PopNext()
	if req == nil || req.Bundle != recent {
		t.Fatalf("expected the recently added bundle to pop first, got %+v", req)
	}
}

func TestRepresentativeFilesCapsAtFive(t *testing.T) {
	bundle := NewBundle(ids.Token(1), "/downloads/release", PriorityNormal, false)
	for i := 0; i < 8; i++ {
		bundle.AddItem(NewQueueItem(ids.Token(10+i), fmtTarget(i), "", 1024, tth.Sum{}, PriorityNormal))
	}
	files := representativeFiles(bundle)
	if len(files) > MaxRepresentativeFiles {
		t.Fatalf("got %d files, want at most %d", len(files), MaxRepresentativeFiles)
	}
}

func fmtTarget(i int) string {
	names := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "ggggggg", "hhhhhhhh"}
	return "/downloads/release/" + names[i] + "/file.bin"
}
