package share

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(t *testing.T, cfg Config) (*Manager, *Index) {
	t.Helper()
	idx := NewIndex(cfg)
	v := NewValidator(cfg, NewSkipList(SkipModeWildcard, nil), nil)
	m := NewManager(idx, cfg, v, nil)
	t.Cleanup(m.Close)
	return m, idx
}

func writeTestFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func TestBlockingRefreshIndexesFilesSynchronously(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.txt"), 128)
	writeTestFile(t, filepath.Join(dir, "b.tmp"), 128)

	cfg := DefaultConfig()
	m, idx := newTestManager(t, cfg)

	root := &Root{RealPath: dir, VirtualName: "share"}
	idx.AddRoot(root)

	stats := m.Queue(RefreshTask{Type: RefreshAll, Priority: RefreshBlocking, Paths: []string{"share"}})
	if stats == nil {
		t.Fatalf("expected synchronous stats for a BLOCKING task")
	}
	if stats.FilesIndexed != 1 {
		t.Fatalf("FilesIndexed = %d, want 1", stats.FilesIndexed)
	}
	if stats.FilesSkipped != 1 {
		t.Fatalf("FilesSkipped = %d, want 1 (forbidden extension)", stats.FilesSkipped)
	}

	tree := root.Tree()
	if _, ok := tree.Files["a.txt"]; !ok {
		t.Fatalf("expected a.txt in the refreshed tree, got %+v", tree.Files)
	}
	if _, ok := tree.Files["b.tmp"]; ok {
		t.Fatalf("b.tmp should have been rejected by the forbidden-extension rule")
	}
}

func TestBlockingRefreshPopulatesTTHIndex(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "movie.mkv"), 4096)

	cfg := DefaultConfig()
	m, idx := newTestManager(t, cfg)

	root := &Root{RealPath: dir, VirtualName: "share"}
	idx.AddRoot(root)
	m.Queue(RefreshTask{Type: RefreshAll, Priority: RefreshBlocking})

	file := root.Tree().Files["movie.mkv"]
	if file == nil {
		t.Fatalf("expected movie.mkv to be indexed")
	}
	if !idx.HasTTH(file.TTH) {
		t.Fatalf("expected TTH secondary index to contain the refreshed file")
	}
	if !idx.ContainsTTH(file.TTH) {
		t.Fatalf("ContainsTTH should mirror HasTTH")
	}
}

func TestRefreshSplicePrunesStaleEntriesOnRescan(t *testing.T) {
	dir := t.TempDir()
	stalePath := filepath.Join(dir, "old.bin")
	writeTestFile(t, stalePath, 256)

	cfg := DefaultConfig()
	m, idx := newTestManager(t, cfg)
	root := &Root{RealPath: dir, VirtualName: "share"}
	idx.AddRoot(root)
	m.Queue(RefreshTask{Priority: RefreshBlocking})

	oldFile := root.Tree().Files["old.bin"]
	if oldFile == nil || !idx.HasTTH(oldFile.TTH) {
		t.Fatalf("expected old.bin indexed before removal")
	}

	if err := os.Remove(stalePath); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	m.Queue(RefreshTask{Priority: RefreshBlocking})

	if idx.HasTTH(oldFile.TTH) {
		t.Fatalf("expected stale TTH entry pruned after rescan")
	}
	if _, ok := root.Tree().Files["old.bin"]; ok {
		t.Fatalf("expected old.bin removed from the rescanned tree")
	}
}

func TestAsyncRefreshNotifiesCompletionListener(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.txt"), 64)

	cfg := DefaultConfig()
	m, idx := newTestManager(t, cfg)
	root := &Root{RealPath: dir, VirtualName: "share"}
	idx.AddRoot(root)

	done := make(chan RefreshCompletion, 1)
	m.AddListener(func(c RefreshCompletion) { done <- c })
	m.Queue(RefreshTask{Type: RefreshAll, Priority: RefreshScheduled, Paths: []string{"share"}})

	select {
	case c := <-done:
		if c.Stats.FilesIndexed != 1 {
			t.Fatalf("FilesIndexed = %d, want 1", c.Stats.FilesIndexed)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for refresh completion")
	}
}

func TestQueueMergesDuplicatePathsForSameType(t *testing.T) {
	m := &Manager{wake: make(chan struct{}, 1)}
	m.mergeLocked(RefreshTask{Type: RefreshIncoming, Paths: []string{"a", "b"}})
	m.mergeLocked(RefreshTask{Type: RefreshIncoming, Paths: []string{"b", "c"}})

	if len(m.queue) != 1 {
		t.Fatalf("expected a single merged task, got %d", len(m.queue))
	}
	if len(m.queue[0].Paths) != 3 {
		t.Fatalf("Paths = %v, want 3 deduplicated entries", m.queue[0].Paths)
	}
}

func TestHashPauserSkipsBusyFileForOnePass(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "busy.bin"), 64)

	cfg := DefaultConfig()
	m, idx := newTestManager(t, cfg)
	root := &Root{RealPath: dir, VirtualName: "share"}
	idx.AddRoot(root)

	m.SetHashPauser(func(path string) bool { return true })
	stats := m.Queue(RefreshTask{Priority: RefreshBlocking})
	if stats.FilesIndexed != 0 || stats.FilesSkipped != 1 {
		t.Fatalf("expected the busy file to be skipped, got %+v", stats)
	}

	m.SetHashPauser(func(path string) bool { return false })
	stats = m.Queue(RefreshTask{Priority: RefreshBlocking})
	if stats.FilesIndexed != 1 {
		t.Fatalf("expected the file indexed once no longer paused, got %+v", stats)
	}
}
