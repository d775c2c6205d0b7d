package share

import (
	"testing"

	"github.com/dcwire/aircore/pkg/tth"
)

func buildIndexWithFile(t *testing.T, virtualName, fileName string, sum tth.Sum) (*Index, *Root) {
	t.Helper()
	idx := NewIndex(DefaultConfig())
	root := &Root{RealPath: "/data/" + virtualName, VirtualName: virtualName}
	idx.AddRoot(root)

	tree := newDirectory(virtualName, root.RealPath)
	tree.Files[fileName] = &File{Name: fileName, Path: root.RealPath + "/" + fileName, Size: 10, TTH: sum}

	idx.mu.Lock()
	idx.spliceLocked(root, tree)
	idx.mu.Unlock()

	return idx, root
}

func TestAddRootRegistersAnEmptyTree(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	root := &Root{RealPath: "/data/movies", VirtualName: "movies"}
	idx.AddRoot(root)

	got, ok := idx.Root("movies")
	if !ok || got != root {
		t.Fatalf("expected Root(\"movies\") to return the registered root")
	}
	if root.Tree() == nil {
		t.Fatalf("expected AddRoot to initialize an empty tree")
	}
}

func TestSpliceIndexesFilesByTTH(t *testing.T) {
	sum := tth.Sum{0xAA}
	idx, _ := buildIndexWithFile(t, "movies", "movie.mkv", sum)

	if !idx.HasTTH(sum) {
		t.Fatalf("expected the spliced file's TTH to be indexed")
	}
	got := idx.FilesByTTH(sum)
	if len(got) != 1 || got[0].Name != "movie.mkv" {
		t.Fatalf("unexpected FilesByTTH result: %+v", got)
	}
}

func TestSpliceReindexesDirectoriesByBasename(t *testing.T) {
	idx, root := buildIndexWithFile(t, "movies", "movie.mkv", tth.Sum{0xBB})

	dirs := idx.DirsByBasename("movies")
	if len(dirs) != 1 || dirs[0] != root.Tree() {
		t.Fatalf("expected the root's tree to be indexed by its basename")
	}
	// Case-insensitive lookup.
	if dirs2 := idx.DirsByBasename("MOVIES"); len(dirs2) != 1 {
		t.Fatalf("expected case-insensitive basename lookup, got %v", dirs2)
	}
}

func TestSplicePrunesOldEntriesBeforeReindexing(t *testing.T) {
	sum := tth.Sum{0xCC}
	idx, root := buildIndexWithFile(t, "movies", "old.mkv", sum)

	newTree := newDirectory("movies", root.RealPath)
	idx.mu.Lock()
	idx.spliceLocked(root, newTree)
	idx.mu.Unlock()

	if idx.HasTTH(sum) {
		t.Fatalf("expected the old file's TTH to be pruned after an empty resplice")
	}
}

func TestResolveVirtualPathFindsNestedFile(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	root := &Root{RealPath: "/data/movies", VirtualName: "movies"}
	idx.AddRoot(root)

	sub := newDirectory("Action", "/data/movies/Action")
	sub.Files["movie.mkv"] = &File{Name: "movie.mkv", Path: "/data/movies/Action/movie.mkv", Size: 5}
	top := newDirectory("movies", root.RealPath)
	top.Dirs["action"] = sub

	idx.mu.Lock()
	idx.spliceLocked(root, top)
	idx.mu.Unlock()

	file, err := idx.ResolveVirtualPath("movies/Action/movie.mkv")
	if err != nil {
		t.Fatalf("ResolveVirtualPath: %v", err)
	}
	if file.Name != "movie.mkv" {
		t.Fatalf("unexpected file: %+v", file)
	}
}

func TestResolveVirtualPathReturnsErrorForUnknownRoot(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	if _, err := idx.ResolveVirtualPath("nope/movie.mkv"); err == nil {
		t.Fatalf("expected an error for an unregistered root")
	}
}

func TestContainsTTHMirrorsHasTTH(t *testing.T) {
	sum := tth.Sum{0xDD}
	idx, _ := buildIndexWithFile(t, "movies", "movie.mkv", sum)

	if idx.ContainsTTH(sum) != idx.HasTTH(sum) {
		t.Fatalf("ContainsTTH and HasTTH disagree")
	}
}

func TestRefreshPriorityAndTypeStringers(t *testing.T) {
	cases := map[RefreshPriority]string{
		RefreshScheduled: "SCHEDULED",
		RefreshStartup:   "STARTUP",
		RefreshManual:    "MANUAL",
		RefreshBlocking:  "BLOCKING",
	}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Fatalf("RefreshPriority(%d).String() = %q, want %q", p, got, want)
		}
	}

	typeCases := map[RefreshType]string{
		RefreshAll:      "ALL",
		RefreshDirs:     "DIRS",
		RefreshAddRoot:  "ADD_ROOT",
		RefreshIncoming: "INCOMING",
		RefreshBundle:   "BUNDLE",
	}
	for rt, want := range typeCases {
		if got := rt.String(); got != want {
			t.Fatalf("RefreshType(%d).String() = %q, want %q", rt, got, want)
		}
	}
}
