// Package share implements the content index: a process-wide, read-mostly
// tree of shared directories and files, kept in sync with the filesystem by
// a refresh worker, with TTH and lowercase-basename secondary indexes for
// fast dupe detection and partial-list generation, plus the TTH
// verification and partial-bundle-discovery exchange that ride along with
// it.
package share

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dcwire/aircore/pkg/tth"
)

// errNotFound is returned by ResolveVirtualPath when no share root, child
// directory, or file matches the requested path.
var errNotFound = errors.New("share: not found")

// File is a single shared file: a real path under its parent Directory,
// its size and Tiger Tree Hash.
type File struct {
	Name string // display name, case as seen on disk
	Path string // real filesystem path
	Size int64
	TTH  tth.Sum
}

// Directory is one node of the shared tree. Children and Files are indexed
// case-insensitively by name; Files and Dirs are never mutated in place
// once a refresh has spliced a built subtree in, so readers holding a
// *Directory need no additional locking.
type Directory struct {
	Name string // virtual name shown to peers
	Path string // real filesystem path, empty for virtual-only directories

	Dirs  map[string]*Directory // lowercase name -> child
	Files map[string]*File      // lowercase name -> file
}

func newDirectory(name, path string) *Directory {
	return &Directory{
		Name:  name,
		Path:  path,
		Dirs:  make(map[string]*Directory),
		Files: make(map[string]*File),
	}
}

// Root is one top-level share: a real directory published under a virtual
// name, visible to the listed profile tokens.
type Root struct {
	RealPath    string
	VirtualName string
	Profiles    []string
	Incoming    bool // watched for new files via the fsnotify-backed watcher

	tree *Directory
}

// Tree returns the root's current subtree. Safe to call concurrently with
// a refresh in progress: refreshes build a new subtree and splice it in
// atomically, never mutating the one already returned.
func (r *Root) Tree() *Directory {
	return r.tree
}

// Index is the process-wide content index: the set of Roots plus the two
// global secondary indexes (TTH -> files, lowercase basename -> dirs).
type Index struct {
	mu sync.RWMutex

	roots map[string]*Root // virtual name -> root

	byTTH      map[tth.Sum][]*File
	byBasename map[string][]*Directory

	cfg Config
}

// NewIndex returns an empty Index.
func NewIndex(cfg Config) *Index {
	return &Index{
		roots:      make(map[string]*Root),
		byTTH:      make(map[tth.Sum][]*File),
		byBasename: make(map[string][]*Directory),
		cfg:        cfg,
	}
}

// AddRoot registers a new share root. The caller must still refresh it
// (via Manager.Queue with RefreshTypeAddRoot) before its files appear in
// the secondary indexes.
func (idx *Index) AddRoot(root *Root) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	root.tree = newDirectory(root.VirtualName, root.RealPath)
	idx.roots[root.VirtualName] = root
}

// Root looks up a share root by its virtual name.
func (idx *Index) Root(virtualName string) (*Root, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	r, ok := idx.roots[virtualName]
	return r, ok
}

// Roots returns every registered share root.
func (idx *Index) Roots() []*Root {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*Root, 0, len(idx.roots))
	for _, r := range idx.roots {
		out = append(out, r)
	}
	return out
}

// FilesByTTH returns every indexed file sharing the given TTH (the same
// bytes may be shared under more than one name or root).
func (idx *Index) FilesByTTH(sum tth.Sum) []*File {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]*File(nil), idx.byTTH[sum]...)
}

// HasTTH reports whether sum is indexed anywhere in the share, answered
// from the TTH map under the index's read lock.
func (idx *Index) HasTTH(sum tth.Sum) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.byTTH[sum]
	return ok
}

// FileCount returns the total number of indexed files across every root.
func (idx *Index) FileCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := 0
	for _, files := range idx.byTTH {
		n += len(files)
	}
	return n
}

// DirsByBasename returns every directory whose name, lowercased, equals
// name, used for duplicate-directory detection and partial-list lookups.
func (idx *Index) DirsByBasename(name string) []*Directory {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]*Directory(nil), idx.byBasename[strings.ToLower(name)]...)
}

// ContainsTTH satisfies queue.ShareIndex, letting the download queue reject
// an add whose content is already fully shared.
func (idx *Index) ContainsTTH(sum tth.Sum) bool {
	return idx.HasTTH(sum)
}

// ResolveVirtualPath walks the root named by the first path segment and
// resolves the remaining segments against its tree, the way an upload
// request's requested file is resolved to a concrete shared file.
func (idx *Index) ResolveVirtualPath(virtualPath string) (*File, error) {
	segments := strings.Split(strings.Trim(virtualPath, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return nil, errNotFound
	}

	root, ok := idx.Root(segments[0])
	if !ok {
		return nil, errNotFound
	}

	dir := root.Tree()
	rest := segments[1:]
	if len(rest) == 0 {
		return nil, errNotFound
	}
	for _, part := range rest[:len(rest)-1] {
		child, ok := dir.Dirs[strings.ToLower(part)]
		if !ok {
			return nil, errNotFound
		}
		dir = child
	}

	file, ok := dir.Files[strings.ToLower(rest[len(rest)-1])]
	if !ok {
		return nil, errNotFound
	}
	return file, nil
}

// spliceLocked replaces root's tree with newTree and rebuilds the global
// secondary indexes to remove the root's old entries and add the new
// ones. Called with idx.mu held for writing.
func (idx *Index) spliceLocked(root *Root, newTree *Directory) {
	idx.pruneRootLocked(root)
	root.tree = newTree
	idx.indexSubtreeLocked(newTree)
}

func (idx *Index) pruneRootLocked(root *Root) {
	if root.tree == nil {
		return
	}
	var walk func(*Directory)
	walk = func(d *Directory) {
		key := strings.ToLower(d.Name)
		idx.byBasename[key] = removeDir(idx.byBasename[key], d)
		if len(idx.byBasename[key]) == 0 {
			delete(idx.byBasename, key)
		}
		for _, f := range d.Files {
			idx.byTTH[f.TTH] = removeFile(idx.byTTH[f.TTH], f)
			if len(idx.byTTH[f.TTH]) == 0 {
				delete(idx.byTTH, f.TTH)
			}
		}
		for _, child := range d.Dirs {
			walk(child)
		}
	}
	walk(root.tree)
}

func (idx *Index) indexSubtreeLocked(d *Directory) {
	key := strings.ToLower(d.Name)
	idx.byBasename[key] = append(idx.byBasename[key], d)
	for _, f := range d.Files {
		idx.byTTH[f.TTH] = append(idx.byTTH[f.TTH], f)
	}
	for _, child := range d.Dirs {
		idx.indexSubtreeLocked(child)
	}
}

func removeDir(list []*Directory, target *Directory) []*Directory {
	out := list[:0]
	for _, d := range list {
		if d != target {
			out = append(out, d)
		}
	}
	return out
}

func removeFile(list []*File, target *File) []*File {
	out := list[:0]
	for _, f := range list {
		if f != target {
			out = append(out, f)
		}
	}
	return out
}

// Config tunes refresh, validation and verification behavior.
type Config struct {
	MaxFileSize         int64    `mapstructure:"max_file_size" validate:"gte=0" yaml:"max_file_size"`
	RejectZeroByte      bool     `mapstructure:"reject_zero_byte" yaml:"reject_zero_byte"`
	ForbiddenExtensions []string `mapstructure:"forbidden_extensions" yaml:"forbidden_extensions,omitempty"`
	ExcludedPaths       []string `mapstructure:"excluded_paths" yaml:"excluded_paths,omitempty"`
	RefreshWorkers      int      `mapstructure:"refresh_workers" validate:"required,gt=0" yaml:"refresh_workers"`
	HashCacheDir        string   `mapstructure:"hash_cache_dir" yaml:"hash_cache_dir,omitempty"`
	MaxErrorsPerKind    int      `mapstructure:"max_errors_per_kind" validate:"gte=0" yaml:"max_errors_per_kind"`
}

// DefaultConfig returns the forbidden-extension list and other defaults
// from the refresh-validation contract.
func DefaultConfig() Config {
	return Config{
		MaxFileSize:         0, // 0 = unlimited
		RejectZeroByte:      true,
		ForbiddenExtensions: []string{".tmp", ".bak", ".bad", ".dctmp", ".!ut", ".bc!", ".missing", ".temp"},
		RefreshWorkers:      1,
		MaxErrorsPerKind:    3,
	}
}

// RefreshPriority orders queued refresh tasks; BLOCKING runs synchronously
// on the caller's goroutine instead of the refresh worker.
type RefreshPriority int

const (
	RefreshScheduled RefreshPriority = iota
	RefreshStartup
	RefreshManual
	RefreshBlocking
)

func (p RefreshPriority) String() string {
	switch p {
	case RefreshScheduled:
		return "SCHEDULED"
	case RefreshStartup:
		return "STARTUP"
	case RefreshManual:
		return "MANUAL"
	case RefreshBlocking:
		return "BLOCKING"
	default:
		return "UNKNOWN"
	}
}

// RefreshType narrows which part of a root a refresh task rebuilds.
type RefreshType int

const (
	RefreshAll RefreshType = iota
	RefreshDirs
	RefreshAddRoot
	RefreshIncoming
	RefreshBundle
)

func (t RefreshType) String() string {
	switch t {
	case RefreshAll:
		return "ALL"
	case RefreshDirs:
		return "DIRS"
	case RefreshAddRoot:
		return "ADD_ROOT"
	case RefreshIncoming:
		return "INCOMING"
	case RefreshBundle:
		return "BUNDLE"
	default:
		return "UNKNOWN"
	}
}

// RefreshStats summarizes one completed refresh task.
type RefreshStats struct {
	DirsScanned  int
	FilesIndexed int
	FilesSkipped int
	Errors       []ValidationError
	Duration     time.Duration
}

// ValidationError is one rejected path encountered during a refresh.
type ValidationError struct {
	Path   string
	Reason string
}
