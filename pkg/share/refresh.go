package share

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dcwire/aircore/internal/logger"
	"github.com/dcwire/aircore/pkg/metrics"
	"github.com/dcwire/aircore/pkg/share/hashcache"
	"github.com/dcwire/aircore/pkg/tth"
)

// errHashPaused marks a file skipped this pass because it was reported
// busy by the installed hash pauser; the next refresh retries it.
var errHashPaused = errors.New("share: hashing paused for this file")

// RefreshTask describes one queued or running refresh.
type RefreshTask struct {
	Type     RefreshType
	Priority RefreshPriority
	Paths    []string // empty means "every registered root"

	queuedAt time.Time
}

// RefreshCompletion is delivered to Manager listeners once a task finishes.
type RefreshCompletion struct {
	Task  RefreshTask
	Stats RefreshStats
}

// CompletionListener is called after a refresh task finishes, off the
// worker goroutine's lock but still serialized with other completions.
type CompletionListener func(RefreshCompletion)

// Manager queues and runs refresh tasks against an Index. BLOCKING tasks
// run synchronously on the caller's goroutine; everything else runs on a
// single background worker, so only one refresh walks the filesystem at a
// time regardless of how many tasks are queued.
//
// Hashing a file pauses while that file is mid-transfer elsewhere in the
// process; callers needing that exclusion register it via SetHashPauser.
type Manager struct {
	mu         sync.Mutex
	idx        *Index
	cfg        Config
	v          *Validator
	cache      *hashcache.Cache
	hashPauser func(path string) bool

	queue  []RefreshTask
	closed bool
	wake   chan struct{}

	listeners []CompletionListener

	metrics metrics.ShareMetrics
}

// NewManager returns a Manager for idx, using v to vet filesystem entries
// during a walk. cache may be nil, in which case every file is rehashed on
// every refresh.
func NewManager(idx *Index, cfg Config, v *Validator, cache *hashcache.Cache) *Manager {
	m := &Manager{
		idx:   idx,
		cfg:   cfg,
		v:     v,
		cache: cache,
		wake:  make(chan struct{}, 1),
	}
	go m.loop()
	return m
}

// SetHashPauser installs a predicate consulted before hashing each file;
// a true return defers hashing that file to a later refresh pass instead
// of racing an in-progress write to it.
func (m *Manager) SetHashPauser(fn func(path string) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashPauser = fn
}

// AddListener registers a completion listener.
func (m *Manager) AddListener(l CompletionListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// SetMetrics installs a metrics collector. Pass nil to disable.
func (m *Manager) SetMetrics(mm metrics.ShareMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = mm
}

func (m *Manager) metricsSnapshot() metrics.ShareMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// Close stops the background worker. Queued non-blocking tasks are
// dropped.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	close(m.wake)
}

// Queue enqueues task. A BLOCKING task runs immediately on the calling
// goroutine and its stats are returned; any other priority is merged into
// the pending queue (deduplicating identical paths already queued for the
// same type) and runs on the background worker.
func (m *Manager) Queue(task RefreshTask) *RefreshStats {
	task.queuedAt = time.Now()

	if task.Priority == RefreshBlocking {
		stats := m.run(task)
		m.notify(RefreshCompletion{Task: task, Stats: stats})
		return &stats
	}

	m.mu.Lock()
	m.mergeLocked(task)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

// mergeLocked folds task into the pending queue, deduplicating paths
// already queued for the same RefreshType instead of scanning the same
// directory twice back to back. It does not cancel a refresh already in
// flight: an overlapping in-progress walk simply gets superseded by the
// next one picking up whatever changed since.
func (m *Manager) mergeLocked(task RefreshTask) {
	for i, existing := range m.queue {
		if existing.Type != task.Type {
			continue
		}
		merged := existing
		merged.Paths = dedupPaths(append(append([]string(nil), existing.Paths...), task.Paths...))
		if task.Priority > merged.Priority {
			merged.Priority = task.Priority
		}
		m.queue[i] = merged
		return
	}
	task.Paths = dedupPaths(task.Paths)
	m.queue = append(m.queue, task)
}

func dedupPaths(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		clean := filepath.Clean(p)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}

func (m *Manager) loop() {
	for range m.wake {
		for {
			task, ok := m.popLocked()
			if !ok {
				break
			}
			stats := m.run(task)
			m.notify(RefreshCompletion{Task: task, Stats: stats})
		}
	}
}

func (m *Manager) popLocked() (RefreshTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || len(m.queue) == 0 {
		return RefreshTask{}, false
	}
	best := 0
	for i, t := range m.queue {
		if t.Priority > m.queue[best].Priority {
			best = i
		}
	}
	task := m.queue[best]
	m.queue = append(m.queue[:best], m.queue[best+1:]...)
	return task, true
}

func (m *Manager) notify(c RefreshCompletion) {
	m.mu.Lock()
	listeners := append([]CompletionListener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range listeners {
		l(c)
	}
}

// run performs one refresh task to completion, splicing each affected
// root's rebuilt subtree into the index as it finishes.
func (m *Manager) run(task RefreshTask) RefreshStats {
	start := time.Now()
	var stats RefreshStats

	roots := m.rootsFor(task)
	for _, root := range roots {
		newTree, rootStats := m.buildTree(root)
		stats.DirsScanned += rootStats.DirsScanned
		stats.FilesIndexed += rootStats.FilesIndexed
		stats.FilesSkipped += rootStats.FilesSkipped
		stats.Errors = append(stats.Errors, rootStats.Errors...)

		m.idx.mu.Lock()
		m.idx.spliceLocked(root, newTree)
		m.idx.mu.Unlock()
	}

	stats.Errors = errorSummary(stats.Errors, m.cfg.MaxErrorsPerKind)
	stats.Duration = time.Since(start)

	metrics.ObserveRefresh(m.metricsSnapshot(), task.Type.String(), stats.Duration, stats.FilesIndexed, stats.FilesSkipped)
	metrics.SetIndexedFileCount(m.metricsSnapshot(), m.idx.FileCount())

	logger.Info("share refresh completed",
		logger.Operation(task.Type.String()),
		logger.Priority(task.Priority),
		"dirs_scanned", stats.DirsScanned,
		"files_indexed", stats.FilesIndexed,
		"files_skipped", stats.FilesSkipped,
		"errors", len(stats.Errors),
		logger.DurationMs(float64(stats.Duration.Microseconds())/1000))

	return stats
}

// rootsFor resolves which Roots a task applies to: every root named by
// Paths (matched by virtual name or containment under RealPath), or every
// registered root if Paths is empty.
func (m *Manager) rootsFor(task RefreshTask) []*Root {
	all := m.idx.Roots()
	if len(task.Paths) == 0 {
		return all
	}
	var matched []*Root
	for _, root := range all {
		for _, p := range task.Paths {
			if root.VirtualName == p || isWithinPath(root.RealPath, p) {
				matched = append(matched, root)
				break
			}
		}
	}
	return matched
}

func isWithinPath(dir, target string) bool {
	dir = filepath.Clean(dir)
	target = filepath.Clean(target)
	if dir == target {
		return true
	}
	rel, err := filepath.Rel(dir, target)
	return err == nil && rel != ".."
}

// buildTree walks root.RealPath and returns a freshly built subtree plus
// per-root stats, without touching the index's secondary maps; the caller
// splices the result in under idx.mu.
func (m *Manager) buildTree(root *Root) (*Directory, RefreshStats) {
	var stats RefreshStats
	newTree := newDirectory(root.VirtualName, root.RealPath)
	dirsByPath := map[string]*Directory{root.RealPath: newTree}

	walkErr := filepath.WalkDir(root.RealPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			stats.Errors = append(stats.Errors, ValidationError{Path: path, Reason: err.Error()})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root.RealPath {
			return nil
		}

		parent, ok := dirsByPath[filepath.Dir(path)]
		if !ok {
			return nil // parent was rejected; skip this entry too
		}

		if d.IsDir() {
			if reason, ok := m.v.ValidateDir(path, d.Name()); !ok {
				stats.Errors = append(stats.Errors, ValidationError{Path: path, Reason: reason})
				metrics.ObserveValidationRejection(m.metricsSnapshot(), reason)
				return filepath.SkipDir
			}
			child := newDirectory(d.Name(), path)
			parent.Dirs[strings.ToLower(d.Name())] = child
			dirsByPath[path] = child
			stats.DirsScanned++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			stats.Errors = append(stats.Errors, ValidationError{Path: path, Reason: err.Error()})
			return nil
		}
		if reason, ok := m.v.ValidateFile(path, info); !ok {
			stats.Errors = append(stats.Errors, ValidationError{Path: path, Reason: reason})
			stats.FilesSkipped++
			metrics.ObserveValidationRejection(m.metricsSnapshot(), reason)
			return nil
		}

		sum, err := m.hashFile(path, info)
		if err != nil {
			stats.Errors = append(stats.Errors, ValidationError{Path: path, Reason: err.Error()})
			stats.FilesSkipped++
			return nil
		}

		parent.Files[strings.ToLower(d.Name())] = &File{
			Name: d.Name(),
			Path: path,
			Size: info.Size(),
			TTH:  sum,
		}
		stats.FilesIndexed++
		return nil
	})
	if walkErr != nil {
		stats.Errors = append(stats.Errors, ValidationError{Path: root.RealPath, Reason: walkErr.Error()})
	}

	return newTree, stats
}

// hashFile returns path's TTH, consulting the hash cache first and storing
// a freshly computed hash back into it. If a hash pauser is installed and
// reports path as busy, hashing is skipped for this pass and the caller
// treats it as a file-level error so the next refresh retries it.
func (m *Manager) hashFile(path string, info fs.FileInfo) (tth.Sum, error) {
	m.mu.Lock()
	pauser := m.hashPauser
	m.mu.Unlock()
	if pauser != nil && pauser(path) {
		return tth.Sum{}, errHashPaused
	}

	if m.cache != nil {
		if sum, ok := m.cache.Lookup(path, info.Size(), info.ModTime()); ok {
			metrics.ObserveHashCacheResult(m.metricsSnapshot(), true)
			return sum, nil
		}
		metrics.ObserveHashCacheResult(m.metricsSnapshot(), false)
	}

	f, err := os.Open(path)
	if err != nil {
		return tth.Sum{}, err
	}
	defer f.Close()

	tree, err := tth.Build(f, info.Size())
	if err != nil {
		return tth.Sum{}, err
	}
	sum := tree.Root()

	if m.cache != nil {
		if err := m.cache.Store(path, info.Size(), info.ModTime(), sum); err != nil {
			logger.Warn("hash cache store failed", logger.Path(path), logger.Err(err))
		}
	}
	return sum, nil
}

