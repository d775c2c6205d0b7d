package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dcwire/aircore/internal/ids"
	"github.com/dcwire/aircore/pkg/bloom"
	"github.com/dcwire/aircore/pkg/connmgr"
	"github.com/dcwire/aircore/pkg/hooks"
	"github.com/dcwire/aircore/pkg/metrics"
	"github.com/dcwire/aircore/pkg/segment"
	"github.com/dcwire/aircore/pkg/tth"
)

// ShareIndex is the narrow slice of the content index the queue engine
// needs: a fast existence check for duplicate-in-share rejection.
type ShareIndex interface {
	ContainsTTH(sum tth.Sum) bool
}

// Config holds the engine's tunable limits.
type Config struct {
	DownloadSlots       int           `mapstructure:"download_slots" validate:"required,gt=0" yaml:"download_slots"`
	ExtraDownloadSlots  int           `mapstructure:"extra_download_slots" validate:"gte=0" yaml:"extra_download_slots"`
	SpeedLimitBytesPS   int64         `mapstructure:"speed_limit_bytes_per_sec" validate:"gte=0" yaml:"speed_limit_bytes_per_sec"`
	ChunkSize           int64         `mapstructure:"chunk_size" validate:"required,gt=0" yaml:"chunk_size"`
	SmallFileThreshold  int64         `mapstructure:"small_file_threshold" validate:"gte=0" yaml:"small_file_threshold"`
	MaxSegmentsPerFile  int           `mapstructure:"max_segments_per_file" validate:"required,gt=0" yaml:"max_segments_per_file"`
	ForbiddenExtensions []string      `mapstructure:"forbidden_extensions" yaml:"forbidden_extensions,omitempty"`
	MaxFileSize         int64         `mapstructure:"max_file_size" validate:"gte=0" yaml:"max_file_size"`
	AllowZeroByte       bool          `mapstructure:"allow_zero_byte" yaml:"allow_zero_byte"`
	HookTimeout         time.Duration `mapstructure:"hook_timeout" validate:"required,gt=0" yaml:"hook_timeout"`
}

// DefaultConfig returns sane defaults matching the reference client's
// defaults for these settings.
func DefaultConfig() Config {
	return Config{
		DownloadSlots:       3,
		ExtraDownloadSlots:  3,
		SpeedLimitBytesPS:   0, // 0 = unlimited
		ChunkSize:           64 * 1024,
		SmallFileThreshold:  64 * 1024,
		MaxSegmentsPerFile:  3,
		ForbiddenExtensions: []string{".tmp", ".bak", ".bad", ".dctmp", ".!ut", ".bc!", ".missing", ".temp"},
		MaxFileSize:         0, // 0 = unlimited
		HookTimeout:         5 * time.Second,
	}
}

// AddRequest is the aggregated value the validation hook chain operates
// on; hooks may override Target or Priority.
type AddRequest struct {
	Target     string
	TempTarget string
	Size       int64
	TTH        tth.Sum
	Priority   Priority
	Source     *connmgr.Source
	Flags      Flags
}

// BundleAddInfo is returned from a single-file add.
type BundleAddInfo struct {
	Bundle *Bundle
	Merged bool
}

// DirectoryFileSpec describes one file within a directory-bundle add.
type DirectoryFileSpec struct {
	Name     string
	Size     int64
	TTH      tth.Sum
	Priority Priority
}

// AddDirectoryResult reports per-file outcomes of a directory bundle add.
type AddDirectoryResult struct {
	Bundle       *Bundle
	FilesAdded   int
	FilesUpdated int
	FilesFailed  int
	Errors       []error
}

// Engine is the download queue and bundle manager.
type Engine struct {
	mu sync.RWMutex // guards the maps below; readers dominate

	itemsByTarget map[string]*QueueItem
	bundles       map[ids.Token]*Bundle
	userIndex     map[string]map[ids.Token]*QueueItem // good-source CID -> token -> item

	downloadStartMu sync.Mutex // serializes GetNextDownload and its bookkeeping
	active          map[ids.Token][]segment.Segment

	cfg        Config
	tokens     *ids.Generator
	connMgr    connmgr.Manager
	shareIndex ShareIndex
	queueBloom *bloom.Filter

	validationHooks *hooks.Chain[AddRequest]
	completionHooks *hooks.Chain[BundleCompletionInput]

	search *SearchQueue

	metrics metrics.QueueMetrics
}

// BundleCompletionInput is passed through the bundle-completion hook
// chain once every item in a bundle reaches DOWNLOADED.
type BundleCompletionInput struct {
	Bundle *Bundle
}

// NewEngine constructs an Engine. shareIndex may be nil if duplicate-in-share
// checking is not yet wired (e.g. in isolated tests).
func NewEngine(cfg Config, tokens *ids.Generator, connMgr connmgr.Manager, shareIndex ShareIndex) *Engine {
	return &Engine{
		itemsByTarget:   make(map[string]*QueueItem),
		bundles:         make(map[ids.Token]*Bundle),
		userIndex:       make(map[string]map[ids.Token]*QueueItem),
		active:          make(map[ids.Token][]segment.Segment),
		cfg:             cfg,
		tokens:          tokens,
		connMgr:         connMgr,
		shareIndex:      shareIndex,
		queueBloom:      bloom.NewFilter(4096, 0.01),
		validationHooks: hooks.NewChain[AddRequest](cfg.HookTimeout),
		completionHooks: hooks.NewChain[BundleCompletionInput](cfg.HookTimeout),
		search:          NewSearchQueue(),
	}
}

// SetMetrics installs a metrics collector. Pass nil to disable.
func (e *Engine) SetMetrics(m metrics.QueueMetrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// RegisterValidationHook adds a hook to the add-validation chain.
func (e *Engine) RegisterValidationHook(id string, fn hooks.Func[AddRequest]) {
	e.validationHooks.Register(id, fn)
}

// RegisterCompletionHook adds a hook to the bundle-completion chain.
func (e *Engine) RegisterCompletionHook(id string, fn hooks.Func[BundleCompletionInput]) {
	e.completionHooks.Register(id, fn)
}

// PopNextSearch returns the next paced alternate-source search request, or
// nil if nothing is waiting its turn.
func (e *Engine) PopNextSearch() *SearchRequest {
	return e.search.PopNext()
}

// metricsSnapshot returns the currently installed metrics collector.
func (e *Engine) metricsSnapshot() metrics.QueueMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metrics
}

// validate runs the shared validation checks and the hook chain for a
// single file add. It does not mutate engine state.
func (e *Engine) validate(req AddRequest) (AddRequest, error) {
	if !e.cfg.AllowZeroByte && req.Size == 0 {
		metrics.ObserveBundleRejection(e.metricsSnapshot(), "zero_byte")
		return req, ErrZeroByte
	}
	if e.cfg.MaxFileSize > 0 && req.Size > e.cfg.MaxFileSize {
		metrics.ObserveBundleRejection(e.metricsSnapshot(), "too_large")
		return req, ErrTooLarge
	}
	ext := strings.ToLower(filepath.Ext(req.Target))
	for _, forbidden := range e.cfg.ForbiddenExtensions {
		if ext == forbidden {
			metrics.ObserveBundleRejection(e.metricsSnapshot(), "forbidden_extension")
			return req, ErrForbiddenExtension
		}
	}
	if e.shareIndex != nil && e.shareIndex.ContainsTTH(req.TTH) {
		metrics.ObserveBundleRejection(e.metricsSnapshot(), "duplicate_in_share")
		return req, ErrDuplicateInShare
	}

	out, rejection := e.validationHooks.Run(context.Background(), req)
	if rejection != nil {
		metrics.ObserveBundleRejection(e.metricsSnapshot(), "hook_rejected")
		return req, &QueueError{Op: "validate", Target: req.Target, Err: fmt.Errorf("%w: %s", ErrHookRejected, rejection.Message)}
	}
	return out, nil
}

// AddSingleFile adds or merges a single-file bundle.
func (e *Engine) AddSingleFile(req AddRequest) (*BundleAddInfo, error) {
	validated, err := e.validate(req)
	if err != nil {
		return nil, newQueueError("addFile", req.Target, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.itemsByTarget[validated.Target]; ok {
		if validated.Source != nil {
			e.addSourceLocked(existing, *validated.Source)
		}
		return &BundleAddInfo{Bundle: existing.Bundle, Merged: true}, nil
	}

	if parent := e.findParentBundleLocked(validated.Target); parent != nil {
		if parent.GetStatus() >= BundleCompleted {
			return nil, newQueueError("addFile", validated.Target, ErrTargetIsSubFolder)
		}
		qi := e.newItemLocked(validated)
		parent.AddItem(qi)
		e.itemsByTarget[qi.Target] = qi
		e.indexSourcesLocked(qi)
		qi.SetStatus(StatusQueued)
		return &BundleAddInfo{Bundle: parent, Merged: true}, nil
	}

	if subBundles := e.findSubBundlesLocked(validated.Target); len(subBundles) > 0 {
		return nil, newQueueError("addFile", validated.Target, ErrBundleHasSubBundles)
	}

	bundle := NewBundle(e.tokens.Next(), validated.Target, validated.Priority, true)
	qi := e.newItemLocked(validated)
	bundle.AddItem(qi)
	e.itemsByTarget[qi.Target] = qi
	e.bundles[bundle.Token] = bundle
	e.indexSourcesLocked(qi)
	bundle.SetStatus(BundleQueued)
	qi.SetStatus(StatusQueued)

	metrics.ObserveAdd(e.metrics, validated.Priority.String())
	metrics.SetQueueDepth(e.metrics, len(e.itemsByTarget))

	return &BundleAddInfo{Bundle: bundle, Merged: false}, nil
}

// AddDirectory adds or merges a multi-file directory bundle.
func (e *Engine) AddDirectory(targetDir string, files []DirectoryFileSpec, source *connmgr.Source) (*AddDirectoryResult, error) {
	e.mu.Lock()
	bundle := e.findBundleByTargetLocked(targetDir)
	merging := bundle != nil
	if !merging {
		if parent := e.findParentBundleLocked(targetDir); parent != nil {
			bundle = parent
			merging = true
		}
	}
	if !merging {
		if subBundles := e.findSubBundlesLocked(targetDir); len(subBundles) > 0 {
			e.mu.Unlock()
			return nil, newQueueError("addDirectory", targetDir, ErrBundleHasSubBundles)
		}
		bundle = NewBundle(e.tokens.Next(), targetDir, PriorityNormal, false)
		e.bundles[bundle.Token] = bundle
		bundle.SetStatus(BundleQueued)
	}
	e.mu.Unlock()

	result := &AddDirectoryResult{Bundle: bundle}
	for _, f := range files {
		target := filepath.Join(targetDir, f.Name)

		req := AddRequest{
			Target:     target,
			TempTarget: target + ".dctmp",
			Size:       f.Size,
			TTH:        f.TTH,
			Priority:   f.Priority,
			Source:     source,
		}
		validated, err := e.validate(req)
		if err != nil {
			result.FilesFailed++
			result.Errors = append(result.Errors, newQueueError("addDirectory", target, err))
			continue
		}

		e.mu.Lock()
		if existing, ok := e.itemsByTarget[validated.Target]; ok {
			if validated.Source != nil {
				e.addSourceLocked(existing, *validated.Source)
			}
			result.FilesUpdated++
			e.mu.Unlock()
			continue
		}

		qi := e.newItemLocked(validated)
		bundle.AddItem(qi)
		e.itemsByTarget[qi.Target] = qi
		e.indexSourcesLocked(qi)
		qi.SetStatus(StatusQueued)
		result.FilesAdded++
		e.mu.Unlock()
	}

	return result, nil
}

// AddFileList queues a file-list or partial-list download. These items are
// not members of a bundle; they use HIGHEST priority per the standalone
// QueueItem invariant.
func (e *Engine) AddFileList(user connmgr.UserIdentity, hubHint, tempTarget string, partial bool) *QueueItem {
	e.mu.Lock()
	defer e.mu.Unlock()

	qi := NewQueueItem(e.tokens.Next(), tempTarget, tempTarget, 0, tth.Sum{}, PriorityHighest)
	qi.Flags.UserList = true
	qi.Flags.PartialList = partial
	qi.AddSource(ItemSource{User: user, HubHint: hubHint})
	e.itemsByTarget[qi.Target] = qi
	e.indexSourcesLocked(qi)
	qi.SetStatus(StatusQueued)
	return qi
}

func (e *Engine) newItemLocked(req AddRequest) *QueueItem {
	qi := NewQueueItem(e.tokens.Next(), req.Target, req.TempTarget, req.Size, req.TTH, req.Priority)
	qi.Flags = req.Flags
	if req.Size <= e.cfg.SmallFileThreshold {
		qi.MaxSegments = 1
	} else if e.cfg.MaxSegmentsPerFile > 0 {
		qi.MaxSegments = e.cfg.MaxSegmentsPerFile
	}
	if req.Source != nil {
		qi.AddSource(ItemSource{
			User:      req.Source.User,
			HubHint:   req.Source.HubURL,
			Partial:   req.Source.Partial,
			PartsInfo: req.Source.PartsInfo,
		})
	}
	e.queueBloom.Add(req.TTH[:])
	return qi
}

func (e *Engine) addSourceLocked(qi *QueueItem, src connmgr.Source) {
	added := qi.AddSource(ItemSource{
		User:      src.User,
		HubHint:   src.HubURL,
		Partial:   src.Partial,
		PartsInfo: src.PartsInfo,
	})
	if added {
		e.indexSourcesLocked(qi)
	}
}

func (e *Engine) indexSourcesLocked(qi *QueueItem) {
	for _, src := range qi.Sources() {
		if !src.IsGood() {
			continue
		}
		byUser, ok := e.userIndex[src.User.CID]
		if !ok {
			byUser = make(map[ids.Token]*QueueItem)
			e.userIndex[src.User.CID] = byUser
		}
		byUser[qi.Token] = qi
	}
}

// ContainsTTH supports a fast duplicate-in-queue check, mirroring the
// share index's ContainsTTH so the validation path can treat both
// symmetrically.
func (e *Engine) ContainsTTH(sum tth.Sum) bool {
	if !e.queueBloom.Contains(sum[:]) {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, qi := range e.itemsByTarget {
		if qi.TTH == sum {
			return true
		}
	}
	return false
}

// IsUnfinished reports whether path is the temp target of an item still in
// the queue, satisfying share.UnfinishedBundleChecker so refresh excludes
// in-progress downloads from the shared tree.
func (e *Engine) IsUnfinished(path string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, qi := range e.itemsByTarget {
		if qi.TempTarget == path && qi.GetStatus() < StatusDownloaded {
			return true
		}
	}
	return false
}

// LookupByTTH reports the local download-queue state for sum: the owning
// bundle's token, the item's downloaded segment set, and whether any
// sibling item in the bundle has already finished. It is the collaborator
// PBDRegistry calls through share.BundleLookup to answer partial-bundle-
// discovery requests without the queue package importing share.
func (e *Engine) LookupByTTH(sum tth.Sum) (token ids.Token, downloaded *segment.Set, hasFinishedFiles bool, found bool) {
	if !e.queueBloom.Contains(sum[:]) {
		return 0, nil, false, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, qi := range e.itemsByTarget {
		if qi.TTH != sum {
			continue
		}
		if qi.Bundle == nil {
			return 0, qi.Downloaded(), false, true
		}
		return qi.Bundle.Token, qi.Downloaded(), len(qi.Bundle.Finished()) > 0, true
	}
	return 0, nil, false, false
}

// findBundleByTargetLocked returns the bundle whose target matches dir
// exactly.
func (e *Engine) findBundleByTargetLocked(dir string) *Bundle {
	for _, b := range e.bundles {
		if b.Target == dir {
			return b
		}
	}
	return nil
}

// findParentBundleLocked returns a non-completed bundle whose target tree
// contains target, if any.
func (e *Engine) findParentBundleLocked(target string) *Bundle {
	for _, b := range e.bundles {
		if b.GetStatus() >= BundleCompleted {
			continue
		}
		if isWithin(b.Target, target) {
			return b
		}
	}
	return nil
}

// findSubBundlesLocked returns bundles whose target is inside the target
// directory being added, used to reject BUNDLE_HAS_SUB_BUNDLES.
func (e *Engine) findSubBundlesLocked(target string) []*Bundle {
	var out []*Bundle
	for _, b := range e.bundles {
		if isWithin(target, b.Target) {
			out = append(out, b)
		}
	}
	return out
}

// isWithin reports whether target is inside (or equal to) dir.
func isWithin(dir, target string) bool {
	dir = filepath.Clean(dir)
	target = filepath.Clean(target)
	if dir == target {
		return true
	}
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

