// Package queue implements the download queue and bundle engine: the
// component that groups requested files into persisted bundles, tracks
// their segmented download progress, picks the next segment to fetch from
// an online source, and runs them through to completion and hand-off to
// the share index.
package queue

import (
	"sync"
	"time"

	"github.com/dcwire/aircore/internal/ids"
	"github.com/dcwire/aircore/pkg/connmgr"
	"github.com/dcwire/aircore/pkg/segment"
	"github.com/dcwire/aircore/pkg/tth"
)

// Priority is a closed, ordered priority scale. Comparisons use the
// underlying int ordering; never coerce an arbitrary int to Priority.
type Priority int

const (
	PriorityPausedForce Priority = iota
	PriorityPaused
	PriorityLowest
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
	PriorityDefault
)

func (p Priority) String() string {
	switch p {
	case PriorityPausedForce:
		return "PAUSED_FORCE"
	case PriorityPaused:
		return "PAUSED"
	case PriorityLowest:
		return "LOWEST"
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityHighest:
		return "HIGHEST"
	case PriorityDefault:
		return "DEFAULT"
	default:
		return "UNKNOWN"
	}
}

// IsPaused reports whether the priority represents any paused state.
func (p Priority) IsPaused() bool {
	return p == PriorityPaused || p == PriorityPausedForce
}

// Status is the closed lifecycle state of a QueueItem.
type Status int

const (
	StatusNew Status = iota
	StatusQueued
	StatusDownloaded
	StatusValidationRunning
	StatusValidationError
	StatusCompleted
	StatusShared
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusQueued:
		return "QUEUED"
	case StatusDownloaded:
		return "DOWNLOADED"
	case StatusValidationRunning:
		return "VALIDATION_RUNNING"
	case StatusValidationError:
		return "VALIDATION_ERROR"
	case StatusCompleted:
		return "COMPLETED"
	case StatusShared:
		return "SHARED"
	default:
		return "UNKNOWN"
	}
}

// BundleStatus is the closed lifecycle state of a Bundle.
type BundleStatus int

const (
	BundleNew BundleStatus = iota
	BundleQueued
	BundleRecheck
	BundleDownloadError
	BundleValidationRunning
	BundleValidationError
	BundleDownloaded
	BundleCompleted
	BundleShared
)

func (s BundleStatus) String() string {
	switch s {
	case BundleNew:
		return "NEW"
	case BundleQueued:
		return "QUEUED"
	case BundleRecheck:
		return "RECHECK"
	case BundleDownloadError:
		return "DOWNLOAD_ERROR"
	case BundleValidationRunning:
		return "VALIDATION_RUNNING"
	case BundleValidationError:
		return "VALIDATION_ERROR"
	case BundleDownloaded:
		return "DOWNLOADED"
	case BundleCompleted:
		return "COMPLETED"
	case BundleShared:
		return "SHARED"
	default:
		return "UNKNOWN"
	}
}

// SourceStatus marks why a source is currently unusable. SourceGood means
// no flag is set.
type SourceStatus int

const (
	SourceGood SourceStatus = iota
	SourceNoAccess
	SourceSlowSource
	SourceNoTree
	SourceFileNotAvailable
	SourceTTHInconsistency
	SourceNoNeedParts
)

func (s SourceStatus) String() string {
	switch s {
	case SourceGood:
		return "GOOD"
	case SourceNoAccess:
		return "NO_ACCESS"
	case SourceSlowSource:
		return "SLOW_SOURCE"
	case SourceNoTree:
		return "NO_TREE"
	case SourceFileNotAvailable:
		return "FILE_NOT_AVAILABLE"
	case SourceTTHInconsistency:
		return "TTH_INCONSISTENCY"
	case SourceNoNeedParts:
		return "NO_NEED_PARTS"
	default:
		return "UNKNOWN"
	}
}

// Flags are the boolean per-item attributes named in the data model.
type Flags struct {
	UserList    bool
	PartialList bool
	ClientView  bool
	Private     bool
	MatchQueue  bool
}

// ItemSource is one (user, hub) a QueueItem can be downloaded from.
type ItemSource struct {
	User      connmgr.UserIdentity
	HubHint   string
	Status    SourceStatus
	Partial   bool
	PartsInfo []segment.Segment
}

// IsGood reports whether the source is usable for new download attempts.
func (s ItemSource) IsGood() bool {
	return s.Status == SourceGood || s.Status == SourceNoNeedParts
}

// QueueItem is one queued file, identified by a process-unique token.
type QueueItem struct {
	mu sync.RWMutex

	Token        ids.Token
	Target       string
	TempTarget   string
	Size         int64
	TTH          tth.Sum
	Priority     Priority
	AutoPriority bool
	Status       Status
	Flags        Flags
	MaxSegments  int
	Added        time.Time
	RemoteDate   time.Time

	downloaded segment.Set
	sources    []ItemSource // good and bad sources share one slice; disjointness is by Status

	Bundle *Bundle // back-reference; nil only for standalone HIGHEST-priority items
}

// NewQueueItem constructs a QueueItem in the NEW lifecycle state.
func NewQueueItem(token ids.Token, target, tempTarget string, size int64, sum tth.Sum, priority Priority) *QueueItem {
	return &QueueItem{
		Token:       token,
		Target:      target,
		TempTarget:  tempTarget,
		Size:        size,
		TTH:         sum,
		Priority:    priority,
		Status:      StatusNew,
		MaxSegments: 1,
		Added:       time.Now(),
	}
}

// Downloaded returns a snapshot of the item's downloaded segment set.
func (qi *QueueItem) Downloaded() *segment.Set {
	qi.mu.RLock()
	defer qi.mu.RUnlock()
	cp := segment.NewSet()
	for _, seg := range qi.downloaded.Segments() {
		cp.Add(seg)
	}
	return cp
}

// DownloadedBytes returns the total bytes committed to disk so far.
func (qi *QueueItem) DownloadedBytes() int64 {
	qi.mu.RLock()
	defer qi.mu.RUnlock()
	return qi.downloaded.Total()
}

// Progress returns the downloaded fraction in [0, 1]. A zero-size item
// reports 1 (nothing left to do).
func (qi *QueueItem) Progress() float64 {
	qi.mu.RLock()
	defer qi.mu.RUnlock()
	if qi.Size <= 0 {
		return 1
	}
	return float64(qi.downloaded.Total()) / float64(qi.Size)
}

// AddSegment merges a completed segment into the downloaded set under the
// item's own lock, so the set is always consistent with disk by the time a
// caller observes the change. It returns true if the item is now fully
// downloaded.
func (qi *QueueItem) AddSegment(seg segment.Segment) (complete bool) {
	qi.mu.Lock()
	defer qi.mu.Unlock()
	qi.downloaded.Add(seg)
	return qi.downloaded.CoversAll(qi.Size)
}

// Gaps returns the undownloaded ranges of the item.
func (qi *QueueItem) Gaps() []segment.Segment {
	qi.mu.RLock()
	defer qi.mu.RUnlock()
	return qi.downloaded.Gaps(qi.Size)
}

// ResetDownloaded clears all recorded progress, used by recheck when a
// corrupt temp file must be re-verified from scratch.
func (qi *QueueItem) ResetDownloaded() {
	qi.mu.Lock()
	defer qi.mu.Unlock()
	qi.downloaded.Reset()
}

// SetDownloaded replaces the downloaded set outright, used by recheck to
// install exactly the set of verified blocks.
func (qi *QueueItem) SetDownloaded(segs []segment.Segment) {
	qi.mu.Lock()
	defer qi.mu.Unlock()
	qi.downloaded.Reset()
	for _, seg := range segs {
		qi.downloaded.Add(seg)
	}
}

// Sources returns a copy of the item's source list.
func (qi *QueueItem) Sources() []ItemSource {
	qi.mu.RLock()
	defer qi.mu.RUnlock()
	out := make([]ItemSource, len(qi.sources))
	copy(out, qi.sources)
	return out
}

// AddSource adds user as a source, or is a no-op if the user is already a
// source for this item (the source count invariant in property 7).
func (qi *QueueItem) AddSource(src ItemSource) (added bool) {
	qi.mu.Lock()
	defer qi.mu.Unlock()
	for i, existing := range qi.sources {
		if existing.User.CID == src.User.CID {
			qi.sources[i].HubHint = src.HubHint
			return false
		}
	}
	qi.sources = append(qi.sources, src)
	return true
}

// MarkSourceStatus updates a source's status. TTH_INCONSISTENCY is sticky:
// a source once marked inconsistent is never promoted back to good.
func (qi *QueueItem) MarkSourceStatus(cid string, status SourceStatus) {
	qi.mu.Lock()
	defer qi.mu.Unlock()
	for i := range qi.sources {
		if qi.sources[i].User.CID != cid {
			continue
		}
		if qi.sources[i].Status == SourceTTHInconsistency && status == SourceGood {
			return
		}
		qi.sources[i].Status = status
		return
	}
}

// GoodSources returns the subset of sources currently usable.
func (qi *QueueItem) GoodSources() []ItemSource {
	qi.mu.RLock()
	defer qi.mu.RUnlock()
	var out []ItemSource
	for _, s := range qi.sources {
		if s.IsGood() {
			out = append(out, s)
		}
	}
	return out
}

// SetPriority updates the item's priority, used by the auto-priority pass
// and by explicit user overrides.
func (qi *QueueItem) SetPriority(p Priority) {
	qi.mu.Lock()
	defer qi.mu.Unlock()
	qi.Priority = p
}

// SetStatus transitions the item's lifecycle status directly; callers are
// responsible for only making transitions the engine considers valid.
func (qi *QueueItem) SetStatus(status Status) {
	qi.mu.Lock()
	defer qi.mu.Unlock()
	qi.Status = status
}

// GetStatus returns the item's current status.
func (qi *QueueItem) GetStatus() Status {
	qi.mu.RLock()
	defer qi.mu.RUnlock()
	return qi.Status
}

// Bundle groups QueueItems sharing a target directory, or a single file
// for a file-bundle.
type Bundle struct {
	mu sync.RWMutex

	Token        ids.Token
	Target       string
	Priority     Priority
	AutoPriority bool
	Added        time.Time
	RemoteDate   time.Time
	FileBundle   bool
	Status       BundleStatus
	LastSearch   time.Time
	Dirty        bool
	SeqOrder     bool
	HookError    *HookErrorInfo

	queue    []*QueueItem
	finished []*QueueItem
}

// HookErrorInfo records the most recent bundle-completion hook rejection,
// cleared on the next successful hook run.
type HookErrorInfo struct {
	HookID   string
	RejectID string
	Message  string
}

// NewBundle constructs a Bundle in the NEW lifecycle state.
func NewBundle(token ids.Token, target string, priority Priority, fileBundle bool) *Bundle {
	return &Bundle{
		Token:      token,
		Target:     target,
		Priority:   priority,
		FileBundle: fileBundle,
		Status:     BundleNew,
		Added:      time.Now(),
	}
}

// AddItem adds qi to the bundle's queue list and sets its back-reference.
func (b *Bundle) AddItem(qi *QueueItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	qi.Bundle = b
	b.queue = append(b.queue, qi)
}

// Items returns a copy of the bundle's queued (not yet finished) items.
func (b *Bundle) Items() []*QueueItem {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*QueueItem, len(b.queue))
	copy(out, b.queue)
	return out
}

// Finished returns a copy of the bundle's finished items.
func (b *Bundle) Finished() []*QueueItem {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*QueueItem, len(b.finished))
	copy(out, b.finished)
	return out
}

// MarkFinished moves qi from the queue list to the finished list. It is a
// no-op if qi is not currently in the queue list, preserving membership
// invariant 2 (exactly one of queue/finished holds the item).
func (b *Bundle) MarkFinished(qi *QueueItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, item := range b.queue {
		if item == qi {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			b.finished = append(b.finished, qi)
			return
		}
	}
}

// Readd moves qi back from finished to queue, used when a completed
// bundle's shared files go missing (DOWNLOADED -> QUEUED "readd").
func (b *Bundle) Readd(qi *QueueItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, item := range b.finished {
		if item == qi {
			b.finished = append(b.finished[:i], b.finished[i+1:]...)
			b.queue = append(b.queue, qi)
			return
		}
	}
}

// SetStatus transitions the bundle's lifecycle status directly; callers
// are responsible for only making transitions the engine considers valid.
func (b *Bundle) SetStatus(status BundleStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Status = status
}

// GetStatus returns the bundle's current status.
func (b *Bundle) GetStatus() BundleStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.Status
}

// SetPriority updates the bundle's priority, used by the auto-priority
// pass when AutoPriority is enabled and by explicit user overrides.
func (b *Bundle) SetPriority(p Priority) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Priority = p
}

// AllDownloaded reports whether every item, queued or finished, has
// reached at least StatusDownloaded.
func (b *Bundle) AllDownloaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, item := range b.queue {
		if item.GetStatus() < StatusDownloaded {
			return false
		}
	}
	return true
}

// ItemCount returns the total number of items, queued plus finished.
func (b *Bundle) ItemCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.queue) + len(b.finished)
}
