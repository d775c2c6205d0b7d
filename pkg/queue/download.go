package queue

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dcwire/aircore/internal/ids"
	"github.com/dcwire/aircore/internal/logger"
	"github.com/dcwire/aircore/pkg/connmgr"
	"github.com/dcwire/aircore/pkg/metrics"
	"github.com/dcwire/aircore/pkg/segment"
)

// ErrNoDownloadAvailable is returned by GetNextDownload when the user has
// no queued item this engine can currently assign a segment of.
var ErrNoDownloadAvailable = errors.New("no download available for this source")

// StartResult describes the segment an engine has picked to download next.
type StartResult struct {
	Item     *QueueItem
	Bundle   *Bundle
	Source   ItemSource
	Segment  segment.Segment
	ConnType connmgr.ConnectionType
}

// candidate pairs an item with the source entry that made it eligible for
// the requesting user, kept together so the priority walk only has to sort
// once.
type candidate struct {
	item   *QueueItem
	source ItemSource
}

// GetNextDownload picks the next segment to fetch from user, serialized
// against every other caller so two connections can never be handed the
// same bytes of the same item.
func (e *Engine) GetNextDownload(user connmgr.UserIdentity, runningBundles map[ids.Token]int, connType connmgr.ConnectionType) (*StartResult, error) {
	e.downloadStartMu.Lock()
	defer e.downloadStartMu.Unlock()

	candidates := e.collectCandidatesLocked(user)
	if len(candidates) == 0 {
		return nil, ErrNoDownloadAvailable
	}

	anyOtherRunning := false
	for _, n := range runningBundles {
		if n > 0 {
			anyOtherRunning = true
			break
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].item.Priority > candidates[j].item.Priority
	})

	for _, c := range candidates {
		if c.item.Priority == PriorityLowest && anyOtherRunning {
			continue
		}
		if c.item.Bundle != nil && c.item.Bundle.Priority.IsPaused() {
			continue
		}
		seg, ok := e.pickSegmentLocked(c.item, c.source)
		if !ok {
			continue
		}
		e.markActiveLocked(c.item.Token, seg)
		return &StartResult{
			Item:     c.item,
			Bundle:   c.item.Bundle,
			Source:   c.source,
			Segment:  seg,
			ConnType: connType,
		}, nil
	}

	return nil, ErrNoDownloadAvailable
}

func (e *Engine) collectCandidatesLocked(user connmgr.UserIdentity) []candidate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	byUser := e.userIndex[user.CID]
	candidates := make([]candidate, 0, len(byUser))
	for _, qi := range byUser {
		if qi.Priority.IsPaused() {
			continue
		}
		status := qi.GetStatus()
		if status != StatusNew && status != StatusQueued {
			continue
		}
		var src ItemSource
		found := false
		for _, s := range qi.Sources() {
			if s.User.CID == user.CID && s.IsGood() {
				src = s
				found = true
				break
			}
		}
		if !found {
			continue
		}
		candidates = append(candidates, candidate{item: qi, source: src})
	}
	return candidates
}

// e.active tracks segments currently assigned to a running transfer, so
// two sources are never handed the same bytes concurrently. Guarded by
// downloadStartMu: every read and write happens while that lock is held.

func (e *Engine) pickSegmentLocked(qi *QueueItem, src ItemSource) (segment.Segment, bool) {
	gaps := qi.Gaps()
	if len(gaps) == 0 {
		return segment.Segment{}, false
	}

	available := gaps
	if src.Partial {
		available = segment.Intersect(qi.Downloaded(), src.PartsInfo, qi.Size)
		if len(available) == 0 {
			return segment.Segment{}, false
		}
	}

	active := e.activeRangesLocked(qi.Token)
	free := subtractAll(available, active)
	if len(free) == 0 {
		return segment.Segment{}, false
	}

	best := free[0]
	for _, s := range free[1:] {
		if s.Length > best.Length {
			best = s
		}
	}

	chunk := e.cfg.ChunkSize
	if chunk <= 0 || qi.MaxSegments <= 1 || best.Length <= chunk {
		return best, true
	}
	return segment.Segment{Start: best.Start, Length: chunk}, true
}

// subtractAll removes every range in busy from every range in avail,
// returning the remaining free sub-ranges.
func subtractAll(avail, busy []segment.Segment) []segment.Segment {
	free := append([]segment.Segment(nil), avail...)
	for _, b := range busy {
		var next []segment.Segment
		for _, a := range free {
			next = append(next, subtractOne(a, b)...)
		}
		free = next
	}
	return free
}

func subtractOne(a, b segment.Segment) []segment.Segment {
	aEnd, bEnd := a.End(), b.End()
	if b.Start >= aEnd || bEnd <= a.Start {
		return []segment.Segment{a}
	}
	var out []segment.Segment
	if b.Start > a.Start {
		out = append(out, segment.Segment{Start: a.Start, Length: b.Start - a.Start})
	}
	if bEnd < aEnd {
		out = append(out, segment.Segment{Start: bEnd, Length: aEnd - bEnd})
	}
	return out
}

func (e *Engine) activeRangesLocked(token ids.Token) []segment.Segment {
	if e.active == nil {
		return nil
	}
	return e.active[token]
}

func (e *Engine) markActiveLocked(token ids.Token, seg segment.Segment) {
	if e.active == nil {
		e.active = make(map[ids.Token][]segment.Segment)
	}
	e.active[token] = append(e.active[token], seg)
}

func (e *Engine) clearActiveLocked(token ids.Token, seg segment.Segment) {
	segs := e.active[token]
	for i, s := range segs {
		if s == seg {
			e.active[token] = append(segs[:i], segs[i+1:]...)
			return
		}
	}
}

// HandleSegmentResult applies the outcome of a finished or failed download
// attempt to the owning item and bundle.
func (e *Engine) HandleSegmentResult(res connmgr.SegmentResult) {
	token := ids.Token(res.QueueToken)

	e.downloadStartMu.Lock()
	e.clearActiveLocked(token, res.Segment)
	e.downloadStartMu.Unlock()

	e.mu.RLock()
	qi := e.findItemByTokenLocked(token)
	e.mu.RUnlock()
	if qi == nil {
		return
	}

	if res.Err != nil {
		e.handleSegmentFailure(qi, res)
		return
	}

	written := alignDown(res.BytesReceived, e.cfg.ChunkSize)
	if written <= 0 {
		return
	}
	metrics.ObserveBytesDownloaded(e.metricsSnapshot(), written)
	complete := qi.AddSegment(segment.Segment{Start: res.Segment.Start, Length: written})
	if !complete {
		return
	}

	from := qi.GetStatus()
	qi.SetStatus(StatusDownloaded)
	metrics.ObserveStatusTransition(e.metricsSnapshot(), from.String(), StatusDownloaded.String())
	if e.connMgr != nil {
		e.connMgr.DisconnectOverlapping(uint64(qi.Token), res.Source)
	}

	bundle := qi.Bundle
	if bundle == nil {
		return
	}
	bundle.MarkFinished(qi)
	if bundle.AllDownloaded() {
		e.completeBundle(bundle)
	}
}

func (e *Engine) handleSegmentFailure(qi *QueueItem, res connmgr.SegmentResult) {
	if res.BytesReceived > 0 {
		written := alignDown(res.BytesReceived, e.cfg.ChunkSize)
		if written > 0 {
			qi.AddSegment(segment.Segment{Start: res.Segment.Start, Length: written})
		}
	}

	status := SourceSlowSource
	if errors.Is(res.Err, ErrTTHMismatch) {
		status = SourceTTHInconsistency
	}
	qi.MarkSourceStatus(res.Source.User.CID, status)
	metrics.ObserveSourceStatus(e.metricsSnapshot(), status.String())

	if len(qi.GoodSources()) == 0 && qi.Bundle != nil {
		e.search.Enqueue(qi.Bundle)
	}

	logger.Warn("segment download failed",
		logger.Component("queue"),
		logger.Target(qi.Target),
		logger.PeerCID(res.Source.User.CID),
		logger.Err(res.Err),
	)
}

func (e *Engine) completeBundle(bundle *Bundle) {
	bundle.SetStatus(BundleDownloaded)
	elapsed := time.Since(bundle.Added)

	_, rejection := e.completionHooks.Run(context.Background(), BundleCompletionInput{Bundle: bundle})
	if rejection != nil {
		bundle.mu.Lock()
		bundle.HookError = &HookErrorInfo{HookID: rejection.HookID, RejectID: rejection.RejectID, Message: rejection.Message}
		bundle.mu.Unlock()
		bundle.SetStatus(BundleValidationError)
		metrics.ObserveBundleCompletion(e.metricsSnapshot(), elapsed, errors.New(rejection.RejectID))
		return
	}

	bundle.mu.Lock()
	bundle.HookError = nil
	bundle.mu.Unlock()
	bundle.SetStatus(BundleCompleted)
	metrics.ObserveBundleCompletion(e.metricsSnapshot(), elapsed, nil)
}

func (e *Engine) findItemByTokenLocked(token ids.Token) *QueueItem {
	for _, qi := range e.itemsByTarget {
		if qi.Token == token {
			return qi
		}
	}
	return nil
}

func alignDown(n, block int64) int64 {
	if block <= 0 {
		return n
	}
	return (n / block) * block
}
