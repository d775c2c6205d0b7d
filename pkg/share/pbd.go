package share

import (
	"sync"

	"github.com/dcwire/aircore/pkg/connmgr"
	"github.com/dcwire/aircore/pkg/metrics"
	"github.com/dcwire/aircore/pkg/segment"
	"github.com/dcwire/aircore/pkg/tth"
)

// PartialBundleInfo is what we know locally about a bundle identified by
// its TTH, reported back to a peer that asked about it via PBD.
type PartialBundleInfo struct {
	BundleToken      uint64
	Downloaded       *segment.Set
	HasFinishedFiles bool
}

// BundleLookup resolves a TTH to local queue state, the narrow boundary
// PBDRegistry uses instead of importing the download queue directly,
// mirroring UnfinishedBundleChecker's role in validate.go.
type BundleLookup func(sum tth.Sum) (PartialBundleInfo, bool)

// PBDKind distinguishes the three PBD exchange message shapes.
type PBDKind int

const (
	// PBDRequest is sent on a search miss when the local queue already
	// has a bundle for the searched TTH, offering to exchange parts
	// info instead of (or alongside) a normal search result.
	PBDRequest PBDKind = iota
	// PBDPieceUpdate ("PBD/UP1") notifies a subscribed peer that another
	// byte range of a bundle they're also downloading has completed.
	PBDPieceUpdate
	// PBDUnsubscribe ("PBD/RM1") tells a peer to stop expecting further
	// updates, sent once the local bundle finishes.
	PBDUnsubscribe
)

// PBDMessage is one outbound partial-bundle-discovery message.
type PBDMessage struct {
	Kind             PBDKind
	TTH              tth.Sum
	Downloaded       *segment.Set
	HasFinishedFiles bool
	WantsUpdates     bool
	Piece            segment.Segment
}

// Sender delivers an outbound PBD message to a peer over whatever
// transport connmgr has open with them.
type Sender func(user connmgr.UserIdentity, hubURL string, msg PBDMessage)

type pbdSubscriber struct {
	user   connmgr.UserIdentity
	hubURL string
}

// PBDRegistry implements the partial-bundle-discovery exchange: answering
// incoming PBD requests from BundleLookup, tracking which peers asked to
// be kept updated on a bundle's progress, and fanning piece-completion and
// unsubscribe notifications out to them.
type PBDRegistry struct {
	mu     sync.Mutex
	lookup BundleLookup
	send   Sender

	subscribers map[tth.Sum][]pbdSubscriber

	metrics metrics.ShareMetrics
}

// SetMetrics installs a metrics collector. Pass nil to disable.
func (r *PBDRegistry) SetMetrics(m metrics.ShareMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

func (r *PBDRegistry) metricsSnapshot() metrics.ShareMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// NewPBDRegistry returns a PBDRegistry that resolves local bundle state
// via lookup and delivers outbound messages via send.
func NewPBDRegistry(lookup BundleLookup, send Sender) *PBDRegistry {
	return &PBDRegistry{
		lookup:      lookup,
		send:        send,
		subscribers: make(map[tth.Sum][]pbdSubscriber),
	}
}

// HandleIncoming answers a peer's PBD request for sum, registering them as
// a piece-update subscriber if they asked for updates and we have
// something to report. The bool return is false if we have no local
// bundle for sum at all, meaning no PBD response should be sent.
func (r *PBDRegistry) HandleIncoming(from connmgr.UserIdentity, hubURL string, sum tth.Sum, wantsUpdates bool) (PBDMessage, bool) {
	info, ok := r.lookup(sum)
	if !ok {
		return PBDMessage{}, false
	}
	metrics.ObservePBDExchange(r.metricsSnapshot(), "request")

	if wantsUpdates {
		r.mu.Lock()
		r.subscribers[sum] = appendSubscriberOnce(r.subscribers[sum], pbdSubscriber{user: from, hubURL: hubURL})
		r.mu.Unlock()
	}

	return PBDMessage{
		Kind:             PBDRequest,
		TTH:              sum,
		Downloaded:       info.Downloaded,
		HasFinishedFiles: info.HasFinishedFiles,
	}, true
}

// NotifyPieceComplete fans a PBD/UP1 update out to every peer subscribed
// to sum, reporting the byte range that just finished.
func (r *PBDRegistry) NotifyPieceComplete(sum tth.Sum, piece segment.Segment) {
	for _, sub := range r.snapshotSubscribers(sum) {
		r.send(sub.user, sub.hubURL, PBDMessage{Kind: PBDPieceUpdate, TTH: sum, Piece: piece})
		metrics.ObservePBDExchange(r.metricsSnapshot(), "piece_update")
	}
}

// NotifyBundleComplete sends PBD/RM1 to every subscriber of sum and drops
// them, since a completed bundle has nothing further to report.
func (r *PBDRegistry) NotifyBundleComplete(sum tth.Sum) {
	subs := r.snapshotSubscribers(sum)

	r.mu.Lock()
	delete(r.subscribers, sum)
	r.mu.Unlock()

	for _, sub := range subs {
		r.send(sub.user, sub.hubURL, PBDMessage{Kind: PBDUnsubscribe, TTH: sum})
		metrics.ObservePBDExchange(r.metricsSnapshot(), "unsubscribe")
	}
}

// SubscriberCount reports how many peers are currently subscribed to
// updates for sum, used in tests and diagnostics.
func (r *PBDRegistry) SubscriberCount(sum tth.Sum) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers[sum])
}

func (r *PBDRegistry) snapshotSubscribers(sum tth.Sum) []pbdSubscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pbdSubscriber(nil), r.subscribers[sum]...)
}

func appendSubscriberOnce(subs []pbdSubscriber, add pbdSubscriber) []pbdSubscriber {
	for _, s := range subs {
		if s.user.CID == add.user.CID && s.hubURL == add.hubURL {
			return subs
		}
	}
	return append(subs, add)
}
