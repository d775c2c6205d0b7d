package queue

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Search pacing constants. BundleSearchInterval is how often a single
// bundle is allowed to trigger a new source search; RecentBundleWindow
// gives newly added bundles priority over the backlog.
const (
	BundleSearchInterval   = 10 * time.Minute
	RecentBundleWindow     = 5 * time.Minute
	MaxRepresentativeFiles = 5
)

// SearchRequest is one outgoing search the hub layer should issue,
// carrying a small representative sample of the bundle's remaining files
// rather than every file in a large bundle.
type SearchRequest struct {
	Bundle *Bundle
	Files  []string
}

// SearchQueue paces outgoing alternate-source searches so a large queue
// of bundles does not flood every hub with a search per bundle per tick.
type SearchQueue struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	pending  []*Bundle
	queued   map[*Bundle]bool
}

// NewSearchQueue returns a SearchQueue using the default pacing interval.
func NewSearchQueue() *SearchQueue {
	return &SearchQueue{
		interval: BundleSearchInterval,
		now:      time.Now,
		queued:   make(map[*Bundle]bool),
	}
}

// Enqueue marks bundle as a candidate for its next source search, unless
// it was searched more recently than the pacing interval allows or is
// already waiting in the queue.
func (q *SearchQueue) Enqueue(bundle *Bundle) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queued[bundle] {
		return
	}
	if !bundle.LastSearch.IsZero() && q.now().Sub(bundle.LastSearch) < q.interval {
		return
	}
	q.pending = append(q.pending, bundle)
	q.queued[bundle] = true
}

// PopNext removes and returns the next bundle's search request, preferring
// bundles added within RecentBundleWindow over the rest of the backlog. It
// returns nil when the queue is empty.
func (q *SearchQueue) PopNext() *SearchRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}

	now := q.now()
	best := 0
	bestRecent := isRecent(q.pending[0], now)
	for i := 1; i < len(q.pending); i++ {
		recent := isRecent(q.pending[i], now)
		if recent && !bestRecent {
			best, bestRecent = i, true
		}
	}

	bundle := q.pending[best]
	q.pending = append(q.pending[:best], q.pending[best+1:]...)
	delete(q.queued, bundle)

	bundle.mu.Lock()
	bundle.LastSearch = now
	bundle.mu.Unlock()

	return &SearchRequest{Bundle: bundle, Files: representativeFiles(bundle)}
}

// Len reports how many bundles are waiting their turn.
func (q *SearchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func isRecent(bundle *Bundle, now time.Time) bool {
	return now.Sub(bundle.Added) < RecentBundleWindow
}

// representativeFiles picks up to MaxRepresentativeFiles names out of a
// bundle's remaining queue, one per distinct parent directory where
// possible, preferring the longest (most specific) file name in each
// group since short generic names ("readme.txt", "cd1") match poorly.
func representativeFiles(bundle *Bundle) []string {
	items := bundle.Items()
	if len(items) == 0 {
		return nil
	}

	byDir := make(map[string]*QueueItem)
	for _, item := range items {
		dir := filepath.Dir(item.Target)
		existing, ok := byDir[dir]
		if !ok || meaningfulLength(item.Target) > meaningfulLength(existing.Target) {
			byDir[dir] = item
		}
	}

	names := make([]string, 0, len(byDir))
	for _, item := range byDir {
		names = append(names, item.Target)
	}
	sort.Slice(names, func(i, j int) bool {
		return meaningfulLength(names[i]) > meaningfulLength(names[j])
	})

	if len(names) > MaxRepresentativeFiles {
		names = names[:MaxRepresentativeFiles]
	}
	return names
}

// meaningfulLength scores a file name by its length with the extension
// stripped, so "Artist - Album - 01 Title.flac" outranks "cover.jpg".
func meaningfulLength(target string) int {
	base := filepath.Base(target)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return len(base)
}
