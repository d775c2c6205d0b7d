package connmgr

import "sync"

// Fake is an in-memory Manager used by queue and upload tests. StartDownload
// records the request and does not simulate wire activity; tests drive
// completion explicitly via Complete.
type Fake struct {
	mu          sync.Mutex
	started     []DownloadRequest
	results     chan SegmentResult
	disconnects []disconnectCall
}

var _ Manager = (*Fake)(nil)

type disconnectCall struct {
	QueueToken uint64
	Except     Source
}

// NewFake returns a ready-to-use Fake with a buffered results channel.
func NewFake() *Fake {
	return &Fake{results: make(chan SegmentResult, 64)}
}

func (f *Fake) StartDownload(req DownloadRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, req)
	return nil
}

func (f *Fake) Results() <-chan SegmentResult {
	return f.results
}

func (f *Fake) DisconnectOverlapping(queueToken uint64, except Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, disconnectCall{QueueToken: queueToken, Except: except})
}

// Started returns every DownloadRequest passed to StartDownload so far.
func (f *Fake) Started() []DownloadRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]DownloadRequest, len(f.started))
	copy(out, f.started)
	return out
}

// Complete pushes a successful SegmentResult onto the results channel, as
// if the connection manager had finished the transfer.
func (f *Fake) Complete(res SegmentResult) {
	f.results <- res
}

// DisconnectCount reports how many times DisconnectOverlapping was called
// for queueToken.
func (f *Fake) DisconnectCount(queueToken uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, d := range f.disconnects {
		if d.QueueToken == queueToken {
			n++
		}
	}
	return n
}
