package upload

import (
	"sync"
	"time"

	"github.com/dcwire/aircore/pkg/connmgr"
	"github.com/dcwire/aircore/pkg/segment"
	"github.com/dcwire/aircore/pkg/tth"
)

// SlotTag names the kind of slot a FILESLOT or USERSLOT grant was made
// under, carried into logging and the live slot dashboard.
type SlotTag string

const (
	SlotUser     SlotTag = "userslot"
	SlotMCNSmall SlotTag = "mcn_small"
	SlotMiniSlot SlotTag = "minislot"
)

// ResolvedFile is what a FileIndex reports for a requested virtual path:
// enough for the slot manager to classify the request and open a reader
// once a slot is granted.
type ResolvedFile struct {
	Size int64
	TTH  tth.Sum
	// MetaFile marks file lists, thumbnails and other small generated
	// content eligible for the dedicated mini-slot category, distinct
	// from "small" (which also covers ordinary files under the
	// configured mini-file size threshold).
	MetaFile bool
	Open     func(seg segment.Segment) (connmgr.ReadSeekCloser, error)
}

// FileIndex resolves a requested virtual path to file metadata and an
// opener, or reports why it cannot be served. It is the share index's
// narrow view into the upload path, mirroring queue.ShareIndex's role on
// the download side.
type FileIndex interface {
	Resolve(requestedFile string) (ResolvedFile, error)
}

// SlotVote is the input slot-type hooks vote on: they may force a
// USERSLOT grant that would otherwise be denied by the standard cap.
type SlotVote struct {
	Request    connmgr.UploadRequest
	ForceSlot  bool
	VotedBySub string
}

// Upload is one admitted, in-progress transfer.
type Upload struct {
	mu sync.RWMutex

	User          connmgr.UserIdentity
	ConnectionID  string
	RequestedFile string
	TTH           tth.Sum
	Segment       segment.Segment
	Slot          SlotTag
	Started       time.Time

	reader    connmgr.ReadSeekCloser
	bytesSent int64
}

// Read implements io.Reader over the upload's underlying file handle,
// tracking bytes sent for listeners and the speed estimator.
func (u *Upload) Read(p []byte) (int, error) {
	n, err := u.reader.Read(p)
	if n > 0 {
		u.mu.Lock()
		u.bytesSent += int64(n)
		u.mu.Unlock()
	}
	return n, err
}

// BytesSent returns the number of bytes streamed so far.
func (u *Upload) BytesSent() int64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.bytesSent
}

// Close releases the upload's file handle. Callers that want delay-list
// reuse should go through Manager.CompleteUpload instead of calling this
// directly.
func (u *Upload) Close() error {
	return u.reader.Close()
}

// Listener receives slot lifecycle events for the API layer's live
// dashboard.
type Listener interface {
	UploadAdded(u *Upload)
	UploadCompleted(u *Upload)
	UploadFailed(u *Upload, err error)
}
