// Package connmgr defines the boundary between the queue and upload
// components and the connection manager: the external collaborator that
// owns actual peer sockets, negotiates GET/SND and ADC transfer commands,
// and reports segment progress back in. The core components only ever see
// the types in this package; they never open or read a socket themselves.
package connmgr

import (
	"time"

	"github.com/dcwire/aircore/pkg/segment"
	"github.com/dcwire/aircore/pkg/tth"
)

// UserIdentity identifies a remote peer independent of which hub it was
// seen on.
type UserIdentity struct {
	CID  string // client identifier, stable across hubs
	Nick string
}

// Source is one (user, hub) pairing a QueueItem can download from.
type Source struct {
	User    UserIdentity
	HubURL  string
	Partial bool
	// PartsInfo lists the byte ranges this source has, when Partial is
	// true. A nil slice means "no parts-info received yet".
	PartsInfo []segment.Segment
}

// SlotType mirrors the transfer slot classification negotiated with a
// peer for a download request.
type SlotType int

const (
	SlotNone SlotType = iota
	SlotStandard
	SlotSmall
)

// ConnectionType distinguishes an active (we connect out) from a passive
// (peer connects to us, or we ask them to) transfer setup.
type ConnectionType int

const (
	ConnActive ConnectionType = iota
	ConnPassive
)

// DownloadRequest is what the queue engine hands the connection manager
// once getNextDownload has picked a source and segment.
type DownloadRequest struct {
	QueueToken uint64
	Source     Source
	Segment    segment.Segment
	SlotType   SlotType
	ConnType   ConnectionType
	TTH        tth.Sum
	TempTarget string
}

// SegmentResult is reported back by the connection manager once a segment
// finishes, fails, or is aborted mid-transfer.
type SegmentResult struct {
	QueueToken uint64
	Source     Source
	Segment    segment.Segment
	// BytesReceived may be less than Segment.Length on failure; the
	// caller is responsible for coalescing only the bytes that landed on
	// a block boundary.
	BytesReceived int64
	Err           error
}

// Manager is the interface the queue and upload components depend on. A
// real implementation owns sockets and wire codecs; this package only
// specifies the contract and ships an in-memory fake for tests.
type Manager interface {
	// StartDownload asks the connection manager to open (or reuse) a
	// connection to req.Source and begin transferring req.Segment. The
	// manager reports completion asynchronously via the SegmentResult
	// channel returned by Results.
	StartDownload(req DownloadRequest) error

	// Results returns the channel SegmentResult values are delivered on.
	Results() <-chan SegmentResult

	// DisconnectOverlapping tears down any other in-flight transfer of
	// the same QueueItem, used once a download completes and any
	// sibling transfer racing for the same bytes must stop.
	DisconnectOverlapping(queueToken uint64, except Source)
}

// UploadRequest is what a peer asks for over GET/SND (ADC) or $ADCGET
// (NMDC), normalized by the hub/protocol layer before it reaches the
// upload slot manager.
type UploadRequest struct {
	User          UserIdentity
	RequestedFile string // TTH-prefixed virtual path or literal virtual path
	Segment       segment.Segment
	TTH           tth.Sum
	ConnectionID  string // identifies the physical connection for slot stickiness
	IP            string // remote address, used for per-IP slot reservation
	PartialList   bool
	MCNCapable    bool
	RequestTime   time.Time
}

// PreparedUpload is returned by the upload slot manager once a request is
// admitted: an opened read handle and the slot it was granted.
type PreparedUpload struct {
	User     UserIdentity
	Segment  segment.Segment
	SlotType SlotType
	Reader   ReadSeekCloser
}

// ReadSeekCloser is the minimal file handle surface the upload path needs;
// kept as a narrow interface so tests can substitute an in-memory reader.
type ReadSeekCloser interface {
	Read(p []byte) (n int, err error)
	Seek(offset int64, whence int) (int64, error)
	Close() error
}
