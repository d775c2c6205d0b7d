package hub

import (
	"time"

	"github.com/dcwire/aircore/pkg/tth"
)

// Identity describes a hub user, ourselves or a peer, independent of
// protocol. ADC carries most of these fields in INF parameters, NMDC in
// $MyINFO fields; the adaptor normalizes both into this shape.
type Identity struct {
	CID         string
	Nick        string
	Operator    bool
	ShareSize   int64
	SlotsTotal  int
	SlotsFree   int
	Away        bool
	Email       string
	Description string
}

// ChatMessage is a hub or private chat line, already normalized to UTF-8.
type ChatMessage struct {
	From        Identity
	Text        string
	ThirdPerson bool
	Private     bool
	Sent        time.Time
}

// SearchQuery is an outgoing or incoming file search request.
type SearchQuery struct {
	Token    string
	Pattern  string
	SizeMin  int64
	SizeMax  int64
	FileType string
	TTH      tth.Sum
	// Priority orders QueueSearch's pending list; higher runs sooner.
	Priority int
}

// CTMRequest is a connect-to-me (or reverse-connect-to-me) notification,
// either asking us to connect out or asking us to offer a connection back.
type CTMRequest struct {
	TargetIP string
	Port     int
	Token    string
	Reverse  bool
	User     *Identity
}

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	EventConnect EventKind = iota
	EventPassword
	EventRedirect
	EventHello
	EventUserUpdated
	EventUserQuit
	EventChatMessage
	EventPrivateMessage
	EventSearch
	EventCTM
	EventFailed
)

// Event is the normalized result of parsing one incoming protocol line.
// Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	Identity    *Identity
	ShortID     string
	RedirectURL string
	Chat        *ChatMessage
	Search      *SearchQuery
	CTM         *CTMRequest
	FailReason  string

	// PeerIP is the remote address a CTM or search request arrived from,
	// used by the session's flood counters. Empty for hub-originated
	// events with no associated peer.
	PeerIP string
}

// ProtocolAdaptor renders outgoing commands to wire bytes and parses
// incoming lines into Events. A Session is polymorphic over this
// interface so its state machine stays protocol-agnostic.
type ProtocolAdaptor interface {
	// SendInfo renders our own identity announcement (ADC INF, NMDC
	// $MyINFO plus $Supports/$Version).
	SendInfo(identity Identity) []byte
	// SendSearch renders an outgoing search request.
	SendSearch(q SearchQuery) []byte
	// SendPassword renders the hub password response.
	SendPassword(password string) []byte
	// SendMessage renders a chat message, hub-wide or third-person.
	SendMessage(text string, thirdPerson bool) []byte
	// ParseLine parses one line of input (without its terminator) into
	// an Event.
	ParseLine(line []byte) (Event, error)
}
