package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// These keys are shared across the queue, upload, hub and share components so
// log aggregation and querying stay consistent regardless of which subsystem
// emitted the record.
const (
	// ========================================================================
	// Protocol & Hub
	// ========================================================================
	KeyProtocol = "protocol"  // Hub protocol: adc, nmdc
	KeyHubURL   = "hub_url"   // Hub address, e.g. adcs://hub.example.com:5000
	KeyHubState = "hub_state" // Hub session state: connecting, identify, verify, normal
	KeyCommand  = "command"   // Wire command code: INF, SCH, MSG, $MyINFO, ...

	// ========================================================================
	// Peers
	// ========================================================================
	KeyPeerCID  = "peer_cid"  // ADC client ID / NMDC nick hash
	KeyPeerNick = "peer_nick" // Display nickname
	KeyPeerIP   = "peer_ip"   // Peer IP address
	KeyPeerPort = "peer_port" // Peer port

	// ========================================================================
	// Queue / Bundle
	// ========================================================================
	KeyBundleToken = "bundle_token" // Bundle token
	KeyQueueToken  = "queue_token"  // QueueItem token
	KeyTarget      = "target"       // Final target path
	KeyTempTarget  = "temp_target"  // Temporary target path
	KeyPriority    = "priority"     // Queue/bundle priority
	KeyStatus      = "status"       // Queue/bundle/upload status
	KeyStatusMsg   = "status_msg"   // Human readable status message

	// ========================================================================
	// Content / TTH
	// ========================================================================
	KeyTTH       = "tth"        // Tiger Tree Hash, base32
	KeyPath      = "path"       // Real filesystem path
	KeyShareRoot = "share_root" // Share root virtual name
	KeySize      = "size"       // Byte size

	// ========================================================================
	// Segments / I/O
	// ========================================================================
	KeyOffset          = "offset"           // Segment/byte offset
	KeyLength          = "length"           // Segment/byte length
	KeyBytesTransferred = "bytes_transferred" // Bytes moved in this operation

	// ========================================================================
	// Slots / Transfers
	// ========================================================================
	KeySlotType   = "slot_type"   // userslot, fileslot, noslot
	KeyConnType   = "conn_type"   // Connection category: regular, mcn_small, minislot
	KeyTransferID = "transfer_id" // Upload/Download token

	// ========================================================================
	// Flood control
	// ========================================================================
	KeyFloodIP    = "flood_ip"    // Source IP being counted
	KeyFloodKind  = "flood_kind"  // ctm, search
	KeyFloodLevel = "flood_level" // ok, minor, severe

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyComponent  = "component" // queue, upload, hub, share, api
	KeyOperation  = "operation"
	KeyAttempt    = "attempt"

	// ========================================================================
	// API / session
	// ========================================================================
	KeySessionID = "session_id"
	KeyRequestID = "request_id"
)

// Protocol returns a slog.Attr for the hub wire protocol.
func Protocol(proto string) slog.Attr { return slog.String(KeyProtocol, proto) }

// HubURL returns a slog.Attr for the hub address.
func HubURL(url string) slog.Attr { return slog.String(KeyHubURL, url) }

// HubState returns a slog.Attr for the hub session state.
func HubState(state string) slog.Attr { return slog.String(KeyHubState, state) }

// Command returns a slog.Attr for a wire command code.
func Command(cmd string) slog.Attr { return slog.String(KeyCommand, cmd) }

// PeerCID returns a slog.Attr for a peer's client identifier.
func PeerCID(cid string) slog.Attr { return slog.String(KeyPeerCID, cid) }

// PeerNick returns a slog.Attr for a peer's display nickname.
func PeerNick(nick string) slog.Attr { return slog.String(KeyPeerNick, nick) }

// PeerIP returns a slog.Attr for a peer's IP address.
func PeerIP(ip string) slog.Attr { return slog.String(KeyPeerIP, ip) }

// PeerPort returns a slog.Attr for a peer's port.
func PeerPort(port int) slog.Attr { return slog.Int(KeyPeerPort, port) }

// BundleToken returns a slog.Attr for a bundle token.
func BundleToken(token uint64) slog.Attr { return slog.Uint64(KeyBundleToken, token) }

// QueueToken returns a slog.Attr for a queue item token.
func QueueToken(token uint64) slog.Attr { return slog.Uint64(KeyQueueToken, token) }

// Target returns a slog.Attr for the final target path.
func Target(p string) slog.Attr { return slog.String(KeyTarget, p) }

// TempTarget returns a slog.Attr for the temporary target path.
func TempTarget(p string) slog.Attr { return slog.String(KeyTempTarget, p) }

// Priority returns a slog.Attr for a priority value rendered as text.
func Priority(p fmt.Stringer) slog.Attr { return slog.String(KeyPriority, p.String()) }

// Status returns a slog.Attr for a status value rendered as text.
func Status(s fmt.Stringer) slog.Attr { return slog.String(KeyStatus, s.String()) }

// StatusMsg returns a slog.Attr for a human readable status message.
func StatusMsg(msg string) slog.Attr { return slog.String(KeyStatusMsg, msg) }

// TTH returns a slog.Attr for a base32-encoded Tiger Tree Hash.
func TTH(tth string) slog.Attr { return slog.String(KeyTTH, tth) }

// Path returns a slog.Attr for a filesystem path.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// ShareRoot returns a slog.Attr for a share root virtual name.
func ShareRoot(name string) slog.Attr { return slog.String(KeyShareRoot, name) }

// Size returns a slog.Attr for a byte size.
func Size(n int64) slog.Attr { return slog.Int64(KeySize, n) }

// Offset returns a slog.Attr for a segment/byte offset.
func Offset(n int64) slog.Attr { return slog.Int64(KeyOffset, n) }

// Length returns a slog.Attr for a segment/byte length.
func Length(n int64) slog.Attr { return slog.Int64(KeyLength, n) }

// BytesTransferred returns a slog.Attr for bytes moved in an operation.
func BytesTransferred(n int64) slog.Attr { return slog.Int64(KeyBytesTransferred, n) }

// SlotType returns a slog.Attr for a transfer slot type.
func SlotType(t string) slog.Attr { return slog.String(KeySlotType, t) }

// ConnType returns a slog.Attr for a connection category.
func ConnType(t string) slog.Attr { return slog.String(KeyConnType, t) }

// TransferID returns a slog.Attr for an upload/download token.
func TransferID(id uint64) slog.Attr { return slog.Uint64(KeyTransferID, id) }

// FloodIP returns a slog.Attr for the IP address being flood-counted.
func FloodIP(ip string) slog.Attr { return slog.String(KeyFloodIP, ip) }

// FloodKind returns a slog.Attr for the flood counter category.
func FloodKind(kind string) slog.Attr { return slog.String(KeyFloodKind, kind) }

// FloodLevel returns a slog.Attr for a flood result level.
func FloodLevel(level string) slog.Attr { return slog.String(KeyFloodLevel, level) }

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error, or a no-op attribute if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric or named error code.
func ErrorCode(code fmt.Stringer) slog.Attr { return slog.String(KeyErrorCode, code.String()) }

// Component returns a slog.Attr naming the emitting subsystem.
func Component(name string) slog.Attr { return slog.String(KeyComponent, name) }

// Operation returns a slog.Attr naming a sub-operation.
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// SessionID returns a slog.Attr for an API session identifier.
func SessionID(id string) slog.Attr { return slog.String(KeySessionID, id) }

// RequestID returns a slog.Attr for an API request identifier.
func RequestID(id string) slog.Attr { return slog.String(KeyRequestID, id) }
