package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context threaded through a single
// hub command, transfer, or API request.
type LogContext struct {
	TraceID   string    // correlation ID for a request/transfer chain
	Component string    // emitting subsystem: queue, upload, hub, share, api
	Operation string    // sub-operation name, e.g. "getNextDownload"
	HubURL    string    // hub address, when applicable
	PeerCID   string    // remote peer identity, when applicable
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for the given component.
func NewLogContext(component string) *LogContext {
	return &LogContext{
		Component: component,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithOperation returns a copy with the operation set
func (lc *LogContext) WithOperation(operation string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Operation = operation
	}
	return clone
}

// WithHub returns a copy with the hub URL set
func (lc *LogContext) WithHub(hubURL string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.HubURL = hubURL
	}
	return clone
}

// WithPeer returns a copy with the remote peer identity set
func (lc *LogContext) WithPeer(cid string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.PeerCID = cid
	}
	return clone
}

// WithTrace returns a copy with the trace/correlation ID set
func (lc *LogContext) WithTrace(traceID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
