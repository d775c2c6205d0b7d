package hub

import (
	"context"
	"crypto/tls"
	"net"
	"syscall"
	"time"
)

// DialConfig tunes the TCP connection a host opens to a hub. Keepalive
// and timeout values all have sane zero-value defaults applied by Dial,
// so a host only needs to set what it wants to change.
type DialConfig struct {
	// Timeout bounds the initial TCP handshake. Zero means 10s.
	Timeout time.Duration

	// KeepAlivePeriod is how often the OS probes an idle connection.
	// Zero means 30s; negative disables keepalive entirely.
	KeepAlivePeriod time.Duration

	// TLS, if non-nil, upgrades the connection to ADCS/NMDCS once the
	// TCP handshake completes.
	TLS *tls.Config
}

func (c DialConfig) withDefaults() DialConfig {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.KeepAlivePeriod == 0 {
		c.KeepAlivePeriod = 30 * time.Second
	}
	return c
}

// Dial opens a TCP connection to addr, tuning OS-level keepalive via
// tuneKeepalive (platform-specific, see dial_unix.go/dial_darwin.go) and
// upgrading to TLS when cfg.TLS is set. The returned net.Conn satisfies
// Transport directly: a host passes it straight to State.ConnectHub.
func Dial(ctx context.Context, addr string, cfg DialConfig) (net.Conn, error) {
	cfg = cfg.withDefaults()

	dialer := &net.Dialer{Timeout: cfg.Timeout, KeepAlive: cfg.KeepAlivePeriod}
	if cfg.KeepAlivePeriod > 0 {
		dialer.Control = func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = tuneKeepalive(fd, cfg.KeepAlivePeriod)
			})
		}
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if cfg.TLS != nil {
		tlsConn := tls.Client(conn, cfg.TLS)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return tlsConn, nil
	}
	return conn, nil
}
