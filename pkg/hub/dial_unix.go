//go:build linux

package hub

import (
	"time"

	"golang.org/x/sys/unix"
)

// tuneKeepalive enables TCP keepalive on fd and sets the idle, interval
// and probe-count parameters from period, so a dead hub connection (a
// pulled cable, a silently dropped NAT mapping) is noticed well inside
// the reconnect logic's own patience rather than hanging forever on a
// blocking read.
func tuneKeepalive(fd uintptr, period time.Duration) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return err
	}
	secs := int(period.Seconds())
	if secs < 1 {
		secs = 1
	}
	if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, secs); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, secs); err != nil {
		return err
	}
	return unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, 4)
}
