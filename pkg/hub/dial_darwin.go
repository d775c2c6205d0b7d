//go:build darwin

package hub

import (
	"time"

	"golang.org/x/sys/unix"
)

// tuneKeepalive enables TCP keepalive on fd. Darwin's socket API exposes
// the idle timer under TCP_KEEPALIVE rather than Linux's TCP_KEEPIDLE;
// interval/count tuning is left at the OS default.
func tuneKeepalive(fd uintptr, period time.Duration) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return err
	}
	secs := int(period.Seconds())
	if secs < 1 {
		secs = 1
	}
	return unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPALIVE, secs)
}
