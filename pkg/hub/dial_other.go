//go:build !linux && !darwin

package hub

import "time"

// tuneKeepalive is a no-op on platforms without a golang.org/x/sys
// keepalive tuning path here; Dial still benefits from net.Dialer's own
// KeepAlive field at the Go runtime level.
func tuneKeepalive(fd uintptr, period time.Duration) error {
	return nil
}
