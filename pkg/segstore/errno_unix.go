//go:build !windows

package segstore

import "syscall"

// isCrossDeviceErrno reports whether err is syscall.EXDEV, the unix errno
// for a rename that crosses a mount point.
func isCrossDeviceErrno(err error) bool {
	errno, ok := err.(syscall.Errno)
	return ok && errno == syscall.EXDEV
}
