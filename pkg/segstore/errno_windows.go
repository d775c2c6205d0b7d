//go:build windows

package segstore

import "golang.org/x/sys/windows"

// isCrossDeviceErrno reports whether err is ERROR_NOT_SAME_DEVICE, the
// Windows error for a rename that crosses a volume.
func isCrossDeviceErrno(err error) bool {
	errno, ok := err.(windows.Errno)
	return ok && errno == windows.ERROR_NOT_SAME_DEVICE
}
