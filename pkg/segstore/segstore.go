// Package segstore manages the temporary file a QueueItem downloads into
// before it is moved to its final target. Segments are written in place at
// their byte offset as they complete, so out-of-order chunk delivery from
// multiple sources never requires buffering or reordering.
//
// On completion the temp file is promoted to its final target with an
// atomic rename where possible, falling back to copy-then-remove when the
// rename crosses a filesystem boundary.
package segstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrCrossVolumeRename is returned when promotion had to fall back to a
// copy because the temp file and target live on different volumes.
// It is not a failure: the caller can treat the promotion as successful
// once it sees this error with a nil underlying cause.
var ErrCrossVolumeRename = errors.New("segstore: promotion crossed volumes, copied instead of renamed")

// File wraps the on-disk temp file backing a single QueueItem download.
type File struct {
	tempPath string
	mode     os.FileMode
	f        *os.File
}

// Open creates (or reopens) the temp file at tempPath, preallocating it to
// size bytes so that segment writes at arbitrary offsets never extend the
// file past its final length.
func Open(tempPath string, size int64, mode os.FileMode) (*File, error) {
	if mode == 0 {
		mode = 0644
	}
	if err := os.MkdirAll(filepath.Dir(tempPath), 0755); err != nil {
		return nil, fmt.Errorf("segstore: create parent dir: %w", err)
	}

	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_RDWR, mode)
	if err != nil {
		return nil, fmt.Errorf("segstore: open %s: %w", tempPath, err)
	}

	if size > 0 {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("segstore: truncate %s to %d: %w", tempPath, size, err)
		}
	}

	return &File{tempPath: tempPath, mode: mode, f: f}, nil
}

// WriteAt writes a downloaded chunk at its byte offset in the temp file.
func (s *File) WriteAt(data []byte, offset int64) (int, error) {
	return s.f.WriteAt(data, offset)
}

// ReadAt reads back a byte range of the temp file, used by the recheck and
// verification paths.
func (s *File) ReadAt(buf []byte, offset int64) (int, error) {
	return s.f.ReadAt(buf, offset)
}

// Sync flushes buffered writes to stable storage.
func (s *File) Sync() error {
	return s.f.Sync()
}

// Close closes the underlying file handle without removing it.
func (s *File) Close() error {
	return s.f.Close()
}

// Remove closes and deletes the temp file, used when a queue item is
// removed before completion.
func (s *File) Remove() error {
	s.f.Close()
	if err := os.Remove(s.tempPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// TempPath returns the path of the backing temp file.
func (s *File) TempPath() string {
	return s.tempPath
}

// Promote moves the temp file to target, the caller's job being finished
// only once this returns nil or ErrCrossVolumeRename. It closes the temp
// file handle as part of the move.
func (s *File) Promote(target string) error {
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("segstore: close temp file before promotion: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("segstore: create target dir: %w", err)
	}

	if err := os.Rename(s.tempPath, target); err == nil {
		return nil
	} else if !isCrossDevice(err) {
		return fmt.Errorf("segstore: rename %s to %s: %w", s.tempPath, target, err)
	}

	if err := copyFile(s.tempPath, target, s.mode); err != nil {
		return fmt.Errorf("segstore: cross-volume copy %s to %s: %w", s.tempPath, target, err)
	}
	if err := os.Remove(s.tempPath); err != nil {
		return fmt.Errorf("segstore: remove source after cross-volume copy: %w", err)
	}
	return ErrCrossVolumeRename
}

// isCrossDevice reports whether err is the platform's "rename crosses
// devices" error, as wrapped by os.Rename in a *LinkError. The errno
// comparison itself lives in the platform-specific isCrossDeviceErrno.
func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return false
	}
	return isCrossDeviceErrno(linkErr.Err)
}

// copyFile performs a best-effort streaming copy used when an atomic
// rename is impossible. It does not fsync; Promote's caller is expected to
// rely on the final index/queue persistence flush for durability.
func copyFile(src, dst string, mode os.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
