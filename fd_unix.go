//go:build unix

package dbus

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Close closes all the file descriptors in the table, and empties
// it.
func (t *FDTable) Close() error {
	if t == nil {
		return nil
	}
	var errs []error
	for _, fd := range t.fds {
		if err := unix.Close(fd); err != nil {
			errs = append(errs, err)
		}
	}
	t.fds = nil
	return errors.Join(errs...)
}

// Dup returns a duplicate of the descriptor at index idx, which
// remains valid after the table is closed.
func (t *FDTable) Dup(idx uint32) (int, error) {
	fd, err := t.Get(idx)
	if err != nil {
		return 0, err
	}
	return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
}
