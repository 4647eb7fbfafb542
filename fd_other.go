//go:build !unix

package dbus

// Close empties the table. File descriptor passing is not supported
// on this platform.
func (t *FDTable) Close() error {
	if t == nil || len(t.fds) == 0 {
		return nil
	}
	t.fds = nil
	return ErrNotSupported
}

// Dup is not supported on this platform.
func (t *FDTable) Dup(idx uint32) (int, error) {
	return 0, ErrNotSupported
}
