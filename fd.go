package dbus

import (
	"fmt"
	"slices"
)

// UnixFD is a Unix file descriptor carried in a DBus value. On the
// wire, a UnixFD is an index into the [FDTable] that travels
// alongside the encoded data.
type UnixFD int

func (UnixFD) SignatureDBus() Signature { return sigUnixFD }
func (UnixFD) isValue()                 {}

// FDTable is the list of file descriptors that accompanies an
// encoded value or message.
//
// Encoding appends descriptors to the table, and decoding looks up
// the descriptor at each encoded index.
type FDTable struct {
	fds []int
}

// NewFDTable returns a table holding fds.
func NewFDTable(fds ...int) *FDTable {
	return &FDTable{fds: slices.Clone(fds)}
}

// Add appends fd to the table and returns its index. If fd is
// already in the table, its existing index is returned.
func (t *FDTable) Add(fd int) (uint32, error) {
	if fd < 0 {
		return 0, fmt.Errorf("invalid file descriptor %d", fd)
	}
	if i := slices.Index(t.fds, fd); i >= 0 {
		return uint32(i), nil
	}
	t.fds = append(t.fds, fd)
	return uint32(len(t.fds) - 1), nil
}

// truncate drops every descriptor added after the table held n.
func (t *FDTable) truncate(n int) {
	if t == nil || n >= len(t.fds) {
		return
	}
	clear(t.fds[n:])
	t.fds = t.fds[:n]
}

// Get returns the file descriptor at index idx.
func (t *FDTable) Get(idx uint32) (int, error) {
	if t == nil || int64(idx) >= int64(len(t.fds)) {
		return 0, fmt.Errorf("%w: index %d", ErrUnknownFD, idx)
	}
	return t.fds[idx], nil
}

// Len returns the number of file descriptors in the table.
func (t *FDTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.fds)
}

// FDs returns the file descriptors in the table, in index order.
func (t *FDTable) FDs() []int {
	if t == nil {
		return nil
	}
	return slices.Clone(t.fds)
}
