//go:build unix

package dbus_test

import (
	"testing"

	"github.com/danderson/go-dbus"
	"golang.org/x/sys/unix"
)

func TestFDTableDupClose(t *testing.T) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		t.Fatal(err)
	}
	files := dbus.NewFDTable(p[0], p[1])
	dup, err := files.Dup(1)
	if err != nil {
		t.Fatalf("Dup(1) got err: %v", err)
	}
	defer unix.Close(dup)
	if dup == p[0] || dup == p[1] {
		t.Errorf("Dup(1) returned table descriptor %d", dup)
	}

	if err := files.Close(); err != nil {
		t.Fatalf("Close got err: %v", err)
	}
	if files.Len() != 0 {
		t.Errorf("Len() after Close = %d, want 0", files.Len())
	}
	if _, err := unix.FcntlInt(uintptr(dup), unix.F_GETFD, 0); err != nil {
		t.Errorf("duplicate descriptor closed along with the table: %v", err)
	}

	if err := (*dbus.FDTable)(nil).Close(); err != nil {
		t.Errorf("Close of nil table got err: %v", err)
	}
}
