//go:build linux

package dbus

import (
	"errors"
	"io/fs"
	"os"
)

var machineIDFiles = []string{"/var/lib/dbus/machine-id", "/etc/machine-id"}

// MachineID returns the machine ID of the local host, as served by
// the org.freedesktop.DBus.Peer.GetMachineId method.
func MachineID() (string, error) {
	var errs []error
	for _, path := range machineIDFiles {
		bs, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		} else if err != nil {
			return "", err
		}
		return parseMachineID(bs)
	}
	return "", errors.Join(errs...)
}
