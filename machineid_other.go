//go:build !linux

package dbus

// MachineID returns the machine ID of the local host. It is only
// implemented on Linux, and returns ErrNotSupported elsewhere.
func MachineID() (string, error) {
	return "", ErrNotSupported
}
