package dbus

import (
	"fmt"
	"strings"
)

// parseMachineID validates and returns the machine ID held in the
// contents of a machine-id file: 32 lowercase hexadecimal digits.
func parseMachineID(bs []byte) (string, error) {
	id := strings.TrimSpace(string(bs))
	if len(id) != 32 {
		return "", fmt.Errorf("invalid machine ID %q: want 32 hex digits", id)
	}
	for _, c := range []byte(id) {
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return "", fmt.Errorf("invalid machine ID %q: non-hex character %q", id, c)
		}
	}
	return id, nil
}
