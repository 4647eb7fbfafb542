package dbus

import (
	"fmt"
	"strings"
)

// ObjectPath is a DBus object path: a "/" separated sequence of
// non-empty elements made of [A-Za-z0-9_], such as
// "/org/freedesktop/DBus".
type ObjectPath string

func (ObjectPath) SignatureDBus() Signature { return sigObjectPath }
func (ObjectPath) isValue()                 {}

// Valid reports whether p is a well-formed object path.
func (p ObjectPath) Valid() bool {
	return p.validate() == nil
}

func (p ObjectPath) validate() error {
	s := string(p)
	if s == "/" {
		return nil
	}
	if !strings.HasPrefix(s, "/") {
		return fmt.Errorf("%w %q: must start with /", ErrInvalidObjectPath, s)
	}
	if strings.HasSuffix(s, "/") {
		return fmt.Errorf("%w %q: must not end with /", ErrInvalidObjectPath, s)
	}
	for _, elem := range strings.Split(s[1:], "/") {
		if elem == "" {
			return fmt.Errorf("%w %q: empty path element", ErrInvalidObjectPath, s)
		}
		for _, c := range []byte(elem) {
			if !isPathChar(c) {
				return fmt.Errorf("%w %q: invalid character %q", ErrInvalidObjectPath, s, c)
			}
		}
	}
	return nil
}

func isPathChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

// Child returns the path of the child object name under p.
func (p ObjectPath) Child(name string) ObjectPath {
	if p == "/" {
		return ObjectPath("/" + name)
	}
	return ObjectPath(string(p) + "/" + name)
}

// Parent returns the parent of p. The parent of "/" is "/".
func (p ObjectPath) Parent() ObjectPath {
	i := strings.LastIndexByte(string(p), '/')
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

func (p ObjectPath) String() string {
	return string(p)
}
