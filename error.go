package dbus

import (
	"errors"
	"fmt"

	"github.com/danderson/go-dbus/fragments"
)

var (
	// ErrIncorrectType is wrapped by errors caused by a value whose
	// shape does not match the type it is being encoded or decoded
	// as.
	ErrIncorrectType = errors.New("incorrect type")
	// ErrInvalidUTF8 is returned when a string is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid UTF-8")
	// ErrUnknownFD is returned when an encoded file descriptor index
	// has no entry in the file descriptor table.
	ErrUnknownFD = errors.New("unknown file descriptor")
	// ErrMissingFramingOffset is returned when a GVariant container
	// does not end with a valid framing offset table.
	ErrMissingFramingOffset = fragments.ErrMissingFramingOffset
	// ErrOutOfBounds is returned when decoding would read past the
	// end of the available data.
	ErrOutOfBounds = fragments.ErrOutOfBounds
	// ErrEmptyStructure is returned for a struct with no fields.
	ErrEmptyStructure = errors.New("a structure must have at least one field")
	// ErrInvalidObjectPath is returned for a malformed object path.
	ErrInvalidObjectPath = errors.New("invalid object path")
	// ErrNotSupported is returned when an operation is not available
	// on the current platform.
	ErrNotSupported = errors.New("not supported on this platform")
)

// PaddingError is the error returned when a padding byte in the
// input is not zero.
type PaddingError = fragments.PaddingError

// TypeError is the error returned when a value cannot be encoded or
// decoded as the requested type.
type TypeError struct {
	// Type is the signature or Go type that caused the error.
	Type string
	// Reason is an explanation of the mismatch.
	Reason error
}

func (e TypeError) Error() string {
	return fmt.Sprintf("dbus cannot represent %s: %s", e.Type, e.Reason)
}

func (e TypeError) Unwrap() error {
	return e.Reason
}

func (e TypeError) Is(target error) bool {
	return target == ErrIncorrectType
}

// typeErr returns a TypeError for a value of type sig.
func typeErr(n *node, reason string, args ...any) error {
	ts := ""
	if n != nil {
		ts = n.str
	}
	return TypeError{ts, fmt.Errorf(reason, args...)}
}

// IncompatibleFormatError is the error returned when a type cannot
// be represented in the requested format.
type IncompatibleFormatError struct {
	Signature Signature
	Format    Format
}

func (e IncompatibleFormatError) Error() string {
	return fmt.Sprintf("type %q is not compatible with the %s encoding format", e.Signature, e.Format)
}

// SignatureMismatchError is the error returned when a decoded value
// has a different type than the one requested.
type SignatureMismatchError struct {
	Got  Signature
	Want string
}

func (e SignatureMismatchError) Error() string {
	return fmt.Sprintf("signature mismatch: got %q, expected %s", e.Got, e.Want)
}

// SignatureError is the error returned when a type signature is
// malformed.
type SignatureError struct {
	// Signature is the complete signature being parsed.
	Signature string
	// Fragment is the part of the signature where the problem was
	// found.
	Fragment string
	// Reason is the problem.
	Reason error
}

func (e SignatureError) Error() string {
	if e.Fragment == "" || e.Fragment == e.Signature {
		return fmt.Sprintf("invalid type signature %q: %s", e.Signature, e.Reason)
	}
	return fmt.Sprintf("invalid type signature %q at %q: %s", e.Signature, e.Fragment, e.Reason)
}

func (e SignatureError) Unwrap() error {
	return e.Reason
}

// MessageError is the error returned for a malformed DBus message.
type MessageError struct {
	Msg string
}

func (e MessageError) Error() string {
	return "invalid message: " + e.Msg
}

// IOError is the error returned when reading or writing a
// connection fails.
type IOError struct {
	Op  string
	Err error
}

func (e IOError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e IOError) Unwrap() error {
	return e.Err
}

// CallError is the error returned from failed DBus method calls.
type CallError struct {
	// Name is the error name provided by the remote peer.
	Name string
	// Detail is the human-readable explanation of what went wrong.
	Detail string
}

func (e CallError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("call error %s", e.Name)
	}
	return fmt.Sprintf("call error %s: %s", e.Name, e.Detail)
}
