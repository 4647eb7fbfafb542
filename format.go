package dbus

import (
	"fmt"

	"github.com/danderson/go-dbus/fragments"
)

// Format is a binary encoding format for DBus values.
type Format uint8

const (
	// FormatDBus is the classic DBus wire format, used by message
	// buses.
	FormatDBus Format = iota
	// FormatGVariant is the compact GVariant format. It has no
	// length prefixes, and locates variable-size data using framing
	// offsets stored at the end of containers.
	FormatGVariant
)

func (f Format) String() string {
	switch f {
	case FormatDBus:
		return "DBus"
	case FormatGVariant:
		return "GVariant"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// ParseFormat returns the Format named by s, one of "dbus" or
// "gvariant".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "dbus", "DBus":
		return FormatDBus, nil
	case "gvariant", "GVariant":
		return FormatGVariant, nil
	default:
		return 0, fmt.Errorf("unknown encoding format %q", s)
	}
}

// Limits are the nesting limits enforced while encoding and decoding.
// A zero field uses the corresponding field of [DefaultLimits].
type Limits struct {
	// MaxStructDepth is the maximum nesting of structs and dict
	// entries.
	MaxStructDepth int
	// MaxArrayDepth is the maximum nesting of arrays, dicts and
	// maybes.
	MaxArrayDepth int
	// MaxContainerDepth is the maximum total nesting of containers,
	// including variants.
	MaxContainerDepth int
}

// DefaultLimits are the nesting limits set by the DBus specification.
var DefaultLimits = Limits{
	MaxStructDepth:    32,
	MaxArrayDepth:     32,
	MaxContainerDepth: 64,
}

func (l Limits) withDefaults() Limits {
	if l.MaxStructDepth == 0 {
		l.MaxStructDepth = DefaultLimits.MaxStructDepth
	}
	if l.MaxArrayDepth == 0 {
		l.MaxArrayDepth = DefaultLimits.MaxArrayDepth
	}
	if l.MaxContainerDepth == 0 {
		l.MaxContainerDepth = DefaultLimits.MaxContainerDepth
	}
	return l
}

// Options configure encoding and decoding.
//
// The zero value encodes in the DBus format, in the host's native
// byte order, with [DefaultLimits].
type Options struct {
	// Format is the encoding format.
	Format Format
	// Order is the byte order of multi-byte values. If nil,
	// [fragments.NativeEndian] is used.
	Order fragments.ByteOrder
	// Limits are the nesting limits to enforce.
	Limits Limits
	// Signatures, if not nil, is used to parse signatures found in
	// the data being decoded.
	Signatures *SignatureCache
}

func (o *Options) order() fragments.ByteOrder {
	if o == nil || o.Order == nil {
		return fragments.NativeEndian
	}
	return o.Order
}

func (o *Options) format() Format {
	if o == nil {
		return FormatDBus
	}
	return o.Format
}

func (o *Options) limits() Limits {
	if o == nil {
		return DefaultLimits
	}
	return o.Limits.withDefaults()
}

func (o *Options) parseSignature(s string) (Signature, error) {
	if o == nil || o.Signatures == nil {
		return ParseSignature(s)
	}
	return o.Signatures.Parse(s)
}
