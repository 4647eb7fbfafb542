// Package dbus encodes and decodes DBus values, and exchanges DBus
// messages with a message bus.
//
// # Values
//
// A [Value] is a DBus value of a known type: one of the basic types
// such as [Int32], [String] or [ObjectPath], or a container: [Array],
// [Dict], [Struct], [Variant] or [Maybe]. The type of a value is
// described by a [Signature], parsed from the DBus signature syntax
// with [ParseSignature].
//
// [Marshal] encodes a Value as a given Signature, and [Unmarshal]
// decodes one. Both take [Options] selecting the encoding format,
// byte order and nesting limits.
//
// # Formats
//
// Two binary formats are supported. [FormatDBus] is the classic DBus
// wire format, where every container carries a length prefix and
// values are aligned to their natural boundary. [FormatGVariant] is
// the compact format used by GLib, where variable-size data inside
// containers is located with framing offsets written at the end of
// the container, and [Maybe] values are allowed.
//
// File descriptors travel out of band. Encoding a [UnixFD] adds the
// descriptor to an [FDTable] and writes its index, decoding looks the
// index up in the table that arrived with the data.
//
// # Go values
//
// [ValueOf] converts ordinary Go values to Values, and [Store] does
// the reverse:
//
// uint{8,16,32,64}, int{16,32,64}, float64, bool and string values
// correspond to the DBus basic type of the same shape.
//
// Slices and arrays correspond to DBus arrays, maps to DBus dicts.
// Map keys must have a basic type. Dicts built from maps are sorted
// by key, so that encoding is deterministic.
//
// Struct values correspond to DBus structs. Each exported struct
// field maps to a DBus field in declaration order, and fields tagged
// `dbus:"-"` are skipped. Embedded struct fields are flattened into
// the outer struct, subject to the usual Go visibility rules.
//
// Pointers correspond to the value pointed to. [SignatureFor] derives
// the Signature of a Go type.
//
// int8, int, uint, uintptr, float32, complex, channel and function
// values have no DBus equivalent, and are rejected.
//
// # Messages
//
// A [Message] is a header and a body of Values. [Conn] sends and
// receives messages over a [transport.Transport], answers incoming
// calls with registered handlers, and implements the
// org.freedesktop.DBus.Peer interface.
package dbus
