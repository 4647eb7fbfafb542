// Package fragments provides low-level encoding and decoding helpers
// to construct and parse DBus values.
//
// The provided encoder and decoder are very low level, and do not
// encode any DBus type semantics. They know about alignment, padding,
// byte order, length-prefixed arrays and the trailing framing offsets
// used by the compact (GVariant) format. It is the caller's
// responsibility to produce valid values using these tools.
//
// The decoder is strict: padding bytes must be zero, and reads never
// extend past the end of the input or of the enclosing array.
package fragments
