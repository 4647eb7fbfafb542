package fragments

import (
	"fmt"
)

// MaxArrayLen is the maximum length in bytes of the data of a DBus
// array.
const MaxArrayLen = 1 << 26

// An Encoder provides utilities to write DBus wire format values to
// a byte slice.
//
// Methods insert padding as needed to conform to DBus alignment
// rules, except for [Encoder.Write] which outputs bytes verbatim.
// Alignment is computed relative to the start of Out, so Out should
// be empty or hold an 8-byte aligned prefix when encoding begins.
type Encoder struct {
	// Order is the byte order to use when encoding multi-byte values.
	Order ByteOrder
	// Out is the encoded output.
	Out []byte
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.Out)
}

// Pad inserts padding bytes as needed to make the message a multiple
// of align bytes. If the message is already correctly aligned, no
// padding is inserted.
func (e *Encoder) Pad(align int) {
	extra := len(e.Out) % align
	if extra == 0 {
		return
	}
	var pad [8]byte
	e.Out = append(e.Out, pad[:align-extra]...)
}

// Write writes bs as-is to the output. It is the caller's
// responsibility to ensure correct padding and encoding.
func (e *Encoder) Write(bs []byte) {
	e.Out = append(e.Out, bs...)
}

// Bytes writes bs to the output as a DBus byte array.
func (e *Encoder) Bytes(bs []byte) {
	e.Uint32(uint32(len(bs)))
	e.Out = append(e.Out, bs...)
}

// String writes s to the output as a DBus string: a 32-bit length,
// the bytes of s, and a NUL terminator.
func (e *Encoder) String(s string) {
	e.Uint32(uint32(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// Signature writes s to the output as a DBus signature: an 8-bit
// length, the bytes of s, and a NUL terminator.
func (e *Encoder) Signature(s string) error {
	if len(s) > 255 {
		return fmt.Errorf("%w: signature %q too long (%d bytes, max 255)", ErrOutOfBounds, s, len(s))
	}
	e.Uint8(uint8(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
	return nil
}

// CString writes s followed by a NUL terminator, with no length
// prefix and no alignment.
func (e *Encoder) CString(s string) {
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// Uint8 writes a uint8.
func (e *Encoder) Uint8(u8 uint8) {
	e.Out = append(e.Out, u8)
}

// Uint16 writes a uint16.
func (e *Encoder) Uint16(u16 uint16) {
	e.Pad(2)
	e.Out = e.Order.AppendUint16(e.Out, u16)
}

// Uint32 writes a uint32.
func (e *Encoder) Uint32(u32 uint32) {
	e.Pad(4)
	e.Out = e.Order.AppendUint32(e.Out, u32)
}

// Uint64 writes a uint64.
func (e *Encoder) Uint64(u64 uint64) {
	e.Pad(8)
	e.Out = e.Order.AppendUint64(e.Out, u64)
}

// Array writes a DBus array to the output.
//
// Array elements must be added within the provided elements
// function. The elements function is responsible for padding each
// array element to the correct alignment for the element type.
//
// align is the alignment of the element type, so that the array
// header can be padded accordingly even if the array is empty.
func (e *Encoder) Array(align int, elements func() error) error {
	e.Pad(4)
	offset := len(e.Out)
	e.Uint32(0)
	e.Pad(align)

	start := len(e.Out)
	if err := elements(); err != nil {
		return err
	}
	ln := len(e.Out) - start
	if ln > MaxArrayLen {
		return fmt.Errorf("%w: array length %d exceeds maximum %d", ErrOutOfBounds, ln, MaxArrayLen)
	}
	e.Order.PutUint32(e.Out[offset:], uint32(ln))
	return nil
}

// Struct writes a DBus struct to the output.
//
// Struct fields must be added within the provided fields function.
func (e *Encoder) Struct(fields func() error) error {
	e.Pad(8)
	return fields()
}

// ByteOrderFlag writes a DBus byte order flag byte that matches
// e.Order.
func (e *Encoder) ByteOrderFlag() {
	e.Uint8(e.Order.Flag())
}
