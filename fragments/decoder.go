package fragments

import (
	"bytes"
	"errors"
	"fmt"
)

// A Decoder provides utilities to read DBus wire format values from
// a byte slice.
//
// Methods advance the read cursor as needed to account for the
// padding required by DBus alignment rules, except for [Decoder.Read]
// which reads bytes verbatim. Skipped padding must be zero.
type Decoder struct {
	// Order is the byte order to use when reading multi-byte values.
	Order ByteOrder
	// In is the input to read.
	In []byte

	// offset is the number of bytes consumed off the front of In so
	// far. Alignment depends on the global offset within the
	// message, and cannot be derived from local context partway
	// through decoding.
	offset int
	// ends is the stack of end offsets of the arrays currently
	// being read. Reads may not cross the innermost end.
	ends []int
}

func (d *Decoder) end() int {
	if len(d.ends) == 0 {
		return len(d.In)
	}
	return d.ends[len(d.ends)-1]
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.offset
}

// Remaining returns the number of bytes that can still be read
// within the innermost array, or the input if no array is being
// read.
func (d *Decoder) Remaining() int {
	return d.end() - d.offset
}

// Pad consumes padding bytes as needed to make the next read happen
// at a multiple of align bytes. If the decoder is already correctly
// aligned, no bytes are consumed. Padding bytes must be zero.
func (d *Decoder) Pad(align int) error {
	extra := d.offset % align
	if extra == 0 {
		return nil
	}
	skip := align - extra
	if d.offset+skip > d.end() {
		return ErrOutOfBounds
	}
	for i, b := range d.In[d.offset : d.offset+skip] {
		if b != 0 {
			return PaddingError{Byte: b, Offset: d.offset + i}
		}
	}
	d.offset += skip
	return nil
}

// Read reads n bytes, with no framing or padding. The returned slice
// aliases In.
func (d *Decoder) Read(n int) ([]byte, error) {
	if n < 0 || d.offset+n > d.end() {
		return nil, ErrOutOfBounds
	}
	ret := d.In[d.offset : d.offset+n : d.offset+n]
	d.offset += n
	return ret, nil
}

// Bytes reads a DBus byte array.
func (d *Decoder) Bytes() ([]byte, error) {
	ln, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	return d.Read(int(ln))
}

// String reads a DBus string. The string's content is not validated
// beyond checking for NUL bytes.
func (d *Decoder) String() (string, error) {
	ln, err := d.Uint32()
	if err != nil {
		return "", err
	}
	if ln > MaxArrayLen {
		return "", ErrOutOfBounds
	}
	return d.terminated(int(ln))
}

// Signature reads a DBus signature string. The signature's content
// is not validated beyond checking for NUL bytes.
func (d *Decoder) Signature() (string, error) {
	ln, err := d.Uint8()
	if err != nil {
		return "", err
	}
	return d.terminated(int(ln))
}

// terminated reads a NUL-terminated string of length ln.
func (d *Decoder) terminated(ln int) (string, error) {
	bs, err := d.Read(ln + 1)
	if err != nil {
		return "", err
	}
	return CString(bs)
}

// CString returns the string held in bs, which must end with a
// single NUL byte and contain no other NUL bytes.
func CString(bs []byte) (string, error) {
	if len(bs) == 0 || bs[len(bs)-1] != 0 {
		return "", errors.New("string is not NUL-terminated")
	}
	bs = bs[:len(bs)-1]
	if bytes.IndexByte(bs, 0) >= 0 {
		return "", errors.New("string contains NUL byte")
	}
	return string(bs), nil
}

// Uint8 reads a uint8.
func (d *Decoder) Uint8() (uint8, error) {
	bs, err := d.Read(1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// Uint16 reads a uint16.
func (d *Decoder) Uint16() (uint16, error) {
	if err := d.Pad(2); err != nil {
		return 0, err
	}
	bs, err := d.Read(2)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint16(bs), nil
}

// Uint32 reads a uint32.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.Pad(4); err != nil {
		return 0, err
	}
	bs, err := d.Read(4)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint32(bs), nil
}

// Uint64 reads a uint64.
func (d *Decoder) Uint64() (uint64, error) {
	if err := d.Pad(8); err != nil {
		return 0, err
	}
	bs, err := d.Read(8)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint64(bs), nil
}

// Array reads a DBus array.
//
// readElement is called repeatedly while there is array data
// remaining to process, passing in the array index of the element to
// be decoded. readElement must completely consume all array bytes
// from the input, and cannot read beyond the end of the array data.
//
// align is the alignment of the array's element type, so that the
// decoder consumes array header padding appropriately even if the
// array contains no elements.
//
// Array returns the total number of array elements that were
// processed.
func (d *Decoder) Array(align int, readElement func(int) error) (int, error) {
	ln, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	if ln > MaxArrayLen {
		return 0, fmt.Errorf("%w: array length %d exceeds maximum %d", ErrOutOfBounds, ln, MaxArrayLen)
	}
	if err := d.Pad(align); err != nil {
		return 0, err
	}
	end := d.offset + int(ln)
	if end > d.end() {
		return 0, ErrOutOfBounds
	}
	d.ends = append(d.ends, end)
	defer func() {
		d.ends = d.ends[:len(d.ends)-1]
	}()

	idx := 0
	for d.offset < end {
		start := d.offset
		if err := readElement(idx); err != nil {
			return idx, err
		}
		if d.offset == start {
			return idx, fmt.Errorf("%w: array element consumed no data", ErrOutOfBounds)
		}
		idx++
	}
	return idx, nil
}

// Struct reads a struct.
//
// Struct fields must be read within the provided fields function.
func (d *Decoder) Struct(fields func() error) error {
	if err := d.Pad(8); err != nil {
		return err
	}
	return fields()
}

// ByteOrderFlag reads a DBus byte order flag byte, and sets
// [Decoder.Order] to match it.
func (d *Decoder) ByteOrderFlag() error {
	v, err := d.Uint8()
	if err != nil {
		return err
	}
	ord, err := OrderForFlag(v)
	if err != nil {
		return err
	}
	d.Order = ord
	return nil
}
