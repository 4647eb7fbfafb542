package fragments_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danderson/go-dbus/fragments"
)

func TestEncoder(t *testing.T) {
	tests := []struct {
		name string
		in   func(*fragments.Encoder) error
		want []byte
	}{
		{
			"raw bytes",
			func(e *fragments.Encoder) error {
				e.Write([]byte{1, 2, 3})
				return nil
			},
			[]byte{0x01, 0x02, 0x03},
		},

		{
			"byte array",
			func(e *fragments.Encoder) error {
				e.Bytes([]byte{1, 2, 3})
				return nil
			},
			[]byte{
				0x00, 0x00, 0x00, 0x03, // length
				0x01, 0x02, 0x03, // val
			},
		},

		{
			"string",
			func(e *fragments.Encoder) error {
				e.String("foo")
				return nil
			},
			[]byte{
				0x00, 0x00, 0x00, 0x03, // length
				0x66, 0x6f, 0x6f, // val
				0x00, // terminator
			},
		},

		{
			"signature",
			func(e *fragments.Encoder) error {
				return e.Signature("ai")
			},
			[]byte{
				0x02,       // length
				0x61, 0x69, // val
				0x00, // terminator
			},
		},

		{
			"cstring",
			func(e *fragments.Encoder) error {
				e.Uint8(1)
				e.CString("foo")
				return nil
			},
			[]byte{0x01, 0x66, 0x6f, 0x6f, 0x00},
		},

		{
			"uints",
			func(e *fragments.Encoder) error {
				e.Uint8(42)
				e.Uint16(66)
				e.Uint32(42)
				e.Uint64(66)
				return nil
			},
			[]byte{
				0x2a,
				0x00, // pad
				0x00, 0x42,
				0x00, 0x00, 0x00, 0x2a,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
			},
		},

		{
			"uints padding",
			func(e *fragments.Encoder) error {
				e.Uint64(66)
				e.Write([]byte{0})
				e.Uint32(42)
				e.Write([]byte{0})
				e.Uint16(66)
				e.Write([]byte{0})
				e.Uint8(42)
				return nil
			},
			[]byte{
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
				0x00,             // raw
				0x00, 0x00, 0x00, // pad
				0x00, 0x00, 0x00, 0x2a,
				0x00, // raw
				0x00, // pad
				0x00, 0x42,
				0x00, // raw
				0x2a,
			},
		},

		{
			"struct padding",
			func(e *fragments.Encoder) error {
				e.Struct(func() error {
					e.Uint64(66)
					return nil
				})
				e.Struct(func() error {
					e.Uint32(42)
					return nil
				})
				e.Struct(func() error {
					e.Uint16(66)
					return nil
				})
				return e.Struct(func() error {
					e.Uint8(42)
					return nil
				})
			},
			[]byte{
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
				0x00, 0x00, 0x00, 0x2a,
				0x00, 0x00, 0x00, 0x00, // pad
				0x00, 0x42,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // pad
				0x2a,
			},
		},

		{
			"array",
			func(e *fragments.Encoder) error {
				return e.Array(2, func() error {
					e.Uint16(1)
					e.Uint16(2)
					return nil
				})
			},
			[]byte{
				0x00, 0x00, 0x00, 0x04, // length
				0x00, 0x01,
				0x00, 0x02,
			},
		},

		{
			"empty array",
			func(e *fragments.Encoder) error {
				return e.Array(1, func() error { return nil })
			},
			[]byte{
				0x00, 0x00, 0x00, 0x00, // length
			},
		},

		{
			"struct array",
			func(e *fragments.Encoder) error {
				return e.Array(8, func() error {
					e.Struct(func() error {
						e.Uint16(1)
						return nil
					})
					return e.Struct(func() error {
						e.Uint16(2)
						return nil
					})
				})
			},
			[]byte{
				0x00, 0x00, 0x00, 0x0a, // length
				0x00, 0x00, 0x00, 0x00, // pad
				0x00, 0x01,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // pad
				0x00, 0x02,
			},
		},

		{
			"empty struct array",
			func(e *fragments.Encoder) error {
				return e.Array(8, func() error { return nil })
			},
			[]byte{
				0x00, 0x00, 0x00, 0x00, // length
				0x00, 0x00, 0x00, 0x00, // pad
			},
		},

		{
			"byte order flag",
			func(e *fragments.Encoder) error {
				e.ByteOrderFlag()
				return nil
			},
			[]byte{'B'},
		},

		{
			"framing offsets",
			func(e *fragments.Encoder) error {
				e.CString("a")
				e.CString("bb")
				e.CString("ccc")
				e.FramingOffsets(0, []int{2, 5, 9})
				return nil
			},
			[]byte{
				'a', 0x00,
				'b', 'b', 0x00,
				'c', 'c', 'c', 0x00,
				0x02, 0x05, 0x09, // offsets
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := fragments.Encoder{
				Order: fragments.BigEndian,
			}
			if err := tc.in(&e); err != nil {
				t.Fatalf("encoding failed: %v", err)
			}
			if got := e.Out; !bytes.Equal(got, tc.want) {
				t.Errorf("wrong encoding:\n  got: % x\n want: % x", got, tc.want)
			}
		})
	}
}

func TestEncoderSignatureTooLong(t *testing.T) {
	e := fragments.Encoder{Order: fragments.LittleEndian}
	err := e.Signature(string(bytes.Repeat([]byte{'y'}, 256)))
	if err == nil {
		t.Fatal("Signature accepted a 256 byte signature")
	}
	if !errors.Is(err, fragments.ErrOutOfBounds) {
		t.Errorf("Signature got err %v, want ErrOutOfBounds", err)
	}
}
