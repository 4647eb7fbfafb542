package fragments_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danderson/go-dbus/fragments"
	"github.com/google/go-cmp/cmp"
)

type mustDecoder struct {
	t *testing.T
	*fragments.Decoder
}

func (d *mustDecoder) MustRead(n int, want []byte) {
	got, err := d.Read(n)
	if err != nil {
		d.t.Fatalf("Read(%d) got err: %v", n, err)
	}
	if !bytes.Equal(got, want) {
		d.t.Fatalf("Read(%d) wrong output:\n  got: % x\n want: % x", n, got, want)
	}
	if testing.Verbose() {
		d.t.Logf("Read(%d) = % x", n, got)
	}
}

func (d *mustDecoder) MustBytes(want []byte) {
	got, err := d.Bytes()
	if err != nil {
		d.t.Fatalf("Bytes() got err: %v", err)
	}
	if !bytes.Equal(got, want) {
		d.t.Fatalf("Bytes() wrong output:\n  got: % x\n want: % x", got, want)
	}
}

func (d *mustDecoder) MustString(want string) {
	got, err := d.String()
	if err != nil {
		d.t.Fatalf("String() got err: %v", err)
	}
	if got != want {
		d.t.Fatalf("String() got %q, want %q", got, want)
	}
}

func (d *mustDecoder) MustSignature(want string) {
	got, err := d.Signature()
	if err != nil {
		d.t.Fatalf("Signature() got err: %v", err)
	}
	if got != want {
		d.t.Fatalf("Signature() got %q, want %q", got, want)
	}
}

func (d *mustDecoder) MustUint8(want uint8) {
	got, err := d.Uint8()
	if err != nil {
		d.t.Fatalf("Uint8() got err: %v", err)
	}
	if got != want {
		d.t.Fatalf("Uint8() got %d, want %d", got, want)
	}
}

func (d *mustDecoder) MustUint16(want uint16) {
	got, err := d.Uint16()
	if err != nil {
		d.t.Fatalf("Uint16() got err: %v", err)
	}
	if got != want {
		d.t.Fatalf("Uint16() got %d, want %d", got, want)
	}
}

func (d *mustDecoder) MustUint32(want uint32) {
	got, err := d.Uint32()
	if err != nil {
		d.t.Fatalf("Uint32() got err: %v", err)
	}
	if got != want {
		d.t.Fatalf("Uint32() got %d, want %d", got, want)
	}
}

func (d *mustDecoder) MustUint64(want uint64) {
	got, err := d.Uint64()
	if err != nil {
		d.t.Fatalf("Uint64() got err: %v", err)
	}
	if got != want {
		d.t.Fatalf("Uint64() got %d, want %d", got, want)
	}
}

func (d *mustDecoder) MustStruct(fields func()) {
	err := d.Struct(func() error {
		fields()
		return nil
	})
	if err != nil {
		d.t.Fatalf("Struct() got err: %v", err)
	}
}

func (d *mustDecoder) MustArray(align int, wantLen int, elem func(int)) {
	gotLen, err := d.Array(align, func(i int) error {
		elem(i)
		return nil
	})
	if err != nil {
		d.t.Fatalf("Array() got err: %v", err)
	}
	if gotLen != wantLen {
		d.t.Fatalf("Array() got size %d, want %d", gotLen, wantLen)
	}
	if testing.Verbose() {
		d.t.Logf("Array(%d) = %d elements", align, gotLen)
	}
}

func (d *mustDecoder) MustByteOrderFlag(want fragments.ByteOrder) {
	if err := d.ByteOrderFlag(); err != nil {
		d.t.Fatalf("ByteOrderFlag() got err: %v", err)
	}
	if got := d.Order; got != want {
		d.t.Fatalf("ByteOrderFlag() set byte order %v, want %v", got, want)
	}
}

func TestDecoder(t *testing.T) {
	tests := []struct {
		name   string
		in     []byte
		decode func(d *mustDecoder)
	}{
		{
			"raw bytes",
			[]byte{0x01, 0x02, 0x03},
			func(d *mustDecoder) {
				d.MustRead(3, []byte{1, 2, 3})
			},
		},

		{
			"byte array",
			[]byte{
				0x00, 0x00, 0x00, 0x03,
				0x01, 0x02, 0x03,
			},
			func(d *mustDecoder) {
				d.MustBytes([]byte{1, 2, 3})
			},
		},

		{
			"string",
			[]byte{
				0x00, 0x00, 0x00, 0x03,
				0x66, 0x6f, 0x6f,
				0x00,
			},
			func(d *mustDecoder) {
				d.MustString("foo")
			},
		},

		{
			"signature",
			[]byte{0x02, 0x61, 0x69, 0x00},
			func(d *mustDecoder) {
				d.MustSignature("ai")
			},
		},

		{
			"uints",
			[]byte{
				0x2a,
				0x00, // pad
				0x00, 0x42,
				0x00, 0x00, 0x00, 0x2a,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
			},
			func(d *mustDecoder) {
				d.MustUint8(42)
				d.MustUint16(66)
				d.MustUint32(42)
				d.MustUint64(66)
			},
		},

		{
			"uints padding",
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
			func(d *mustDecoder) {
				d.MustUint64(66)
				d.MustRead(1, []byte{0})
				d.MustUint32(42)
				d.MustRead(1, []byte{0})
				d.MustUint16(66)
				d.MustRead(1, []byte{0})
				d.MustUint8(42)
			},
		},

		{
			"struct padding",
			[]byte{
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
				0x00, 0x00, 0x00, 0x2a,
				0x00, 0x00, 0x00, 0x00, // pad
				0x00, 0x42,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // pad
				0x2a,
			},
			func(d *mustDecoder) {
				d.MustStruct(func() { d.MustUint64(66) })
				d.MustStruct(func() { d.MustUint32(42) })
				d.MustStruct(func() { d.MustUint16(66) })
				d.MustStruct(func() { d.MustUint8(42) })
			},
		},

		{
			"array",
			[]byte{
				0x00, 0x00, 0x00, 0x04, // length
				0x00, 0x01,
				0x00, 0x02,
			},
			func(d *mustDecoder) {
				d.MustArray(2, 2, func(i int) {
					d.MustUint16(uint16(i + 1))
				})
			},
		},

		{
			"empty array",
			[]byte{
				0x00, 0x00, 0x00, 0x00, // length
			},
			func(d *mustDecoder) {
				d.MustArray(1, 0, func(int) {
					d.t.Fatal("element callback called for empty array")
				})
			},
		},

		{
			"struct array",
			[]byte{
				0x00, 0x00, 0x00, 0x0a, // length
				0x00, 0x00, 0x00, 0x00, // pad
				0x00, 0x01,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // pad
				0x00, 0x02,
			},
			func(d *mustDecoder) {
				d.MustArray(8, 2, func(i int) {
					d.MustStruct(func() { d.MustUint16(uint16(i + 1)) })
				})
			},
		},

		{
			"empty struct array",
			[]byte{
				0x00, 0x00, 0x00, 0x00, // length
				0x00, 0x00, 0x00, 0x00, // pad
			},
			func(d *mustDecoder) {
				d.MustArray(8, 0, func(int) {
					d.t.Fatal("element callback called for empty array")
				})
			},
		},

		{
			"byte order flag",
			[]byte{'B', 'l', '?'},
			func(d *mustDecoder) {
				d.MustByteOrderFlag(fragments.BigEndian)
				d.MustByteOrderFlag(fragments.LittleEndian)
				if err := d.ByteOrderFlag(); err == nil {
					d.t.Fatalf("ByteOrderFlag did not error on invalid byte order")
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := mustDecoder{
				t: t,
				Decoder: &fragments.Decoder{
					Order: fragments.BigEndian,
					In:    tc.in,
				},
			}
			tc.decode(&d)
			if remain := d.Remaining(); remain > 0 {
				t.Fatalf("decoder failed to consume %d trailing bytes", remain)
			}
		})
	}
}

func TestDecoderErrors(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		decode  func(d *fragments.Decoder) error
		wantErr error
	}{
		{
			"nonzero padding",
			[]byte{0x2a, 0x07, 0x00, 0x42},
			func(d *fragments.Decoder) error {
				if _, err := d.Uint8(); err != nil {
					return err
				}
				_, err := d.Uint16()
				return err
			},
			fragments.PaddingError{Byte: 0x07, Offset: 1},
		},
		{
			"short read",
			[]byte{0x00, 0x00},
			func(d *fragments.Decoder) error {
				_, err := d.Uint32()
				return err
			},
			fragments.ErrOutOfBounds,
		},
		{
			"string past end",
			[]byte{0x00, 0x00, 0x00, 0x09, 'f', 'o', 'o', 0x00},
			func(d *fragments.Decoder) error {
				_, err := d.String()
				return err
			},
			fragments.ErrOutOfBounds,
		},
		{
			"array past end",
			[]byte{0x00, 0x00, 0x00, 0x08, 0x00, 0x01},
			func(d *fragments.Decoder) error {
				_, err := d.Array(2, func(int) error {
					_, err := d.Uint16()
					return err
				})
				return err
			},
			fragments.ErrOutOfBounds,
		},
		{
			"element overruns array",
			[]byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x01},
			func(d *fragments.Decoder) error {
				_, err := d.Array(4, func(int) error {
					_, err := d.Uint32()
					return err
				})
				return err
			},
			fragments.ErrOutOfBounds,
		},
		{
			"array too long",
			[]byte{0x04, 0x00, 0x00, 0x01},
			func(d *fragments.Decoder) error {
				_, err := d.Array(1, func(int) error {
					_, err := d.Uint8()
					return err
				})
				return err
			},
			fragments.ErrOutOfBounds,
		},
		{
			"empty array element",
			[]byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00},
			func(d *fragments.Decoder) error {
				_, err := d.Array(1, func(int) error { return nil })
				return err
			},
			fragments.ErrOutOfBounds,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := &fragments.Decoder{
				Order: fragments.BigEndian,
				In:    tc.in,
			}
			err := tc.decode(d)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got err %v, want %v", err, tc.wantErr)
			}
			var pe fragments.PaddingError
			if errors.As(tc.wantErr, &pe) {
				var got fragments.PaddingError
				if !errors.As(err, &got) {
					t.Fatalf("got err %v, want PaddingError", err)
				}
				if diff := cmp.Diff(got, pe); diff != "" {
					t.Fatalf("wrong PaddingError (-got+want):\n%s", diff)
				}
			}
		})
	}
}

func TestDecoderUnterminatedString(t *testing.T) {
	d := &fragments.Decoder{
		Order: fragments.LittleEndian,
		In:    []byte{0x03, 0x00, 0x00, 0x00, 'f', 'o', 'o', 'x'},
	}
	if _, err := d.String(); err == nil {
		t.Fatal("String() accepted a string without NUL terminator")
	}
}
