package dbus_test

import (
	"bytes"
	"testing"

	"github.com/danderson/go-dbus"
	"github.com/danderson/go-dbus/fragments"
	"github.com/google/go-cmp/cmp"
)

func mustSig(t *testing.T, s string) dbus.Signature {
	t.Helper()
	ret, err := dbus.ParseSignature(s)
	if err != nil {
		t.Fatalf("ParseSignature(%q): %v", s, err)
	}
	return ret
}

func mustDict(t *testing.T, key, val string, kvs ...dbus.Value) dbus.Dict {
	t.Helper()
	ret := dbus.NewDict(mustSig(t, key), mustSig(t, val))
	for i := 0; i < len(kvs); i += 2 {
		ret.Add(kvs[i], kvs[i+1])
	}
	return ret
}

var (
	be = fragments.BigEndian
	le = fragments.LittleEndian
)

func orderName(o fragments.ByteOrder) string {
	if o == be {
		return "BE"
	}
	return "LE"
}

func TestMarshal(t *testing.T) {
	type testCase struct {
		sig   string
		in    func(t *testing.T) dbus.Value
		f     dbus.Format
		order fragments.ByteOrder
		want  []byte
	}
	val := func(v dbus.Value) func(*testing.T) dbus.Value {
		return func(*testing.T) dbus.Value { return v }
	}
	str := func(ss ...string) []dbus.Value {
		var ret []dbus.Value
		for _, s := range ss {
			ret = append(ret, dbus.String(s))
		}
		return ret
	}
	dbusFmt, gv := dbus.FormatDBus, dbus.FormatGVariant

	tests := []testCase{
		// Basic types, DBus format.
		{"y", val(dbus.Byte(5)), dbusFmt, le, []byte{0x05}},
		{"b", val(dbus.Bool(true)), dbusFmt, le, []byte{0x01, 0x00, 0x00, 0x00}},
		{"b", val(dbus.Bool(true)), dbusFmt, be, []byte{0x00, 0x00, 0x00, 0x01}},
		{"b", val(dbus.Bool(false)), dbusFmt, be, []byte{0x00, 0x00, 0x00, 0x00}},
		{"n", val(dbus.Int16(0x2bff)), dbusFmt, le, []byte{0xff, 0x2b}},
		{"q", val(dbus.Uint16(0x2bff)), dbusFmt, be, []byte{0x2b, 0xff}},
		{"i", val(dbus.Int32(0x12342bff)), dbusFmt, be, []byte{0x12, 0x34, 0x2b, 0xff}},
		{"u", val(dbus.Uint32(0x12342bff)), dbusFmt, le, []byte{0xff, 0x2b, 0x34, 0x12}},
		{"x", val(dbus.Int64(-1)), dbusFmt, le, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"t", val(dbus.Uint64(0x0102030405060708)), dbusFmt, be, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}},
		{"d", val(dbus.Double(1)), dbusFmt, le, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf0, 0x3f}},
		{"s", val(dbus.String("foo")), dbusFmt, le, []byte{0x03, 0x00, 0x00, 0x00, 'f', 'o', 'o', 0x00}},
		{"s", val(dbus.String("")), dbusFmt, le, []byte{0x00, 0x00, 0x00, 0x00, 0x00}},
		{"o", val(dbus.ObjectPath("/a")), dbusFmt, be, []byte{0x00, 0x00, 0x00, 0x02, '/', 'a', 0x00}},
		{"g", func(t *testing.T) dbus.Value { return mustSig(t, "a{sv}") }, dbusFmt, le, []byte{0x05, 'a', '{', 's', 'v', '}', 0x00}},

		// Containers, DBus format.
		{"ai", val(dbus.NewArray(mustSigNoT("i"), dbus.Int32(1), dbus.Int32(2))), dbusFmt, le, []byte{
			0x08, 0x00, 0x00, 0x00,
			0x01, 0x00, 0x00, 0x00,
			0x02, 0x00, 0x00, 0x00,
		}},
		{"ax", val(dbus.NewArray(mustSigNoT("x"), dbus.Int64(1))), dbusFmt, le, []byte{
			0x08, 0x00, 0x00, 0x00,
			0x00, 0x00, 0x00, 0x00, // pad
			0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		}},
		{"ax", val(dbus.NewArray(mustSigNoT("x"))), dbusFmt, le, []byte{
			0x00, 0x00, 0x00, 0x00,
			0x00, 0x00, 0x00, 0x00, // pad
		}},
		{"(yi)", val(dbus.NewStruct(dbus.Byte(1), dbus.Int32(2))), dbusFmt, le, []byte{
			0x01, 0x00, 0x00, 0x00,
			0x02, 0x00, 0x00, 0x00,
		}},
		{"a{su}", func(t *testing.T) dbus.Value {
			return mustDict(t, "s", "u", dbus.String("a"), dbus.Uint32(1), dbus.String("b"), dbus.Uint32(2))
		}, dbusFmt, le, []byte{
			0x1c, 0x00, 0x00, 0x00, // array length
			0x00, 0x00, 0x00, 0x00, // pad
			0x01, 0x00, 0x00, 0x00, 'a', 0x00, 0x00, 0x00,
			0x01, 0x00, 0x00, 0x00,
			0x00, 0x00, 0x00, 0x00, // pad
			0x01, 0x00, 0x00, 0x00, 'b', 0x00, 0x00, 0x00,
			0x02, 0x00, 0x00, 0x00,
		}},
		{"v", val(dbus.NewVariant(dbus.NewStruct(dbus.Int32(42), dbus.String("x")))), dbusFmt, le, []byte{
			0x04, '(', 'i', 's', ')', 0x00,
			0x00, 0x00, // pad
			0x2a, 0x00, 0x00, 0x00,
			0x01, 0x00, 0x00, 0x00, 'x', 0x00,
		}},
		{"is", val(dbus.NewStruct(dbus.Int32(42), dbus.String("x"))), dbusFmt, le, []byte{
			0x2a, 0x00, 0x00, 0x00,
			0x01, 0x00, 0x00, 0x00, 'x', 0x00,
		}},

		// Basic types, GVariant format.
		{"y", val(dbus.Byte(5)), gv, le, []byte{0x05}},
		{"b", val(dbus.Bool(true)), gv, le, []byte{0x01}},
		{"i", val(dbus.Int32(0x12342bff)), gv, be, []byte{0x12, 0x34, 0x2b, 0xff}},
		{"s", val(dbus.String("foo")), gv, le, []byte{'f', 'o', 'o', 0x00}},
		{"o", val(dbus.ObjectPath("/")), gv, le, []byte{'/', 0x00}},
		{"g", func(t *testing.T) dbus.Value { return mustSig(t, "ai") }, gv, le, []byte{'a', 'i', 0x00}},

		// Containers, GVariant format.
		{"ai", val(dbus.NewArray(mustSigNoT("i"), dbus.Int32(1), dbus.Int32(2))), gv, le, []byte{
			0x01, 0x00, 0x00, 0x00,
			0x02, 0x00, 0x00, 0x00,
		}},
		{"as", val(dbus.NewArray(mustSigNoT("s"), str("a", "b", "c")...)), gv, le, []byte{
			'a', 0x00, 'b', 0x00, 'c', 0x00,
			0x02, 0x04, 0x06, // framing offsets
		}},
		{"as", val(dbus.NewArray(mustSigNoT("s"))), gv, le, []byte{}},
		{"(ys)", val(dbus.NewStruct(dbus.Byte(1), dbus.String("ab"))), gv, le, []byte{
			0x01, 'a', 'b', 0x00,
		}},
		{"(sy)", val(dbus.NewStruct(dbus.String("ab"), dbus.Byte(1))), gv, le, []byte{
			'a', 'b', 0x00, 0x01,
			0x03, // framing offset
		}},
		{"(yi)", val(dbus.NewStruct(dbus.Byte(1), dbus.Int32(2))), gv, le, []byte{
			0x01, 0x00, 0x00, 0x00,
			0x02, 0x00, 0x00, 0x00,
		}},
		{"(iy)", val(dbus.NewStruct(dbus.Int32(2), dbus.Byte(1))), gv, le, []byte{
			0x02, 0x00, 0x00, 0x00,
			0x01, 0x00, 0x00, 0x00, // trailing pad
		}},
		{"a{su}", func(t *testing.T) dbus.Value {
			return mustDict(t, "s", "u", dbus.String("a"), dbus.Uint32(1), dbus.String("b"), dbus.Uint32(2))
		}, gv, le, []byte{
			'a', 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02,
			0x00, 0x00, 0x00, // pad
			'b', 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x02,
			0x09, 0x15, // framing offsets
		}},
		{"v", val(dbus.NewVariant(dbus.Int32(3))), gv, le, []byte{
			0x03, 0x00, 0x00, 0x00, 0x00, 'i',
		}},
		{"v", val(dbus.NewVariant(dbus.NewStruct(dbus.Int32(42), dbus.String("x")))), gv, le, []byte{
			0x2a, 0x00, 0x00, 0x00, 'x', 0x00,
			0x00, '(', 'i', 's', ')',
		}},
		{"mi", val(dbus.Nothing(mustSigNoT("i"))), gv, le, []byte{}},
		{"mi", val(dbus.Just(dbus.Int32(5))), gv, le, []byte{0x05, 0x00, 0x00, 0x00}},
		{"ms", val(dbus.Just(dbus.String("a"))), gv, le, []byte{'a', 0x00, 0x00}},
		{"ms", val(dbus.Nothing(mustSigNoT("s"))), gv, le, []byte{}},
	}

	for _, tc := range tests {
		sig := mustSig(t, tc.sig)
		in := tc.in(t)
		opts := &dbus.Options{Format: tc.f, Order: tc.order}
		got, err := dbus.Marshal(in, sig, nil, opts)
		if err != nil {
			t.Errorf("Marshal(%s, %v, %s) got err: %v", sig, in, tc.f, err)
			continue
		}
		if !bytes.Equal(got, tc.want) {
			t.Errorf("Marshal(%s, %v, %s/%s) wrong encoding:\n  got: % x\n want: % x", sig, in, tc.f, orderName(tc.order), got, tc.want)
			continue
		} else if testing.Verbose() {
			t.Logf("Marshal(%s, %v, %s/%s) = % x", sig, in, tc.f, orderName(tc.order), got)
		}

		back, err := dbus.Unmarshal(got, sig, nil, opts)
		if err != nil {
			t.Errorf("Unmarshal(%s, % x, %s) got err: %v", sig, got, tc.f, err)
			continue
		}
		if diff := cmp.Diff(back, in); diff != "" {
			t.Errorf("Unmarshal(%s, % x, %s) wrong value (-got+want):\n%s", sig, got, tc.f, diff)
		}
	}
}

// mustSigNoT is mustSig for use in test tables, where no
// *testing.T is in scope.
func mustSigNoT(s string) dbus.Signature {
	ret, err := dbus.ParseSignature(s)
	if err != nil {
		panic(err)
	}
	return ret
}

func TestMarshalAppend(t *testing.T) {
	sig := mustSig(t, "(yx)")
	v := dbus.NewStruct(dbus.Byte(1), dbus.Int64(2))
	prefix := []byte{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa}
	got, err := dbus.MarshalAppend(prefix, v, sig, nil, &dbus.Options{Order: le})
	if err != nil {
		t.Fatalf("MarshalAppend got err: %v", err)
	}
	want := []byte{
		0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa,
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("MarshalAppend wrong encoding:\n  got: % x\n want: % x", got, want)
	}
}

func TestMarshalErrors(t *testing.T) {
	tests := []struct {
		name string
		sig  string
		in   dbus.Value
		f    dbus.Format
	}{
		{"wrong basic type", "i", dbus.Uint32(1), dbus.FormatDBus},
		{"nil value", "i", nil, dbus.FormatDBus},
		{"struct field count", "(ii)", dbus.NewStruct(dbus.Int32(1)), dbus.FormatDBus},
		{"struct field type", "(is)", dbus.NewStruct(dbus.Int32(1), dbus.Int32(2)), dbus.FormatGVariant},
		{"array element type", "ai", dbus.NewArray(mustSigNoT("i"), dbus.Int32(1), dbus.String("x")), dbus.FormatDBus},
		{"array declared type", "ai", dbus.NewArray(mustSigNoT("u"), dbus.Uint32(1)), dbus.FormatDBus},
		{"array for dict", "a{ss}", dbus.NewArray(mustSigNoT("s")), dbus.FormatDBus},
		{"dict declared type", "a{ss}", dbus.NewDict(mustSigNoT("s"), mustSigNoT("i")), dbus.FormatGVariant},
		{"invalid utf8", "s", dbus.String("\xff\xfe"), dbus.FormatDBus},
		{"embedded nul", "s", dbus.String("a\x00b"), dbus.FormatGVariant},
		{"invalid object path", "o", dbus.ObjectPath("foo"), dbus.FormatDBus},
		{"maybe in DBus", "mi", dbus.Just(dbus.Int32(1)), dbus.FormatDBus},
		{"maybe in DBus variant", "v", dbus.NewVariant(dbus.Just(dbus.Int32(1))), dbus.FormatDBus},
		{"empty variant", "v", dbus.Variant{}, dbus.FormatDBus},
		{"fd without table", "h", dbus.UnixFD(3), dbus.FormatDBus},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := dbus.Marshal(tc.in, mustSig(t, tc.sig), nil, &dbus.Options{Format: tc.f})
			if err == nil {
				t.Fatalf("Marshal(%s, %v) = % x, want error", tc.sig, tc.in, got)
			}
			if testing.Verbose() {
				t.Logf("Marshal(%s, %v) err: %v", tc.sig, tc.in, err)
			}
		})
	}
}
