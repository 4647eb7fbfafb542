package dbus

import (
	"log/slog"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/danderson/go-dbus/fragments"
)

// Marshal returns the encoding of v as a value of type sig, in the
// format and byte order given by opts. A nil opts uses the DBus
// format in native byte order.
//
// The shape of v must match sig exactly. Marshal stops at the first
// mismatch and returns a [TypeError].
//
// Each [UnixFD] in v is added to files, and its index in files is
// encoded in its place. files may be nil if v contains no UnixFD.
// On error, files is left as it was before the call.
//
// A signature of multiple complete types is encoded from a [Struct]
// holding one value per type, as in a message body.
func Marshal(v Value, sig Signature, files *FDTable, opts *Options) ([]byte, error) {
	return MarshalAppend(nil, v, sig, files, opts)
}

// MarshalAppend is like [Marshal], but appends the encoding to bs.
// Alignment is computed relative to the start of bs, so len(bs) must
// be a multiple of 8.
func MarshalAppend(bs []byte, v Value, sig Signature, files *FDTable, opts *Options) ([]byte, error) {
	if sig.IsZero() {
		return nil, typeErr(nil, "cannot encode a value of void type")
	}
	if err := sig.compatible(opts.format()); err != nil {
		return nil, err
	}
	e := encoder{
		Encoder: fragments.Encoder{
			Order: opts.order(),
			Out:   bs,
		},
		format: opts.format(),
		files:  files,
		depth:  newDepthCounter(opts.limits()),
	}
	mark := files.Len()
	if err := e.value(sig.n, v); err != nil {
		files.truncate(mark)
		return nil, err
	}
	return e.Out, nil
}

const debugEncoding = false

func debugEncode(msg string, args ...any) {
	if !debugEncoding {
		return
	}
	slog.Debug(msg, args...)
}

type encoder struct {
	fragments.Encoder
	format Format
	files  *FDTable
	depth  depthCounter
}

func (e *encoder) gvariant() bool {
	return e.format == FormatGVariant
}

// value encodes v as type n.
func (e *encoder) value(n *node, v Value) error {
	debugEncode("encode", "type", n.str, "offset", e.Len())
	if v == nil {
		return typeErr(n, "missing value")
	}
	if e.gvariant() {
		e.Pad(n.gvAlign)
	}

	switch n.kind {
	case KindByte:
		x, ok := v.(Byte)
		if !ok {
			return mismatch(n, v)
		}
		e.Uint8(uint8(x))
	case KindBool:
		x, ok := v.(Bool)
		if !ok {
			return mismatch(n, v)
		}
		var u uint8
		if x {
			u = 1
		}
		if e.gvariant() {
			e.Uint8(u)
		} else {
			e.Uint32(uint32(u))
		}
	case KindInt16:
		x, ok := v.(Int16)
		if !ok {
			return mismatch(n, v)
		}
		e.Uint16(uint16(x))
	case KindUint16:
		x, ok := v.(Uint16)
		if !ok {
			return mismatch(n, v)
		}
		e.Uint16(uint16(x))
	case KindInt32:
		x, ok := v.(Int32)
		if !ok {
			return mismatch(n, v)
		}
		e.Uint32(uint32(x))
	case KindUint32:
		x, ok := v.(Uint32)
		if !ok {
			return mismatch(n, v)
		}
		e.Uint32(uint32(x))
	case KindInt64:
		x, ok := v.(Int64)
		if !ok {
			return mismatch(n, v)
		}
		e.Uint64(uint64(x))
	case KindUint64:
		x, ok := v.(Uint64)
		if !ok {
			return mismatch(n, v)
		}
		e.Uint64(uint64(x))
	case KindDouble:
		x, ok := v.(Double)
		if !ok {
			return mismatch(n, v)
		}
		e.Uint64(math.Float64bits(float64(x)))
	case KindString:
		x, ok := v.(String)
		if !ok {
			return mismatch(n, v)
		}
		if err := checkString(string(x)); err != nil {
			return err
		}
		e.str(string(x))
	case KindObjectPath:
		x, ok := v.(ObjectPath)
		if !ok {
			return mismatch(n, v)
		}
		if err := x.validate(); err != nil {
			return err
		}
		e.str(string(x))
	case KindSignature:
		x, ok := v.(Signature)
		if !ok {
			return mismatch(n, v)
		}
		if e.gvariant() {
			e.CString(x.String())
		} else if err := e.Signature(x.String()); err != nil {
			return err
		}
	case KindUnixFD:
		x, ok := v.(UnixFD)
		if !ok {
			return mismatch(n, v)
		}
		if e.files == nil {
			return typeErr(n, "cannot encode file descriptor without an FDTable")
		}
		idx, err := e.files.Add(int(x))
		if err != nil {
			return err
		}
		e.Uint32(idx)
	case KindVariant:
		x, ok := v.(Variant)
		if !ok {
			return mismatch(n, v)
		}
		return e.variant(x)
	case KindArray:
		if n.elem.kind == KindDictEntry {
			x, ok := v.(Dict)
			if !ok {
				return mismatch(n, v)
			}
			return e.dict(n, x)
		}
		x, ok := v.(Array)
		if !ok {
			return mismatch(n, v)
		}
		if !x.Elem.IsZero() && x.Elem.n.str != n.elem.str {
			return typeErr(n, "array has element type %q", x.Elem)
		}
		return e.array(n, x.Items)
	case KindStruct:
		x, ok := v.(Struct)
		if !ok {
			return mismatch(n, v)
		}
		return e.structure(n, x.Fields)
	case KindMaybe:
		x, ok := v.(Maybe)
		if !ok {
			return mismatch(n, v)
		}
		return e.maybe(n, x)
	default:
		return typeErr(n, "unknown type kind %s", n.kind)
	}
	return nil
}

func mismatch(n *node, v Value) error {
	return typeErr(n, "cannot encode %T as %s", v, n.kind)
}

func checkString(s string) error {
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	if strings.IndexByte(s, 0) >= 0 {
		return typeErr(sigString.n, "string contains NUL byte")
	}
	return nil
}

// str writes a string or object path.
func (e *encoder) str(s string) {
	if e.gvariant() {
		e.CString(s)
	} else {
		e.String(s)
	}
}

func (e *encoder) variant(v Variant) error {
	n, inner, err := v.inner()
	if err != nil {
		return err
	}
	if err := (Signature{n}).compatible(e.format); err != nil {
		return err
	}
	if err := e.depth.enter(KindVariant); err != nil {
		return err
	}
	defer e.depth.exit(KindVariant)

	if !e.gvariant() {
		if err := e.Signature(n.str); err != nil {
			return err
		}
		return e.value(n, inner)
	}

	if err := e.value(n, inner); err != nil {
		return err
	}
	e.Uint8(0)
	e.Write([]byte(n.str))
	return nil
}

func (e *encoder) array(n *node, items []Value) error {
	if err := e.depth.enter(KindArray); err != nil {
		return err
	}
	defer e.depth.exit(KindArray)

	if !e.gvariant() {
		return e.Array(n.elem.dbusAlign, func() error {
			for _, it := range items {
				if err := e.value(n.elem, it); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return e.gvElements(n.elem, len(items), func(i int) error {
		return e.value(n.elem, items[i])
	})
}

func (e *encoder) dict(n *node, d Dict) error {
	entry := n.elem
	if (!d.Key.IsZero() && d.Key.n.str != entry.fields[0].str) || (!d.Val.IsZero() && d.Val.n.str != entry.fields[1].str) {
		return typeErr(n, "dict has type a{%s%s}", d.Key, d.Val)
	}
	if err := e.depth.enter(KindArray); err != nil {
		return err
	}
	defer e.depth.exit(KindArray)

	writeEntry := func(i int) error {
		ent := d.Entries[i]
		return e.structure(entry, []Value{ent.Key, ent.Value})
	}

	if !e.gvariant() {
		return e.Array(8, func() error {
			for i := range d.Entries {
				if err := writeEntry(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return e.gvElements(entry, len(d.Entries), writeEntry)
}

// gvElements writes the n elements of a GVariant array of elem,
// followed by the framing offsets if elem varies in size.
func (e *encoder) gvElements(elem *node, n int, write func(int) error) error {
	start := e.Len()
	var ends []int
	for i := range n {
		if err := write(i); err != nil {
			return err
		}
		if elem.gvSize == 0 {
			ends = append(ends, e.Len()-start)
		}
	}
	e.FramingOffsets(start, ends)
	return nil
}

// structure writes a struct or dict entry of type n.
func (e *encoder) structure(n *node, fields []Value) error {
	if len(fields) != len(n.fields) {
		return typeErr(n, "got %d struct fields, want %d", len(fields), len(n.fields))
	}
	if !n.bare {
		if err := e.depth.enter(n.kind); err != nil {
			return err
		}
		defer e.depth.exit(n.kind)
	}

	if !e.gvariant() {
		return e.Struct(func() error {
			for i, f := range fields {
				if err := e.value(n.fields[i], f); err != nil {
					return err
				}
			}
			return nil
		})
	}

	e.Pad(n.gvAlign)
	start := e.Len()
	var ends []int
	for i, f := range fields {
		ft := n.fields[i]
		if err := e.value(ft, f); err != nil {
			return err
		}
		if ft.gvSize == 0 && i != len(fields)-1 {
			ends = append(ends, e.Len()-start)
		}
	}
	if n.gvSize > 0 {
		e.Pad(n.gvAlign)
		return nil
	}
	slices.Reverse(ends)
	e.FramingOffsets(start, ends)
	return nil
}

func (e *encoder) maybe(n *node, m Maybe) error {
	if !m.Elem.IsZero() && m.Elem.n.str != n.elem.str {
		return typeErr(n, "maybe has element type %q", m.Elem)
	}
	if err := e.depth.enter(KindMaybe); err != nil {
		return err
	}
	defer e.depth.exit(KindMaybe)

	if m.Value == nil {
		return nil
	}
	if err := e.value(n.elem, m.Value); err != nil {
		return err
	}
	if n.elem.gvSize == 0 {
		e.Uint8(0)
	}
	return nil
}
