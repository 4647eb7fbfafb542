package dbus

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"unicode/utf8"

	"github.com/danderson/go-dbus/fragments"
)

// Unmarshal decodes data as a value of type sig, in the format and
// byte order given by opts. A nil opts uses the DBus format in native
// byte order.
//
// Encoded [UnixFD] indices are resolved against files. Decoding an
// index not present in files fails with [ErrUnknownFD].
//
// A signature of multiple complete types decodes to a [Struct]
// holding one value per type.
//
// Unmarshal is strict: padding must be zero, booleans must be 0 or 1,
// strings must be valid UTF-8, and data must hold exactly one value
// with no trailing bytes.
func Unmarshal(data []byte, sig Signature, files *FDTable, opts *Options) (Value, error) {
	if sig.IsZero() {
		if len(data) != 0 {
			return nil, fmt.Errorf("%d bytes of data for void type: %w", len(data), ErrOutOfBounds)
		}
		return nil, nil
	}
	if err := sig.compatible(opts.format()); err != nil {
		return nil, err
	}
	d := decoder{
		Decoder: fragments.Decoder{
			Order: opts.order(),
			In:    data,
		},
		opts:  opts,
		files: files,
		depth: newDepthCounter(opts.limits()),
	}
	if opts.format() == FormatGVariant {
		return d.gvValue(sig.n, data, 0)
	}
	ret, err := d.value(sig.n)
	if err != nil {
		return nil, err
	}
	if rest := d.Remaining(); rest != 0 {
		return nil, fmt.Errorf("%w: %d unexpected trailing bytes after %s value", ErrOutOfBounds, rest, sig)
	}
	return ret, nil
}

const debugDecoding = false

func debugDecode(msg string, args ...any) {
	if !debugDecoding {
		return
	}
	slog.Debug(msg, args...)
}

type decoder struct {
	fragments.Decoder
	opts  *Options
	files *FDTable
	depth depthCounter
}

// value decodes a DBus format value of type n.
func (d *decoder) value(n *node) (Value, error) {
	debugDecode("decode", "type", n.str, "offset", d.Offset())
	switch n.kind {
	case KindByte:
		u, err := d.Uint8()
		if err != nil {
			return nil, err
		}
		return Byte(u), nil
	case KindBool:
		u, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		return decodeBool(uint64(u))
	case KindInt16:
		u, err := d.Uint16()
		if err != nil {
			return nil, err
		}
		return Int16(u), nil
	case KindUint16:
		u, err := d.Uint16()
		if err != nil {
			return nil, err
		}
		return Uint16(u), nil
	case KindInt32:
		u, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		return Int32(u), nil
	case KindUint32:
		u, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		return Uint32(u), nil
	case KindInt64:
		u, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		return Int64(u), nil
	case KindUint64:
		u, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		return Uint64(u), nil
	case KindDouble:
		u, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		return Double(math.Float64frombits(u)), nil
	case KindString, KindObjectPath:
		s, err := d.String()
		if err != nil {
			return nil, err
		}
		return decodeString(n, s)
	case KindSignature:
		s, err := d.Signature()
		if err != nil {
			return nil, err
		}
		return d.signatureValue(s)
	case KindUnixFD:
		idx, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		fd, err := d.files.Get(idx)
		if err != nil {
			return nil, err
		}
		return UnixFD(fd), nil
	case KindVariant:
		if err := d.depth.enter(KindVariant); err != nil {
			return nil, err
		}
		defer d.depth.exit(KindVariant)
		s, err := d.Signature()
		if err != nil {
			return nil, err
		}
		sig, err := d.variantSignature(s)
		if err != nil {
			return nil, err
		}
		inner, err := d.value(sig.n)
		if err != nil {
			return nil, err
		}
		return Variant{sig, inner}, nil
	case KindArray:
		if err := d.depth.enter(KindArray); err != nil {
			return nil, err
		}
		defer d.depth.exit(KindArray)
		if n.elem.kind == KindDictEntry {
			return d.dict(n)
		}
		ret := Array{Elem: Signature{n.elem}}
		_, err := d.Array(n.elem.dbusAlign, func(int) error {
			v, err := d.value(n.elem)
			if err != nil {
				return err
			}
			ret.Items = append(ret.Items, v)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return ret, nil
	case KindStruct:
		fields, err := d.structure(n)
		if err != nil {
			return nil, err
		}
		return Struct{fields}, nil
	case KindMaybe:
		return nil, IncompatibleFormatError{Signature{n}, FormatDBus}
	default:
		return nil, typeErr(n, "unknown type kind %s", n.kind)
	}
}

func (d *decoder) dict(n *node) (Value, error) {
	entry := n.elem
	ret := Dict{
		Key: Signature{entry.fields[0]},
		Val: Signature{entry.fields[1]},
	}
	_, err := d.Array(8, func(int) error {
		kv, err := d.structure(entry)
		if err != nil {
			return err
		}
		ret.Entries = append(ret.Entries, DictEntry{kv[0], kv[1]})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// structure decodes the fields of a DBus format struct or dict entry.
func (d *decoder) structure(n *node) ([]Value, error) {
	if !n.bare {
		if err := d.depth.enter(n.kind); err != nil {
			return nil, err
		}
		defer d.depth.exit(n.kind)
	}
	ret := make([]Value, 0, len(n.fields))
	err := d.Struct(func() error {
		for _, f := range n.fields {
			v, err := d.value(f)
			if err != nil {
				return err
			}
			ret = append(ret, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// variantSignature parses the signature of a variant's content,
// which must be a single complete type usable in the decoding format.
func (d *decoder) variantSignature(s string) (Signature, error) {
	sig, err := d.opts.parseSignature(s)
	if err != nil {
		return Signature{}, err
	}
	if err := checkComponent(sig); err != nil {
		return Signature{}, err
	}
	if err := sig.compatible(d.opts.format()); err != nil {
		return Signature{}, err
	}
	return sig, nil
}

func (d *decoder) signatureValue(s string) (Value, error) {
	sig, err := d.opts.parseSignature(s)
	if err != nil {
		return nil, err
	}
	return sig, nil
}

func decodeBool(u uint64) (Value, error) {
	switch u {
	case 0:
		return Bool(false), nil
	case 1:
		return Bool(true), nil
	default:
		return nil, typeErr(sigBool.n, "invalid boolean value %d", u)
	}
}

func decodeString(n *node, s string) (Value, error) {
	if !utf8.ValidString(s) {
		return nil, ErrInvalidUTF8
	}
	if n.kind == KindObjectPath {
		p := ObjectPath(s)
		if err := p.validate(); err != nil {
			return nil, err
		}
		return p, nil
	}
	return String(s), nil
}

// gvValue decodes the GVariant value of type n held in c, which is
// exactly the bytes of that value. base is the offset of c in the
// complete input, for error reporting.
func (d *decoder) gvValue(n *node, c []byte, base int) (Value, error) {
	debugDecode("decode", "type", n.str, "offset", base, "len", len(c))
	if n.gvSize > 0 && len(c) != n.gvSize {
		return nil, fmt.Errorf("%s value is %d bytes, want %d: %w", n.str, len(c), n.gvSize, ErrOutOfBounds)
	}

	switch n.kind {
	case KindByte:
		return Byte(c[0]), nil
	case KindBool:
		return decodeBool(uint64(c[0]))
	case KindInt16:
		return Int16(d.Order.Uint16(c)), nil
	case KindUint16:
		return Uint16(d.Order.Uint16(c)), nil
	case KindInt32:
		return Int32(d.Order.Uint32(c)), nil
	case KindUint32:
		return Uint32(d.Order.Uint32(c)), nil
	case KindInt64:
		return Int64(d.Order.Uint64(c)), nil
	case KindUint64:
		return Uint64(d.Order.Uint64(c)), nil
	case KindDouble:
		return Double(math.Float64frombits(d.Order.Uint64(c))), nil
	case KindString, KindObjectPath:
		s, err := fragments.CString(c)
		if err != nil {
			return nil, typeErr(n, "%w", err)
		}
		return decodeString(n, s)
	case KindSignature:
		s, err := fragments.CString(c)
		if err != nil {
			return nil, typeErr(n, "%w", err)
		}
		return d.signatureValue(s)
	case KindUnixFD:
		fd, err := d.files.Get(d.Order.Uint32(c))
		if err != nil {
			return nil, err
		}
		return UnixFD(fd), nil
	case KindVariant:
		if err := d.depth.enter(KindVariant); err != nil {
			return nil, err
		}
		defer d.depth.exit(KindVariant)
		sep := bytes.LastIndexByte(c, 0)
		if sep < 0 {
			return nil, typeErr(n, "missing variant signature separator")
		}
		sig, err := d.variantSignature(string(c[sep+1:]))
		if err != nil {
			return nil, err
		}
		inner, err := d.gvValue(sig.n, c[:sep], base)
		if err != nil {
			return nil, err
		}
		return Variant{sig, inner}, nil
	case KindArray:
		if err := d.depth.enter(KindArray); err != nil {
			return nil, err
		}
		defer d.depth.exit(KindArray)
		if n.elem.kind == KindDictEntry {
			ret := Dict{
				Key: Signature{n.elem.fields[0]},
				Val: Signature{n.elem.fields[1]},
			}
			err := d.gvElements(n.elem, c, base, func(c []byte, base int) error {
				kv, err := d.gvStructure(n.elem, c, base)
				if err != nil {
					return err
				}
				ret.Entries = append(ret.Entries, DictEntry{kv[0], kv[1]})
				return nil
			})
			if err != nil {
				return nil, err
			}
			return ret, nil
		}
		ret := Array{Elem: Signature{n.elem}}
		err := d.gvElements(n.elem, c, base, func(c []byte, base int) error {
			v, err := d.gvValue(n.elem, c, base)
			if err != nil {
				return err
			}
			ret.Items = append(ret.Items, v)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return ret, nil
	case KindStruct:
		fields, err := d.gvStructure(n, c, base)
		if err != nil {
			return nil, err
		}
		return Struct{fields}, nil
	case KindMaybe:
		if err := d.depth.enter(KindMaybe); err != nil {
			return nil, err
		}
		defer d.depth.exit(KindMaybe)
		ret := Maybe{Elem: Signature{n.elem}}
		if len(c) == 0 {
			return ret, nil
		}
		if n.elem.gvSize == 0 {
			if c[len(c)-1] != 0 {
				return nil, PaddingError{Byte: c[len(c)-1], Offset: base + len(c) - 1}
			}
			c = c[:len(c)-1]
		}
		v, err := d.gvValue(n.elem, c, base)
		if err != nil {
			return nil, err
		}
		ret.Value = v
		return ret, nil
	default:
		return nil, typeErr(n, "unknown type kind %s", n.kind)
	}
}

// gvElements splits the GVariant array c into its elements of type
// elem, and calls read on each one.
func (d *decoder) gvElements(elem *node, c []byte, base int, read func([]byte, int) error) error {
	if elem.gvSize > 0 {
		if len(c)%elem.gvSize != 0 {
			return fmt.Errorf("array of %s is %d bytes, not a multiple of element size %d: %w", elem.str, len(c), elem.gvSize, ErrOutOfBounds)
		}
		for off := 0; off < len(c); off += elem.gvSize {
			if err := read(c[off:off+elem.gvSize], base+off); err != nil {
				return err
			}
		}
		return nil
	}

	ends, err := fragments.ArrayOffsets(c)
	if err != nil {
		return err
	}
	pos := 0
	for _, end := range ends {
		start := alignUp(pos, elem.gvAlign)
		if start > end {
			return ErrOutOfBounds
		}
		if err := checkPadding(c[pos:start], base+pos); err != nil {
			return err
		}
		if err := read(c[start:end], base+start); err != nil {
			return err
		}
		pos = end
	}
	return nil
}

// gvStructure decodes the fields of the GVariant struct or dict entry
// of type n held in c.
func (d *decoder) gvStructure(n *node, c []byte, base int) ([]Value, error) {
	if !n.bare {
		if err := d.depth.enter(n.kind); err != nil {
			return nil, err
		}
		defer d.depth.exit(n.kind)
	}

	var (
		offsets = fragments.NewOffsetReader(c)
		ret     = make([]Value, 0, len(n.fields))
		pos     = 0
		last    = len(n.fields) - 1
	)
	if n.gvSize > 0 {
		// Fixed-size structs have no framing offsets.
		offsets = nil
	}
	tail := len(c)
	for i, f := range n.fields {
		start := alignUp(pos, f.gvAlign)
		var end int
		switch {
		case f.gvSize > 0:
			end = start + f.gvSize
		case i == last:
			end = offsets.Tail()
		default:
			off, err := offsets.Next()
			if err != nil {
				return nil, err
			}
			end = off
		}
		if offsets != nil {
			tail = offsets.Tail()
		}
		if start > end || end > tail {
			return nil, fmt.Errorf("field %d of %s: %w", i, n.str, ErrOutOfBounds)
		}
		if err := checkPadding(c[pos:start], base+pos); err != nil {
			return nil, err
		}
		v, err := d.gvValue(f, c[start:end], base+start)
		if err != nil {
			return nil, err
		}
		ret = append(ret, v)
		pos = end
	}

	switch {
	case n.gvSize > 0:
		if err := checkPadding(c[pos:], base+pos); err != nil {
			return nil, err
		}
	case pos != offsets.Tail():
		return nil, fmt.Errorf("%d unexpected bytes at end of %s: %w", offsets.Tail()-pos, n.str, ErrOutOfBounds)
	}
	return ret, nil
}

func checkPadding(bs []byte, base int) error {
	for i, b := range bs {
		if b != 0 {
			return PaddingError{Byte: b, Offset: base + i}
		}
	}
	return nil
}
