package dbus

import (
	"fmt"
	"strings"
)

// Kind is the kind of type that a [Signature] describes.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindByte
	KindBool
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindDouble
	KindString
	KindObjectPath
	KindSignature
	KindUnixFD
	KindVariant
	KindArray
	KindDictEntry
	KindStruct
	KindMaybe
)

var kindNames = [...]string{
	KindInvalid:    "invalid",
	KindByte:       "byte",
	KindBool:       "bool",
	KindInt16:      "int16",
	KindUint16:     "uint16",
	KindInt32:      "int32",
	KindUint32:     "uint32",
	KindInt64:      "int64",
	KindUint64:     "uint64",
	KindDouble:     "double",
	KindString:     "string",
	KindObjectPath: "object path",
	KindSignature:  "signature",
	KindUnixFD:     "unix fd",
	KindVariant:    "variant",
	KindArray:      "array",
	KindDictEntry:  "dict entry",
	KindStruct:     "struct",
	KindMaybe:      "maybe",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// maxSignatureLen is the maximum length of a signature string.
const maxSignatureLen = 255

// A Signature describes the type of a DBus value.
//
// Signatures are immutable and can be compared with
// [Signature.Equal]. The zero Signature describes a void value: the
// type of an empty message body.
type Signature struct {
	n *node
}

// node is a parsed type. Nodes are never mutated after construction,
// so they can be shared freely between signatures.
type node struct {
	kind Kind
	// elem is the element type of an array or maybe.
	elem *node
	// fields are the field types of a struct, or the key and value
	// types of a dict entry.
	fields []*node
	// bare is set on the struct that represents a sequence of two or
	// more complete types, such as a message body. A bare struct's
	// string form has no parentheses.
	bare bool

	str       string
	dbusAlign int
	gvAlign   int
	gvSize    int
	hasMaybe  bool
}

func (n *node) isBasic() bool {
	return n.kind >= KindByte && n.kind <= KindUnixFD
}

func mkArray(elem *node) *node {
	return &node{
		kind:      KindArray,
		elem:      elem,
		str:       "a" + elem.str,
		dbusAlign: 4,
		gvAlign:   elem.gvAlign,
		hasMaybe:  elem.hasMaybe,
	}
}

func mkMaybe(elem *node) *node {
	return &node{
		kind:      KindMaybe,
		elem:      elem,
		str:       "m" + elem.str,
		dbusAlign: 1,
		gvAlign:   elem.gvAlign,
		hasMaybe:  true,
	}
}

func mkDictEntry(key, val *node) *node {
	ret := mkStruct([]*node{key, val}, false)
	ret.kind = KindDictEntry
	ret.str = "{" + key.str + val.str + "}"
	return ret
}

func mkStruct(fields []*node, bare bool) *node {
	ret := &node{
		kind:      KindStruct,
		fields:    fields,
		bare:      bare,
		dbusAlign: 8,
		gvAlign:   1,
	}
	var (
		sb    strings.Builder
		off   int
		fixed = true
	)
	if !bare {
		sb.WriteByte('(')
	}
	for _, f := range fields {
		sb.WriteString(f.str)
		ret.gvAlign = max(ret.gvAlign, f.gvAlign)
		ret.hasMaybe = ret.hasMaybe || f.hasMaybe
		if f.gvSize == 0 {
			fixed = false
		}
		off = alignUp(off, f.gvAlign) + f.gvSize
	}
	if !bare {
		sb.WriteByte(')')
	}
	ret.str = sb.String()
	if fixed {
		ret.gvSize = alignUp(off, ret.gvAlign)
	}
	return ret
}

func alignUp(n, align int) int {
	if extra := n % align; extra != 0 {
		return n + align - extra
	}
	return n
}

// String returns the string encoding of the Signature, as described
// in the DBus specification.
func (s Signature) String() string {
	if s.n == nil {
		return ""
	}
	return s.n.str
}

// IsZero reports whether the signature is the zero value. A zero
// Signature describes a void value.
func (s Signature) IsZero() bool {
	return s.n == nil
}

// Equal reports whether s and o describe the same type.
func (s Signature) Equal(o Signature) bool {
	return s.String() == o.String()
}

// Kind returns the kind of type s describes. A Signature describing
// a dict returns KindArray, see [Signature.IsDict].
func (s Signature) Kind() Kind {
	if s.n == nil {
		return KindInvalid
	}
	return s.n.kind
}

// IsBasic reports whether s is a basic type, one that can be used as
// a dict key.
func (s Signature) IsBasic() bool {
	return s.n != nil && s.n.isBasic()
}

// IsDict reports whether s is an array of dict entries.
func (s Signature) IsDict() bool {
	return s.n != nil && s.n.kind == KindArray && s.n.elem.kind == KindDictEntry
}

// IsMultiple reports whether s is a sequence of two or more complete
// types rather than a single complete type. Such signatures describe
// message bodies and cannot appear inside other types.
func (s Signature) IsMultiple() bool {
	return s.n != nil && s.n.bare
}

// Elem returns the element type of an array or maybe. For dicts, Elem
// returns the dict entry type.
func (s Signature) Elem() Signature {
	if s.n == nil || s.n.elem == nil {
		return Signature{}
	}
	return Signature{s.n.elem}
}

// Key returns the key type of a dict or dict entry.
func (s Signature) Key() Signature {
	if e := s.entry(); e != nil {
		return Signature{e.fields[0]}
	}
	return Signature{}
}

// Value returns the value type of a dict or dict entry.
func (s Signature) Value() Signature {
	if e := s.entry(); e != nil {
		return Signature{e.fields[1]}
	}
	return Signature{}
}

func (s Signature) entry() *node {
	switch {
	case s.n == nil:
		return nil
	case s.n.kind == KindDictEntry:
		return s.n
	case s.IsDict():
		return s.n.elem
	}
	return nil
}

// NumFields returns the number of fields of a struct or dict entry.
func (s Signature) NumFields() int {
	if s.n == nil {
		return 0
	}
	return len(s.n.fields)
}

// Field returns the type of the i-th field of a struct or dict
// entry.
func (s Signature) Field(i int) Signature {
	return Signature{s.n.fields[i]}
}

// Fields returns the types of the fields of a struct. For signatures
// of multiple complete types, Fields returns each type in order.
func (s Signature) Fields() []Signature {
	if s.n == nil {
		return nil
	}
	ret := make([]Signature, len(s.n.fields))
	for i, f := range s.n.fields {
		ret[i] = Signature{f}
	}
	return ret
}

// Alignment returns the alignment of s in the given format.
func (s Signature) Alignment(f Format) int {
	switch {
	case s.n == nil:
		return 1
	case f == FormatGVariant:
		return s.n.gvAlign
	default:
		return s.n.dbusAlign
	}
}

// FixedSize returns the encoded size of s in the GVariant format, or
// 0 if values of type s vary in size.
func (s Signature) FixedSize() int {
	if s.n == nil {
		return 0
	}
	return s.n.gvSize
}

// compatible reports whether values of type s can be encoded in
// format f.
func (s Signature) compatible(f Format) error {
	if f == FormatDBus && s.n != nil && s.n.hasMaybe {
		return IncompatibleFormatError{s, f}
	}
	return nil
}

// ArrayOf returns the signature of an array of elem.
func ArrayOf(elem Signature) (Signature, error) {
	if err := checkComponent(elem); err != nil {
		return Signature{}, err
	}
	return Signature{mkArray(elem.n)}, nil
}

// MaybeOf returns the signature of a maybe of elem. Maybe types can
// only be encoded in the GVariant format.
func MaybeOf(elem Signature) (Signature, error) {
	if err := checkComponent(elem); err != nil {
		return Signature{}, err
	}
	return Signature{mkMaybe(elem.n)}, nil
}

// DictOf returns the signature of a dict with the given key and value
// types. The key must be a basic type.
func DictOf(key, val Signature) (Signature, error) {
	if err := checkComponent(key); err != nil {
		return Signature{}, err
	}
	if err := checkComponent(val); err != nil {
		return Signature{}, err
	}
	if !key.IsBasic() {
		return Signature{}, SignatureError{
			Signature: "a{" + key.String() + val.String() + "}",
			Fragment:  key.String(),
			Reason:    fmt.Errorf("dict key type %s is not a basic type", key),
		}
	}
	return Signature{mkArray(mkDictEntry(key.n, val.n))}, nil
}

// StructOf returns the signature of a struct with the given field
// types.
func StructOf(fields ...Signature) (Signature, error) {
	if len(fields) == 0 {
		return Signature{}, SignatureError{Signature: "()", Fragment: "()", Reason: ErrEmptyStructure}
	}
	ns := make([]*node, len(fields))
	for i, f := range fields {
		if err := checkComponent(f); err != nil {
			return Signature{}, err
		}
		ns[i] = f.n
	}
	return Signature{mkStruct(ns, false)}, nil
}

func checkComponent(s Signature) error {
	switch {
	case s.IsZero():
		return SignatureError{Reason: fmt.Errorf("missing type")}
	case s.IsMultiple():
		return SignatureError{Signature: s.String(), Fragment: s.String(), Reason: fmt.Errorf("multiple types where one complete type is required")}
	}
	return nil
}

// ParseSignature parses a DBus type signature string.
//
// A signature of a single complete type, such as "a{sv}", describes
// that type. A signature of several complete types, such as "isa{sv}",
// describes a sequence of values such as a message body, and
// [Signature.IsMultiple] reports true. The empty signature is the
// zero Signature.
func ParseSignature(sig string) (Signature, error) {
	if len(sig) > maxSignatureLen {
		return Signature{}, SignatureError{
			Signature: sig,
			Reason:    fmt.Errorf("signature is %d bytes, max is %d", len(sig), maxSignatureLen),
		}
	}
	p := parser{sig: sig, depth: newDepthCounter(DefaultLimits)}
	var parts []*node
	for p.pos < len(sig) {
		n, err := p.parseOne()
		if err != nil {
			return Signature{}, err
		}
		parts = append(parts, n)
	}
	switch len(parts) {
	case 0:
		return Signature{}, nil
	case 1:
		return Signature{parts[0]}, nil
	default:
		return Signature{mkStruct(parts, true)}, nil
	}
}

func mustParseSignature(sig string) Signature {
	ret, err := ParseSignature(sig)
	if err != nil {
		panic(err)
	}
	return ret
}

type parser struct {
	sig   string
	pos   int
	depth depthCounter
}

func (p *parser) fail(start int, reason error) error {
	return SignatureError{
		Signature: p.sig,
		Fragment:  p.sig[start:],
		Reason:    reason,
	}
}

// parseOne consumes one complete type from the front of the
// unparsed signature.
func (p *parser) parseOne() (*node, error) {
	start := p.pos
	if p.pos >= len(p.sig) {
		return nil, p.fail(start, fmt.Errorf("missing type"))
	}
	c := p.sig[p.pos]
	if n, ok := basicNodes[c]; ok {
		p.pos++
		return n, nil
	}

	switch c {
	case 'a':
		p.pos++
		if err := p.depth.enter(KindArray); err != nil {
			return nil, p.fail(start, err)
		}
		defer p.depth.exit(KindArray)
		if p.pos < len(p.sig) && p.sig[p.pos] == '{' {
			entry, err := p.parseDictEntry()
			if err != nil {
				return nil, err
			}
			return mkArray(entry), nil
		}
		elem, err := p.parseOne()
		if err != nil {
			return nil, err
		}
		return mkArray(elem), nil
	case 'm':
		p.pos++
		if err := p.depth.enter(KindMaybe); err != nil {
			return nil, p.fail(start, err)
		}
		defer p.depth.exit(KindMaybe)
		elem, err := p.parseOne()
		if err != nil {
			return nil, err
		}
		return mkMaybe(elem), nil
	case '(':
		p.pos++
		if err := p.depth.enter(KindStruct); err != nil {
			return nil, p.fail(start, err)
		}
		defer p.depth.exit(KindStruct)
		var fields []*node
		for {
			if p.pos >= len(p.sig) {
				return nil, p.fail(start, fmt.Errorf("missing closing )"))
			}
			if p.sig[p.pos] == ')' {
				p.pos++
				break
			}
			f, err := p.parseOne()
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
		if len(fields) == 0 {
			return nil, p.fail(start, ErrEmptyStructure)
		}
		return mkStruct(fields, false), nil
	case '{':
		return nil, p.fail(start, fmt.Errorf("dict entry outside of array"))
	case ')', '}':
		return nil, p.fail(start, fmt.Errorf("unexpected %q", c))
	default:
		return nil, p.fail(start, fmt.Errorf("unknown type code %q", c))
	}
}

// parseDictEntry consumes a dict entry type, "{kv}".
func (p *parser) parseDictEntry() (*node, error) {
	start := p.pos
	p.pos++
	if err := p.depth.enter(KindDictEntry); err != nil {
		return nil, p.fail(start, err)
	}
	defer p.depth.exit(KindDictEntry)
	if p.pos >= len(p.sig) {
		return nil, p.fail(start, fmt.Errorf("missing dict key type"))
	}
	keyStart := p.pos
	key, err := p.parseOne()
	if err != nil {
		return nil, err
	}
	if !dictKeyCodes.Has(p.sig[keyStart]) {
		return nil, p.fail(keyStart, fmt.Errorf("dict key type %s is not a basic type", key.str))
	}
	if p.pos < len(p.sig) && p.sig[p.pos] == '}' {
		return nil, p.fail(start, fmt.Errorf("missing dict value type"))
	}
	val, err := p.parseOne()
	if err != nil {
		return nil, err
	}
	if p.pos >= len(p.sig) || p.sig[p.pos] != '}' {
		return nil, p.fail(start, fmt.Errorf("dict entry must have exactly one key and one value"))
	}
	p.pos++
	return mkDictEntry(key, val), nil
}
