package dbus

// A Value is a DBus value: one of the basic types ([Byte], [Bool],
// [Int16], [Uint16], [Int32], [Uint32], [Int64], [Uint64], [Double],
// [String], [ObjectPath], [Signature], [UnixFD]) or a container
// ([Array], [Dict], [Struct], [Variant], [Maybe]).
//
// The set of Value implementations is closed.
type Value interface {
	// SignatureDBus returns the type of the value.
	SignatureDBus() Signature
	isValue()
}

type (
	Byte   uint8
	Bool   bool
	Int16  int16
	Uint16 uint16
	Int32  int32
	Uint32 uint32
	Int64  int64
	Uint64 uint64
	Double float64
	// String is a DBus string. It must be valid UTF-8 and contain no
	// NUL bytes.
	String string
)

func (Byte) SignatureDBus() Signature   { return sigByte }
func (Bool) SignatureDBus() Signature   { return sigBool }
func (Int16) SignatureDBus() Signature  { return sigInt16 }
func (Uint16) SignatureDBus() Signature { return sigUint16 }
func (Int32) SignatureDBus() Signature  { return sigInt32 }
func (Uint32) SignatureDBus() Signature { return sigUint32 }
func (Int64) SignatureDBus() Signature  { return sigInt64 }
func (Uint64) SignatureDBus() Signature { return sigUint64 }
func (Double) SignatureDBus() Signature { return sigDouble }
func (String) SignatureDBus() Signature { return sigString }

// SignatureDBus returns the type of a signature value, "g".
func (Signature) SignatureDBus() Signature { return sigSignature }

func (Byte) isValue()      {}
func (Bool) isValue()      {}
func (Int16) isValue()     {}
func (Uint16) isValue()    {}
func (Int32) isValue()     {}
func (Uint32) isValue()    {}
func (Int64) isValue()     {}
func (Uint64) isValue()    {}
func (Double) isValue()    {}
func (String) isValue()    {}
func (Signature) isValue() {}

// Array is a homogeneous sequence of values of type Elem.
type Array struct {
	Elem  Signature
	Items []Value
}

// NewArray returns an Array of elem holding items.
func NewArray(elem Signature, items ...Value) Array {
	return Array{elem, items}
}

func (a Array) SignatureDBus() Signature {
	if checkComponent(a.Elem) != nil {
		return Signature{}
	}
	return Signature{mkArray(a.Elem.n)}
}

func (Array) isValue() {}

// Dict is a sequence of key/value entries. Entries are kept in the
// order they are added or decoded, and keys are not required to be
// unique.
type Dict struct {
	Key, Val Signature
	Entries  []DictEntry
}

// DictEntry is one entry of a [Dict].
type DictEntry struct {
	Key, Value Value
}

// NewDict returns an empty Dict with the given key and value types.
func NewDict(key, val Signature) Dict {
	return Dict{Key: key, Val: val}
}

// Add appends an entry to the dict.
func (d *Dict) Add(key, val Value) {
	d.Entries = append(d.Entries, DictEntry{key, val})
}

func (d Dict) SignatureDBus() Signature {
	ret, err := DictOf(d.Key, d.Val)
	if err != nil {
		return Signature{}
	}
	return ret
}

func (Dict) isValue() {}

// Struct is a heterogeneous sequence of one or more values.
type Struct struct {
	Fields []Value
}

// NewStruct returns a Struct with the given fields.
func NewStruct(fields ...Value) Struct {
	return Struct{fields}
}

func (s Struct) SignatureDBus() Signature {
	if len(s.Fields) == 0 {
		return Signature{}
	}
	ns := make([]*node, len(s.Fields))
	for i, f := range s.Fields {
		if f == nil {
			return Signature{}
		}
		sig := f.SignatureDBus()
		if checkComponent(sig) != nil {
			return Signature{}
		}
		ns[i] = sig.n
	}
	return Signature{mkStruct(ns, false)}
}

func (Struct) isValue() {}

// bodySignature returns the signature of a message body holding
// vals: void for no values, the value's own type for one value, and
// a sequence of types otherwise.
func bodySignature(vals []Value) (Signature, error) {
	switch len(vals) {
	case 0:
		return Signature{}, nil
	case 1:
		if vals[0] == nil {
			return Signature{}, TypeError{"body", ErrIncorrectType}
		}
		ret := vals[0].SignatureDBus()
		if ret.IsZero() {
			return Signature{}, TypeError{"body", ErrIncorrectType}
		}
		return ret, nil
	}
	ns := make([]*node, len(vals))
	for i, v := range vals {
		if v == nil {
			return Signature{}, TypeError{"body", ErrIncorrectType}
		}
		sig := v.SignatureDBus()
		if err := checkComponent(sig); err != nil {
			return Signature{}, err
		}
		ns[i] = sig.n
	}
	return Signature{mkStruct(ns, true)}, nil
}
