package dbus

import (
	"fmt"
	"reflect"
	"slices"
)

var (
	valueType  = reflect.TypeFor[Value]()
	byteSlice  = reflect.TypeFor[[]byte]()
	typeToSigs cache[Signature]
)

func typeErrFor(t reflect.Type, reason string, args ...any) error {
	ts := ""
	if t != nil {
		ts = t.String()
	}
	return TypeError{ts, fmt.Errorf(reason, args...)}
}

// isValueType reports whether t is one of the DBus value types.
// Pointers to value types also implement Value, but are converted as
// pointers.
func isValueType(t reflect.Type) bool {
	return t.Kind() != reflect.Interface && t.Kind() != reflect.Pointer && t.Implements(valueType)
}

func derefAlloc(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return v
}

// SignatureFor returns the signature of the DBus type that Go values
// of type T convert to with [ValueOf].
func SignatureFor[T any]() (Signature, error) {
	return signatureOf(reflect.TypeFor[T]())
}

// signatureOf returns the DBus type of Go type t.
func signatureOf(t reflect.Type) (Signature, error) {
	if ret, ok := typeToSigs.Get(t); ok {
		return ret, nil
	}
	ret, err := deriveSignature(t, nil)
	if err != nil {
		return Signature{}, err
	}
	typeToSigs.Put(t, ret)
	return ret, nil
}

func deriveSignature(t reflect.Type, visiting []reflect.Type) (Signature, error) {
	if slices.Contains(visiting, t) {
		return Signature{}, typeErrFor(t, "recursive type")
	}
	visiting = append(visiting, t)

	if isValueType(t) {
		// The DBus value types describe themselves, except for
		// containers whose zero value carries no element types.
		ret := reflect.Zero(t).Interface().(Value).SignatureDBus()
		if ret.IsZero() {
			return Signature{}, typeErrFor(t, "signature depends on the value")
		}
		return ret, nil
	}

	if ret, ok := kindToType[t.Kind()]; ok {
		return ret, nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		return deriveSignature(t.Elem(), visiting)
	case reflect.Slice, reflect.Array:
		elem, err := deriveSignature(t.Elem(), visiting)
		if err != nil {
			return Signature{}, err
		}
		return ArrayOf(elem)
	case reflect.Map:
		kt := t.Key()
		if !mapKeyKinds.Has(kt.Kind()) {
			return Signature{}, typeErrFor(t, "map key %s is not a DBus basic type", kt)
		}
		key, err := deriveSignature(kt, visiting)
		if err != nil {
			return Signature{}, err
		}
		val, err := deriveSignature(t.Elem(), visiting)
		if err != nil {
			return Signature{}, err
		}
		return DictOf(key, val)
	case reflect.Struct:
		info, err := getStructInfo(t)
		if err != nil {
			return Signature{}, err
		}
		fields := make([]Signature, len(info.Fields))
		for i, f := range info.Fields {
			fs, err := deriveSignature(f.Type, visiting)
			if err != nil {
				return Signature{}, err
			}
			fields[i] = fs
		}
		return StructOf(fields...)
	case reflect.Interface:
		return Signature{}, typeErrFor(t, "interface types have no fixed signature")
	default:
		return Signature{}, typeErrFor(t, "no DBus equivalent for Go kind %s", t.Kind())
	}
}

// ValueOf converts a Go value to a DBus [Value].
//
// Values that already implement Value are returned as-is. bool,
// uint8, int16, uint16, int32, uint32, int64, uint64, float64 and
// string convert to the corresponding basic type. Slices and arrays
// convert to [Array], maps to [Dict] with entries sorted by key, and
// structs to [Struct] with one field per exported Go field. Pointers
// convert to the value they point to.
//
// Types with no DBus equivalent, such as int, float32 and channels,
// result in a [TypeError].
func ValueOf(v any) (Value, error) {
	if v == nil {
		return nil, typeErrFor(nil, "cannot convert nil")
	}
	return valueOf(reflect.ValueOf(v))
}

func valueOf(rv reflect.Value) (Value, error) {
	t := rv.Type()
	if t.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, typeErrFor(t, "cannot convert nil interface")
		}
		return valueOf(rv.Elem())
	}
	if isValueType(t) {
		return rv.Interface().(Value), nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Uint8:
		return Byte(rv.Uint()), nil
	case reflect.Int16:
		return Int16(rv.Int()), nil
	case reflect.Uint16:
		return Uint16(rv.Uint()), nil
	case reflect.Int32:
		return Int32(rv.Int()), nil
	case reflect.Uint32:
		return Uint32(rv.Uint()), nil
	case reflect.Int64:
		return Int64(rv.Int()), nil
	case reflect.Uint64:
		return Uint64(rv.Uint()), nil
	case reflect.Float64:
		return Double(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, typeErrFor(t, "cannot convert nil pointer")
		}
		return valueOf(rv.Elem())
	case reflect.Slice, reflect.Array:
		return arrayOf(rv)
	case reflect.Map:
		return dictOf(rv)
	case reflect.Struct:
		info, err := getStructInfo(t)
		if err != nil {
			return nil, err
		}
		ret := Struct{Fields: make([]Value, len(info.Fields))}
		for i, f := range info.Fields {
			fv, err := valueOf(f.load(rv))
			if err != nil {
				return nil, fmt.Errorf("converting field %s.%s: %w", info.Name, f.Name, err)
			}
			ret.Fields[i] = fv
		}
		return ret, nil
	default:
		return nil, typeErrFor(t, "no DBus equivalent for Go kind %s", t.Kind())
	}
}

func arrayOf(rv reflect.Value) (Value, error) {
	t := rv.Type()
	ret := Array{Items: make([]Value, 0, rv.Len())}
	for i := range rv.Len() {
		it, err := valueOf(rv.Index(i))
		if err != nil {
			return nil, err
		}
		ret.Items = append(ret.Items, it)
	}
	elem, err := elemSignature(t.Elem(), ret.Items)
	if err != nil {
		return nil, typeErrFor(t, "cannot determine element type: %w", err)
	}
	ret.Elem = elem
	return ret, nil
}

func dictOf(rv reflect.Value) (Value, error) {
	t := rv.Type()
	if !mapKeyKinds.Has(t.Key().Kind()) && !isValueType(t.Key()) {
		return nil, typeErrFor(t, "map key %s is not a DBus basic type", t.Key())
	}
	keys := rv.MapKeys()
	if mapKeyKinds.Has(t.Key().Kind()) {
		slices.SortFunc(keys, mapKeyCmp(t.Key()))
	}

	ret := Dict{Entries: make([]DictEntry, 0, len(keys))}
	var ks, vs []Value
	for _, k := range keys {
		kv, err := valueOf(k)
		if err != nil {
			return nil, err
		}
		vv, err := valueOf(rv.MapIndex(k))
		if err != nil {
			return nil, err
		}
		ret.Entries = append(ret.Entries, DictEntry{kv, vv})
		ks = append(ks, kv)
		vs = append(vs, vv)
	}
	var err error
	if ret.Key, err = elemSignature(t.Key(), ks); err != nil {
		return nil, typeErrFor(t, "cannot determine key type: %w", err)
	}
	if ret.Val, err = elemSignature(t.Elem(), vs); err != nil {
		return nil, typeErrFor(t, "cannot determine value type: %w", err)
	}
	if !ret.Key.IsBasic() {
		return nil, typeErrFor(t, "map key type %s is not a DBus basic type", ret.Key)
	}
	return ret, nil
}

// elemSignature returns the DBus type of the elements of a Go
// container with element type t. If t has no static DBus type, such
// as an interface type, the type of the first element is used.
func elemSignature(t reflect.Type, items []Value) (Signature, error) {
	ret, err := signatureOf(t)
	if err == nil {
		return ret, nil
	}
	if len(items) == 0 {
		return Signature{}, err
	}
	ret = items[0].SignatureDBus()
	if ret.IsZero() {
		return Signature{}, err
	}
	return ret, nil
}

// Store copies the DBus value v into the Go value pointed to by dst.
//
// Store is the inverse of [ValueOf]. Basic types can only be stored
// into Go values of the matching kind, except that strings, object
// paths and signatures can all be stored into a Go string. A
// [Variant] stored into a Go value that is not a Variant stores the
// variant's content. A [Maybe] stored into a pointer sets the pointer
// to nil for Nothing.
//
// Storing a [Dict] into a Go map with duplicate keys keeps the last
// value for each key.
//
// Mismatches return a [SignatureMismatchError].
func Store(v Value, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("Store destination must be a non-nil pointer, got %T", dst)
	}
	return store(v, rv.Elem())
}

func store(v Value, rv reflect.Value) error {
	if v == nil {
		return fmt.Errorf("cannot store nil Value into %s", rv.Type())
	}
	t := rv.Type()
	vt := reflect.TypeOf(v)
	if vt.AssignableTo(t) {
		rv.Set(reflect.ValueOf(v))
		return nil
	}

	switch x := v.(type) {
	case Maybe:
		if t.Kind() != reflect.Pointer {
			return mismatchFor(v, t)
		}
		if x.Value == nil {
			rv.Set(reflect.Zero(t))
			return nil
		}
		rv.Set(reflect.New(t.Elem()))
		return store(x.Value, rv.Elem())
	case Variant:
		return store(x.Value, rv)
	}

	rv = derefAlloc(rv)
	t = rv.Type()
	if vt.AssignableTo(t) {
		rv.Set(reflect.ValueOf(v))
		return nil
	}

	switch x := v.(type) {
	case Byte, Bool, Int16, Uint16, Int32, Uint32, Int64, Uint64, Double:
		want, ok := kindToType[t.Kind()]
		if !ok || !want.Equal(x.SignatureDBus()) {
			return mismatchFor(v, t)
		}
		rv.Set(reflect.ValueOf(x).Convert(t))
		return nil
	case String, ObjectPath, Signature:
		if t.Kind() != reflect.String {
			return mismatchFor(v, t)
		}
		var s string
		switch x := x.(type) {
		case String:
			s = string(x)
		case ObjectPath:
			s = string(x)
		case Signature:
			s = x.String()
		}
		rv.SetString(s)
		return nil
	case UnixFD:
		if t.Kind() != reflect.Int && t.Kind() != reflect.Uintptr {
			return mismatchFor(v, t)
		}
		rv.Set(reflect.ValueOf(x).Convert(t))
		return nil
	case Array:
		return storeArray(x, rv)
	case Dict:
		if t.Kind() != reflect.Map {
			return mismatchFor(v, t)
		}
		m := reflect.MakeMapWithSize(t, len(x.Entries))
		for _, ent := range x.Entries {
			k := reflect.New(t.Key()).Elem()
			if err := store(ent.Key, k); err != nil {
				return err
			}
			e := reflect.New(t.Elem()).Elem()
			if err := store(ent.Value, e); err != nil {
				return err
			}
			m.SetMapIndex(k, e)
		}
		rv.Set(m)
		return nil
	case Struct:
		if t.Kind() != reflect.Struct {
			return mismatchFor(v, t)
		}
		info, err := getStructInfo(t)
		if err != nil {
			return err
		}
		if len(info.Fields) != len(x.Fields) {
			return mismatchFor(v, t)
		}
		for i, f := range info.Fields {
			fv, err := f.settable(rv)
			if err == nil {
				err = store(x.Fields[i], fv)
			}
			if err != nil {
				return fmt.Errorf("storing field %s.%s: %w", info.Name, f.Name, err)
			}
		}
		return nil
	default:
		return mismatchFor(v, t)
	}
}

func storeArray(a Array, rv reflect.Value) error {
	t := rv.Type()
	switch t.Kind() {
	case reflect.Slice:
		if t == byteSlice && a.Elem.Equal(sigByte) {
			bs := make([]byte, len(a.Items))
			for i, it := range a.Items {
				b, ok := it.(Byte)
				if !ok {
					return mismatchFor(it, t.Elem())
				}
				bs[i] = byte(b)
			}
			rv.SetBytes(bs)
			return nil
		}
		s := reflect.MakeSlice(t, len(a.Items), len(a.Items))
		for i, it := range a.Items {
			if err := store(it, s.Index(i)); err != nil {
				return err
			}
		}
		rv.Set(s)
		return nil
	case reflect.Array:
		if t.Len() != len(a.Items) {
			return mismatchFor(a, t)
		}
		for i, it := range a.Items {
			if err := store(it, rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return mismatchFor(a, t)
	}
}

func mismatchFor(v Value, t reflect.Type) error {
	return SignatureMismatchError{v.SignatureDBus(), t.String()}
}
