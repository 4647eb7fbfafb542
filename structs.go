package dbus

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// structInfo maps a Go struct type onto a DBus struct, for
// [ValueOf], [Store] and [SignatureOf]. The Go fields listed in
// Fields supply the DBus struct's fields, in the same order.
type structInfo struct {
	// Name is the Go type name, for error messages.
	Name   string
	Fields []*structField
}

// structField is one DBus struct field, backed by a Go field that
// may be promoted from an embedded struct.
type structField struct {
	Name string
	Type reflect.Type
	// path is the chain of field indices that leads from the outer
	// struct to the field. Each segment after the first begins by
	// dereferencing an embedded struct pointer, which may be nil.
	path [][]int
}

// load returns the field's value within sv. A nil embedded pointer on
// the way to the field reads as the field's zero value.
func (f *structField) load(sv reflect.Value) reflect.Value {
	v := sv.FieldByIndex(f.path[0])
	for _, seg := range f.path[1:] {
		if v.IsNil() {
			return reflect.Zero(f.Type)
		}
		v = v.Elem().FieldByIndex(seg)
	}
	return v
}

// settable returns the field within sv for writing, allocating any
// nil embedded pointers on the way to it.
func (f *structField) settable(sv reflect.Value) (reflect.Value, error) {
	v := sv.FieldByIndex(f.path[0])
	for _, seg := range f.path[1:] {
		if v.IsNil() {
			if !v.CanSet() {
				return reflect.Value{}, fmt.Errorf("cannot allocate unexported embedded %s", v.Type())
			}
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem().FieldByIndex(seg)
	}
	return v, nil
}

var structInfos cache[*structInfo]

// getStructInfo returns the DBus layout of the struct type t.
//
// Exported fields are included in declaration order, with the fields
// of embedded structs inlined. Fields tagged `dbus:"-"` are skipped.
func getStructInfo(t reflect.Type) (*structInfo, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%s is not a struct", t)
	}
	if ret, ok := structInfos.Get(t); ok {
		return ret, nil
	}

	ret := &structInfo{Name: t.String()}
	ret.collect(t, [][]int{nil}, nil)
	if len(ret.Fields) == 0 {
		return nil, typeErrFor(t, "struct has no exported fields")
	}
	structInfos.Put(t, ret)
	return ret, nil
}

// collect appends the fields of t, reached from the outer struct by
// path, to s.Fields. embedding lists the struct types currently being
// inlined, so that a self-embedding pointer cycle terminates.
func (s *structInfo) collect(t reflect.Type, path [][]int, embedding []reflect.Type) {
	embedding = append(embedding, t)
	for i := range t.NumField() {
		f := t.Field(i)
		if name, _, _ := strings.Cut(f.Tag.Get("dbus"), ","); name == "-" {
			continue
		}
		here := withIndex(path, i)
		if f.Anonymous {
			switch {
			case f.Type.Kind() == reflect.Struct:
				s.collect(f.Type, here, embedding)
				continue
			case f.Type.Kind() == reflect.Pointer && f.Type.Elem().Kind() == reflect.Struct:
				if slices.Contains(embedding, f.Type.Elem()) {
					continue
				}
				s.collect(f.Type.Elem(), append(here, nil), embedding)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		s.Fields = append(s.Fields, &structField{
			Name: f.Name,
			Type: f.Type,
			path: here,
		})
	}
}

// withIndex returns a copy of path with idx appended to its last
// segment.
func withIndex(path [][]int, idx int) [][]int {
	ret := slices.Clone(path)
	last := len(ret) - 1
	ret[last] = append(slices.Clone(ret[last]), idx)
	return ret
}

// mapKeyCmp orders map keys of type t, so that Go maps convert to
// dicts with a deterministic entry order. t must be one of
// mapKeyKinds.
func mapKeyCmp(t reflect.Type) func(a, b reflect.Value) int {
	switch t.Kind() {
	case reflect.Bool:
		rank := func(v reflect.Value) int {
			if v.Bool() {
				return 1
			}
			return 0
		}
		return func(a, b reflect.Value) int { return cmp.Compare(rank(a), rank(b)) }
	case reflect.Int16, reflect.Int32, reflect.Int64:
		return func(a, b reflect.Value) int { return cmp.Compare(a.Int(), b.Int()) }
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(a, b reflect.Value) int { return cmp.Compare(a.Uint(), b.Uint()) }
	case reflect.Float64:
		return func(a, b reflect.Value) int { return cmp.Compare(a.Float(), b.Float()) }
	case reflect.String:
		return func(a, b reflect.Value) int { return cmp.Compare(a.String(), b.String()) }
	}
	panic(fmt.Sprintf("no key order for map key kind %s", t.Kind()))
}
