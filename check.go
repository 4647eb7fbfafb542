package dbus

import "fmt"

// Check reports whether v can be encoded as type sig with the given
// options, without encoding it. opts may be nil.
//
// Check verifies the same things as [Marshal]: the value's shape
// matches sig, strings and object paths are well formed, the type is
// representable in the options' format, and nesting stays within the
// options' limits.
func Check(v Value, sig Signature, opts *Options) error {
	if sig.IsZero() {
		return typeErr(nil, "cannot encode a value of void type")
	}
	f := opts.format()
	if err := sig.compatible(f); err != nil {
		return err
	}
	c := checker{f, newDepthCounter(opts.limits())}
	return c.check(sig.n, v)
}

type checker struct {
	format Format
	depth  depthCounter
}

func (c *checker) check(n *node, v Value) error {
	if v == nil {
		return typeErr(n, "missing value")
	}
	switch n.kind {
	case KindString:
		x, ok := v.(String)
		if !ok {
			return mismatch(n, v)
		}
		return checkString(string(x))
	case KindObjectPath:
		x, ok := v.(ObjectPath)
		if !ok {
			return mismatch(n, v)
		}
		return x.validate()
	case KindSignature:
		x, ok := v.(Signature)
		if !ok {
			return mismatch(n, v)
		}
		if len(x.String()) > maxSignatureLen {
			return typeErr(n, "signature %q too long", x)
		}
		return nil
	case KindVariant:
		x, ok := v.(Variant)
		if !ok {
			return mismatch(n, v)
		}
		inner, iv, err := x.inner()
		if err != nil {
			return err
		}
		if err := (Signature{inner}).compatible(c.format); err != nil {
			return err
		}
		if err := c.depth.enter(KindVariant); err != nil {
			return err
		}
		defer c.depth.exit(KindVariant)
		return c.check(inner, iv)
	case KindArray:
		if err := c.depth.enter(KindArray); err != nil {
			return err
		}
		defer c.depth.exit(KindArray)
		if n.elem.kind == KindDictEntry {
			x, ok := v.(Dict)
			if !ok {
				return mismatch(n, v)
			}
			if (!x.Key.IsZero() && x.Key.n.str != n.elem.fields[0].str) || (!x.Val.IsZero() && x.Val.n.str != n.elem.fields[1].str) {
				return typeErr(n, "dict has type a{%s%s}", x.Key, x.Val)
			}
			for _, ent := range x.Entries {
				if err := c.fields(n.elem, []Value{ent.Key, ent.Value}); err != nil {
					return err
				}
			}
			return nil
		}
		x, ok := v.(Array)
		if !ok {
			return mismatch(n, v)
		}
		if !x.Elem.IsZero() && x.Elem.n.str != n.elem.str {
			return typeErr(n, "array has element type %q", x.Elem)
		}
		for _, it := range x.Items {
			if err := c.check(n.elem, it); err != nil {
				return err
			}
		}
		return nil
	case KindStruct:
		x, ok := v.(Struct)
		if !ok {
			return mismatch(n, v)
		}
		return c.fields(n, x.Fields)
	case KindMaybe:
		x, ok := v.(Maybe)
		if !ok {
			return mismatch(n, v)
		}
		if !x.Elem.IsZero() && x.Elem.n.str != n.elem.str {
			return typeErr(n, "maybe has element type %q", x.Elem)
		}
		if err := c.depth.enter(KindMaybe); err != nil {
			return err
		}
		defer c.depth.exit(KindMaybe)
		if x.Value == nil {
			return nil
		}
		return c.check(n.elem, x.Value)
	default:
		if n.isBasic() {
			if got := v.SignatureDBus(); got.n != n {
				return mismatch(n, v)
			}
			return nil
		}
		return fmt.Errorf("unknown type kind %s", n.kind)
	}
}

func (c *checker) fields(n *node, fields []Value) error {
	if len(fields) != len(n.fields) {
		return typeErr(n, "got %d struct fields, want %d", len(fields), len(n.fields))
	}
	if !n.bare {
		if err := c.depth.enter(n.kind); err != nil {
			return err
		}
		defer c.depth.exit(n.kind)
	}
	for i, f := range fields {
		if err := c.check(n.fields[i], f); err != nil {
			return err
		}
	}
	return nil
}
