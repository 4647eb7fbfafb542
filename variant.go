package dbus

// Variant is a value that carries its own type.
type Variant struct {
	// Sig is the type of Value. If zero, the type is taken from
	// Value.
	Sig   Signature
	Value Value
}

// NewVariant returns a Variant holding v.
func NewVariant(v Value) Variant {
	return Variant{v.SignatureDBus(), v}
}

func (Variant) SignatureDBus() Signature { return sigVariant }
func (Variant) isValue()                 {}

// inner returns the type and value held by the variant.
func (v Variant) inner() (*node, Value, error) {
	if v.Value == nil {
		return nil, nil, typeErr(sigVariant.n, "variant holds no value")
	}
	sig := v.Sig
	if sig.IsZero() {
		sig = v.Value.SignatureDBus()
	}
	if err := checkComponent(sig); err != nil {
		return nil, nil, TypeError{"v", err}
	}
	return sig.n, v.Value, nil
}

// Maybe is an optional value of type Elem. A nil Value is Nothing.
//
// Maybe values can only be encoded in the GVariant format.
type Maybe struct {
	Elem  Signature
	Value Value
}

// Just returns a Maybe holding v.
func Just(v Value) Maybe {
	return Maybe{v.SignatureDBus(), v}
}

// Nothing returns an empty Maybe of type elem.
func Nothing(elem Signature) Maybe {
	return Maybe{Elem: elem}
}

// IsNothing reports whether m holds no value.
func (m Maybe) IsNothing() bool {
	return m.Value == nil
}

func (m Maybe) SignatureDBus() Signature {
	if checkComponent(m.Elem) != nil {
		return Signature{}
	}
	return Signature{mkMaybe(m.Elem.n)}
}

func (Maybe) isValue() {}
