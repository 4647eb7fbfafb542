package main

import (
	"fmt"

	"github.com/danderson/go-dbus"
	"gopkg.in/yaml.v3"
)

// fromYAML converts the YAML node n to a value of type sig.
func fromYAML(n *yaml.Node, sig dbus.Signature) (dbus.Value, error) {
	for n.Kind == yaml.DocumentNode || n.Kind == yaml.AliasNode {
		if n.Kind == yaml.AliasNode {
			n = n.Alias
		} else if len(n.Content) == 1 {
			n = n.Content[0]
		} else {
			return nil, fmt.Errorf("empty YAML document")
		}
	}

	if sig.IsMultiple() {
		return fromYAMLStruct(n, sig)
	}

	switch sig.Kind() {
	case dbus.KindByte:
		return scalar[dbus.Byte](n)
	case dbus.KindBool:
		return scalar[dbus.Bool](n)
	case dbus.KindInt16:
		return scalar[dbus.Int16](n)
	case dbus.KindUint16:
		return scalar[dbus.Uint16](n)
	case dbus.KindInt32:
		return scalar[dbus.Int32](n)
	case dbus.KindUint32:
		return scalar[dbus.Uint32](n)
	case dbus.KindInt64:
		return scalar[dbus.Int64](n)
	case dbus.KindUint64:
		return scalar[dbus.Uint64](n)
	case dbus.KindDouble:
		return scalar[dbus.Double](n)
	case dbus.KindString:
		return scalar[dbus.String](n)
	case dbus.KindObjectPath:
		return scalar[dbus.ObjectPath](n)
	case dbus.KindUnixFD:
		return scalar[dbus.UnixFD](n)
	case dbus.KindSignature:
		var s string
		if err := n.Decode(&s); err != nil {
			return nil, err
		}
		ret, err := dbus.ParseSignature(s)
		if err != nil {
			return nil, err
		}
		return ret, nil
	case dbus.KindVariant:
		return fromYAMLVariant(n)
	case dbus.KindMaybe:
		if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null" {
			return dbus.Nothing(sig.Elem()), nil
		}
		v, err := fromYAML(n, sig.Elem())
		if err != nil {
			return nil, err
		}
		return dbus.Maybe{Elem: sig.Elem(), Value: v}, nil
	case dbus.KindStruct:
		return fromYAMLStruct(n, sig)
	case dbus.KindArray:
		if sig.IsDict() {
			return fromYAMLDict(n, sig)
		}
		if n.Kind != yaml.SequenceNode {
			return nil, yamlErr(n, "expected a sequence for %s", sig)
		}
		ret := dbus.NewArray(sig.Elem())
		for _, c := range n.Content {
			v, err := fromYAML(c, sig.Elem())
			if err != nil {
				return nil, err
			}
			ret.Items = append(ret.Items, v)
		}
		return ret, nil
	}
	return nil, yamlErr(n, "cannot convert to %s", sig)
}

func scalar[T dbus.Value](n *yaml.Node) (dbus.Value, error) {
	var ret T
	if n.Kind != yaml.ScalarNode {
		return nil, yamlErr(n, "expected a scalar for %s", ret.SignatureDBus())
	}
	if err := n.Decode(&ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func fromYAMLStruct(n *yaml.Node, sig dbus.Signature) (dbus.Value, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, yamlErr(n, "expected a sequence for %s", sig)
	}
	fields := sig.Fields()
	if len(n.Content) != len(fields) {
		return nil, yamlErr(n, "%s has %d fields, got %d values", sig, len(fields), len(n.Content))
	}
	ret := dbus.Struct{Fields: make([]dbus.Value, len(fields))}
	for i, f := range fields {
		v, err := fromYAML(n.Content[i], f)
		if err != nil {
			return nil, err
		}
		ret.Fields[i] = v
	}
	return ret, nil
}

func fromYAMLDict(n *yaml.Node, sig dbus.Signature) (dbus.Value, error) {
	if n.Kind != yaml.MappingNode {
		return nil, yamlErr(n, "expected a mapping for %s", sig)
	}
	ret := dbus.NewDict(sig.Key(), sig.Value())
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, err := fromYAML(n.Content[i], sig.Key())
		if err != nil {
			return nil, err
		}
		v, err := fromYAML(n.Content[i+1], sig.Value())
		if err != nil {
			return nil, err
		}
		ret.Add(k, v)
	}
	return ret, nil
}

// yamlVariant is the YAML form of a variant.
type yamlVariant struct {
	Sig   string    `yaml:"sig"`
	Value yaml.Node `yaml:"value"`
}

func fromYAMLVariant(n *yaml.Node) (dbus.Value, error) {
	var raw yamlVariant
	if err := n.Decode(&raw); err != nil {
		return nil, err
	}
	sig, err := dbus.ParseSignature(raw.Sig)
	if err != nil {
		return nil, err
	}
	if sig.IsZero() || sig.IsMultiple() {
		return nil, yamlErr(n, "variant must hold a single complete type, not %q", raw.Sig)
	}
	v, err := fromYAML(&raw.Value, sig)
	if err != nil {
		return nil, err
	}
	return dbus.Variant{Sig: sig, Value: v}, nil
}

func yamlErr(n *yaml.Node, msg string, args ...any) error {
	return fmt.Errorf("line %d: %s", n.Line, fmt.Sprintf(msg, args...))
}

// toYAML returns a YAML node representing v, in the form accepted by
// fromYAML.
func toYAML(v dbus.Value) *yaml.Node {
	switch x := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case dbus.Signature:
		return scalarNode(x.String())
	case dbus.ObjectPath:
		return scalarNode(string(x))
	case dbus.Array:
		ret := &yaml.Node{Kind: yaml.SequenceNode}
		for _, it := range x.Items {
			ret.Content = append(ret.Content, toYAML(it))
		}
		return ret
	case dbus.Dict:
		ret := &yaml.Node{Kind: yaml.MappingNode}
		for _, e := range x.Entries {
			ret.Content = append(ret.Content, toYAML(e.Key), toYAML(e.Value))
		}
		return ret
	case dbus.Struct:
		ret := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, f := range x.Fields {
			ret.Content = append(ret.Content, toYAML(f))
		}
		return ret
	case dbus.Variant:
		sig := x.Sig
		if sig.IsZero() && x.Value != nil {
			sig = x.Value.SignatureDBus()
		}
		return &yaml.Node{
			Kind: yaml.MappingNode,
			Content: []*yaml.Node{
				scalarNode("sig"), scalarNode(sig.String()),
				scalarNode("value"), toYAML(x.Value),
			},
		}
	case dbus.Maybe:
		return toYAML(x.Value)
	default:
		return scalarNode(v)
	}
}

func scalarNode(v any) *yaml.Node {
	var ret yaml.Node
	if err := ret.Encode(v); err != nil {
		// All remaining values are Go scalars, which always encode.
		panic(err)
	}
	return &ret
}
