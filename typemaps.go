package dbus

import (
	"reflect"

	"github.com/creachadair/mds/mapset"
)

// basicInfo describes the wire layout of a single-character type.
type basicInfo struct {
	kind Kind
	// dbusAlign is the alignment in the DBus format.
	dbusAlign int
	// gvAlign and gvSize are the alignment and fixed size in the
	// GVariant format. gvSize is 0 for variable-size types.
	gvAlign int
	gvSize  int
}

var (
	// basicTypes maps the single-character type codes to their
	// layout.
	basicTypes = map[byte]basicInfo{
		'y': {KindByte, 1, 1, 1},
		'b': {KindBool, 4, 1, 1},
		'n': {KindInt16, 2, 2, 2},
		'q': {KindUint16, 2, 2, 2},
		'i': {KindInt32, 4, 4, 4},
		'u': {KindUint32, 4, 4, 4},
		'x': {KindInt64, 8, 8, 8},
		't': {KindUint64, 8, 8, 8},
		'd': {KindDouble, 8, 8, 8},
		's': {KindString, 4, 1, 0},
		'o': {KindObjectPath, 4, 1, 0},
		'g': {KindSignature, 1, 1, 0},
		'h': {KindUnixFD, 4, 4, 4},
		'v': {KindVariant, 1, 8, 0},
	}

	// dictKeyCodes is the set of type codes that can be dict keys.
	dictKeyCodes = mapset.New[byte]('y', 'b', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g', 'h')

	// basicNodes holds the shared type tree nodes of the
	// single-character types.
	basicNodes = mkBasicNodes()

	// kindToType maps the reflect.Kinds of the basic types
	// representable by DBus to their signature.
	kindToType = map[reflect.Kind]Signature{
		reflect.Bool:    sigBool,
		reflect.Uint8:   sigByte,
		reflect.Int16:   sigInt16,
		reflect.Uint16:  sigUint16,
		reflect.Int32:   sigInt32,
		reflect.Uint32:  sigUint32,
		reflect.Int64:   sigInt64,
		reflect.Uint64:  sigUint64,
		reflect.Float64: sigDouble,
		reflect.String:  sigString,
	}

	// mapKeyKinds is the set of reflect.Kinds that can be in a DBus
	// map key.
	mapKeyKinds = mapset.New(
		reflect.Bool,
		reflect.Uint8,
		reflect.Int16,
		reflect.Uint16,
		reflect.Int32,
		reflect.Uint32,
		reflect.Int64,
		reflect.Uint64,
		reflect.Float64,
		reflect.String,
	)
)

var (
	sigByte       = Signature{basicNodes['y']}
	sigBool       = Signature{basicNodes['b']}
	sigInt16      = Signature{basicNodes['n']}
	sigUint16     = Signature{basicNodes['q']}
	sigInt32      = Signature{basicNodes['i']}
	sigUint32     = Signature{basicNodes['u']}
	sigInt64      = Signature{basicNodes['x']}
	sigUint64     = Signature{basicNodes['t']}
	sigDouble     = Signature{basicNodes['d']}
	sigString     = Signature{basicNodes['s']}
	sigObjectPath = Signature{basicNodes['o']}
	sigSignature  = Signature{basicNodes['g']}
	sigUnixFD     = Signature{basicNodes['h']}
	sigVariant    = Signature{basicNodes['v']}
)

func mkBasicNodes() map[byte]*node {
	ret := make(map[byte]*node, len(basicTypes))
	for code, info := range basicTypes {
		ret[code] = &node{
			kind:      info.kind,
			str:       string(code),
			dbusAlign: info.dbusAlign,
			gvAlign:   info.gvAlign,
			gvSize:    info.gvSize,
		}
	}
	return ret
}
