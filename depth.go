package dbus

import "fmt"

// DepthKind identifies which nesting limit a [MaxDepthError]
// exceeded.
type DepthKind uint8

const (
	DepthStruct DepthKind = iota
	DepthArray
	DepthContainer
)

func (k DepthKind) String() string {
	switch k {
	case DepthStruct:
		return "structs"
	case DepthArray:
		return "arrays"
	case DepthContainer:
		return "containers"
	default:
		return fmt.Sprintf("DepthKind(%d)", uint8(k))
	}
}

// MaxDepthError is the error returned when a value or signature
// nests containers deeper than the configured [Limits].
type MaxDepthError struct {
	Kind DepthKind
}

func (e MaxDepthError) Error() string {
	return fmt.Sprintf("maximum allowed depth for %s in encoding was exceeded", e.Kind)
}

// depthCounter tracks container nesting during a single traversal.
//
// Structs and dict entries count against the struct limit, arrays and
// maybes against the array limit, and every container including
// variants against the container limit. The bare struct of a message
// body is not counted.
type depthCounter struct {
	limits                      Limits
	structs, arrays, containers int
}

func newDepthCounter(l Limits) depthCounter {
	return depthCounter{limits: l.withDefaults()}
}

// enter records entry into a container of kind k, and reports
// whether doing so exceeds a limit.
func (d *depthCounter) enter(k Kind) error {
	switch k {
	case KindStruct, KindDictEntry:
		d.structs++
		if d.structs > d.limits.MaxStructDepth {
			return MaxDepthError{DepthStruct}
		}
	case KindArray, KindMaybe:
		d.arrays++
		if d.arrays > d.limits.MaxArrayDepth {
			return MaxDepthError{DepthArray}
		}
	case KindVariant:
	default:
		return nil
	}
	d.containers++
	if d.containers > d.limits.MaxContainerDepth {
		return MaxDepthError{DepthContainer}
	}
	return nil
}

// exit undoes a matching enter.
func (d *depthCounter) exit(k Kind) {
	switch k {
	case KindStruct, KindDictEntry:
		d.structs--
	case KindArray, KindMaybe:
		d.arrays--
	case KindVariant:
	default:
		return
	}
	d.containers--
}
