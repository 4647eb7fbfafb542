package dbus

import (
	"context"
	"errors"
	"fmt"
)

// NameRequestFlags are the options of a [Conn.RequestName] call.
type NameRequestFlags byte

const (
	NameRequestAllowReplacement NameRequestFlags = 1 << iota
	NameRequestReplace
	NameRequestNoQueue
)

// busCall calls method on the message bus, and stores its single
// return value in a T.
func busCall[T any](ctx context.Context, c *Conn, method string, body ...Value) (T, error) {
	var ret T
	resp, err := c.Call(ctx, busName, busPath, busName, method, body...)
	if err != nil {
		return ret, err
	}
	if len(resp) != 1 {
		return ret, MessageError{fmt.Sprintf("%s returned %d values, want 1", method, len(resp))}
	}
	if err := Store(resp[0], &ret); err != nil {
		return ret, fmt.Errorf("decoding %s response: %w", method, err)
	}
	return ret, nil
}

// RequestName asks the bus to assign name to the connection. It
// reports whether the connection is now the name's primary owner.
func (c *Conn) RequestName(ctx context.Context, name string, flags NameRequestFlags) (isPrimaryOwner bool, err error) {
	resp, err := busCall[uint32](ctx, c, "RequestName", String(name), Uint32(flags))
	if err != nil {
		return false, err
	}
	switch resp {
	case 1:
		// Became primary owner.
		return true, nil
	case 2:
		// Placed in queue, but not primary.
		return false, nil
	case 3:
		// Couldn't become primary owner, and request flags asked to
		// not queue.
		return false, errors.New("requested name not available")
	case 4:
		// Already the primary owner.
		return true, nil
	default:
		return false, fmt.Errorf("unknown response code %d to RequestName", resp)
	}
}

// ReleaseName gives up the connection's claim to name.
func (c *Conn) ReleaseName(ctx context.Context, name string) error {
	_, err := busCall[uint32](ctx, c, "ReleaseName", String(name))
	return err
}

func (c *Conn) ListQueuedOwners(ctx context.Context, name string) ([]string, error) {
	return busCall[[]string](ctx, c, "ListQueuedOwners", String(name))
}

func (c *Conn) ListNames(ctx context.Context) ([]string, error) {
	return busCall[[]string](ctx, c, "ListNames")
}

func (c *Conn) ListActivatableNames(ctx context.Context) ([]string, error) {
	return busCall[[]string](ctx, c, "ListActivatableNames")
}

func (c *Conn) NameHasOwner(ctx context.Context, name string) (bool, error) {
	return busCall[bool](ctx, c, "NameHasOwner", String(name))
}

func (c *Conn) GetNameOwner(ctx context.Context, name string) (string, error) {
	return busCall[string](ctx, c, "GetNameOwner", String(name))
}

func (c *Conn) GetPeerUID(ctx context.Context, name string) (uint32, error) {
	return busCall[uint32](ctx, c, "GetConnectionUnixUser", String(name))
}

func (c *Conn) GetPeerPID(ctx context.Context, name string) (uint32, error) {
	return busCall[uint32](ctx, c, "GetConnectionUnixProcessID", String(name))
}

// PeerCredentials are the credentials the bus knows for a
// connection. Fields the bus did not report are zero.
type PeerCredentials struct {
	UID           uint32
	GIDs          []uint32
	PID           uint32
	SecurityLabel []byte

	// Unknown collects the credentials with no field above.
	Unknown map[string]Variant
}

func (c *Conn) GetPeerCredentials(ctx context.Context, name string) (*PeerCredentials, error) {
	raw, err := busCall[map[string]Variant](ctx, c, "GetConnectionCredentials", String(name))
	if err != nil {
		return nil, err
	}
	ret := &PeerCredentials{}
	for k, v := range raw {
		var dst any
		switch k {
		case "UnixUserID":
			dst = &ret.UID
		case "UnixGroupIDs":
			dst = &ret.GIDs
		case "ProcessID":
			dst = &ret.PID
		case "LinuxSecurityLabel":
			dst = &ret.SecurityLabel
		default:
			if ret.Unknown == nil {
				ret.Unknown = map[string]Variant{}
			}
			ret.Unknown[k] = v
			continue
		}
		if err := Store(v, dst); err != nil {
			return nil, fmt.Errorf("decoding credential %q: %w", k, err)
		}
	}
	return ret, nil
}

func (c *Conn) GetBusID(ctx context.Context) (string, error) {
	return busCall[string](ctx, c, "GetId")
}

// Not implemented:
//  - StartServiceByName, deprecated in favor of auto-start.
//  - UpdateActivationEnvironment, so locked down you can't really do
//    much with it any more.
//  - GetAdtAuditSessionData, Solaris-only.
//  - GetConnectionSELinuxSecurityContext, deprecated in favor
//    of GetConnectionCredentials.
