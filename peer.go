package dbus

import (
	"context"
	"fmt"
)

// Peer is a named participant on the bus.
type Peer struct {
	c    *Conn
	name string
}

func (p Peer) Conn() *Conn  { return p.c }
func (p Peer) Name() string { return p.name }

func (p Peer) String() string {
	if p.c == nil {
		return "<no peer>"
	}
	return p.name
}

// Ping checks that the peer is reachable.
func (p Peer) Ping(ctx context.Context) error {
	_, err := p.Conn().Call(ctx, p.name, "/", ifacePeer, "Ping")
	return err
}

// MachineID returns the machine ID of the host the peer is running
// on.
func (p Peer) MachineID(ctx context.Context) (string, error) {
	resp, err := p.Conn().Call(ctx, p.name, "/", ifacePeer, "GetMachineId")
	if err != nil {
		return "", err
	}
	if len(resp) != 1 {
		return "", MessageError{fmt.Sprintf("GetMachineId returned %d values, want 1", len(resp))}
	}
	var ret string
	if err := Store(resp[0], &ret); err != nil {
		return "", err
	}
	return ret, nil
}
