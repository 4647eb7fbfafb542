package dbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/danderson/go-dbus/fragments"
	"github.com/danderson/go-dbus/transport"
)

const (
	busName      = "org.freedesktop.DBus"
	busPath      = ObjectPath("/org/freedesktop/DBus")
	ifacePeer    = "org.freedesktop.DBus.Peer"
	errFailed    = "org.freedesktop.DBus.Error.Failed"
	errNoMethod  = "org.freedesktop.DBus.Error.UnknownMethod"
	errNoSupport = "org.freedesktop.DBus.Error.NotSupported"
)

// SystemBus connects to the system bus.
func SystemBus(ctx context.Context) (*Conn, error) {
	return Dial(ctx, "/run/dbus/system_bus_socket")
}

// SessionBus connects to the current user's session bus.
func SessionBus(ctx context.Context) (*Conn, error) {
	path := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if path == "" {
		return nil, errors.New("session bus not available")
	}
	for _, uri := range strings.Split(path, ";") {
		addr, ok := strings.CutPrefix(uri, "unix:path=")
		if !ok {
			continue
		}
		return Dial(ctx, addr)
	}
	return nil, fmt.Errorf("could not find usable session bus address in DBUS_SESSION_BUS_ADDRESS value %q", path)
}

// Dial connects to the message bus listening on the Unix socket at
// path, and registers with it.
func Dial(ctx context.Context, path string) (*Conn, error) {
	t, err := transport.DialUnix(ctx, path)
	if err != nil {
		return nil, IOError{"dial", err}
	}
	ret := NewConn(t, nil)
	if err := ret.Hello(ctx); err != nil {
		ret.Close()
		return nil, fmt.Errorf("getting DBus client ID: %w", err)
	}
	return ret, nil
}

// NewConn returns a Conn that exchanges messages over t, logging
// protocol errors to log. If log is nil, [slog.Default] is used.
//
// NewConn does not register with a message bus, see [Conn.Hello].
//
// The returned Conn answers the org.freedesktop.DBus.Peer methods
// on all object paths.
func NewConn(t transport.Transport, log *slog.Logger) *Conn {
	if log == nil {
		log = slog.Default()
	}
	ret := &Conn{
		t:        t,
		log:      log,
		order:    fragments.NativeEndian,
		calls:    map[uint32]*pendingCall{},
		handlers: map[interfaceMember]HandlerFunc{},
	}

	ret.Handle(ifacePeer, "Ping", func(context.Context, *Message) ([]Value, error) {
		return nil, nil
	})
	ret.Handle(ifacePeer, "GetMachineId", func(context.Context, *Message) ([]Value, error) {
		id, err := MachineID()
		if errors.Is(err, ErrNotSupported) {
			return nil, CallError{errNoSupport, err.Error()}
		} else if err != nil {
			return nil, err
		}
		return []Value{String(id)}, nil
	})

	go ret.readLoop()
	return ret
}

// Conn is a DBus connection.
type Conn struct {
	t        transport.Transport
	log      *slog.Logger
	order    fragments.ByteOrder
	sigs     SignatureCache
	clientID string

	writeMu sync.Mutex
	buf     []byte

	mu         sync.Mutex
	closed     bool
	calls      map[uint32]*pendingCall
	lastSerial uint32
	handlers   map[interfaceMember]HandlerFunc
}

type interfaceMember struct {
	Interface string
	Member    string
}

func (im interfaceMember) String() string {
	return im.Interface + "." + im.Member
}

type pendingCall struct {
	notify chan struct{}
	resp   *Message
	err    error
}

// HandlerFunc handles an incoming method call. The returned values
// are sent as the body of the reply.
//
// If HandlerFunc returns a [CallError], the caller receives an error
// reply with the CallError's name and detail. Other errors are
// reported as org.freedesktop.DBus.Error.Failed.
type HandlerFunc func(ctx context.Context, call *Message) ([]Value, error)

// Hello registers the connection with the message bus, and records
// the connection's unique bus name.
func (c *Conn) Hello(ctx context.Context) error {
	resp, err := c.Call(ctx, busName, busPath, busName, "Hello")
	if err != nil {
		return err
	}
	var name string
	if len(resp) != 1 {
		return MessageError{fmt.Sprintf("Hello returned %d values, want 1", len(resp))}
	}
	if err := Store(resp[0], &name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientID = name
	return nil
}

// Close closes the DBus connection.
func (c *Conn) Close() error {
	var pend map[uint32]*pendingCall
	{
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil
		}
		c.closed = true
		pend, c.calls = c.calls, nil
		c.mu.Unlock()
	}
	for p := range maps.Values(pend) {
		p.err = net.ErrClosed
		close(p.notify)
	}
	return c.t.Close()
}

// LocalName returns the connection's unique bus name.
func (c *Conn) LocalName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// Peer returns a Peer for the given bus name.
//
// The returned value is a purely local handle. It does not indicate
// that the requested peer exists, or that it is currently reachable.
func (c *Conn) Peer(name string) Peer {
	return Peer{
		c:    c,
		name: name,
	}
}

// Handle calls fn to handle incoming method calls to member on
// interfaceName.
func (c *Conn) Handle(interfaceName, member string, fn HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[interfaceMember{interfaceName, member}] = fn
}

func (c *Conn) nextSerial() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false
	}
	c.lastSerial++
	return c.lastSerial, true
}

func (c *Conn) writeMsg(msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	bs, err := msg.MarshalAppend(c.buf[:0], c.order)
	if err != nil {
		return err
	}
	c.buf = bs
	if _, err := c.t.WriteWithFDs(bs, msg.Files.FDs()); err != nil {
		return IOError{"write", err}
	}
	return nil
}

func (c *Conn) readLoop() {
	for {
		if err := c.dispatchMsg(); errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			// Conn was shut down.
			c.Close()
			return
		} else if err != nil {
			// Errors that bubble out here represent a failure to
			// conform to the DBus protocol, and are fatal to the
			// Conn.
			c.log.Error("dbus read error", "err", err)
			c.Close()
			return
		}
	}
}

// readMsg reads one complete DBus message from c.t. Must not be
// called concurrently (Conn.dispatchMsg ensures this).
func (c *Conn) readMsg() (*Message, error) {
	var prefix [fixedHeaderLen]byte
	if _, err := io.ReadFull(c.t, prefix[:]); err != nil {
		return nil, err
	}
	n, err := MessageLen(prefix[:])
	if err != nil {
		return nil, err
	}
	bs := make([]byte, n)
	copy(bs, prefix[:])
	if _, err := io.ReadFull(c.t, bs[fixedHeaderLen:]); err != nil {
		return nil, err
	}

	hdr, _, _, err := decodeHeader(bs, &c.sigs)
	if err != nil {
		return nil, err
	}
	fds, err := c.t.GetFDs(int(hdr.NumFDs))
	if err != nil {
		return nil, err
	}
	files := NewFDTable(fds...)
	ret, err := UnmarshalMessage(bs, files, &c.sigs)
	if err != nil {
		files.Close()
		return nil, err
	}
	return ret, nil
}

func (c *Conn) dispatchMsg() error {
	msg, err := c.readMsg()
	if err != nil {
		return err
	}

	switch msg.Type {
	case MsgCall:
		go c.dispatchCall(msg)
	case MsgReturn, MsgError:
		c.dispatchReply(msg)
	default:
		c.log.Debug("dbus message ignored", "type", msg.Type, "interface", msg.Interface, "member", msg.Member)
		msg.Files.Close()
	}
	return nil
}

func (c *Conn) dispatchCall(msg *Message) {
	defer msg.Files.Close()

	handler := func() HandlerFunc {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.handlers[interfaceMember{msg.Interface, msg.Member}]
	}()

	var (
		resp []Value
		err  error
	)
	if handler == nil {
		err = CallError{errNoMethod, fmt.Sprintf("no such method %s.%s", msg.Interface, msg.Member)}
	} else {
		resp, err = handler(context.Background(), msg)
	}
	if !msg.WantReply() {
		return
	}

	serial, ok := c.nextSerial()
	if !ok {
		return
	}
	reply := &Message{
		Header: Header{
			Type:        MsgReturn,
			Serial:      serial,
			Destination: msg.Sender,
			ReplySerial: msg.Serial,
		},
		Body: resp,
	}
	if err != nil {
		reply.Type = MsgError
		reply.ErrName = errFailed
		var ce CallError
		if errors.As(err, &ce) {
			reply.ErrName = ce.Name
			err = errors.New(ce.Detail)
		}
		reply.Body = []Value{String(err.Error())}
	}
	if err := c.writeMsg(reply); err != nil {
		c.log.Error("dbus sending reply", "method", interfaceMember{msg.Interface, msg.Member}, "err", err)
	}
}

func (c *Conn) dispatchReply(msg *Message) {
	pending := func() *pendingCall {
		c.mu.Lock()
		defer c.mu.Unlock()
		ret := c.calls[msg.ReplySerial]
		delete(c.calls, msg.ReplySerial)
		return ret
	}()

	if pending == nil {
		// Response to a canceled call
		msg.Files.Close()
		return
	}

	if msg.Type == MsgError {
		detail := ""
		if len(msg.Body) > 0 {
			if s, ok := msg.Body[0].(String); ok {
				detail = string(s)
			}
		}
		pending.err = CallError{
			Name:   msg.ErrName,
			Detail: detail,
		}
		msg.Files.Close()
	} else {
		pending.resp = msg
	}
	close(pending.notify)
}

// Call calls method on the object at path, owned by destination, and
// returns the values in the reply.
//
// UnixFD values in the reply remain valid until the caller closes
// them.
func (c *Conn) Call(ctx context.Context, destination string, path ObjectPath, iface, method string, body ...Value) ([]Value, error) {
	resp, err := c.call(ctx, destination, path, iface, method, body, 0)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// CallNoReply calls method like [Conn.Call], but tells the recipient
// that no reply is wanted, and returns once the call is sent.
func (c *Conn) CallNoReply(ctx context.Context, destination string, path ObjectPath, iface, method string, body ...Value) error {
	_, err := c.call(ctx, destination, path, iface, method, body, FlagNoReplyExpected)
	return err
}

func (c *Conn) call(ctx context.Context, destination string, path ObjectPath, iface, method string, body []Value, flags MsgFlags) (*Message, error) {
	serial, pending := func() (uint32, *pendingCall) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return 0, nil
		}

		c.lastSerial++
		pend := &pendingCall{
			notify: make(chan struct{}, 1),
		}
		if flags&FlagNoReplyExpected == 0 {
			c.calls[c.lastSerial] = pend
		}
		return c.lastSerial, pend
	}()
	if pending == nil {
		return nil, net.ErrClosed
	}
	defer func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.calls[serial] == pending {
			delete(c.calls, serial)
		}
	}()

	msg := &Message{
		Header: Header{
			Type:        MsgCall,
			Flags:       flags,
			Serial:      serial,
			Destination: destination,
			Path:        path,
			Interface:   iface,
			Member:      method,
		},
		Body: body,
	}
	if err := c.writeMsg(msg); err != nil {
		return nil, err
	}

	if !msg.WantReply() {
		return nil, nil
	}

	select {
	case <-pending.notify:
		return pending.resp, pending.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
