// Package transport provides the byte streams that carry DBus
// messages.
package transport

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/mds/queue"
	"golang.org/x/sys/unix"
)

// Transport is a raw DBus connection.
type Transport interface {
	io.ReadWriteCloser

	// GetFDs returns n received file descriptors that were attached
	// to previously read bytes as ancillary data. The caller owns
	// the returned descriptors.
	GetFDs(n int) ([]int, error)
	// WriteWithFDs is like Transport.Write, but additionally sends
	// the given file descriptors as ancillary data.
	WriteWithFDs(bs []byte, fds []int) (int, error)
}

// DialUnix connects to the bus at the given path, and authenticates
// with the peer credentials of the socket.
func DialUnix(ctx context.Context, path string) (Transport, error) {
	addr := &net.UnixAddr{
		Net:  "unix",
		Name: path,
	}

	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", addr.String())
	if err != nil {
		return nil, err
	}
	conn := c.(*net.UnixConn)

	ret := newUnix(conn)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}

	if err := ret.conn.SetDeadline(deadline); err != nil {
		ret.Close()
		return nil, err
	}
	if err := ret.auth(); err != nil {
		ret.Close()
		return nil, err
	}
	if err := ret.conn.SetDeadline(time.Time{}); err != nil {
		ret.Close()
		return nil, err
	}

	return ret, nil
}

// FromConn returns a Transport that runs over conn, which must
// already be past the DBus authentication handshake, or connected to
// a peer that does not expect one.
func FromConn(conn *net.UnixConn) Transport {
	return newUnix(conn)
}

func newUnix(conn *net.UnixConn) *unixTransport {
	ret := &unixTransport{
		conn: conn,
		fds:  queue.New[int](),
	}
	ret.buf = bufio.NewReader(funcReader(ret.readToBuf))
	return ret
}

// unixTransport is a Transport that runs over a Unix domain socket.
type unixTransport struct {
	conn *net.UnixConn
	oob  [512]byte
	buf  *bufio.Reader
	fds  *queue.Queue[int]
}

func (u *unixTransport) Read(bs []byte) (int, error) {
	return u.buf.Read(bs)
}

func (u *unixTransport) Write(bs []byte) (int, error) {
	return u.conn.Write(bs)
}

func (u *unixTransport) Close() error {
	u.fds.Each(func(fd int) bool {
		unix.Close(fd)
		return true
	})
	u.fds.Clear()
	return u.conn.Close()
}

func (u *unixTransport) WriteWithFDs(bs []byte, fds []int) (int, error) {
	if len(fds) == 0 {
		return u.Write(bs)
	}

	scm := unix.UnixRights(fds...)
	n, oobn, err := u.conn.WriteMsgUnix(bs, scm, nil)
	if err != nil {
		u.Close()
		return n, err
	}
	if oobn != len(scm) {
		u.Close()
		return n, io.ErrShortWrite
	}
	if n != len(bs) {
		// The descriptors went out with the first chunk, finish
		// sending the rest normally.
		m, err := u.conn.Write(bs[n:])
		return n + m, err
	}
	return n, nil
}

func (u *unixTransport) GetFDs(n int) ([]int, error) {
	ret := make([]int, 0, n)
	for range n {
		fd, ok := u.fds.Pop()
		if !ok {
			for _, fd := range ret {
				unix.Close(fd)
			}
			return nil, errors.New("requested file descriptor not available")
		}
		ret = append(ret, fd)
	}
	return ret, nil
}

func (u *unixTransport) auth() error {
	// In theory, we're supposed to speak SASL now and carefully
	// negotiate an authentication with the bus. However, in practice,
	// when you talk to busses over a unix socket, the bus
	// authenticates you with the peer credentials that it can pull
	// from the socket without the client's help.
	//
	// So, the auth handshake boils down to a preamble string we can
	// blast out in one block, and see if the response has the
	// expected happy path shape. If it doesn't, we're just going to
	// hang up anyway so no point in sequencing the messages cleanly.
	uid := os.Getuid()
	uidBs := hex.EncodeToString([]byte(strconv.Itoa(uid)))
	if _, err := u.conn.Write([]byte("\x00AUTH EXTERNAL ")); err != nil {
		return err
	}
	if _, err := io.WriteString(u.conn, uidBs); err != nil {
		return err
	}
	if _, err := u.conn.Write([]byte("\r\nNEGOTIATE_UNIX_FD\r\nBEGIN\r\n")); err != nil {
		return err
	}

	resp, err := u.buf.ReadString('\n')
	if err != nil {
		return err
	}
	if !strings.HasPrefix(resp, "OK ") {
		return fmt.Errorf("AUTH EXTERNAL failed, server said %q", strings.TrimSpace(resp))
	}

	resp, err = u.buf.ReadString('\n')
	if err != nil {
		return err
	}
	if resp != "AGREE_UNIX_FD\r\n" {
		return fmt.Errorf("NEGOTIATE_UNIX_FD failed, server said %q", strings.TrimSpace(resp))
	}

	return nil
}

func (u *unixTransport) readToBuf(bs []byte) (int, error) {
	n, oobn, flags, _, err := u.conn.ReadMsgUnix(bs, u.oob[:])
	if flags&unix.MSG_CTRUNC != 0 {
		u.Close()
		return 0, errors.New("control message truncated")
	}
	if oobn > 0 {
		if oobErr := u.parseFDs(u.oob[:oobn]); oobErr != nil {
			u.Close()
			return 0, oobErr
		}
	}
	if err != nil || n < 0 {
		return 0, err
	}

	return n, nil
}

func (u *unixTransport) parseFDs(oob []byte) error {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return err
	}
	// Accumulate errors and keep parsing on errors. We want to
	// extract all provided file descriptors from the message, so that
	// we can correctly close all of them on error. If we bailed on
	// first error, we'd leave dangling fds in the process, and allow
	// for a DoS.
	var errs []error
	for _, scm := range scms {
		if scm.Header.Level != unix.SOL_SOCKET || scm.Header.Type != unix.SCM_RIGHTS {
			continue
		}
		fds, err := unix.ParseUnixRights(&scm)
		if err != nil {
			errs = append(errs, fmt.Errorf("parsing unix rights: %w", err))
			continue
		}
		for _, fd := range fds {
			if fd < 0 {
				errs = append(errs, fmt.Errorf("invalid file descriptor %d received on dbus socket", fd))
				continue
			}
			u.fds.Add(fd)
		}
	}

	return errors.Join(errs...)
}

type funcReader func([]byte) (int, error)

func (f funcReader) Read(bs []byte) (int, error) {
	return f(bs)
}
