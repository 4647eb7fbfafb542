// Package dbustest runs a private message bus for tests.
package dbustest

import (
	"bufio"
	"context"
	_ "embed"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danderson/go-dbus"
)

//go:embed dbus.config
var busConfig []byte

const startTimeout = 10 * time.Second

// Available reports whether dbus-daemon is installed, so that [New]
// can start a bus.
func Available() bool {
	_, err := exec.LookPath("dbus-daemon")
	return err == nil
}

// Bus is a dbus-daemon serving a single test.
type Bus struct {
	sock string

	daemon *exec.Cmd
	exited chan error

	monitor    *exec.Cmd
	monitorEOF chan struct{}
}

// New starts a bus for t, and stops it when t finishes. Tests that
// call New are skipped if [Available] reports false.
//
// If logMessages is true and dbus-monitor is installed, every message
// that crosses the bus is logged with t.Log.
func New(t testing.TB, logMessages bool) *Bus {
	t.Helper()
	if !Available() {
		t.Skip("dbus-daemon not installed")
	}

	dir := t.TempDir()
	cfg := filepath.Join(dir, "bus.config")
	if err := os.WriteFile(cfg, busConfig, 0600); err != nil {
		t.Fatal(err)
	}
	ret := &Bus{
		sock:   filepath.Join(dir, "bus.sock"),
		exited: make(chan error, 1),
	}

	ret.daemon = exec.Command("dbus-daemon",
		"--config-file="+cfg,
		"--nofork",
		"--nopidfile",
		"--nosyslog",
		"--address=unix:path="+ret.sock)
	ret.daemon.Stderr = os.Stderr
	if err := ret.daemon.Start(); err != nil {
		t.Fatalf("starting dbus-daemon: %v", err)
	}
	go func() { ret.exited <- ret.daemon.Wait() }()
	t.Cleanup(func() { ret.stop(t) })

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := ret.waitReady(ctx); err != nil {
		t.Fatalf("dbus-daemon did not come up: %v", err)
	}

	if logMessages {
		if _, err := exec.LookPath("dbus-monitor"); err != nil {
			t.Log("dbus-monitor not installed, not logging bus messages")
		} else {
			ret.startMonitor(ctx, t)
		}
	}

	return ret
}

// waitReady blocks until a client can register with the bus.
func (b *Bus) waitReady(ctx context.Context) error {
	for {
		c, err := dbus.Dial(ctx, b.sock)
		if err == nil {
			return c.Close()
		}
		select {
		case err := <-b.exited:
			b.exited <- err
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// startMonitor runs dbus-monitor against the bus, and logs its output
// to t a line at a time.
func (b *Bus) startMonitor(ctx context.Context, t testing.TB) {
	b.monitor = exec.Command("dbus-monitor", "--address", "unix:path="+b.sock)
	out, err := b.monitor.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	b.monitor.Stderr = b.monitor.Stdout
	if err := b.monitor.Start(); err != nil {
		t.Fatalf("starting dbus-monitor: %v", err)
	}

	b.monitorEOF = make(chan struct{})
	var first sync.Once
	started := make(chan struct{})
	go func() {
		defer close(b.monitorEOF)
		s := bufio.NewScanner(out)
		for s.Scan() {
			first.Do(func() { close(started) })
			t.Log(s.Text())
		}
	}()

	// dbus-monitor's own registration is the first traffic it
	// reports. Waiting for it keeps the test's first messages from
	// racing the monitor's startup.
	select {
	case <-started:
	case <-b.monitorEOF:
		t.Fatal("dbus-monitor exited during startup")
	case <-ctx.Done():
		t.Fatalf("waiting for dbus-monitor: %v", ctx.Err())
	}
}

func (b *Bus) stop(t testing.TB) {
	if b.monitor != nil {
		b.monitor.Process.Kill()
		<-b.monitorEOF
		b.monitor.Wait()
	}

	select {
	case err := <-b.exited:
		t.Errorf("dbus-daemon exited before the test finished: %v", err)
		return
	default:
	}
	b.daemon.Process.Kill()
	select {
	case <-b.exited:
	case <-time.After(startTimeout):
		t.Errorf("timed out waiting for dbus-daemon to stop")
	}
}

// Socket returns the path of the bus's Unix socket.
func (b *Bus) Socket() string {
	return b.sock
}

// Conn returns a new connection to the bus, registered and ready to
// use. The connection is closed when t finishes. Conn calls t.Fatal if
// it cannot connect.
func (b *Bus) Conn(t testing.TB) *dbus.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	ret, err := dbus.Dial(ctx, b.sock)
	if err != nil {
		t.Fatalf("connecting to test bus: %v", err)
	}
	t.Cleanup(func() { ret.Close() })
	return ret
}
