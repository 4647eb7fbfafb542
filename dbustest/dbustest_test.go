package dbustest_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/danderson/go-dbus/dbustest"
)

func TestBus(t *testing.T) {
	b := dbustest.New(t, true)
	conn := b.Conn(t)

	if _, err := os.Stat(b.Socket()); err != nil {
		t.Errorf("bus socket missing: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Peer("org.freedesktop.DBus").Ping(ctx); err != nil {
		t.Fatalf("failed to ping test bus: %v", err)
	}
	if name := conn.LocalName(); !strings.HasPrefix(name, ":") {
		t.Errorf("LocalName() = %q, want a unique name", name)
	}
}

func TestPingSelf(t *testing.T) {
	b := dbustest.New(t, false)
	c1, c2 := b.Conn(t), b.Conn(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c1.Peer(c2.LocalName()).Ping(ctx); err != nil {
		t.Fatalf("ping between connections failed: %v", err)
	}
}
