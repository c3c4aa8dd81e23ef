package dbustest_test

import (
	"context"
	"testing"
	"time"

	"github.com/creachadair/mds/value"
	"github.com/wirebus/dbus"
	"github.com/wirebus/dbus/dbustest"
)

func TestConnectHelloSetsLocalName(t *testing.T) {
	sock := dbustest.NewSocket()
	c, err := sock.Connect()
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	if c.LocalName() != ":1.1" {
		t.Fatalf("LocalName = %q, want :1.1", c.LocalName())
	}
}

func TestDisconnectClosesSocketExactlyOnce(t *testing.T) {
	sock := dbustest.NewSocket()
	c, err := sock.Connect()
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	done := make(chan struct{})
	go func() {
		c.Disconnect()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Disconnect did not return")
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("second Disconnect returned %v, want nil", err)
	}

	if got := sock.CloseCount(); got != 1 {
		t.Fatalf("socket Close called %d times, want 1", got)
	}
}

func TestListenSendsAddMatchFilter(t *testing.T) {
	sock := dbustest.NewSocket()
	c, err := sock.Connect()
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	rule := dbus.MatchRule{Interface: value.Just(dbus.MustInterfaceName("com.example.Thing"))}
	if err := c.Listen(context.Background(), rule, func(*dbus.Signal) {}); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if got := sock.LastAddMatch(); got != rule.FilterString() {
		t.Fatalf("AddMatch filter = %q, want %q", got, rule.FilterString())
	}
}
