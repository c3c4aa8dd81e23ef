package dbustest_test

import (
	"context"
	"testing"
	"time"

	"github.com/creachadair/mds/value"
	"github.com/wirebus/dbus"
	"github.com/wirebus/dbus/dbustest"
)

func TestCallCorrelationDropsDuplicateReply(t *testing.T) {
	sock := dbustest.NewSocket()
	c, err := sock.Connect()
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	type result struct {
		body []dbus.Variant
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := c.Call(context.Background(),
			dbus.MustBusName("com.example.Service"),
			dbus.MustObjectPath("/com/example/obj"),
			dbus.MustInterfaceName("com.example.Thing"),
			dbus.MustMemberName("DoThing"),
			nil)
		done <- result{body, err}
	}()

	var out dbus.OutgoingMessage
	select {
	case out = <-sock.Outbox():
	case <-time.After(time.Second):
		t.Fatal("call never reached the socket")
	}
	if out.Call == nil {
		t.Fatalf("outgoing message has no Call: %+v", out)
	}
	serial := out.Call.Serial

	want := []dbus.Variant{dbus.NewVariantOf(dbus.NewAtom(dbus.AtomText("first")))}
	sock.Deliver(dbus.ReceivedMessage{Return: &dbus.MethodReturn{
		ReplySerial: serial,
		Body:        want,
	}})
	// A second reply with the same serial must be dropped: no pending
	// entry remains to deliver it to, and it must not deadlock or
	// panic the dispatcher.
	sock.Deliver(dbus.ReceivedMessage{Return: &dbus.MethodReturn{
		ReplySerial: serial,
		Body:        []dbus.Variant{dbus.NewVariantOf(dbus.NewAtom(dbus.AtomText("duplicate")))},
	}})

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Call returned error: %v", r.err)
		}
		if len(r.body) != 1 || !r.body[0].Value.Equal(want[0].Value) {
			t.Errorf("Call returned %+v, want %+v", r.body, want)
		}
	case <-time.After(time.Second):
		t.Fatal("Call did not return")
	}
}

func TestDispatchCallUnknownMethod(t *testing.T) {
	sock := dbustest.NewSocket()
	c, err := sock.Connect()
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	sock.Deliver(dbus.ReceivedMessage{Call: &dbus.MethodCall{
		Serial:    42,
		Path:      dbus.MustObjectPath("/no/such/object"),
		Interface: value.Just(dbus.MustInterfaceName("com.example.Thing")),
		Member:    dbus.MustMemberName("Nonexistent"),
		Sender:    value.Just(dbus.MustBusName(":1.9")),
	}})

	select {
	case out := <-sock.Outbox():
		if out.Err == nil {
			t.Fatalf("outgoing message has no Err: %+v", out)
		}
		if out.Err.Name != dbus.ErrUnknownMethod {
			t.Errorf("Name = %q, want %q", out.Err.Name, dbus.ErrUnknownMethod)
		}
		if out.Err.ReplySerial != 42 {
			t.Errorf("ReplySerial = %d, want 42", out.Err.ReplySerial)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher never replied")
	}
}

func TestDispatchCallHandlerPanicMapsToFailed(t *testing.T) {
	sock := dbustest.NewSocket()
	c, err := sock.Connect()
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	path := dbus.MustObjectPath("/com/example/obj")
	iface := dbus.MustInterfaceName("com.example.Thing")
	member := dbus.MustMemberName("Explode")
	c.Export(path, []dbus.MethodDescriptor{{
		Interface: iface,
		Member:    member,
		Handler: func(body []dbus.Variant) ([]dbus.Variant, *dbus.MethodError) {
			panic("boom")
		},
	}})

	sock.Deliver(dbus.ReceivedMessage{Call: &dbus.MethodCall{
		Serial:    7,
		Path:      path,
		Interface: value.Just(iface),
		Member:    member,
		Sender:    value.Just(dbus.MustBusName(":1.9")),
	}})

	select {
	case out := <-sock.Outbox():
		if out.Err == nil {
			t.Fatalf("outgoing message has no Err: %+v", out)
		}
		if out.Err.Name != dbus.ErrFailed {
			t.Errorf("Name = %q, want %q", out.Err.Name, dbus.ErrFailed)
		}
		if out.Err.ReplySerial != 7 {
			t.Errorf("ReplySerial = %d, want 7", out.Err.ReplySerial)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher never replied")
	}
}

func TestIntrospectRootListsChildren(t *testing.T) {
	sock := dbustest.NewSocket()
	c, err := sock.Connect()
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	c.Export(dbus.MustObjectPath("/x"), nil)
	c.Export(dbus.MustObjectPath("/y"), nil)

	sock.Deliver(dbus.ReceivedMessage{Call: &dbus.MethodCall{
		Serial:    3,
		Path:      dbus.MustObjectPath("/"),
		Interface: value.Just(dbus.MustInterfaceName("org.freedesktop.DBus.Introspectable")),
		Member:    dbus.MustMemberName("Introspect"),
		Sender:    value.Just(dbus.MustBusName(":1.9")),
	}})

	select {
	case out := <-sock.Outbox():
		if out.Return == nil {
			t.Fatalf("outgoing message has no Return: %+v", out)
		}
		if len(out.Return.Body) != 1 {
			t.Fatalf("Return body length = %d, want 1", len(out.Return.Body))
		}
		xmlStr, ok := dbus.FromVariant[string](out.Return.Body[0])
		if !ok {
			t.Fatalf("Return body was not a string: %+v", out.Return.Body[0])
		}
		desc, err := dbus.ParseIntrospection([]byte(xmlStr))
		if err != nil {
			t.Fatalf("ParseIntrospection: %v", err)
		}
		want := map[string]bool{"x": true, "y": true}
		got := map[string]bool{}
		for _, c := range desc.Children {
			got[c] = true
		}
		if len(got) != len(want) || got["x"] != want["x"] || got["y"] != want["y"] {
			t.Errorf("Children = %v, want %v", desc.Children, want)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher never replied")
	}
}
