// Package dbustest provides an in-process fake bus daemon for
// exercising a [dbus.Client]'s dispatcher deterministically, without
// a real dbus-daemon subprocess.
package dbustest

import (
	"context"
	"errors"
	"sync"

	"github.com/wirebus/dbus"
)

var errSocketClosed = errors.New("dbustest: socket closed")

// Socket is a fake [dbus.Socket] standing in for a bus daemon. It
// auto-answers the handful of org.freedesktop.DBus bus calls a
// [dbus.Client] sends (Hello during its attach sequence, AddMatch,
// RequestName, ReleaseName) and otherwise hands every message the
// client sends to Outbox, and delivers every message pushed through
// Deliver to the client's receive loop.
type Socket struct {
	mu         sync.Mutex
	closed     bool
	closeCount int
	nextSerial dbus.Serial
	lastMatch  string

	outbox chan dbus.OutgoingMessage
	inbox  chan dbus.ReceivedMessage
	done   chan struct{}

	// UniqueName is the name Hello hands back to the client. Defaults
	// to ":1.1" if unset at construction time.
	UniqueName dbus.BusName
}

// NewSocket returns a ready Socket. Outbox and Deliver are buffered
// generously enough for single-threaded table-driven tests; a test
// exercising many in-flight messages should drain Outbox as it goes.
func NewSocket() *Socket {
	return &Socket{
		outbox:     make(chan dbus.OutgoingMessage, 64),
		inbox:      make(chan dbus.ReceivedMessage, 64),
		done:       make(chan struct{}),
		UniqueName: dbus.BusName(":1.1"),
	}
}

// Connect attaches a [dbus.Client] to this fake bus in one call.
func (s *Socket) Connect() (*dbus.Client, error) {
	return dbus.ConnectSocket(context.Background(), s)
}

func (s *Socket) Send(msg dbus.OutgoingMessage, consumeSerial func(dbus.Serial)) (dbus.Serial, error) {
	s.mu.Lock()
	s.nextSerial++
	serial := s.nextSerial
	closed := s.closed
	s.mu.Unlock()

	if consumeSerial != nil {
		consumeSerial(serial)
	}
	if closed {
		return serial, errSocketClosed
	}

	if msg.Call != nil {
		if iface, ok := msg.Call.Interface.GetOK(); ok && iface == "org.freedesktop.DBus" {
			go s.answerBusCall(msg.Call, serial)
			return serial, nil
		}
	}

	select {
	case s.outbox <- msg:
		return serial, nil
	case <-s.done:
		return serial, errSocketClosed
	}
}

func (s *Socket) Receive() (dbus.ReceivedMessage, error) {
	select {
	case msg, ok := <-s.inbox:
		if !ok {
			return dbus.ReceivedMessage{}, errSocketClosed
		}
		return msg, nil
	case <-s.done:
		return dbus.ReceivedMessage{}, errSocketClosed
	}
}

func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

// CloseCount reports how many times Close was called, so a test can
// assert a socket is closed exactly once even when both the receive
// loop's read error and an explicit Disconnect race to tear down.
func (s *Socket) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// Outbox receives every message the client sends that is not one of
// the auto-answered bus calls above: method calls to other peers,
// method returns, method errors, and emitted signals.
func (s *Socket) Outbox() <-chan dbus.OutgoingMessage {
	return s.outbox
}

// LastAddMatch returns the match-rule filter string the client sent
// with its most recent AddMatch call, for assertions on its format.
func (s *Socket) LastAddMatch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMatch
}

// Deliver pushes msg into the client's receive loop, as if it had
// arrived from the bus. It returns once msg is queued in the inbox
// buffer; it blocks only while that buffer is full, until the
// client's Receive makes room or the socket is closed.
func (s *Socket) Deliver(msg dbus.ReceivedMessage) {
	select {
	case s.inbox <- msg:
	case <-s.done:
	}
}

func (s *Socket) answerBusCall(call *dbus.MethodCall, serial dbus.Serial) {
	switch call.Member {
	case "Hello":
		s.Deliver(dbus.ReceivedMessage{Return: &dbus.MethodReturn{
			ReplySerial: serial,
			Body:        []dbus.Variant{dbus.NewVariantOf(dbus.NewAtom(dbus.AtomText(string(s.UniqueName))))},
		}})
	case "AddMatch":
		if len(call.Body) == 1 {
			if a, ok := call.Body[0].Value.AsAtom(); ok {
				if text, ok := a.Text(); ok {
					s.mu.Lock()
					s.lastMatch = text
					s.mu.Unlock()
				}
			}
		}
		s.Deliver(dbus.ReceivedMessage{Return: &dbus.MethodReturn{ReplySerial: serial}})
	case "RequestName":
		s.Deliver(dbus.ReceivedMessage{Return: &dbus.MethodReturn{
			ReplySerial: serial,
			Body:        []dbus.Variant{dbus.NewVariantOf(dbus.NewAtom(dbus.AtomWord32(1)))},
		}})
	default:
		s.Deliver(dbus.ReceivedMessage{Return: &dbus.MethodReturn{ReplySerial: serial}})
	}
}
