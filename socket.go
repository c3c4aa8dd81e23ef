package dbus

import (
	"context"
	"sync"

	"github.com/wirebus/dbus/fragments"
	"github.com/wirebus/dbus/transport"
)

// OutgoingMessage is a tagged union over the four message records a
// [Socket] can send: exactly one field is non-nil.
type OutgoingMessage struct {
	Call   *MethodCall
	Return *MethodReturn
	Err    *MethodError
	Signal *Signal
}

// Socket is the wire-level collaborator a [Client] drives: it owns
// serial assignment, framing, and the underlying transport.
//
// Send assigns the next serial, and invokes consumeSerial with that
// serial before any byte of the message reaches the transport. A
// caller that needs to record the serial against a pending call (so
// that a concurrent Receive cannot observe the reply before the
// call is tracked) must do so inside consumeSerial, not after Send
// returns.
type Socket interface {
	Send(msg OutgoingMessage, consumeSerial func(Serial)) (Serial, error)
	Receive() (ReceivedMessage, error)
	Close() error
}

// SocketOptions configures how [OpenSocket] dials and frames a
// connection.
type SocketOptions struct {
	// Order is the byte order new messages are encoded with.
	// Defaults to the host's native order if unset.
	Order fragments.ByteOrder

	// Dial opens the raw transport. Defaults to
	// [transport.DialUnix] against the given address.
	Dial func(ctx context.Context, address string) (transport.Transport, error)
}

// OpenSocket dials address and returns a Socket ready to exchange
// messages. address is a Unix domain socket path.
func OpenSocket(ctx context.Context, address string, opts SocketOptions) (Socket, error) {
	dial := opts.Dial
	if dial == nil {
		dial = func(ctx context.Context, addr string) (transport.Transport, error) {
			return transport.DialUnix(ctx, addr)
		}
	}
	t, err := dial(ctx, address)
	if err != nil {
		return nil, clientErr("dial transport", err)
	}
	order := opts.Order
	if order == nil {
		order = fragments.NativeEndian
	}
	return &wireSocket{t: t, order: order}, nil
}

// wireSocket is the default Socket, built on a raw transport and
// the wire.go frame codec.
type wireSocket struct {
	t     transport.Transport
	order fragments.ByteOrder

	mu     sync.Mutex
	serial Serial
}

func (s *wireSocket) Send(msg OutgoingMessage, consumeSerial func(Serial)) (Serial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.serial++
	serial := s.serial

	bs, err := encodeMessage(s.order, serial, msg)
	if err != nil {
		return 0, clientErr("encode message", err)
	}

	// consumeSerial runs before the bytes reach the transport, so a
	// pending-call table insert always precedes any possible reply.
	if consumeSerial != nil {
		consumeSerial(serial)
	}

	if _, err := s.t.Write(bs); err != nil {
		return serial, clientErr("write message", err)
	}
	return serial, nil
}

func (s *wireSocket) Receive() (ReceivedMessage, error) {
	msg, err := decodeMessage(s.t)
	if err != nil {
		return ReceivedMessage{}, clientErr("decode message", err)
	}
	return msg, nil
}

func (s *wireSocket) Close() error {
	return s.t.Close()
}
