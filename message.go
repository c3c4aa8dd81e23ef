package dbus

import "github.com/creachadair/mds/value"

// Serial is a per-connection 32-bit wrapping counter used to
// correlate a method call with its reply.
type Serial uint32

// MessageFlags is a set of bits carried in a MethodCall header.
type MessageFlags uint8

const (
	// FlagNoReplyExpected tells the receiving peer not to send a
	// reply to a one-way method call.
	FlagNoReplyExpected MessageFlags = 1 << iota
	// FlagNoAutoStart tells the bus not to launch an activatable
	// service to field this call.
	FlagNoAutoStart
)

// MethodCall is an outgoing or incoming method-call message.
type MethodCall struct {
	Serial      Serial
	Path        ObjectPath
	Member      MemberName
	Interface   value.Maybe[InterfaceName]
	Sender      value.Maybe[BusName]
	Destination value.Maybe[BusName]
	Flags       MessageFlags
	Body        []Variant
}

// MethodReturn is a successful reply to a MethodCall.
type MethodReturn struct {
	Serial      Serial
	ReplySerial Serial
	Sender      value.Maybe[BusName]
	Destination value.Maybe[BusName]
	Body        []Variant
}

// Signal is a broadcast message emitted by a peer.
type Signal struct {
	Serial      Serial
	Path        ObjectPath
	Interface   InterfaceName
	Member      MemberName
	Sender      value.Maybe[BusName]
	Destination value.Maybe[BusName]
	Body        []Variant
}

// ReceivedMessage is a tagged enum over the four message records a
// socket can hand the dispatcher: exactly one of the four fields is
// non-nil.
type ReceivedMessage struct {
	Call   *MethodCall
	Return *MethodReturn
	Err    *MethodError
	Signal *Signal
}

// MessageSerial returns the message's own serial, regardless of which case
// is present.
func (m ReceivedMessage) MessageSerial() Serial {
	switch {
	case m.Call != nil:
		return m.Call.Serial
	case m.Return != nil:
		return m.Return.Serial
	case m.Err != nil:
		return m.Err.Serial
	case m.Signal != nil:
		return m.Signal.Serial
	default:
		return 0
	}
}
