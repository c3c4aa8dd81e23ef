package dbus

import (
	"fmt"

	"github.com/creachadair/mds/value"
)

// ClientError reports a connection-level failure: the socket failed
// to open, a send failed, a received message failed to decode, or
// the connection closed while a call was pending.
type ClientError struct {
	// Detail describes what went wrong.
	Detail string
	// Serial is the stranded call's serial, if this ClientError
	// completes a pending call during disconnect.
	Serial Serial
	// HasSerial reports whether Serial is meaningful.
	HasSerial bool
	// Reason is the underlying error, if any.
	Reason error
}

func (e ClientError) Error() string {
	if e.HasSerial {
		return fmt.Sprintf("dbus client error (serial %d): %s", e.Serial, e.Detail)
	}
	return fmt.Sprintf("dbus client error: %s", e.Detail)
}

func (e ClientError) Unwrap() error { return e.Reason }

func clientErr(detail string, reason error) ClientError {
	return ClientError{Detail: detail, Reason: reason}
}

// MethodError is a D-Bus-level method failure: an error name plus a
// variant payload. It doubles as the wire-level message record for a
// DBus error reply (reply_serial, sender, destination) and as the
// error delivered to the caller of [Client.Call] when the remote
// peer reports failure; a server-side method handler reports failure
// by returning one (see [Fail]).
type MethodError struct {
	// Name is the DBus error name, e.g.
	// "org.freedesktop.DBus.Error.UnknownMethod".
	Name ErrorName
	// Serial is this error message's own serial, when it arrived off
	// the wire. Zero for a handler-constructed error awaiting send.
	Serial Serial
	// ReplySerial is the serial of the method call this error
	// answers. Zero when constructed with [Fail] for a handler to
	// return; the dispatcher fills it in before sending.
	ReplySerial Serial
	// Sender and Destination are the bus names of the peers
	// involved, when known.
	Sender      value.Maybe[BusName]
	Destination value.Maybe[BusName]
	// Body is the error's variant payload, conventionally a single
	// string describing the failure.
	Body []Variant
}

func (e *MethodError) Error() string {
	if len(e.Body) == 1 {
		if s, ok := e.Body[0].Value.AsAtom(); ok {
			if text, ok := s.Text(); ok {
				return fmt.Sprintf("%s: %s", e.Name, text)
			}
		}
	}
	return string(e.Name)
}

// Fail builds a *MethodError with a single string-variant payload,
// the conventional shape for reporting a failure's textual reason.
// It is the value a method handler returns to report a structured
// method error; the dispatcher delivers exactly this error name and
// payload back to the remote caller.
func Fail(name ErrorName, reason string) *MethodError {
	return &MethodError{
		Name: name,
		Body: []Variant{NewVariantOf(NewAtom(AtomText(reason)))},
	}
}

// ErrUnknownMethod is the error name the dispatcher reports when a
// method call targets a path/interface/member that has no exported
// handler.
const ErrUnknownMethod ErrorName = "org.freedesktop.DBus.Error.UnknownMethod"

// ErrFailed is the error name the dispatcher reports when a method
// handler panics.
const ErrFailed ErrorName = "org.freedesktop.DBus.Error.Failed"
