// Package dbus implements the core of a D-Bus client: the DBus type
// algebra and value model, the signature codec, name validation for
// the bus's various identifier grammars, and a connection dispatcher
// that multiplexes method calls, signals, and exported objects over
// a single transport.
//
// The byte-level marshalling of values to and from the D-Bus binary
// frame format, the socket transport and SASL handshake, and XML
// introspection serialization are each external collaborators,
// consumed through the Socket interface in socket.go and the codec
// and XML functions in wire.go and introspect.go. Concrete default
// implementations live in the
// transport package (a Unix domain socket with AUTH EXTERNAL) and in
// wire.go and introspect.go themselves.
//
// Unix file descriptor passing (DBus signature code 'h') is not
// supported. This package is a client library, not a bus daemon.
package dbus
