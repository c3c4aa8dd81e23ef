// Package fragments provides low-level encoding and decoding helpers
// used to construct and parse DBus messages: padding to DBus
// alignment rules, fixed-width integers in a chosen byte order, and
// length-prefixed strings, byte arrays, array framing, and struct
// framing.
//
// The provided encoder and decoder are low-level tools and do not by
// themselves ensure that a full message is well-formed; that is the
// job of the wire codec built on top of them.
package fragments
