package dbus

import (
	"fmt"
	"strings"
)

// maxNameLen is the length cap applied to interface, member, error,
// and bus names. Object paths have no such cap.
const maxNameLen = 255

// NameFormatError reports that text is not a valid name of its
// category.
type NameFormatError struct {
	// Category names the kind of name that failed to validate
	// (e.g. "ObjectPath", "InterfaceName").
	Category string
	// Input is the text that failed to validate.
	Input string
}

func (e NameFormatError) Error() string {
	return fmt.Sprintf("invalid dbus %s: %q", e.Category, e.Input)
}

// ObjectPath is a slash-separated hierarchical identifier for a
// server-exported object, such as "/org/freedesktop/DBus".
type ObjectPath string

// ParseObjectPath validates s as an object path: either "/", or "/"
// followed by one or more "/"-separated elements, each composed of
// characters from [A-Za-z0-9_], with no trailing slash.
func ParseObjectPath(s string) (ObjectPath, bool) {
	if s == "/" {
		return ObjectPath(s), true
	}
	if !strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return "", false
	}
	for _, elem := range strings.Split(s[1:], "/") {
		if !isPathElement(elem) {
			return "", false
		}
	}
	return ObjectPath(s), true
}

// MustObjectPath is ParseObjectPath, panicking on an invalid path.
func MustObjectPath(s string) ObjectPath {
	p, ok := ParseObjectPath(s)
	if !ok {
		panic(NameFormatError{"ObjectPath", s})
	}
	return p
}

func isPathElement(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isPathChar(s[i]) {
			return false
		}
	}
	return true
}

func isPathChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func (p ObjectPath) String() string { return string(p) }

// IsChildOf reports whether p is equal to or nested below prefix.
func (p ObjectPath) IsChildOf(prefix ObjectPath) bool {
	if p == prefix {
		return true
	}
	if prefix == "/" {
		return strings.HasPrefix(string(p), "/")
	}
	return strings.HasPrefix(string(p), string(prefix)+"/")
}

// InterfaceName is a DBus interface identifier, such as
// "org.freedesktop.DBus.Introspectable": two or more dot-separated
// elements, each beginning with [A-Za-z_] and continuing with
// [A-Za-z0-9_]*.
type InterfaceName string

// ParseInterfaceName validates s as an interface name.
func ParseInterfaceName(s string) (InterfaceName, bool) {
	if !validDottedName(s, false, false) {
		return "", false
	}
	return InterfaceName(s), true
}

// MustInterfaceName is ParseInterfaceName, panicking on an invalid
// name.
func MustInterfaceName(s string) InterfaceName {
	n, ok := ParseInterfaceName(s)
	if !ok {
		panic(NameFormatError{"InterfaceName", s})
	}
	return n
}

func (n InterfaceName) String() string { return string(n) }

// MemberName is a DBus method, signal, or property name: a single
// element beginning with [A-Za-z_] and continuing with
// [A-Za-z0-9_]*.
type MemberName string

// ParseMemberName validates s as a member name.
func ParseMemberName(s string) (MemberName, bool) {
	if !validNameElement(s, false, false) {
		return "", false
	}
	if len(s) > maxNameLen {
		return "", false
	}
	return MemberName(s), true
}

// MustMemberName is ParseMemberName, panicking on an invalid name.
func MustMemberName(s string) MemberName {
	n, ok := ParseMemberName(s)
	if !ok {
		panic(NameFormatError{"MemberName", s})
	}
	return n
}

func (n MemberName) String() string { return string(n) }

// ErrorName is a DBus error name, sharing InterfaceName's grammar
// (e.g. "org.freedesktop.DBus.Error.UnknownMethod").
type ErrorName string

// ParseErrorName validates s as an error name.
func ParseErrorName(s string) (ErrorName, bool) {
	if !validDottedName(s, false, false) {
		return "", false
	}
	return ErrorName(s), true
}

// MustErrorName is ParseErrorName, panicking on an invalid name.
func MustErrorName(s string) ErrorName {
	n, ok := ParseErrorName(s)
	if !ok {
		panic(NameFormatError{"ErrorName", s})
	}
	return n
}

func (n ErrorName) String() string { return string(n) }

// BusName is a DBus bus name: either well-known (InterfaceName's
// grammar, but an element may also begin with '-') or unique (a
// leading ':' followed by two or more dot-separated elements drawn
// from [A-Za-z0-9_-], digits permitted in leading position).
type BusName string

// ParseBusName validates s as a bus name, well-known or unique.
func ParseBusName(s string) (BusName, bool) {
	if len(s) > maxNameLen || s == "" {
		return "", false
	}
	if strings.HasPrefix(s, ":") {
		if !validDottedNameBody(s[1:], true, true) {
			return "", false
		}
		return BusName(s), true
	}
	if !validDottedName(s, true, false) {
		return "", false
	}
	return BusName(s), true
}

// MustBusName is ParseBusName, panicking on an invalid name.
func MustBusName(s string) BusName {
	n, ok := ParseBusName(s)
	if !ok {
		panic(NameFormatError{"BusName", s})
	}
	return n
}

func (n BusName) String() string { return string(n) }

// IsUnique reports whether n is a unique bus name (begins with ':').
func (n BusName) IsUnique() bool { return strings.HasPrefix(string(n), ":") }

// validDottedName validates an InterfaceName/ErrorName/well-known
// BusName: two or more dot-separated elements. allowDash permits
// elements to also use '-'; allowLeadDigit additionally permits a
// leading digit in each element (unique bus names only).
func validDottedName(s string, allowDash, allowLeadDigit bool) bool {
	if len(s) > maxNameLen {
		return false
	}
	return validDottedNameBody(s, allowDash, allowLeadDigit)
}

func validDottedNameBody(s string, allowDash, allowLeadDigit bool) bool {
	elems := strings.Split(s, ".")
	if len(elems) < 2 {
		return false
	}
	for _, e := range elems {
		if !validNameElement(e, allowDash, allowLeadDigit) {
			return false
		}
	}
	return true
}

// validNameElement validates a single dot-separated element shared
// by the interface/member/error/bus-name grammars. allowDash permits
// '-'; allowLeadDigit additionally permits the element to begin with
// a digit, as unique bus name elements do.
func validNameElement(s string, allowDash, allowLeadDigit bool) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		alpha := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
		digit := c >= '0' && c <= '9'
		dash := allowDash && c == '-'
		if i == 0 {
			if alpha || dash || (allowLeadDigit && digit) {
				continue
			}
			return false
		}
		if !alpha && !digit && !dash {
			return false
		}
	}
	return true
}
