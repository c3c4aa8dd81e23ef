package dbus

import "fmt"

// Atom is one of the twelve scalar/string DBus types, carrying a
// totally ordered value so it can be used as a dictionary key.
//
// The zero Atom is not meaningful; construct one with AtomBool,
// AtomWord8, and so on.
type Atom struct {
	kind typeKind
	val  any
}

func AtomBool(b bool) Atom             { return Atom{kindBoolean, b} }
func AtomWord8(v uint8) Atom           { return Atom{kindWord8, v} }
func AtomWord16(v uint16) Atom         { return Atom{kindWord16, v} }
func AtomWord32(v uint32) Atom         { return Atom{kindWord32, v} }
func AtomWord64(v uint64) Atom         { return Atom{kindWord64, v} }
func AtomInt16(v int16) Atom           { return Atom{kindInt16, v} }
func AtomInt32(v int32) Atom           { return Atom{kindInt32, v} }
func AtomInt64(v int64) Atom           { return Atom{kindInt64, v} }
func AtomDouble(v float64) Atom        { return Atom{kindDouble, v} }
func AtomText(v string) Atom           { return Atom{kindString, v} }
func AtomSignature(v Signature) Atom   { return Atom{kindSignature, v} }
func AtomObjectPath(v ObjectPath) Atom { return Atom{kindObjectPath, v} }

// Type returns the atomic Type of a.
func (a Atom) Type() Type {
	return Type{kind: a.kind}
}

// Value returns a's payload as the concrete Go type it was
// constructed with (bool, uint8, uint16, uint32, uint64, int16,
// int32, int64, float64, string, Signature, or ObjectPath).
func (a Atom) Value() any {
	return a.val
}

// Bool, Word8, ... return a's payload and report whether a actually
// holds that case.
func (a Atom) Bool() (bool, bool)             { v, ok := a.val.(bool); return v, ok }
func (a Atom) Word8() (uint8, bool)           { v, ok := a.val.(uint8); return v, ok }
func (a Atom) Word16() (uint16, bool)         { v, ok := a.val.(uint16); return v, ok }
func (a Atom) Word32() (uint32, bool)         { v, ok := a.val.(uint32); return v, ok }
func (a Atom) Word64() (uint64, bool)         { v, ok := a.val.(uint64); return v, ok }
func (a Atom) Int16() (int16, bool)           { v, ok := a.val.(int16); return v, ok }
func (a Atom) Int32() (int32, bool)           { v, ok := a.val.(int32); return v, ok }
func (a Atom) Int64() (int64, bool)           { v, ok := a.val.(int64); return v, ok }
func (a Atom) Double() (float64, bool)        { v, ok := a.val.(float64); return v, ok }
func (a Atom) Text() (string, bool)           { v, ok := a.val.(string); return v, ok }
func (a Atom) Signature() (Signature, bool)   { v, ok := a.val.(Signature); return v, ok }
func (a Atom) ObjectPath() (ObjectPath, bool) { v, ok := a.val.(ObjectPath); return v, ok }

// Compare returns -1, 0, or 1 as a is less than, equal to, or
// greater than other. Atoms of different kinds order by kind.
func (a Atom) Compare(other Atom) int {
	if a.kind != other.kind {
		if a.kind < other.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case kindBoolean:
		return compareOrdered(b2i(a.val.(bool)), b2i(other.val.(bool)))
	case kindWord8:
		return compareOrdered(a.val.(uint8), other.val.(uint8))
	case kindWord16:
		return compareOrdered(a.val.(uint16), other.val.(uint16))
	case kindWord32:
		return compareOrdered(a.val.(uint32), other.val.(uint32))
	case kindWord64:
		return compareOrdered(a.val.(uint64), other.val.(uint64))
	case kindInt16:
		return compareOrdered(a.val.(int16), other.val.(int16))
	case kindInt32:
		return compareOrdered(a.val.(int32), other.val.(int32))
	case kindInt64:
		return compareOrdered(a.val.(int64), other.val.(int64))
	case kindDouble:
		return compareOrdered(a.val.(float64), other.val.(float64))
	case kindString:
		return compareOrdered(a.val.(string), other.val.(string))
	case kindSignature:
		return compareOrdered(string(a.val.(Signature)), string(other.val.(Signature)))
	case kindObjectPath:
		return compareOrdered(string(a.val.(ObjectPath)), string(other.val.(ObjectPath)))
	default:
		panic(fmt.Sprintf("dbus: Atom has non-atomic kind %d", a.kind))
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func compareOrdered[T int | uint8 | uint16 | uint32 | uint64 | int16 | int32 | int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (a Atom) String() string {
	return fmt.Sprintf("%v", a.val)
}
