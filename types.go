package dbus

import "fmt"

// typeKind enumerates the cases of the DBus type algebra.
type typeKind uint8

const (
	kindBoolean typeKind = iota
	kindWord8
	kindWord16
	kindWord32
	kindWord64
	kindInt16
	kindInt32
	kindInt64
	kindDouble
	kindString
	kindSignature
	kindObjectPath
	kindVariant
	kindArray
	kindDictionary
	kindStructure
)

// Type is the DBus type algebra: a recursive tagged variant over the
// twelve atomic cases plus Variant, Array, Dictionary, and Structure.
//
// The zero Type is not a valid type; always obtain one from a
// constructor such as [ArrayOf] or one of the atomic Type values
// below.
type Type struct {
	kind typeKind
	// elem is the element type for Array, the value type for
	// Dictionary.
	elem *Type
	// key is the key type for Dictionary.
	key *Type
	// fields is the member list for Structure.
	fields []Type
}

// Atomic Type values, one per scalar/string case of the algebra.
var (
	Boolean    = Type{kind: kindBoolean}
	Word8      = Type{kind: kindWord8}
	Word16     = Type{kind: kindWord16}
	Word32     = Type{kind: kindWord32}
	Word64     = Type{kind: kindWord64}
	Int16      = Type{kind: kindInt16}
	Int32      = Type{kind: kindInt32}
	Int64      = Type{kind: kindInt64}
	Double     = Type{kind: kindDouble}
	String     = Type{kind: kindString}
	SigType    = Type{kind: kindSignature}
	ObjectPathType = Type{kind: kindObjectPath}
	VariantType    = Type{kind: kindVariant}
)

// ArrayOf returns the Array(t) type.
func ArrayOf(t Type) Type {
	return Type{kind: kindArray, elem: &t}
}

// DictionaryOf returns the Dictionary(key, value) type.
//
// It panics if key is not atomic: key atomicity is a structural
// invariant of the type, not merely an API contract, so it is
// enforced at construction.
func DictionaryOf(key, value Type) Type {
	if !key.IsAtomic() {
		panic(fmt.Sprintf("dbus: dictionary key type %s is not atomic", key))
	}
	return Type{kind: kindDictionary, key: &key, elem: &value}
}

// StructureOf returns the Structure(fields) type.
//
// It panics on an empty field list: Structure([]) is not
// representable on the wire.
func StructureOf(fields ...Type) Type {
	if len(fields) == 0 {
		panic("dbus: empty Structure type is not representable")
	}
	cp := make([]Type, len(fields))
	copy(cp, fields)
	return Type{kind: kindStructure, fields: cp}
}

// IsAtomic reports whether t is one of the twelve scalar/string
// cases: every case except Variant, Array, Dictionary, and
// Structure.
func (t Type) IsAtomic() bool {
	return t.kind <= kindObjectPath
}

// Elem returns the element type of an Array, or the value type of a
// Dictionary. It panics if t is neither.
func (t Type) Elem() Type {
	if t.kind != kindArray && t.kind != kindDictionary {
		panic(fmt.Sprintf("dbus: Elem() of non-container type %s", t))
	}
	return *t.elem
}

// Key returns the key type of a Dictionary. It panics if t is not a
// Dictionary.
func (t Type) Key() Type {
	if t.kind != kindDictionary {
		panic(fmt.Sprintf("dbus: Key() of non-Dictionary type %s", t))
	}
	return *t.key
}

// Fields returns the member types of a Structure. It panics if t is
// not a Structure.
func (t Type) Fields() []Type {
	if t.kind != kindStructure {
		panic(fmt.Sprintf("dbus: Fields() of non-Structure type %s", t))
	}
	return t.fields
}

// IsArray, IsDictionary, IsStructure, IsVariant report the dynamic
// case of t.
func (t Type) IsArray() bool      { return t.kind == kindArray }
func (t Type) IsDictionary() bool { return t.kind == kindDictionary }
func (t Type) IsStructure() bool  { return t.kind == kindStructure }
func (t Type) IsVariant() bool    { return t.kind == kindVariant }

var atomNames = map[typeKind]string{
	kindBoolean:    "Bool",
	kindWord8:      "Word8",
	kindWord16:     "Word16",
	kindWord32:     "Word32",
	kindWord64:     "Word64",
	kindInt16:      "Int16",
	kindInt32:      "Int32",
	kindInt64:      "Int64",
	kindDouble:     "Double",
	kindString:     "String",
	kindSignature:  "Signature",
	kindObjectPath: "ObjectPath",
	kindVariant:    "Variant",
}

// String renders t using a fixed set of display names: atoms by
// name, Array(t) as "[t]", Dictionary(k,v) as "Map k v", and
// Structure(ts) as "(t1, t2, …)".
func (t Type) String() string {
	return t.show(false)
}

// show renders t; paren controls whether a Dictionary rendering
// nested inside another constructor gets wrapped in parentheses.
func (t Type) show(paren bool) string {
	switch t.kind {
	case kindArray:
		return "[" + t.elem.show(false) + "]"
	case kindDictionary:
		s := fmt.Sprintf("Map %s %s", t.key.show(true), t.elem.show(true))
		if paren {
			return "(" + s + ")"
		}
		return s
	case kindStructure:
		parts := make([]string, len(t.fields))
		for i, f := range t.fields {
			parts[i] = f.show(false)
		}
		s := "("
		for i, p := range parts {
			if i > 0 {
				s += ", "
			}
			s += p
		}
		return s + ")"
	default:
		if name, ok := atomNames[t.kind]; ok {
			return name
		}
		return "<invalid Type>"
	}
}

// Equal reports whether t and other denote the same Type.
func (t Type) Equal(other Type) bool {
	if t.kind != other.kind {
		return false
	}
	switch t.kind {
	case kindArray:
		return t.elem.Equal(*other.elem)
	case kindDictionary:
		return t.key.Equal(*other.key) && t.elem.Equal(*other.elem)
	case kindStructure:
		if len(t.fields) != len(other.fields) {
			return false
		}
		for i := range t.fields {
			if !t.fields[i].Equal(other.fields[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
