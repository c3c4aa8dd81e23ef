package dbus

import (
	"bytes"
	"fmt"
)

type valueKind uint8

const (
	vkAtom valueKind = iota
	vkVariant
	vkBytes
	vkVector
	vkMap
	vkStructure
)

// Value is a tagged variant carrying any DBus value: an Atom, a
// Variant, a byte sequence, a vector of values, a map from atoms to
// values, or a structure (tuple) of values.
//
// The zero Value is not meaningful; construct one with NewAtom,
// NewVariant, NewBytes, NewVector, NewMap, or NewStructure.
type Value struct {
	kind valueKind

	atom    Atom
	variant *Variant
	bytes   []byte

	elemType Type // Vector element type, or Map value type
	keyType  Type // Map key type
	elems    []Value
	entries  map[Atom]Value
}

// NewAtom wraps a as a Value.
func NewAtom(a Atom) Value { return Value{kind: vkAtom, atom: a} }

// NewVariant wraps v as a Value.
func NewVariant(v Variant) Value { return Value{kind: vkVariant, variant: &v} }

// NewBytes wraps b as a Value. Bytes is a representation
// optimization for Array(Word8): it compares equal to the
// equivalent Vector of Word8 atoms.
func NewBytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: vkBytes, bytes: cp}
}

// NewVector wraps elems, a homogeneous sequence of elemType values,
// as a Value.
func NewVector(elemType Type, elems []Value) Value {
	cp := make([]Value, len(elems))
	copy(cp, elems)
	return Value{kind: vkVector, elemType: elemType, elems: cp}
}

// NewMap wraps entries as a Value. It panics if keyType is not
// atomic: dictionary key atomicity is a structural invariant of the
// data model.
func NewMap(keyType, valueType Type, entries map[Atom]Value) Value {
	if !keyType.IsAtomic() {
		panic(fmt.Sprintf("dbus: map key type %s is not atomic", keyType))
	}
	cp := make(map[Atom]Value, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return Value{kind: vkMap, keyType: keyType, elemType: valueType, entries: cp}
}

// NewStructure wraps elems as a Value. It panics on an empty list:
// Structure([]) is not representable on the wire.
func NewStructure(elems ...Value) Value {
	if len(elems) == 0 {
		panic("dbus: empty Structure value is not representable")
	}
	cp := make([]Value, len(elems))
	copy(cp, elems)
	return Value{kind: vkStructure, elems: cp}
}

// AsAtom, AsVariant, AsBytes, AsVector, AsMap, and AsStructure
// return v's payload and report whether v actually holds that case.
// AsBytes additionally succeeds for a Vector of Word8 atoms, per the
// Bytes/Vector(Word8) equivalence.

func (v Value) AsAtom() (Atom, bool) {
	if v.kind != vkAtom {
		return Atom{}, false
	}
	return v.atom, true
}

func (v Value) AsVariant() (Variant, bool) {
	if v.kind != vkVariant {
		return Variant{}, false
	}
	return *v.variant, true
}

func (v Value) AsBytes() ([]byte, bool) {
	switch v.kind {
	case vkBytes:
		cp := make([]byte, len(v.bytes))
		copy(cp, v.bytes)
		return cp, true
	case vkVector:
		if !v.elemType.Equal(Word8) {
			return nil, false
		}
		out := make([]byte, len(v.elems))
		for i, e := range v.elems {
			b, ok := e.atom.Word8()
			if e.kind != vkAtom || !ok {
				return nil, false
			}
			out[i] = b
		}
		return out, true
	default:
		return nil, false
	}
}

func (v Value) AsVector() (Type, []Value, bool) {
	if v.kind != vkVector {
		return Type{}, nil, false
	}
	return v.elemType, v.elems, true
}

func (v Value) AsMap() (keyType, valueType Type, entries map[Atom]Value, ok bool) {
	if v.kind != vkMap {
		return Type{}, Type{}, nil, false
	}
	return v.keyType, v.elemType, v.entries, true
}

func (v Value) AsStructure() ([]Value, bool) {
	if v.kind != vkStructure {
		return nil, false
	}
	return v.elems, true
}

// TypeOf returns v's Type, derivable purely from v's shape.
func (v Value) TypeOf() Type {
	switch v.kind {
	case vkAtom:
		return v.atom.Type()
	case vkVariant:
		return VariantType
	case vkBytes:
		return ArrayOf(Word8)
	case vkVector:
		return ArrayOf(v.elemType)
	case vkMap:
		return DictionaryOf(v.keyType, v.elemType)
	case vkStructure:
		types := make([]Type, len(v.elems))
		for i, e := range v.elems {
			types[i] = e.TypeOf()
		}
		return StructureOf(types...)
	default:
		panic("dbus: Value has invalid kind")
	}
}

// Equal reports whether v and other represent the same DBus value.
// Bytes and an equivalent Vector of Word8 atoms compare equal.
func (v Value) Equal(other Value) bool {
	if vb, ok := v.AsBytes(); ok {
		if ob, ok := other.AsBytes(); ok {
			return bytes.Equal(vb, ob)
		}
		return false
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case vkAtom:
		return v.atom.Compare(other.atom) == 0
	case vkVariant:
		return v.variant.Type.Equal(other.variant.Type) && v.variant.Value.Equal(other.variant.Value)
	case vkVector:
		if !v.elemType.Equal(other.elemType) || len(v.elems) != len(other.elems) {
			return false
		}
		for i := range v.elems {
			if !v.elems[i].Equal(other.elems[i]) {
				return false
			}
		}
		return true
	case vkMap:
		if !v.keyType.Equal(other.keyType) || !v.elemType.Equal(other.elemType) || len(v.entries) != len(other.entries) {
			return false
		}
		for k, ev := range v.entries {
			ov, ok := other.entries[k]
			if !ok || !ev.Equal(ov) {
				return false
			}
		}
		return true
	case vkStructure:
		if len(v.elems) != len(other.elems) {
			return false
		}
		for i := range v.elems {
			if !v.elems[i].Equal(other.elems[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
