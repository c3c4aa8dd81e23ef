package dbus

import (
	"fmt"
	"reflect"
)

// ToVariant converts a host Go value into its Variant, the to_variant
// side of the conversion contract. It is total over every supported
// Go shape: the twelve atom kinds (and their named string types
// ObjectPath/Signature), []byte, slices, maps with an atomic key
// type, structs (as Structure/tuples), pointers, and any (boxed as a
// nested Variant). It panics for a Go type with no D-Bus
// counterpart, or for a map whose key type is not atomic: a
// non-atomic map key is a contract violation at this boundary, not
// at marshalling time.
func ToVariant(x any) Variant {
	return NewVariantOf(toValue(reflect.ValueOf(x)))
}

func toValue(rv reflect.Value) Value {
	if !rv.IsValid() {
		panic("dbus: cannot convert untyped nil to a Variant")
	}
	switch rv.Kind() {
	case reflect.Bool:
		return NewAtom(AtomBool(rv.Bool()))
	case reflect.Uint8:
		return NewAtom(AtomWord8(uint8(rv.Uint())))
	case reflect.Uint16:
		return NewAtom(AtomWord16(uint16(rv.Uint())))
	case reflect.Uint32:
		return NewAtom(AtomWord32(uint32(rv.Uint())))
	case reflect.Uint64:
		return NewAtom(AtomWord64(rv.Uint()))
	case reflect.Int16:
		return NewAtom(AtomInt16(int16(rv.Int())))
	case reflect.Int32:
		return NewAtom(AtomInt32(int32(rv.Int())))
	case reflect.Int64:
		return NewAtom(AtomInt64(rv.Int()))
	case reflect.Float64:
		return NewAtom(AtomDouble(rv.Float()))
	case reflect.String:
		switch rv.Type() {
		case objectPathGoType:
			return NewAtom(AtomObjectPath(ObjectPath(rv.String())))
		case signatureGoType:
			return NewAtom(AtomSignature(Signature(rv.String())))
		default:
			return NewAtom(AtomText(rv.String()))
		}
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return NewBytes(rv.Bytes())
		}
		elemType := typeFor(rv.Type().Elem())
		elems := make([]Value, rv.Len())
		for i := range elems {
			elems[i] = toValue(rv.Index(i))
		}
		return NewVector(elemType, elems)
	case reflect.Map:
		keyType := typeFor(rv.Type().Key())
		if !keyType.IsAtomic() {
			panic(fmt.Sprintf("dbus: map key type %s is not atomic", rv.Type().Key()))
		}
		valType := typeFor(rv.Type().Elem())
		entries := make(map[Atom]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, ok := toValue(iter.Key()).AsAtom()
			if !ok {
				panic(fmt.Sprintf("dbus: map key type %s did not convert to an atom", rv.Type().Key()))
			}
			entries[k] = toValue(iter.Value())
		}
		return NewMap(keyType, valType, entries)
	case reflect.Struct:
		n := rv.NumField()
		elems := make([]Value, n)
		for i := range elems {
			elems[i] = toValue(rv.Field(i))
		}
		return NewStructure(elems...)
	case reflect.Ptr:
		if rv.IsNil() {
			panic("dbus: cannot convert nil pointer to a Variant")
		}
		return toValue(rv.Elem())
	case reflect.Interface:
		if rv.IsNil() {
			panic("dbus: cannot convert nil interface to a Variant")
		}
		return NewVariant(NewVariantOf(toValue(rv.Elem())))
	default:
		panic(fmt.Sprintf("dbus: Go type %s has no Variant conversion", rv.Type()))
	}
}

var (
	objectPathGoType = reflect.TypeOf(ObjectPath(""))
	signatureGoType  = reflect.TypeOf(Signature(""))
)

// typeFor derives the Type a Go type converts to, without needing a
// value in hand; used to type empty slices and maps.
func typeFor(rt reflect.Type) Type {
	switch rt.Kind() {
	case reflect.Bool:
		return Boolean
	case reflect.Uint8:
		return Word8
	case reflect.Uint16:
		return Word16
	case reflect.Uint32:
		return Word32
	case reflect.Uint64:
		return Word64
	case reflect.Int16:
		return Int16
	case reflect.Int32:
		return Int32
	case reflect.Int64:
		return Int64
	case reflect.Float64:
		return Double
	case reflect.String:
		switch rt {
		case objectPathGoType:
			return ObjectPathType
		case signatureGoType:
			return SigType
		default:
			return String
		}
	case reflect.Slice, reflect.Array:
		if rt.Elem().Kind() == reflect.Uint8 {
			return ArrayOf(Word8)
		}
		return ArrayOf(typeFor(rt.Elem()))
	case reflect.Map:
		return DictionaryOf(typeFor(rt.Key()), typeFor(rt.Elem()))
	case reflect.Struct:
		fields := make([]Type, rt.NumField())
		for i := range fields {
			fields[i] = typeFor(rt.Field(i).Type)
		}
		return StructureOf(fields...)
	case reflect.Ptr:
		return typeFor(rt.Elem())
	case reflect.Interface:
		return VariantType
	default:
		panic(fmt.Sprintf("dbus: Go type %s has no Type conversion", rt))
	}
}

// FromVariant converts v into a T, the from_variant side of the
// conversion contract: it returns false iff v's dynamic type does not
// match T's shape, rather than panicking.
func FromVariant[T any](v Variant) (T, bool) {
	var zero T
	rt := reflect.TypeFor[T]()
	rv := reflect.New(rt).Elem()
	if !fromValue(v.Value, rv) {
		return zero, false
	}
	return rv.Interface().(T), true
}

func fromValue(val Value, out reflect.Value) bool {
	switch out.Kind() {
	case reflect.Bool:
		a, ok := val.AsAtom()
		if !ok {
			return false
		}
		b, ok := a.Bool()
		if !ok {
			return false
		}
		out.SetBool(b)
		return true
	case reflect.Uint8:
		a, ok := val.AsAtom()
		if !ok {
			return false
		}
		u, ok := a.Word8()
		if !ok {
			return false
		}
		out.SetUint(uint64(u))
		return true
	case reflect.Uint16:
		a, ok := val.AsAtom()
		if !ok {
			return false
		}
		u, ok := a.Word16()
		if !ok {
			return false
		}
		out.SetUint(uint64(u))
		return true
	case reflect.Uint32:
		a, ok := val.AsAtom()
		if !ok {
			return false
		}
		u, ok := a.Word32()
		if !ok {
			return false
		}
		out.SetUint(uint64(u))
		return true
	case reflect.Uint64:
		a, ok := val.AsAtom()
		if !ok {
			return false
		}
		u, ok := a.Word64()
		if !ok {
			return false
		}
		out.SetUint(u)
		return true
	case reflect.Int16:
		a, ok := val.AsAtom()
		if !ok {
			return false
		}
		i, ok := a.Int16()
		if !ok {
			return false
		}
		out.SetInt(int64(i))
		return true
	case reflect.Int32:
		a, ok := val.AsAtom()
		if !ok {
			return false
		}
		i, ok := a.Int32()
		if !ok {
			return false
		}
		out.SetInt(int64(i))
		return true
	case reflect.Int64:
		a, ok := val.AsAtom()
		if !ok {
			return false
		}
		i, ok := a.Int64()
		if !ok {
			return false
		}
		out.SetInt(i)
		return true
	case reflect.Float64:
		a, ok := val.AsAtom()
		if !ok {
			return false
		}
		f, ok := a.Double()
		if !ok {
			return false
		}
		out.SetFloat(f)
		return true
	case reflect.String:
		a, ok := val.AsAtom()
		if !ok {
			return false
		}
		switch out.Type() {
		case objectPathGoType:
			p, ok := a.ObjectPath()
			if !ok {
				return false
			}
			out.SetString(string(p))
		case signatureGoType:
			s, ok := a.Signature()
			if !ok {
				return false
			}
			out.SetString(string(s))
		default:
			s, ok := a.Text()
			if !ok {
				return false
			}
			out.SetString(s)
		}
		return true
	case reflect.Slice:
		if out.Type().Elem().Kind() == reflect.Uint8 {
			b, ok := val.AsBytes()
			if !ok {
				return false
			}
			out.SetBytes(b)
			return true
		}
		_, elems, ok := val.AsVector()
		if !ok {
			return false
		}
		slice := reflect.MakeSlice(out.Type(), len(elems), len(elems))
		for i, e := range elems {
			if !fromValue(e, slice.Index(i)) {
				return false
			}
		}
		out.Set(slice)
		return true
	case reflect.Map:
		_, _, entries, ok := val.AsMap()
		if !ok {
			return false
		}
		m := reflect.MakeMapWithSize(out.Type(), len(entries))
		for k, v := range entries {
			kv := reflect.New(out.Type().Key()).Elem()
			if !fromValue(NewAtom(k), kv) {
				return false
			}
			vv := reflect.New(out.Type().Elem()).Elem()
			if !fromValue(v, vv) {
				return false
			}
			m.SetMapIndex(kv, vv)
		}
		out.Set(m)
		return true
	case reflect.Struct:
		elems, ok := val.AsStructure()
		if !ok || len(elems) != out.NumField() {
			return false
		}
		for i, e := range elems {
			if !fromValue(e, out.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Ptr:
		if out.IsNil() {
			out.Set(reflect.New(out.Type().Elem()))
		}
		return fromValue(val, out.Elem())
	case reflect.Interface:
		vv, ok := val.AsVariant()
		if !ok {
			return false
		}
		dyn, ok := dynamicGoValue(vv)
		if !ok {
			return false
		}
		out.Set(reflect.ValueOf(dyn))
		return true
	default:
		return false
	}
}

// dynamicGoValue reconstructs a natural, untyped Go representation
// of v: atoms unwrap to their Go payload, arrays/byte-arrays to
// []any/[]byte, dictionaries to map[any]any, and structures to
// []any. Used to satisfy FromVariant[any].
func dynamicGoValue(v Variant) (any, bool) {
	switch {
	case v.Type.IsAtomic():
		a, ok := v.Value.AsAtom()
		if !ok {
			return nil, false
		}
		return a.Value(), true
	case v.Type.IsVariant():
		inner, ok := v.Value.AsVariant()
		if !ok {
			return nil, false
		}
		return dynamicGoValue(inner)
	case v.Type.IsArray():
		if b, ok := v.Value.AsBytes(); ok {
			return b, true
		}
		_, elems, ok := v.Value.AsVector()
		if !ok {
			return nil, false
		}
		out := make([]any, len(elems))
		for i, e := range elems {
			sub, ok := dynamicGoValue(Variant{Type: v.Type.Elem(), Value: e})
			if !ok {
				return nil, false
			}
			out[i] = sub
		}
		return out, true
	case v.Type.IsDictionary():
		_, valType, entries, ok := v.Value.AsMap()
		if !ok {
			return nil, false
		}
		out := make(map[any]any, len(entries))
		for k, vv := range entries {
			sub, ok := dynamicGoValue(Variant{Type: valType, Value: vv})
			if !ok {
				return nil, false
			}
			out[k.Value()] = sub
		}
		return out, true
	case v.Type.IsStructure():
		elems, ok := v.Value.AsStructure()
		if !ok {
			return nil, false
		}
		fieldTypes := v.Type.Fields()
		out := make([]any, len(elems))
		for i, e := range elems {
			sub, ok := dynamicGoValue(Variant{Type: fieldTypes[i], Value: e})
			if !ok {
				return nil, false
			}
			out[i] = sub
		}
		return out, true
	default:
		return nil, false
	}
}
