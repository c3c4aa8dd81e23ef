package dbus

import (
	"fmt"
	"io"
	"math"

	"github.com/creachadair/mds/value"
	"github.com/wirebus/dbus/fragments"
)

// Message types, as carried in the DBus frame header.
const (
	msgTypeMethodCall   = 1
	msgTypeMethodReturn = 2
	msgTypeError        = 3
	msgTypeSignal       = 4
)

// Header field codes, as carried in the DBus frame header's
// a(yv) field array.
const (
	fieldPath        = 1
	fieldInterface   = 2
	fieldMember      = 3
	fieldErrorName   = 4
	fieldReplySerial = 5
	fieldDestination = 6
	fieldSender      = 7
	fieldSignature   = 8
)

const protocolVersion = 1

// encodeMessage renders out as a complete DBus wire frame, assigning
// it the given serial.
func encodeMessage(order fragments.ByteOrder, serial Serial, out OutgoingMessage) ([]byte, error) {
	var msgType byte
	var flags MessageFlags
	var fields []headerField
	var body []Variant

	switch {
	case out.Call != nil:
		m := out.Call
		msgType = msgTypeMethodCall
		flags = m.Flags
		fields = append(fields, headerField{fieldPath, NewVariantOf(NewAtom(AtomObjectPath(m.Path)))})
		fields = append(fields, headerField{fieldMember, NewVariantOf(NewAtom(AtomText(string(m.Member))))})
		if iface, ok := m.Interface.GetOK(); ok {
			fields = append(fields, headerField{fieldInterface, NewVariantOf(NewAtom(AtomText(string(iface))))})
		}
		if dest, ok := m.Destination.GetOK(); ok {
			fields = append(fields, headerField{fieldDestination, NewVariantOf(NewAtom(AtomText(string(dest))))})
		}
		body = m.Body
	case out.Return != nil:
		m := out.Return
		msgType = msgTypeMethodReturn
		fields = append(fields, headerField{fieldReplySerial, NewVariantOf(NewAtom(AtomWord32(uint32(m.ReplySerial))))})
		if dest, ok := m.Destination.GetOK(); ok {
			fields = append(fields, headerField{fieldDestination, NewVariantOf(NewAtom(AtomText(string(dest))))})
		}
		body = m.Body
	case out.Err != nil:
		m := out.Err
		msgType = msgTypeError
		fields = append(fields, headerField{fieldReplySerial, NewVariantOf(NewAtom(AtomWord32(uint32(m.ReplySerial))))})
		fields = append(fields, headerField{fieldErrorName, NewVariantOf(NewAtom(AtomText(string(m.Name))))})
		if dest, ok := m.Destination.GetOK(); ok {
			fields = append(fields, headerField{fieldDestination, NewVariantOf(NewAtom(AtomText(string(dest))))})
		}
		body = m.Body
	case out.Signal != nil:
		m := out.Signal
		msgType = msgTypeSignal
		fields = append(fields, headerField{fieldPath, NewVariantOf(NewAtom(AtomObjectPath(m.Path)))})
		fields = append(fields, headerField{fieldInterface, NewVariantOf(NewAtom(AtomText(string(m.Interface))))})
		fields = append(fields, headerField{fieldMember, NewVariantOf(NewAtom(AtomText(string(m.Member))))})
		if dest, ok := m.Destination.GetOK(); ok {
			fields = append(fields, headerField{fieldDestination, NewVariantOf(NewAtom(AtomText(string(dest))))})
		}
		body = m.Body
	default:
		return nil, fmt.Errorf("dbus: empty OutgoingMessage")
	}

	bodyEnc := fragments.Encoder{Order: order}
	for _, v := range body {
		if err := encodeVariantValue(&bodyEnc, v); err != nil {
			return nil, err
		}
	}
	bodyBytes := bodyEnc.Out

	if len(body) > 0 {
		sig, err := bodySignature(body)
		if err != nil {
			return nil, err
		}
		fields = append(fields, headerField{fieldSignature, NewVariantOf(NewAtom(AtomSignature(sig)))})
	}

	e := fragments.Encoder{Order: order}
	e.ByteOrderFlag()
	e.Uint8(msgType)
	e.Uint8(uint8(flags))
	e.Uint8(protocolVersion)
	e.Uint32(uint32(len(bodyBytes)))
	e.Uint32(uint32(serial))
	if err := e.Array(true, func() error {
		for _, f := range fields {
			if err := e.Struct(func() error {
				e.Uint8(f.code)
				return encodeVariant(&e, f.value)
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	e.Pad(8)
	e.Write(bodyBytes)

	return e.Out, nil
}

type headerField struct {
	code  byte
	value Variant
}

// bodySignature returns the DBus signature of a message body, a
// sequence of top-level variant values each contributing its own
// type to the signature.
func bodySignature(body []Variant) (Signature, error) {
	types := make([]Type, len(body))
	for i, v := range body {
		types[i] = v.Type
	}
	return NewSignature(types...)
}

// decodeMessage reads one complete DBus wire frame from r.
func decodeMessage(r io.Reader) (ReceivedMessage, error) {
	d := fragments.Decoder{Order: fragments.BigEndian, In: r}
	if err := d.ByteOrderFlag(); err != nil {
		return ReceivedMessage{}, err
	}
	msgType, err := d.Uint8()
	if err != nil {
		return ReceivedMessage{}, err
	}
	flagsByte, err := d.Uint8()
	if err != nil {
		return ReceivedMessage{}, err
	}
	if _, err := d.Uint8(); err != nil { // protocol version
		return ReceivedMessage{}, err
	}
	bodyLen, err := d.Uint32()
	if err != nil {
		return ReceivedMessage{}, err
	}
	serial, err := d.Uint32()
	if err != nil {
		return ReceivedMessage{}, err
	}

	fields := map[byte]Variant{}
	if _, err := d.Array(true, func(int) error {
		return d.Struct(func() error {
			code, err := d.Uint8()
			if err != nil {
				return err
			}
			v, err := decodeVariantValue(&d)
			if err != nil {
				return err
			}
			fields[code] = v
			return nil
		})
	}); err != nil {
		return ReceivedMessage{}, fmt.Errorf("decoding dbus header fields: %w", err)
	}
	d.Pad(8)

	var bodyTypes []Type
	if sigVariant, ok := fields[fieldSignature]; ok {
		if a, ok := sigVariant.Value.AsAtom(); ok {
			if sig, ok := a.Signature(); ok {
				bodyTypes, err = sig.Types()
				if err != nil {
					return ReceivedMessage{}, err
				}
			}
		}
	}
	_ = bodyLen

	body := make([]Variant, len(bodyTypes))
	for i, t := range bodyTypes {
		v, err := decodeValue(&d, t)
		if err != nil {
			return ReceivedMessage{}, fmt.Errorf("decoding dbus body element %d: %w", i, err)
		}
		body[i] = Variant{Type: t, Value: v}
	}

	textField := func(code byte) (string, bool) {
		v, ok := fields[code]
		if !ok {
			return "", false
		}
		a, ok := v.Value.AsAtom()
		if !ok {
			return "", false
		}
		return a.Text()
	}
	busField := func(code byte) value.Maybe[BusName] {
		s, ok := textField(code)
		if !ok {
			return value.Absent[BusName]()
		}
		n, ok := ParseBusName(s)
		if !ok {
			return value.Absent[BusName]()
		}
		return value.Just(n)
	}

	switch msgType {
	case msgTypeMethodCall:
		pathV, ok := fields[fieldPath]
		if !ok {
			return ReceivedMessage{}, fmt.Errorf("dbus: method call missing PATH header field")
		}
		pathAtom, _ := pathV.Value.AsAtom()
		path, _ := pathAtom.ObjectPath()
		memberStr, _ := textField(fieldMember)
		member, ok := ParseMemberName(memberStr)
		if !ok {
			return ReceivedMessage{}, fmt.Errorf("dbus: method call has invalid member name %q", memberStr)
		}
		m := &MethodCall{
			Serial:      Serial(serial),
			Path:        path,
			Member:      member,
			Destination: busField(fieldDestination),
			Sender:      busField(fieldSender),
			Flags:       MessageFlags(flagsByte),
			Body:        body,
		}
		if ifaceStr, ok := textField(fieldInterface); ok {
			if iface, ok := ParseInterfaceName(ifaceStr); ok {
				m.Interface = value.Just(iface)
			}
		}
		return ReceivedMessage{Call: m}, nil

	case msgTypeMethodReturn:
		replyV, ok := fields[fieldReplySerial]
		if !ok {
			return ReceivedMessage{}, fmt.Errorf("dbus: method return missing REPLY_SERIAL header field")
		}
		replyAtom, _ := replyV.Value.AsAtom()
		reply, _ := replyAtom.Word32()
		return ReceivedMessage{Return: &MethodReturn{
			Serial:      Serial(serial),
			ReplySerial: Serial(reply),
			Destination: busField(fieldDestination),
			Sender:      busField(fieldSender),
			Body:        body,
		}}, nil

	case msgTypeError:
		replyV, ok := fields[fieldReplySerial]
		if !ok {
			return ReceivedMessage{}, fmt.Errorf("dbus: error message missing REPLY_SERIAL header field")
		}
		replyAtom, _ := replyV.Value.AsAtom()
		reply, _ := replyAtom.Word32()
		nameStr, _ := textField(fieldErrorName)
		name, ok := ParseErrorName(nameStr)
		if !ok {
			return ReceivedMessage{}, fmt.Errorf("dbus: error message has invalid error name %q", nameStr)
		}
		return ReceivedMessage{Err: &MethodError{
			Name:        name,
			Serial:      Serial(serial),
			ReplySerial: Serial(reply),
			Destination: busField(fieldDestination),
			Sender:      busField(fieldSender),
			Body:        body,
		}}, nil

	case msgTypeSignal:
		pathV, ok := fields[fieldPath]
		if !ok {
			return ReceivedMessage{}, fmt.Errorf("dbus: signal missing PATH header field")
		}
		pathAtom, _ := pathV.Value.AsAtom()
		path, _ := pathAtom.ObjectPath()
		ifaceStr, _ := textField(fieldInterface)
		iface, ok := ParseInterfaceName(ifaceStr)
		if !ok {
			return ReceivedMessage{}, fmt.Errorf("dbus: signal has invalid interface name %q", ifaceStr)
		}
		memberStr, _ := textField(fieldMember)
		member, ok := ParseMemberName(memberStr)
		if !ok {
			return ReceivedMessage{}, fmt.Errorf("dbus: signal has invalid member name %q", memberStr)
		}
		return ReceivedMessage{Signal: &Signal{
			Serial:      Serial(serial),
			Path:        path,
			Interface:   iface,
			Member:      member,
			Destination: busField(fieldDestination),
			Sender:      busField(fieldSender),
			Body:        body,
		}}, nil

	default:
		return ReceivedMessage{}, fmt.Errorf("dbus: unknown message type %d", msgType)
	}
}

// encodeVariantValue writes v.Value directly (no variant signature
// wrapper), as used for plain body elements. VARIANT-typed header
// fields go through encodeVariant instead.
func encodeVariantValue(e *fragments.Encoder, v Variant) error {
	return encodeValue(e, v.Type, v.Value)
}

func decodeVariantValue(d *fragments.Decoder) (Variant, error) {
	return decodeVariant(d)
}

// encodeValue writes v, of type t, to e using the DBus wire
// encoding.
func encodeValue(e *fragments.Encoder, t Type, v Value) error {
	switch {
	case t.IsVariant():
		vv, ok := v.AsVariant()
		if !ok {
			return fmt.Errorf("dbus: expected Variant value for type %s", t)
		}
		return encodeVariant(e, vv)
	case t.IsArray():
		if b, ok := v.AsBytes(); ok && t.Elem().Equal(Word8) {
			e.Bytes(b)
			return nil
		}
		_, elems, ok := v.AsVector()
		if !ok {
			return fmt.Errorf("dbus: expected Vector value for type %s", t)
		}
		containsStructs := t.Elem().IsStructure() || t.Elem().IsDictionary()
		return e.Array(containsStructs, func() error {
			for _, elem := range elems {
				if containsStructs {
					if err := e.Struct(func() error { return encodeValue(e, t.Elem(), elem) }); err != nil {
						return err
					}
				} else if err := encodeValue(e, t.Elem(), elem); err != nil {
					return err
				}
			}
			return nil
		})
	case t.IsDictionary():
		_, _, entries, ok := v.AsMap()
		if !ok {
			return fmt.Errorf("dbus: expected Map value for type %s", t)
		}
		keys := sortedAtoms(entries)
		return e.Array(true, func() error {
			for _, k := range keys {
				if err := e.Struct(func() error {
					if err := encodeValue(e, t.Key(), NewAtom(k)); err != nil {
						return err
					}
					return encodeValue(e, t.Elem(), entries[k])
				}); err != nil {
					return err
				}
			}
			return nil
		})
	case t.IsStructure():
		elems, ok := v.AsStructure()
		if !ok {
			return fmt.Errorf("dbus: expected Structure value for type %s", t)
		}
		fieldTypes := t.Fields()
		return e.Struct(func() error {
			for i, elem := range elems {
				if err := encodeValue(e, fieldTypes[i], elem); err != nil {
					return err
				}
			}
			return nil
		})
	default:
		return encodeAtom(e, v)
	}
}

func encodeAtom(e *fragments.Encoder, v Value) error {
	a, ok := v.AsAtom()
	if !ok {
		return fmt.Errorf("dbus: expected atomic value")
	}
	switch val := a.Value().(type) {
	case bool:
		if val {
			e.Uint32(1)
		} else {
			e.Uint32(0)
		}
	case uint8:
		e.Uint8(val)
	case uint16:
		e.Uint16(val)
	case uint32:
		e.Uint32(val)
	case uint64:
		e.Uint64(val)
	case int16:
		e.Uint16(uint16(val))
	case int32:
		e.Uint32(uint32(val))
	case int64:
		e.Uint64(uint64(val))
	case float64:
		e.Uint64(math.Float64bits(val))
	case string:
		e.String(val)
	case Signature:
		e.Signature(string(val))
	case ObjectPath:
		e.String(string(val))
	default:
		return fmt.Errorf("dbus: unsupported atom payload %T", val)
	}
	return nil
}

// encodeVariant writes a self-describing VARIANT: its signature,
// then its value.
func encodeVariant(e *fragments.Encoder, v Variant) error {
	sig, err := NewSignature(v.Type)
	if err != nil {
		return err
	}
	e.Signature(string(sig))
	return encodeValue(e, v.Type, v.Value)
}

func decodeVariant(d *fragments.Decoder) (Variant, error) {
	sigStr, err := d.Signature()
	if err != nil {
		return Variant{}, err
	}
	sig, err := ParseSignature(sigStr)
	if err != nil {
		return Variant{}, err
	}
	types, err := sig.Types()
	if err != nil {
		return Variant{}, err
	}
	if len(types) != 1 {
		return Variant{}, fmt.Errorf("dbus: variant signature %q is not exactly one type", sigStr)
	}
	val, err := decodeValue(d, types[0])
	if err != nil {
		return Variant{}, err
	}
	return Variant{Type: types[0], Value: val}, nil
}

func decodeValue(d *fragments.Decoder, t Type) (Value, error) {
	switch {
	case t.IsVariant():
		v, err := decodeVariant(d)
		if err != nil {
			return Value{}, err
		}
		return NewVariant(v), nil
	case t.IsArray():
		if t.Elem().Equal(Word8) {
			b, err := d.Bytes()
			if err != nil {
				return Value{}, err
			}
			return NewBytes(b), nil
		}
		containsStructs := t.Elem().IsStructure() || t.Elem().IsDictionary()
		var elems []Value
		_, err := d.Array(containsStructs, func(int) error {
			decodeOne := func() error {
				v, err := decodeValue(d, t.Elem())
				if err != nil {
					return err
				}
				elems = append(elems, v)
				return nil
			}
			if containsStructs {
				return d.Struct(decodeOne)
			}
			return decodeOne()
		})
		if err != nil {
			return Value{}, err
		}
		return NewVector(t.Elem(), elems), nil
	case t.IsDictionary():
		entries := map[Atom]Value{}
		_, err := d.Array(true, func(int) error {
			return d.Struct(func() error {
				kv, err := decodeValue(d, t.Key())
				if err != nil {
					return err
				}
				k, ok := kv.AsAtom()
				if !ok {
					return fmt.Errorf("dbus: dictionary key decoded to non-atomic value")
				}
				vv, err := decodeValue(d, t.Elem())
				if err != nil {
					return err
				}
				entries[k] = vv
				return nil
			})
		})
		if err != nil {
			return Value{}, err
		}
		return NewMap(t.Key(), t.Elem(), entries), nil
	case t.IsStructure():
		fieldTypes := t.Fields()
		elems := make([]Value, len(fieldTypes))
		err := d.Struct(func() error {
			for i, ft := range fieldTypes {
				v, err := decodeValue(d, ft)
				if err != nil {
					return err
				}
				elems[i] = v
			}
			return nil
		})
		if err != nil {
			return Value{}, err
		}
		return NewStructure(elems...), nil
	default:
		return decodeAtom(d, t)
	}
}

func decodeAtom(d *fragments.Decoder, t Type) (Value, error) {
	switch t.kind {
	case kindBoolean:
		u, err := d.Uint32()
		if err != nil {
			return Value{}, err
		}
		return NewAtom(AtomBool(u != 0)), nil
	case kindWord8:
		u, err := d.Uint8()
		if err != nil {
			return Value{}, err
		}
		return NewAtom(AtomWord8(u)), nil
	case kindWord16:
		u, err := d.Uint16()
		if err != nil {
			return Value{}, err
		}
		return NewAtom(AtomWord16(u)), nil
	case kindWord32:
		u, err := d.Uint32()
		if err != nil {
			return Value{}, err
		}
		return NewAtom(AtomWord32(u)), nil
	case kindWord64:
		u, err := d.Uint64()
		if err != nil {
			return Value{}, err
		}
		return NewAtom(AtomWord64(u)), nil
	case kindInt16:
		u, err := d.Uint16()
		if err != nil {
			return Value{}, err
		}
		return NewAtom(AtomInt16(int16(u))), nil
	case kindInt32:
		u, err := d.Uint32()
		if err != nil {
			return Value{}, err
		}
		return NewAtom(AtomInt32(int32(u))), nil
	case kindInt64:
		u, err := d.Uint64()
		if err != nil {
			return Value{}, err
		}
		return NewAtom(AtomInt64(int64(u))), nil
	case kindDouble:
		u, err := d.Uint64()
		if err != nil {
			return Value{}, err
		}
		return NewAtom(AtomDouble(math.Float64frombits(u))), nil
	case kindString:
		s, err := d.String()
		if err != nil {
			return Value{}, err
		}
		return NewAtom(AtomText(s)), nil
	case kindSignature:
		s, err := d.Signature()
		if err != nil {
			return Value{}, err
		}
		sig, err := ParseSignature(s)
		if err != nil {
			return Value{}, err
		}
		return NewAtom(AtomSignature(sig)), nil
	case kindObjectPath:
		s, err := d.String()
		if err != nil {
			return Value{}, err
		}
		return NewAtom(AtomObjectPath(ObjectPath(s))), nil
	default:
		return Value{}, fmt.Errorf("dbus: type %s has no atomic wire encoding", t)
	}
}

// sortedAtoms returns the keys of m in a deterministic order, so
// encoding the same map twice produces the same bytes.
func sortedAtoms(m map[Atom]Value) []Atom {
	keys := make([]Atom, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j].Compare(keys[j-1]) < 0; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
