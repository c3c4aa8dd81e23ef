package dbus

// A Variant is a value of any valid DBus type, paired with the type
// it carries so the type is recoverable at runtime without
// inspecting any host-level type tag.
//
// Variant corresponds to the DBus "variant" basic type, used in
// message bodies and signal arguments whose concrete type is only
// known at runtime.
type Variant struct {
	Type  Type
	Value Value
}

// NewVariantOf pairs v with its own TypeOf, the common case when the
// type isn't already known separately.
func NewVariantOf(v Value) Variant {
	return Variant{Type: v.TypeOf(), Value: v}
}
