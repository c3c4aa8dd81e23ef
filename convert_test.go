package dbus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestToVariantFromVariantAtoms(t *testing.T) {
	if got, ok := FromVariant[bool](ToVariant(true)); !ok || got != true {
		t.Errorf("bool round trip: got %v, %v", got, ok)
	}
	if got, ok := FromVariant[uint32](ToVariant(uint32(7))); !ok || got != 7 {
		t.Errorf("uint32 round trip: got %v, %v", got, ok)
	}
	if got, ok := FromVariant[string](ToVariant("hello")); !ok || got != "hello" {
		t.Errorf("string round trip: got %v, %v", got, ok)
	}
	if got, ok := FromVariant[ObjectPath](ToVariant(ObjectPath("/a/b"))); !ok || got != "/a/b" {
		t.Errorf("ObjectPath round trip: got %v, %v", got, ok)
	}
	if got, ok := FromVariant[float64](ToVariant(3.5)); !ok || got != 3.5 {
		t.Errorf("float64 round trip: got %v, %v", got, ok)
	}
}

func TestToVariantFromVariantSlice(t *testing.T) {
	in := []uint16{1, 2, 3}
	got, ok := FromVariant[[]uint16](ToVariant(in))
	if !ok || len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("[]uint16 round trip: got %v, %v", got, ok)
	}

	b := []byte{0xde, 0xad}
	gotB, ok := FromVariant[[]byte](ToVariant(b))
	if !ok || string(gotB) != string(b) {
		t.Errorf("[]byte round trip: got %v, %v", gotB, ok)
	}
}

func TestToVariantFromVariantMap(t *testing.T) {
	in := map[string]uint32{"a": 1, "b": 2}
	got, ok := FromVariant[map[string]uint32](ToVariant(in))
	if !ok {
		t.Fatalf("map round trip failed")
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("map round trip mismatch (-want +got):\n%s", diff)
	}
}

type pair struct {
	A uint8
	B string
}

func TestToVariantFromVariantStruct(t *testing.T) {
	in := pair{A: 9, B: "x"}
	got, ok := FromVariant[pair](ToVariant(in))
	if !ok || got != in {
		t.Errorf("struct round trip: got %+v, %v", got, ok)
	}
}

func TestToVariantFromVariantSliceOfStructs(t *testing.T) {
	in := []pair{{A: 1, B: "x"}, {A: 2, B: "y"}}
	got, ok := FromVariant[[]pair](ToVariant(in))
	if !ok {
		t.Fatalf("slice-of-structs round trip failed")
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("slice-of-structs round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFromVariantTypeMismatchReturnsFalse(t *testing.T) {
	v := ToVariant(uint32(1))
	if _, ok := FromVariant[string](v); ok {
		t.Error("FromVariant[string] on a Word32 Variant succeeded, want false")
	}
	if _, ok := FromVariant[bool](v); ok {
		t.Error("FromVariant[bool] on a Word32 Variant succeeded, want false")
	}
}

func TestToVariantNonAtomicMapKeyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("ToVariant with an array-keyed map did not panic")
		}
	}()
	ToVariant(map[[2]uint8]uint8{{1, 2}: 3})
}

func TestToVariantNilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("ToVariant(nil) did not panic")
		}
	}()
	ToVariant(nil)
}

type boxed struct {
	V any
}

func TestToVariantInterfaceDynamicRoundTrip(t *testing.T) {
	v := ToVariant(boxed{V: uint16(42)})
	got, ok := FromVariant[boxed](v)
	if !ok {
		t.Fatal("FromVariant[boxed] failed")
	}
	u, ok := got.V.(uint16)
	if !ok || u != 42 {
		t.Errorf("got %#v, want uint16(42)", got.V)
	}
}
