package dbus

import (
	"strings"
	"testing"
)

func TestTypeShow(t *testing.T) {
	tests := []struct {
		name string
		in   Type
		want string
	}{
		{"bool", Boolean, "Bool"},
		{"array", ArrayOf(Word8), "[Word8]"},
		{"nested dict", DictionaryOf(Word8, DictionaryOf(Word8, Word8)), "Map Word8 (Map Word8 Word8)"},
		{"structure", StructureOf(Word8, Word16), "(Word8, Word16)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewSignature(t *testing.T) {
	tests := []struct {
		name    string
		types   []Type
		want    string
		wantErr bool
	}{
		{"empty", nil, "", false},
		{"one atom", []Type{Word8}, "y", false},
		{"array", []Type{ArrayOf(Word8)}, "ay", false},
		{"dict", []Type{DictionaryOf(Word8, Boolean)}, "a{yb}", false},
		{"structure", []Type{StructureOf(Word8, Word16)}, "(yq)", false},
		{"254 fields fits", repeatType(Word8, 254), strings.Repeat("y", 254), false},
		{"255 fields fits", repeatType(Word8, 255), strings.Repeat("y", 255), false},
		{"256 fields exceeds limit", repeatType(Word8, 256), "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewSignature(tc.types...)
			if (err != nil) != tc.wantErr {
				t.Fatalf("NewSignature(%v) error = %v, wantErr %v", tc.types, err, tc.wantErr)
			}
			if err == nil && string(got) != tc.want {
				t.Errorf("NewSignature(%v) = %q, want %q", tc.types, got, tc.want)
			}
		})
	}
}

func repeatType(t Type, n int) []Type {
	out := make([]Type, n)
	for i := range out {
		out[i] = t
	}
	return out
}

func TestParseSignature(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"", false},
		{"y", false},
		{"b", false},
		{"ay", false},
		{"a{yb}", false},
		{"(yq)", false},
		{"a{vy}", true},
		{"v", false},
		{strings.Repeat("y", 254), false},
		{strings.Repeat("y", 255), false},

		{"r", true},
		{"()", true},
		{"e", true},
		{"h", true},
		{strings.Repeat("y", 256), true},
		{"(", true},
		{"a", true},
		{"a{y}", true},
		{"a{yy", true},
		{"z", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			sig, err := ParseSignature(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseSignature(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if err == nil && string(sig) != tc.in {
				t.Errorf("ParseSignature(%q) = %q, want %q", tc.in, sig, tc.in)
			}
			if testing.Verbose() {
				t.Logf("ParseSignature(%q) = %q, %v", tc.in, sig, err)
			}
		})
	}
}

func TestSignatureTypesRoundTrip(t *testing.T) {
	tests := []Type{
		Boolean,
		Word8,
		ArrayOf(Word32),
		DictionaryOf(String, VariantType),
		StructureOf(Word8, ArrayOf(Word16), DictionaryOf(ObjectPathType, Double)),
	}
	for _, want := range tests {
		t.Run(want.String(), func(t *testing.T) {
			sig, err := NewSignature(want)
			if err != nil {
				t.Fatalf("NewSignature: %v", err)
			}
			got, err := sig.Types()
			if err != nil {
				t.Fatalf("Types(): %v", err)
			}
			if len(got) != 1 || !got[0].Equal(want) {
				t.Errorf("round trip = %v, want [%v]", got, want)
			}
		})
	}
}

func TestDictionaryKeyMustBeAtomic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("DictionaryOf with non-atomic key did not panic")
		}
	}()
	DictionaryOf(ArrayOf(Word8), Word8)
}

func TestStructureOfEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("StructureOf() did not panic")
		}
	}()
	StructureOf()
}
