package dbus

import "fmt"

// Signature is the compact byte encoding of a sequence of top-level
// DBus Types. A Signature's encoded length is guaranteed to be at
// most 255 octets; both NewSignature and ParseSignature enforce the
// bound and reject any shape whose encoding would exceed it.
//
// The zero value, "", is the empty signature (zero top-level
// types).
type Signature string

// atomCodes maps each atomic/variant Type kind to its one-byte
// signature code.
var atomCodes = map[typeKind]byte{
	kindBoolean:    'b',
	kindWord8:      'y',
	kindWord16:     'q',
	kindWord32:     'u',
	kindWord64:     't',
	kindInt16:      'n',
	kindInt32:      'i',
	kindInt64:      'x',
	kindDouble:     'd',
	kindString:     's',
	kindSignature:  'g',
	kindObjectPath: 'o',
	kindVariant:    'v',
}

var codeToAtom = func() map[byte]typeKind {
	m := make(map[byte]typeKind, len(atomCodes))
	for k, v := range atomCodes {
		m[v] = k
	}
	return m
}()

// SignatureFormatError reports that a byte string does not form a
// valid DBus signature.
type SignatureFormatError struct {
	// Input is the text that failed to parse.
	Input string
	// Reason explains why.
	Reason string
}

func (e SignatureFormatError) Error() string {
	return fmt.Sprintf("invalid dbus signature %q: %s", e.Input, e.Reason)
}

func sigErr(input, reason string, args ...any) error {
	return SignatureFormatError{Input: input, Reason: fmt.Sprintf(reason, args...)}
}

// appendType appends t's byte encoding to buf.
func appendType(buf []byte, t Type) []byte {
	switch t.kind {
	case kindArray:
		buf = append(buf, 'a')
		return appendType(buf, *t.elem)
	case kindDictionary:
		buf = append(buf, 'a', '{')
		buf = appendType(buf, *t.key)
		buf = appendType(buf, *t.elem)
		return append(buf, '}')
	case kindStructure:
		buf = append(buf, '(')
		for _, f := range t.fields {
			buf = appendType(buf, f)
		}
		return append(buf, ')')
	default:
		code, ok := atomCodes[t.kind]
		if !ok {
			panic(fmt.Sprintf("dbus: Type %s has no signature code", t))
		}
		return append(buf, code)
	}
}

// encodedLen returns the byte length of t's signature encoding,
// without materializing it: atoms cost 1 byte, Array(t) costs
// 1+len(t), Dictionary(k,v) costs 3+len(k)+len(v) for the enclosing
// "a{…}", and Structure(ts) costs 2+Σlen(ts) for the enclosing "(…)".
func encodedLen(t Type) int {
	switch t.kind {
	case kindArray:
		return 1 + encodedLen(*t.elem)
	case kindDictionary:
		return 3 + encodedLen(*t.key) + encodedLen(*t.elem)
	case kindStructure:
		n := 2
		for _, f := range t.fields {
			n += encodedLen(f)
		}
		return n
	default:
		return 1
	}
}

// maxSignatureLen is the wire limit on a signature's encoded byte
// length.
const maxSignatureLen = 255

// NewSignature builds a Signature from a sequence of top-level
// Types. It returns a SignatureFormatError if the encoded length
// would exceed 255 bytes.
func NewSignature(types ...Type) (Signature, error) {
	total := 0
	for _, t := range types {
		total += encodedLen(t)
	}
	if total > maxSignatureLen {
		return "", sigErr("", "encoded length %d exceeds %d byte limit", total, maxSignatureLen)
	}
	buf := make([]byte, 0, total)
	for _, t := range types {
		buf = appendType(buf, t)
	}
	return Signature(buf), nil
}

// MustSignature is NewSignature, panicking on error. Intended for
// signatures known to be valid at authoring time.
func MustSignature(types ...Type) Signature {
	sig, err := NewSignature(types...)
	if err != nil {
		panic(err)
	}
	return sig
}

// ParseSignature validates s as a DBus signature byte string and
// returns it as a Signature.
func ParseSignature(s string) (Signature, error) {
	if len(s) > maxSignatureLen {
		return "", sigErr(s, "length %d exceeds %d byte limit", len(s), maxSignatureLen)
	}
	if _, err := parseTypes(s); err != nil {
		return "", err
	}
	return Signature(s), nil
}

// Types parses sig into its sequence of top-level Types.
func (sig Signature) Types() ([]Type, error) {
	return parseTypes(string(sig))
}

// String returns the raw signature text.
func (sig Signature) String() string {
	return string(sig)
}

// sigParser is a recursive-descent parser over three productions:
// top-level (any type), array-tail (the element type following an
// "a"), and structure-body (one or more types terminated by ")").
type sigParser struct {
	s   string
	pos int
}

func parseTypes(s string) ([]Type, error) {
	if len(s) == 0 {
		return nil, nil
	}
	p := &sigParser{s: s}
	var types []Type
	for p.pos < len(p.s) {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func (p *sigParser) peek() (byte, bool) {
	if p.pos >= len(p.s) {
		return 0, false
	}
	return p.s[p.pos], true
}

// parseType parses exactly one Type starting at p.pos.
func (p *sigParser) parseType() (Type, error) {
	c, ok := p.peek()
	if !ok {
		return Type{}, sigErr(p.s, "unexpected end of signature")
	}
	p.pos++

	switch c {
	case 'a':
		return p.parseArrayTail()
	case '(':
		return p.parseStructureBody()
	case 'r', 'e':
		return Type{}, sigErr(p.s, "reserved type code %q cannot appear standalone", c)
	case 'h':
		return Type{}, sigErr(p.s, "file descriptor type is not supported")
	case ')', '{', '}':
		return Type{}, sigErr(p.s, "unexpected %q", c)
	default:
		if kind, ok := codeToAtom[c]; ok {
			return Type{kind: kind}, nil
		}
		return Type{}, sigErr(p.s, "unknown type code %q", c)
	}
}

// parseArrayTail parses the production following a consumed "a":
// either "{k v}", another array, a structure, "v", or an atom.
func (p *sigParser) parseArrayTail() (Type, error) {
	c, ok := p.peek()
	if !ok {
		return Type{}, sigErr(p.s, "array type code at end of signature")
	}
	if c != '{' {
		elem, err := p.parseType()
		if err != nil {
			return Type{}, err
		}
		return ArrayOf(elem), nil
	}

	// Dictionary: "a{" key value "}".
	p.pos++ // consume '{'
	key, err := p.parseType()
	if err != nil {
		return Type{}, err
	}
	if !key.IsAtomic() {
		return Type{}, sigErr(p.s, "dictionary key type %s is not atomic", key)
	}
	val, err := p.parseType()
	if err != nil {
		return Type{}, err
	}
	c, ok = p.peek()
	if !ok || c != '}' {
		return Type{}, sigErr(p.s, "dictionary type missing closing '}'")
	}
	p.pos++ // consume '}'
	return DictionaryOf(key, val), nil
}

// parseStructureBody parses the production following a consumed
// "(": one or more types terminated by ")".
func (p *sigParser) parseStructureBody() (Type, error) {
	var fields []Type
	for {
		c, ok := p.peek()
		if !ok {
			return Type{}, sigErr(p.s, "structure missing closing ')'")
		}
		if c == ')' {
			p.pos++
			if len(fields) == 0 {
				return Type{}, sigErr(p.s, "empty structure () is not representable")
			}
			return StructureOf(fields...), nil
		}
		f, err := p.parseType()
		if err != nil {
			return Type{}, err
		}
		fields = append(fields, f)
	}
}
