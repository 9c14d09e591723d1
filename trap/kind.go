package trap

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies why guest execution trapped.
//
// Built-in kinds are small values; user traps carry a 16-bit payload and
// live in a disjoint range starting at userBase.
type Kind uint32

const (
	invalidKind = Kind(iota)

	StackOverflow
	HeapOutOfBounds
	TableOutOfBounds
	HeapMisaligned
	IndirectCallToNull
	BadSignature
	IntegerOverflow
	IntegerDivisionByZero
	BadConversionToInteger
	UnreachableCodeReached
	NullReference
	AllocationTooLarge
	Interrupt

	numBuiltin
)

const userBase Kind = 1 << 16

const userPrefix = "user trap "

var kindNames = [numBuiltin]string{
	invalidKind:            "",
	StackOverflow:          "stack overflow",
	HeapOutOfBounds:        "out of bounds memory access",
	TableOutOfBounds:       "invalid table access",
	HeapMisaligned:         "unaligned atomic",
	IndirectCallToNull:     "indirect call to null",
	BadSignature:           "indirect call type mismatch",
	IntegerOverflow:        "integer overflow",
	IntegerDivisionByZero:  "integer divide by zero",
	BadConversionToInteger: "invalid conversion to integer",
	UnreachableCodeReached: "unreachable",
	NullReference:          "null reference",
	AllocationTooLarge:     "allocation size too large",
	Interrupt:              "interrupt",
}

// User returns the kind of a trap raised by guest code with the given payload.
func User(payload uint16) Kind {
	return userBase | Kind(payload)
}

// Builtin returns every built-in kind in declaration order.
func Builtin() []Kind {
	kinds := make([]Kind, 0, numBuiltin-1)
	for k := StackOverflow; k < numBuiltin; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// IsUser reports whether k was raised by guest code.
func (k Kind) IsUser() bool {
	return k&^0xffff == userBase
}

// Payload returns the payload of a user trap, or 0 for built-in kinds.
func (k Kind) Payload() uint16 {
	if !k.IsUser() {
		return 0
	}
	return uint16(k)
}

// Valid reports whether k is a built-in kind or a user trap.
//
//go:nosplit
func (k Kind) Valid() bool {
	return (k > invalidKind && k < numBuiltin) || k&^0xffff == userBase
}

func (k Kind) String() string {
	switch {
	case k > invalidKind && k < numBuiltin:
		return kindNames[k]
	case k.IsUser():
		return userPrefix + strconv.Itoa(int(k.Payload()))
	default:
		return fmt.Sprintf("unknown trap %d", uint32(k))
	}
}

// Error makes a Kind usable as a sentinel with errors.Is.
func (k Kind) Error() string {
	return "trap: " + k.String()
}

// ParseKind converts the textual form produced by String back into a Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, userPrefix); ok {
		n, err := strconv.ParseUint(rest, 10, 16)
		if err != nil {
			return invalidKind, fmt.Errorf("invalid user trap payload %q: %w", rest, err)
		}
		return User(uint16(n)), nil
	}
	for k := StackOverflow; k < numBuiltin; k++ {
		if kindNames[k] == s {
			return k, nil
		}
	}
	return invalidKind, fmt.Errorf("unknown trap kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid trap kind %d", uint32(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
