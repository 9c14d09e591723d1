package trap

import (
	"fmt"
	"strings"
)

// Frame is one entry of a trap backtrace: a landing or faulting program
// counter and the guest entry point of the call that owned it.
type Frame struct {
	PC    uintptr
	Entry uintptr
}

// Trap is the error returned when guest execution traps.
type Trap struct {
	Cause error
	// Backtrace lists the faulting pc first (when known), then the landing
	// pc of every unwind target that was live, innermost first.
	Backtrace []Frame
	PC        uintptr
	// Addr is the faulting data address for access violations.
	Addr uintptr
	Kind Kind
}

// New creates a trap of the given kind without machine state.
func New(kind Kind) *Trap {
	return &Trap{Kind: kind}
}

func (t *Trap) Error() string {
	var b strings.Builder
	b.WriteString("wasm trap: ")
	b.WriteString(t.Kind.String())
	if t.PC != 0 {
		fmt.Fprintf(&b, " at pc %#x", t.PC)
	}
	if t.Addr != 0 {
		fmt.Fprintf(&b, " (address %#x)", t.Addr)
	}
	if t.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(t.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap returns the underlying error, if any.
func (t *Trap) Unwrap() error {
	return t.Cause
}

// Is matches a Kind sentinel or another Trap of the same kind.
func (t *Trap) Is(target error) bool {
	switch v := target.(type) {
	case Kind:
		return t.Kind == v
	case *Trap:
		return t.Kind == v.Kind
	}
	return false
}

// FormatBacktrace renders the backtrace one frame per line.
func (t *Trap) FormatBacktrace() string {
	if len(t.Backtrace) == 0 {
		return ""
	}
	var b strings.Builder
	for i, f := range t.Backtrace {
		fmt.Fprintf(&b, "  #%d pc=%#x", i, f.PC)
		if f.Entry != 0 {
			fmt.Fprintf(&b, " entry=%#x", f.Entry)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
