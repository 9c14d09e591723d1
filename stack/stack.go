package stack

import (
	"fmt"
	"os"

	wasmsandbox "github.com/wippyai/wasm-sandbox"
	"github.com/wippyai/wasm-sandbox/errors"
)

const (
	// DefaultSize is the usable size of a stack when none is configured.
	DefaultSize = 1 << 20
	// DefaultGuardSize is the size of the inaccessible region below a stack.
	DefaultGuardSize = 64 << 10
	// MaxSize bounds the usable size of a single stack.
	MaxSize = 1 << 30
)

// Alignment of Top.
const Alignment = 16

// Memory is an owned region used as a native call stack. The stack grows
// down from Top towards Range().Start; GuardRange lies directly below and
// faults on access for the whole lifetime of the Memory.
type Memory interface {
	Top() uintptr
	Range() wasmsandbox.Range
	GuardRange() wasmsandbox.Range
	Close() error
}

// Creator allocates stacks. Embedders may supply their own to pool or
// pre-allocate memory.
type Creator interface {
	NewStack(size uintptr) (Memory, error)
}

// Resetter is implemented by memories that can be zeroed for reuse.
type Resetter interface {
	Reset() error
}

// PageSize returns the system page size.
func PageSize() uintptr {
	return uintptr(os.Getpagesize())
}

func roundUp(n, to uintptr) uintptr {
	return (n + to - 1) &^ (to - 1)
}

func validateSize(size uintptr) error {
	if size == 0 {
		return errors.InvalidInput(errors.PhaseStack, "stack size must be positive")
	}
	if size > MaxSize {
		return errors.New(errors.PhaseStack, errors.KindInvalidInput).
			Value(size).
			Detail("stack size exceeds maximum of %d bytes", MaxSize).
			Build()
	}
	return nil
}

// Validate checks the invariants every Memory must hold.
func Validate(m Memory) error {
	r, g := m.Range(), m.GuardRange()
	top := m.Top()
	switch {
	case r.Empty():
		return errors.InvalidInput(errors.PhaseStack, "stack range is empty")
	case top%Alignment != 0:
		return errors.InvalidInput(errors.PhaseStack, fmt.Sprintf("stack top %#x is not %d byte aligned", top, Alignment))
	case top <= r.Start || top > r.End:
		return errors.InvalidInput(errors.PhaseStack, fmt.Sprintf("stack top %#x outside [%#x, %#x)", top, r.Start, r.End))
	case g.Empty():
		return errors.InvalidInput(errors.PhaseStack, "stack has no guard range")
	case g.End != r.Start:
		return errors.InvalidInput(errors.PhaseStack, "guard range is not directly below the stack")
	}
	return nil
}
