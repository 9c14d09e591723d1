package engine

import (
	"fmt"
	"reflect"

	"github.com/wippyai/wasm-sandbox/errors"
)

// Function is something a call boundary can run: native guest code,
// a Go function, or a wazero export.
type Function interface {
	fmt.Stringer

	entry() uintptr
	landing() uintptr
	invoke(c *Caller, stack []uint64) error
}

// NativeFunc is compiled guest code published with Engine.Publish.
//
// The code is entered with the platform C calling convention: the first
// argument register holds VMContext and the second a pointer to the value
// stack. Fuel is kept in R15 on amd64 and X21 on arm64 and must be
// decremented by the guest. On arm64 the guest must also preserve X28.
type NativeFunc struct {
	Name      string
	Entry     uintptr
	VMContext uintptr
}

func (f NativeFunc) String() string {
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("native@%#x", f.Entry)
}

func (f NativeFunc) entry() uintptr   { return f.Entry }
func (f NativeFunc) landing() uintptr { return landingPC() }

func (f NativeFunc) invoke(c *Caller, stack []uint64) error {
	return c.engine.invokeNative(c, f, stack)
}

// GoFunc is a guest function implemented in Go. It traps with
// Caller.Trap and may call further guest functions through Caller.Call.
type GoFunc func(c *Caller, stack []uint64) error

func (f GoFunc) String() string {
	return fmt.Sprintf("go@%#x", f.entry())
}

func (f GoFunc) entry() uintptr {
	if f == nil {
		return 0
	}
	return reflect.ValueOf(f).Pointer()
}

func (f GoFunc) landing() uintptr { return 0 }

func (f GoFunc) invoke(c *Caller, stack []uint64) error {
	if f == nil {
		return errors.InvalidInput(errors.PhaseCall, "nil GoFunc")
	}
	return f(c, stack)
}
