//go:build linux && (amd64 || arm64)

package engine

import (
	"fmt"
	"runtime"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/execution"
	"github.com/wippyai/wasm-sandbox/signals"
	"github.com/wippyai/wasm-sandbox/stack"
	"github.com/wippyai/wasm-sandbox/trap"
)

const nativeSupported = true

// Offsets of execution.Target fields written by callNative.
const (
	targetSP = 16
	targetFP = 24
	targetLR = 32
	targetG  = 40
)

// callNative switches to stackTop and calls entry(vmctx, args) with fuel in
// the fuel register. It stores the Go stack state into target first, so a
// fault handler can resume at nativeLanding, which then returns trapped=1
// from this frame.
func callNative(entry, stackTop, vmctx, args uintptr, fuel int64, target *execution.Target) (trapped uint64, fuelLeft int64)

// nativeLanding is never called directly. Fault handlers resume at its
// first instruction with the stack state callNative recorded.
func nativeLanding(entry, stackTop, vmctx, args uintptr, fuel int64, target *execution.Target) (trapped uint64, fuelLeft int64)

func addrOfNativeLanding() uintptr

//go:linkname entersyscall runtime.entersyscall
func entersyscall()

//go:linkname exitsyscall runtime.exitsyscall
func exitsyscall()

// runNative runs guest code with the goroutine in the syscall state. The P
// is released to the scheduler, so other goroutines (including the ones
// that deliver interrupts) and stop-the-world phases proceed while guest
// code spins. Nothing between entersyscall and exitsyscall may grow the
// stack, and both must be called from the same frame.
//
//go:nosplit
func runNative(entry, stackTop, vmctx, args uintptr, fuel int64, target *execution.Target) (uint64, int64) {
	entersyscall()
	trapped, left := callNative(entry, stackTop, vmctx, args, fuel, target)
	exitsyscall()
	return trapped, left
}

var nativeLandingPC = addrOfNativeLanding()

func landingPC() uintptr {
	return nativeLandingPC
}

func (e *Engine) invokeNative(c *Caller, fn NativeFunc, args []uint64) error {
	if !signals.Installed() {
		return errors.NotInitialized(errors.PhaseCall, "fault handlers")
	}
	if fn.Entry == 0 {
		return errors.InvalidInput(errors.PhaseCall, "native function has no entry point")
	}
	if e.regions.Find(fn.Entry) == nil {
		return errors.NotFound(errors.PhaseCall, "code region", fmt.Sprintf("%#x", fn.Entry))
	}

	mem := c.opts.stack
	if mem == nil {
		m, err := e.stacks.Get()
		if err != nil {
			return err
		}
		defer m.Close()
		mem = m
	} else if err := stack.Validate(mem); err != nil {
		return err
	}
	if g := mem.GuardRange(); !g.Empty() {
		if err := c.rec.PushGuard(execution.Guard{Range: g, Kind: trap.StackOverflow}); err != nil {
			return err
		}
	}

	var argp uintptr
	if len(args) > 0 {
		argp = uintptr(unsafe.Pointer(&args[0]))
	}
	fuel := c.rec.Fuel()
	trapped, left := runNative(fn.Entry, mem.Top(), fn.VMContext, argp, fuel, c.rec.Top())
	runtime.KeepAlive(args)

	if trapped == 0 {
		if fuel != execution.UnlimitedFuel {
			c.rec.SetFuel(left)
		}
		return nil
	}

	t, ok := c.rec.TakePending()
	if !ok {
		return errors.New(errors.PhaseCall, errors.KindSystem).
			Detail("native call landed without a pending trap").
			Build()
	}
	t.Backtrace = append([]trap.Frame{{PC: t.PC, Entry: fn.Entry}}, c.rec.Backtrace()...)
	e.log.Debug("hardware trap",
		zap.Stringer("kind", t.Kind),
		zap.Uintptr("pc", t.PC),
		zap.Uintptr("addr", t.Addr),
		zap.Stringer("function", fn))
	return t
}
