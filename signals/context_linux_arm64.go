package signals

import (
	"github.com/wippyai/wasm-sandbox/fault"
)

const (
	regR0   = 0
	regFuel = 21 // X21 carries fuel while guest code runs
	regG    = 28
	regFP   = 29
	regLR   = 30
)

// ucontext mirrors the kernel ucontext_t up to sigcontext.
type ucontext struct {
	flags uint64
	link  uintptr
	stack struct {
		sp    uintptr
		flags int32
		_     int32
		size  uintptr
	}
	sigmask uint64
	_       [120]byte
	_       [8]byte // sigcontext is 16 byte aligned
	mcontext struct {
		faultAddr uint64
		regs      [31]uint64
		sp        uint64
		pc        uint64
		pstate    uint64
	}
}

//go:nosplit
func capture(uc *ucontext) fault.Context {
	return fault.Context{
		PC:   uintptr(uc.mcontext.pc),
		SP:   uintptr(uc.mcontext.sp),
		FP:   uintptr(uc.mcontext.regs[regFP]),
		Fuel: int64(uc.mcontext.regs[regFuel]),
	}
}

// land rewrites the context so that sigreturn resumes at the landing pad
// with the caller's link register and goroutine restored and R0 flagging
// the trap.
//
//go:nosplit
func land(uc *ucontext, l fault.Landing) {
	uc.mcontext.pc = uint64(l.PC)
	uc.mcontext.sp = uint64(l.SP)
	uc.mcontext.regs[regFP] = uint64(l.FP)
	uc.mcontext.regs[regLR] = uint64(l.LR)
	uc.mcontext.regs[regG] = uint64(l.G)
	uc.mcontext.regs[regR0] = 1
}
