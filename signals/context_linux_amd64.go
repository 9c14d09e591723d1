package signals

import (
	"github.com/wippyai/wasm-sandbox/fault"
)

// General purpose register indices in mcontext_t.gregs.
const (
	regR15 = 7
	regRBP = 10
	regRAX = 13
	regRSP = 15
	regRIP = 16
)

// ucontext mirrors the kernel ucontext_t up to the general registers.
type ucontext struct {
	flags uint64
	link  uintptr
	stack struct {
		sp    uintptr
		flags int32
		_     int32
		size  uintptr
	}
	gregs [23]uint64
}

// capture reads the fault state. Fuel lives in R15 while guest code runs.
//
//go:nosplit
func capture(uc *ucontext) fault.Context {
	return fault.Context{
		PC:   uintptr(uc.gregs[regRIP]),
		SP:   uintptr(uc.gregs[regRSP]),
		FP:   uintptr(uc.gregs[regRBP]),
		Fuel: int64(uc.gregs[regR15]),
	}
}

// land rewrites the context so that sigreturn resumes at the landing pad
// with RAX set to flag the trap.
//
//go:nosplit
func land(uc *ucontext, l fault.Landing) {
	uc.gregs[regRIP] = uint64(l.PC)
	uc.gregs[regRSP] = uint64(l.SP)
	uc.gregs[regRBP] = uint64(l.FP)
	uc.gregs[regRAX] = 1
}
