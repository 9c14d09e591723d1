package signals

import "github.com/wippyai/wasm-sandbox/fault"

func setState(uc *ucontext, pc, sp, fp uintptr, fuel int64) {
	uc.mcontext.pc = uint64(pc)
	uc.mcontext.sp = uint64(sp)
	uc.mcontext.regs[regFP] = uint64(fp)
	uc.mcontext.regs[regFuel] = uint64(fuel)
}

func landedAt(uc *ucontext) (fault.Landing, uint64) {
	return fault.Landing{
		PC: uintptr(uc.mcontext.pc),
		SP: uintptr(uc.mcontext.sp),
		FP: uintptr(uc.mcontext.regs[regFP]),
		LR: uintptr(uc.mcontext.regs[regLR]),
		G:  uintptr(uc.mcontext.regs[regG]),
	}, uc.mcontext.regs[regR0]
}

func archLanding(l fault.Landing) fault.Landing {
	return l
}
