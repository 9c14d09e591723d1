package signals

import "github.com/wippyai/wasm-sandbox/fault"

func setState(uc *ucontext, pc, sp, fp uintptr, fuel int64) {
	uc.gregs[regRIP] = uint64(pc)
	uc.gregs[regRSP] = uint64(sp)
	uc.gregs[regRBP] = uint64(fp)
	uc.gregs[regR15] = uint64(fuel)
}

func landedAt(uc *ucontext) (fault.Landing, uint64) {
	return fault.Landing{
		PC: uintptr(uc.gregs[regRIP]),
		SP: uintptr(uc.gregs[regRSP]),
		FP: uintptr(uc.gregs[regRBP]),
	}, uc.gregs[regRAX]
}

// archLanding drops the fields amd64 does not restore.
func archLanding(l fault.Landing) fault.Landing {
	l.LR, l.G = 0, 0
	return l
}
