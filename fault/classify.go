package fault

import (
	"github.com/wippyai/wasm-sandbox/coderegion"
	"github.com/wippyai/wasm-sandbox/trap"
)

// Classify decides what to do with a fault delivered to a thread.
//
// rec is nil when the thread has no active guest call. Classify does not
// allocate, lock, or call anything that may grow the stack.
//
//go:nosplit
func Classify(rec Record, regions *coderegion.Registry, ctx Context) Disposition {
	if rec == nil || regions == nil {
		return Disposition{Action: NotWasm}
	}
	if ctx.Signal == SignalInterrupt {
		return classifyInterrupt(rec, regions, ctx)
	}

	if rec.HandleFault(ctx) {
		return Disposition{Action: HandledByEmbedder}
	}

	region := regions.Find(ctx.PC)
	if region == nil {
		return Disposition{Action: NotWasm}
	}

	var (
		kind trap.Kind
		ok   bool
	)
	if ctx.Signal.IsAccess() {
		kind, ok = rec.GuardKind(ctx.Addr)
	}
	if !ok {
		kind, ok = region.TrapAt(ctx.PC)
	}
	if !ok {
		return Disposition{Action: Fatal, Reason: ReasonNoTrapSite}
	}
	return land(rec, kind)
}

//go:nosplit
func classifyInterrupt(rec Record, regions *coderegion.Registry, ctx Context) Disposition {
	if regions.Find(ctx.PC) == nil {
		return Disposition{Action: NotWasm}
	}
	if !rec.ObserveFuel(ctx.Fuel) {
		return Disposition{Action: Continue}
	}
	return land(rec, trap.Interrupt)
}

//go:nosplit
func land(rec Record, kind trap.Kind) Disposition {
	l, ok := rec.Landing()
	if !ok || l.PC == 0 || l.SP == 0 {
		return Disposition{Action: Fatal, Reason: ReasonNoLanding}
	}
	return Disposition{Action: Trap, Kind: kind, Landing: l}
}
