package execution

import (
	"math"
	"sync/atomic"

	wasmsandbox "github.com/wippyai/wasm-sandbox"
	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/fault"
	"github.com/wippyai/wasm-sandbox/trap"
)

const (
	// MaxDepth bounds the number of nested guest calls on one thread.
	MaxDepth = 256
	// MaxHandlers bounds the embedder fault handler chain.
	MaxHandlers = 16
	// MaxGuards bounds the guard ranges live on one thread.
	MaxGuards = 16
)

// UnlimitedFuel disables fuel accounting for a call.
const UnlimitedFuel = math.MaxInt64

// Target is one unwind target: the landing point recorded when a guest call
// boundary was entered, and the entry point it called.
type Target struct {
	Entry uintptr
	PC    uintptr
	SP    uintptr
	FP    uintptr
	LR    uintptr
	G     uintptr
}

// Guard is an inaccessible range whose access raises Kind.
type Guard struct {
	Range wasmsandbox.Range
	Kind  trap.Kind
}

// Record is the per-thread bookkeeping of nested guest calls.
//
// A Record is owned by the thread it was acquired on. The signal handler of
// that thread reads it through Current while guest code runs; every other
// method is called from ordinary Go code on the owning thread, except
// RequestInterrupt and Generation which are safe from any goroutine.
type Record struct {
	targets  [MaxDepth]Target
	handlers [MaxHandlers]fault.Handler
	guards   [MaxGuards]Guard

	parent *Record

	fuel       int64
	generation uint64
	interrupt  uint64 // generation an interrupt was requested for

	pendingPC   uintptr
	pendingAddr uintptr
	pendingKind uint32
	hasPending  uint32

	depth     int32
	nhandlers int32
	nguards   int32
	tid       int32
	refs      int32
}

func newRecord() *Record {
	return &Record{generation: 1, fuel: UnlimitedFuel}
}

// reset prepares r for reuse. Handles captured for the old generation stop
// matching.
func (r *Record) reset() {
	clear(r.targets[:r.depth])
	clear(r.handlers[:r.nhandlers])
	clear(r.guards[:r.nguards])
	r.depth, r.nhandlers, r.nguards = 0, 0, 0
	r.parent = nil
	r.tid, r.refs = 0, 0
	r.pendingKind, r.pendingPC, r.pendingAddr = 0, 0, 0
	atomic.StoreUint32(&r.hasPending, 0)
	atomic.AddUint64(&r.generation, 1)
	atomic.StoreUint64(&r.interrupt, 0)
	atomic.StoreInt64(&r.fuel, UnlimitedFuel)
}

// Push records a new unwind target. Exceeding MaxDepth is reported as a
// stack overflow trap.
func (r *Record) Push(t Target) error {
	if r.depth >= MaxDepth {
		return trap.New(trap.StackOverflow)
	}
	r.targets[r.depth] = t
	r.depth++
	return nil
}

// Depth returns the number of live unwind targets.
//
//go:nosplit
func (r *Record) Depth() int {
	return int(r.depth)
}

// Restore pops unwind targets until depth remain.
func (r *Record) Restore(depth int) {
	if depth < 0 || depth > int(r.depth) {
		panic(errors.Misuse(errors.PhaseCall, "restoring unwind targets to a depth above the current one"))
	}
	clear(r.targets[depth:r.depth])
	r.depth = int32(depth)
}

// Top returns a pointer to the innermost unwind target, or nil.
//
//go:nosplit
func (r *Record) Top() *Target {
	if r.depth == 0 {
		return nil
	}
	return &r.targets[r.depth-1]
}

// Targets returns a copy of the live unwind targets, outermost first.
func (r *Record) Targets() []Target {
	out := make([]Target, r.depth)
	copy(out, r.targets[:r.depth])
	return out
}

// Backtrace returns the landing points of every live unwind target,
// innermost first, followed by those of parent records.
func (r *Record) Backtrace() []trap.Frame {
	var frames []trap.Frame
	for rec := r; rec != nil; rec = rec.parent {
		for i := int(rec.depth) - 1; i >= 0; i-- {
			t := rec.targets[i]
			frames = append(frames, trap.Frame{PC: t.PC, Entry: t.Entry})
		}
	}
	return frames
}

// Parent returns the record of the computation that started this one.
func (r *Record) Parent() *Record {
	return r.parent
}

// SetParent links r to the record of an enclosing computation, typically
// the resumer of a fiber.
func (r *Record) SetParent(p *Record) {
	for q := p; q != nil; q = q.parent {
		if q == r {
			panic(errors.Misuse(errors.PhaseCall, "execution record parent cycle"))
		}
	}
	r.parent = p
}

// PushHandler adds an embedder fault handler to the chain.
func (r *Record) PushHandler(h fault.Handler) error {
	if h == nil {
		return errors.InvalidInput(errors.PhaseCall, "nil fault handler")
	}
	if r.nhandlers >= MaxHandlers {
		return errors.OutOfBounds(errors.PhaseCall, []string{"fault handlers"}, int(r.nhandlers), MaxHandlers)
	}
	r.handlers[r.nhandlers] = h
	r.nhandlers++
	return nil
}

// Handlers returns the number of installed fault handlers.
func (r *Record) Handlers() int {
	return int(r.nhandlers)
}

// RestoreHandlers pops fault handlers until n remain.
func (r *Record) RestoreHandlers(n int) {
	if n < 0 || n > int(r.nhandlers) {
		panic(errors.Misuse(errors.PhaseCall, "restoring fault handlers above the current count"))
	}
	clear(r.handlers[n:r.nhandlers])
	r.nhandlers = int32(n)
}

// PushGuard registers a guard range for the current call.
func (r *Record) PushGuard(g Guard) error {
	if g.Range.Empty() {
		return errors.InvalidInput(errors.PhaseCall, "empty guard range")
	}
	if r.nguards >= MaxGuards {
		return errors.OutOfBounds(errors.PhaseCall, []string{"guards"}, int(r.nguards), MaxGuards)
	}
	r.guards[r.nguards] = g
	r.nguards++
	return nil
}

// Guards returns the number of live guard ranges.
func (r *Record) Guards() int {
	return int(r.nguards)
}

// RestoreGuards pops guards until n remain.
func (r *Record) RestoreGuards(n int) {
	if n < 0 || n > int(r.nguards) {
		panic(errors.Misuse(errors.PhaseCall, "restoring guards above the current count"))
	}
	clear(r.guards[n:r.nguards])
	r.nguards = int32(n)
}

// SetFuel sets the fuel available to the current call.
func (r *Record) SetFuel(n int64) {
	atomic.StoreInt64(&r.fuel, n)
}

// Fuel returns the fuel last observed for the current call.
//
//go:nosplit
func (r *Record) Fuel() int64 {
	return atomic.LoadInt64(&r.fuel)
}

// ConsumeFuel subtracts n and reports whether fuel remains.
func (r *Record) ConsumeFuel(n int64) bool {
	if atomic.LoadInt64(&r.fuel) == UnlimitedFuel {
		return true
	}
	return atomic.AddInt64(&r.fuel, -n) > 0
}

// Generation identifies the current lifetime of the record. It changes every
// time the record is released to the pool.
func (r *Record) Generation() uint64 {
	return atomic.LoadUint64(&r.generation)
}

// RequestInterrupt asks the record's thread to stop guest execution. It is
// ignored when gen no longer matches the record's generation. The request
// stays set until ClearInterrupt or the outermost Release, so every guest
// call made in the meantime traps.
func (r *Record) RequestInterrupt(gen uint64) bool {
	if atomic.LoadUint64(&r.generation) != gen {
		return false
	}
	atomic.StoreUint64(&r.interrupt, gen)
	// the record may have been recycled between the two operations
	if atomic.LoadUint64(&r.generation) != gen {
		atomic.CompareAndSwapUint64(&r.interrupt, gen, 0)
		return false
	}
	return true
}

// InterruptRequested reports whether an interrupt is pending.
//
//go:nosplit
func (r *Record) InterruptRequested() bool {
	v := atomic.LoadUint64(&r.interrupt)
	return v != 0 && v == atomic.LoadUint64(&r.generation)
}

// ClearInterrupt drops a pending interrupt request after the trap it caused
// was handled.
func (r *Record) ClearInterrupt() {
	atomic.StoreUint64(&r.interrupt, 0)
}

// SetPending stores the trap a signal handler is about to deliver.
//
//go:nosplit
func (r *Record) SetPending(kind trap.Kind, pc, addr uintptr) {
	r.pendingKind = uint32(kind)
	r.pendingPC = pc
	r.pendingAddr = addr
	atomic.StoreUint32(&r.hasPending, 1)
}

// TakePending returns and clears the trap stored by SetPending.
func (r *Record) TakePending() (*trap.Trap, bool) {
	if !atomic.CompareAndSwapUint32(&r.hasPending, 1, 0) {
		return nil, false
	}
	return &trap.Trap{
		Kind: trap.Kind(r.pendingKind),
		PC:   r.pendingPC,
		Addr: r.pendingAddr,
	}, true
}

// Thread returns the kernel thread id the record is bound to, or 0 when the
// platform does not track threads.
func (r *Record) Thread() int32 {
	return r.tid
}

// HandleFault walks the embedder handler chain, most recent first.
//
//go:nosplit
func (r *Record) HandleFault(ctx fault.Context) bool {
	for i := r.nhandlers - 1; i >= 0; i-- {
		if h := r.handlers[i]; h != nil && h.HandleFault(ctx) {
			return true
		}
	}
	return false
}

// GuardKind reports the trap for an access to addr.
//
//go:nosplit
func (r *Record) GuardKind(addr uintptr) (trap.Kind, bool) {
	for i := r.nguards - 1; i >= 0; i-- {
		if r.guards[i].Range.Contains(addr) {
			return r.guards[i].Kind, true
		}
	}
	return 0, false
}

// Landing returns the innermost unwind target as a landing point.
//
//go:nosplit
func (r *Record) Landing() (fault.Landing, bool) {
	t := r.Top()
	if t == nil {
		return fault.Landing{}, false
	}
	return fault.Landing{PC: t.PC, SP: t.SP, FP: t.FP, LR: t.LR, G: t.G}, true
}

// ObserveFuel stores fuel sampled from guest registers and reports whether
// the current call must stop.
//
//go:nosplit
func (r *Record) ObserveFuel(fuel int64) bool {
	atomic.StoreInt64(&r.fuel, fuel)
	return fuel <= 0 || r.InterruptRequested()
}
