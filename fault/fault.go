package fault

import (
	"github.com/wippyai/wasm-sandbox/trap"
)

// Signal is the kind of hardware notification that produced a fault.
type Signal uint8

const (
	SignalNone Signal = iota
	// SignalSegv is an access to unmapped or protected memory.
	SignalSegv
	// SignalBus is a misaligned or truncated mapping access.
	SignalBus
	SignalIll
	SignalFpe
	SignalTrap
	// SignalInterrupt is the out-of-band preemption signal.
	SignalInterrupt
)

var signalNames = [...]string{
	SignalNone:      "none",
	SignalSegv:      "SIGSEGV",
	SignalBus:       "SIGBUS",
	SignalIll:       "SIGILL",
	SignalFpe:       "SIGFPE",
	SignalTrap:      "SIGTRAP",
	SignalInterrupt: "interrupt",
}

func (s Signal) String() string {
	if int(s) < len(signalNames) {
		return signalNames[s]
	}
	return "unknown"
}

// IsAccess reports whether the signal carries a faulting data address.
//
//go:nosplit
func (s Signal) IsAccess() bool {
	return s == SignalSegv || s == SignalBus
}

// Context is the machine state captured when a fault is delivered.
type Context struct {
	PC uintptr
	SP uintptr
	FP uintptr
	// Addr is the faulting data address for access violations.
	Addr uintptr
	// Fuel is the value of the reserved fuel register.
	Fuel   int64
	Signal Signal
}

// Landing is where execution continues after a trap: the state recorded by
// the innermost guest call boundary. LR and G are only meaningful on
// architectures that keep the return address and goroutine in registers.
type Landing struct {
	PC uintptr
	SP uintptr
	FP uintptr
	LR uintptr
	G  uintptr
}

// Action is the outcome of classifying a fault.
type Action uint8

const (
	// NotWasm means the fault does not belong to guest code and must be
	// forwarded to the previously installed handler.
	NotWasm Action = iota
	// HandledByEmbedder means an embedder handler repaired the fault;
	// execution resumes at the faulting instruction.
	HandledByEmbedder
	// Continue means the signal was consumed without a control transfer.
	Continue
	// Trap means control must transfer to the landing point.
	Trap
	// Fatal means fault handling state is unusable and the process must end.
	Fatal
)

func (a Action) String() string {
	switch a {
	case NotWasm:
		return "not-wasm"
	case HandledByEmbedder:
		return "handled-by-embedder"
	case Continue:
		return "continue"
	case Trap:
		return "trap"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// Fatal reasons.
const (
	ReasonNoTrapSite = "fault in guest code without a declared trap"
	ReasonNoLanding  = "fault in guest code with no live call boundary"
)

// Disposition is the result of Classify.
type Disposition struct {
	Reason  string
	Landing Landing
	Kind    trap.Kind
	Action  Action
}

// Handler is an embedder hook consulted before default classification.
// Handlers run inside a signal handler: implementations must not allocate,
// lock, or grow the stack, and should be marked go:nosplit. The context is
// passed by value so that nothing on the signal stack escapes.
type Handler interface {
	HandleFault(ctx Context) bool
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx Context) bool

//go:nosplit
func (f HandlerFunc) HandleFault(ctx Context) bool {
	return f(ctx)
}

// Record is the part of a thread's execution record the classifier needs.
// All methods must be safe to call from a signal handler.
type Record interface {
	// HandleFault consults the embedder handler chain, most recent first.
	HandleFault(ctx Context) bool
	// GuardKind reports the trap raised by touching addr, if addr lies in a
	// guard range of the current call.
	GuardKind(addr uintptr) (trap.Kind, bool)
	// Landing returns the innermost unwind target.
	Landing() (Landing, bool)
	// ObserveFuel stores the fuel sampled from the guest and reports
	// whether the call must be interrupted.
	ObserveFuel(fuel int64) bool
}
