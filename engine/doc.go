// Package engine runs guest code and turns its faults into traps.
//
// An Engine owns a code-region registry, a pool of native stacks and,
// lazily, a wazero runtime. Every call made through it is a call boundary:
// it pushes one unwind target on the calling thread's execution record and
// pops it again on every return path.
//
// # Function Kinds
//
//	NativeFunc  - compiled code published with Engine.Publish
//	GoFunc      - guest functions written in Go
//	WazeroFunc  - exports of modules loaded with Engine.LoadWasm
//
// # Trap Flow
//
// Native code runs on a pooled stack with a guard region below it. When it
// faults, the process signal handler classifies the fault against the
// published trap sites and resumes the thread at the landing point recorded
// by the innermost call boundary. The boundary returns a *trap.Trap.
//
//	Call ──► callNative ──► guest code ──► SIGSEGV/SIGFPE/SIGILL
//	  ▲                                          │
//	  └──── nativeLanding ◄── handler rewrites ──┘
//	        (trapped=1)       pc, sp, fp
//
// Go functions trap with Caller.Trap, which unwinds with a panic that only
// the innermost boundary recovers. Other panics pass through after the
// boundary has restored the record.
//
// # Interrupts
//
// Cancelling the call's context, or calling Interrupt on the handle passed
// to WithCheckHandle, stops the computation with trap.Interrupt. Native code
// observes the request when the interrupt signal samples its fuel register,
// Go functions at Caller.ConsumeFuel and Caller.CheckInterrupt, and wazero
// modules through context cancellation, which closes the instance.
//
// An interrupt request is sticky for the rest of the outermost call: every
// nested call traps until a Go function that handled the trap calls
// Caller.ClearInterrupt.
//
// # Scheduling
//
// Native guest code runs with its goroutine in the syscall state, the way
// cgo and blocking system calls do. The scheduler hands the P to other
// goroutines and garbage collection proceeds without waiting for the guest,
// so deadlines and interrupts are delivered even with GOMAXPROCS=1. The
// guest itself is stopped only by its fuel or by an interrupt.
package engine
