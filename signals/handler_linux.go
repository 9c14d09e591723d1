//go:build linux && (amd64 || arm64)

package signals

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wippyai/wasm-sandbox/execution"
	"github.com/wippyai/wasm-sandbox/fault"
)

// siginfo holds the fields of the kernel siginfo_t the handler reads.
type siginfo struct {
	signo int32
	errno int32
	code  int32
	_     int32
	addr  uintptr
}

// handleFault is called by sigtramp on the signal stack. It returns false
// when the signal must be forwarded to the previous handler.
//
// It runs with an arbitrary goroutine state: only raw system calls and
// go:nosplit functions may be used, and nothing may allocate or take locks.
//
//go:nosplit
func handleFault(sig uint32, info *siginfo, uc unsafe.Pointer) bool {
	kind := signalKind(sig)
	if kind == fault.SignalNone {
		return false
	}
	rec := execution.Current()
	if rec == nil {
		return false
	}

	ctx := capture((*ucontext)(uc))
	ctx.Signal = kind
	if kind.IsAccess() && info != nil {
		ctx.Addr = info.addr
	}

	d := fault.Classify(rec, registryFor(ctx.PC), ctx)
	switch d.Action {
	case fault.NotWasm:
		return false
	case fault.HandledByEmbedder, fault.Continue:
		return true
	case fault.Trap:
		rec.SetPending(d.Kind, ctx.PC, ctx.Addr)
		land((*ucontext)(uc), d.Landing)
		return true
	}
	fatal(d.Reason)
	return false
}

const fatalPrefix = "wasm-sandbox: fatal fault: "

// fatal terminates the process without touching Go runtime state.
//
//go:nosplit
func fatal(reason string) {
	writeStderr(fatalPrefix)
	writeStderr(reason)
	writeStderr("\n")
	unix.RawSyscall(unix.SYS_EXIT_GROUP, 2, 0, 0)
}

//go:nosplit
func writeStderr(s string) {
	if len(s) == 0 {
		return
	}
	unix.RawSyscall(unix.SYS_WRITE, uintptr(unix.Stderr), uintptr(unsafe.Pointer(unsafe.StringData(s))), uintptr(len(s)))
}
