//go:build linux && (amd64 || arm64)

package signals

import (
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/fault"
)

// InterruptSignal is delivered to a thread to preempt guest code.
const InterruptSignal = unix.SIGXCPU

const (
	maxSignal = 65
	maskLen   = 8

	saSigInfo = 0x4
	saOnStack = 0x08000000
)

// sigIgn is SIG_IGN as stored in sa_handler.
const sigIgn = 1

// sigaction mirrors the kernel's struct sigaction.
type sigaction struct {
	handler  uintptr
	flags    uint64
	restorer uintptr
	mask     uint64
}

// savedHandlers holds the handler that was installed before ours, indexed by
// signal number. The assembly stub jumps to it for foreign faults, or drops
// the signal when it is sigIgn.
var savedHandlers [maxSignal]uintptr

var handled = [...]struct {
	sig  unix.Signal
	kind fault.Signal
}{
	{unix.SIGSEGV, fault.SignalSegv},
	{unix.SIGBUS, fault.SignalBus},
	{unix.SIGILL, fault.SignalIll},
	{unix.SIGFPE, fault.SignalFpe},
	{unix.SIGTRAP, fault.SignalTrap},
	{InterruptSignal, fault.SignalInterrupt},
}

// signalKind maps a signal number to its fault kind.
//
//go:nosplit
func signalKind(sig uint32) fault.Signal {
	for i := 0; i < len(handled); i++ {
		if uint32(handled[i].sig) == sig {
			return handled[i].kind
		}
	}
	return fault.SignalNone
}

// sigtramp is the assembly entry point installed as the kernel handler.
func sigtramp()

// addrOfSigtramp returns the ABI0 address of sigtramp.
func addrOfSigtramp() uintptr

// replaceHandler installs handler for sig, keeping the flags and mask of
// the previous handler, and stores the previous handler in previous.
func replaceHandler(sig unix.Signal, handler uintptr, previous *uintptr) error {
	var sa sigaction
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), 0, uintptr(unsafe.Pointer(&sa)), maskLen, 0, 0); e != 0 {
		return e
	}
	if sa.handler == 0 {
		return errors.New(errors.PhaseInstall, errors.KindNotInitialized).
			Detail("no previous handler for signal %d", int(sig)).
			Build()
	}
	if sa.handler == handler {
		// still ours; previous stays what it was
		return nil
	}
	*previous = sa.handler

	sa.handler = handler
	sa.flags |= saOnStack | saSigInfo
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(&sa)), 0, maskLen, 0, 0); e != 0 {
		return e
	}
	return nil
}

// current reports whether every handled signal is still delivered to
// sigtramp. Go reinstalls its own handler when signal.Notify, signal.Reset
// or signal.Ignore touch one of these signals.
func current() bool {
	entry := addrOfSigtramp()
	for _, h := range handled {
		var sa sigaction
		if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(h.sig), 0, uintptr(unsafe.Pointer(&sa)), maskLen, 0, 0); e != 0 {
			return false
		}
		if sa.handler != entry {
			return false
		}
	}
	return true
}

func install() error {
	entry := addrOfSigtramp()
	for _, h := range handled {
		if err := replaceHandler(h.sig, entry, &savedHandlers[h.sig]); err != nil {
			return errors.System(errors.PhaseInstall, "rt_sigaction("+unix.SignalName(h.sig)+")", err)
		}
	}
	Logger().Info("installed fault handlers",
		zap.Uintptr("entry", entry),
		zap.Stringer("interrupt", InterruptSignal))
	return nil
}
