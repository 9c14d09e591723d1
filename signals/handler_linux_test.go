//go:build linux && (amd64 || arm64)

package signals

import (
	"os"
	"os/signal"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"

	wasmsandbox "github.com/wippyai/wasm-sandbox"
	"github.com/wippyai/wasm-sandbox/coderegion"
	"github.com/wippyai/wasm-sandbox/execution"
	"github.com/wippyai/wasm-sandbox/fault"
	"github.com/wippyai/wasm-sandbox/trap"
)

var target = execution.Target{Entry: 0x1000, PC: 0x7000, SP: 0xc000f000, FP: 0xc000f010, LR: 0x7100, G: 0xc0000001}

func setup(t *testing.T) (*execution.Record, *coderegion.Registry) {
	t.Helper()
	reg := coderegion.NewRegistry()
	reg.MustRegister(wasmsandbox.Range{Start: 0x1000, End: 0x1040}, "f", []coderegion.TrapSite{
		{Offset: 0x10, Kind: trap.IntegerDivisionByZero},
	})
	if err := Attach(reg); err != nil {
		t.Fatal(err)
	}
	rec, err := execution.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	scope, err := rec.Enter(target)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		scope.Exit()
		execution.Release(rec)
		Detach(reg)
	})
	return rec, reg
}

func TestHandleFault_Trap(t *testing.T) {
	rec, _ := setup(t)

	var uc ucontext
	setState(&uc, 0x1010, 0x5000, 0x5010, 0)
	if !handleFault(uint32(unix.SIGFPE), &siginfo{}, unsafe.Pointer(&uc)) {
		t.Fatal("trap in guest code was not handled")
	}
	got, flag := landedAt(&uc)
	want := archLanding(fault.Landing{PC: target.PC, SP: target.SP, FP: target.FP, LR: target.LR, G: target.G})
	if got != want {
		t.Errorf("landing = %+v, want %+v", got, want)
	}
	if flag != 1 {
		t.Errorf("trap flag register = %d, want 1", flag)
	}
	tr, ok := rec.TakePending()
	if !ok || tr.Kind != trap.IntegerDivisionByZero || tr.PC != 0x1010 {
		t.Errorf("pending trap = %+v, %v", tr, ok)
	}
}

func TestHandleFault_NotWasm(t *testing.T) {
	rec, _ := setup(t)

	var uc ucontext
	setState(&uc, 0x2000, 0x5000, 0x5010, 0)
	before := uc
	if handleFault(uint32(unix.SIGSEGV), &siginfo{addr: 0x10}, unsafe.Pointer(&uc)) {
		t.Fatal("fault outside guest code must be forwarded")
	}
	if uc != before {
		t.Error("context modified for a forwarded fault")
	}
	if _, ok := rec.TakePending(); ok {
		t.Error("pending trap set for a forwarded fault")
	}
}

func TestHandleFault_NoRecord(t *testing.T) {
	reg := coderegion.NewRegistry()
	reg.MustRegister(wasmsandbox.Range{Start: 0x1000, End: 0x1040}, "f", []coderegion.TrapSite{
		{Offset: 0x10, Kind: trap.IntegerDivisionByZero},
	})
	if err := Attach(reg); err != nil {
		t.Fatal(err)
	}
	defer Detach(reg)

	var uc ucontext
	setState(&uc, 0x1010, 0x5000, 0x5010, 0)
	if handleFault(uint32(unix.SIGFPE), &siginfo{}, unsafe.Pointer(&uc)) {
		t.Error("fault on a thread without a record must be forwarded")
	}
}

func TestHandleFault_GuardAddress(t *testing.T) {
	rec, _ := setup(t)
	guard := wasmsandbox.Range{Start: 0x9000, End: 0xa000}
	if err := rec.PushGuard(execution.Guard{Range: guard, Kind: trap.StackOverflow}); err != nil {
		t.Fatal(err)
	}
	defer rec.RestoreGuards(0)

	var uc ucontext
	setState(&uc, 0x1004, 0x9100, 0x9110, 0)
	if !handleFault(uint32(unix.SIGSEGV), &siginfo{addr: 0x9ff0}, unsafe.Pointer(&uc)) {
		t.Fatal("guard hit not handled")
	}
	tr, ok := rec.TakePending()
	if !ok || tr.Kind != trap.StackOverflow || tr.Addr != 0x9ff0 {
		t.Errorf("pending trap = %+v, %v", tr, ok)
	}
}

func TestHandleFault_Interrupt(t *testing.T) {
	rec, _ := setup(t)

	var uc ucontext
	setState(&uc, 0x1004, 0x5000, 0x5010, 500)
	before := uc
	if !handleFault(uint32(InterruptSignal), &siginfo{}, unsafe.Pointer(&uc)) {
		t.Fatal("interrupt in guest code with fuel left should be consumed")
	}
	if uc != before {
		t.Error("context modified although fuel remains")
	}
	if rec.Fuel() != 500 {
		t.Errorf("Fuel() = %d, want 500 sampled from the register", rec.Fuel())
	}

	setState(&uc, 0x1004, 0x5000, 0x5010, 0)
	if !handleFault(uint32(InterruptSignal), &siginfo{}, unsafe.Pointer(&uc)) {
		t.Fatal("interrupt with exhausted fuel not handled")
	}
	tr, ok := rec.TakePending()
	if !ok || tr.Kind != trap.Interrupt {
		t.Errorf("pending trap = %+v, %v", tr, ok)
	}
	if _, ok := rec.TakePending(); ok {
		t.Error("exactly one interrupt trap expected")
	}

	setState(&uc, 0x2000, 0x5000, 0x5010, 0)
	if handleFault(uint32(InterruptSignal), &siginfo{}, unsafe.Pointer(&uc)) {
		t.Error("interrupt outside guest code must be forwarded")
	}
}

func TestHandleFault_EmbedderHandler(t *testing.T) {
	rec, _ := setup(t)
	if err := rec.PushHandler(fault.HandlerFunc(func(ctx fault.Context) bool {
		return ctx.Addr == 0x4242
	})); err != nil {
		t.Fatal(err)
	}
	defer rec.RestoreHandlers(0)

	var uc ucontext
	setState(&uc, 0x3000, 0x5000, 0x5010, 0)
	before := uc
	if !handleFault(uint32(unix.SIGSEGV), &siginfo{addr: 0x4242}, unsafe.Pointer(&uc)) {
		t.Fatal("embedder handler result ignored")
	}
	if uc != before {
		t.Error("context must be unchanged when an embedder handles the fault")
	}
}

func TestHandleFault_DoesNotAllocate(t *testing.T) {
	rec, _ := setup(t)
	guard := wasmsandbox.Range{Start: 0x9000, End: 0xa000}
	if err := rec.PushGuard(execution.Guard{Range: guard, Kind: trap.StackOverflow}); err != nil {
		t.Fatal(err)
	}
	if err := rec.PushHandler(fault.HandlerFunc(func(ctx fault.Context) bool {
		return ctx.Addr == 0x4242
	})); err != nil {
		t.Fatal(err)
	}
	defer func() {
		rec.RestoreGuards(0)
		rec.RestoreHandlers(0)
		rec.TakePending()
	}()

	tests := []struct {
		name string
		sig  unix.Signal
		pc   uintptr
		addr uintptr
		fuel int64
	}{
		{"trap site", unix.SIGFPE, 0x1010, 0, 0},
		{"guard", unix.SIGSEGV, 0x1004, 0x9ff0, 0},
		{"embedder", unix.SIGSEGV, 0x3000, 0x4242, 0},
		{"foreign", unix.SIGSEGV, 0x2000, 0x10, 0},
		{"interrupt with fuel", InterruptSignal, 0x1004, 0, 100},
		{"interrupt exhausted", InterruptSignal, 0x1004, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var uc ucontext
			info := &siginfo{addr: tt.addr}
			allocs := testing.AllocsPerRun(100, func() {
				setState(&uc, tt.pc, 0x5000, 0x5010, tt.fuel)
				handleFault(uint32(tt.sig), info, unsafe.Pointer(&uc))
			})
			if allocs != 0 {
				t.Errorf("handleFault allocates %v times per fault", allocs)
			}
		})
	}
}

func TestSignalKind(t *testing.T) {
	tests := []struct {
		sig  unix.Signal
		want fault.Signal
	}{
		{unix.SIGSEGV, fault.SignalSegv},
		{unix.SIGBUS, fault.SignalBus},
		{unix.SIGILL, fault.SignalIll},
		{unix.SIGFPE, fault.SignalFpe},
		{unix.SIGTRAP, fault.SignalTrap},
		{InterruptSignal, fault.SignalInterrupt},
		{unix.SIGURG, fault.SignalNone},
	}
	for _, tt := range tests {
		if got := signalKind(uint32(tt.sig)); got != tt.want {
			t.Errorf("signalKind(%v) = %v, want %v", tt.sig, got, tt.want)
		}
	}
}

func TestInstall(t *testing.T) {
	if err := Install(); err != nil {
		t.Fatal(err)
	}
	if err := Install(); err != nil {
		t.Fatalf("second Install: %v", err)
	}
	if !Installed() {
		t.Fatal("Installed() = false")
	}
	for _, h := range handled {
		var sa sigaction
		if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(h.sig), 0, uintptr(unsafe.Pointer(&sa)), maskLen, 0, 0); e != 0 {
			t.Fatal(e)
		}
		if sa.handler != addrOfSigtramp() {
			t.Errorf("%v handler = %#x, want sigtramp %#x", h.sig, sa.handler, addrOfSigtramp())
		}
		if sa.flags&saOnStack == 0 || sa.flags&saSigInfo == 0 {
			t.Errorf("%v flags = %#x", h.sig, sa.flags)
		}
		if savedHandlers[h.sig] == 0 || savedHandlers[h.sig] == addrOfSigtramp() {
			t.Errorf("%v previous handler not saved", h.sig)
		}
	}
}

func TestInstalled_DisplacedHandler(t *testing.T) {
	if err := Install(); err != nil {
		t.Fatal(err)
	}

	signal.Ignore(InterruptSignal)
	if Installed() {
		t.Fatal("Installed() = true after the runtime replaced the handler")
	}
	// Notify puts the runtime handler back in place of SIG_IGN.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, InterruptSignal)
	signal.Stop(ch)

	if err := Install(); err != nil {
		t.Fatalf("reinstall: %v", err)
	}
	if !Installed() {
		t.Fatal("Installed() = false after reinstall")
	}
	if prev := savedHandlers[InterruptSignal]; prev <= sigIgn || prev == addrOfSigtramp() {
		t.Errorf("previous handler = %#x, must be the runtime handler", prev)
	}
}
