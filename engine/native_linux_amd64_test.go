package engine

import (
	"context"
	stderrors "errors"
	"runtime"
	"testing"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	wasmsandbox "github.com/wippyai/wasm-sandbox"
	"github.com/wippyai/wasm-sandbox/coderegion"
	"github.com/wippyai/wasm-sandbox/execution"
	"github.com/wippyai/wasm-sandbox/fiber"
	"github.com/wippyai/wasm-sandbox/interrupt"
	"github.com/wippyai/wasm-sandbox/signals"
	"github.com/wippyai/wasm-sandbox/trap"
)

// Machine code snippets. Guest functions receive vmctx in RDI, the value
// stack in RSI and fuel in R15.
var (
	codeAdd = []byte{
		0x48, 0x8b, 0x06,       // mov rax, [rsi]
		0x48, 0x03, 0x46, 0x08, // add rax, [rsi+8]
		0x48, 0x89, 0x06,       // mov [rsi], rax
		0xc3,                   // ret
	}
	codeDivZero = []byte{
		0x31, 0xc9,                   // xor ecx, ecx
		0xb8, 0x01, 0x00, 0x00, 0x00, // mov eax, 1
		0x31, 0xd2,                   // xor edx, edx
		0xf7, 0xf1,                   // div ecx
		0xc3,                         // ret
	}
	codeUD2     = []byte{0x0f, 0x0b}
	codeRecurse = []byte{0xe8, 0xfb, 0xff, 0xff, 0xff} // call self
	codeLoad    = []byte{0x48, 0x8b, 0x07, 0xc3}       // mov rax, [rdi]; ret
	codeSpin    = []byte{0xeb, 0xfe}                   // jmp self
	codeBurn    = []byte{0x49, 0xff, 0xcf, 0xeb, 0xfb} // dec r15; jmp -5
)

const divSite = 9

func newNativeEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if err := signals.Install(); err != nil {
		t.Skipf("fault handlers unavailable: %v", err)
	}
	return newTestEngine(t, cfg)
}

func mapCode(t *testing.T, code []byte) wasmsandbox.Range {
	t.Helper()
	mem, err := unix.Mmap(-1, 0, unix.Getpagesize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		t.Fatal(err)
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = unix.Munmap(mem) })
	start := uintptr(unsafe.Pointer(&mem[0]))
	return wasmsandbox.Range{Start: start, End: start + uintptr(len(mem))}
}

func publish(t *testing.T, e *Engine, name string, code []byte, sites ...coderegion.TrapSite) NativeFunc {
	t.Helper()
	r := mapCode(t, code)
	if _, err := e.Publish(r, name, sites); err != nil {
		t.Fatal(err)
	}
	return NativeFunc{Name: name, Entry: r.Start}
}

func TestNative_Add(t *testing.T) {
	e := newNativeEngine(t, Config{})
	add := publish(t, e, "add", codeAdd)
	stack := []uint64{40, 2}
	if err := e.Call(context.Background(), add, stack); err != nil {
		t.Fatal(err)
	}
	if stack[0] != 42 {
		t.Errorf("add = %d, want 42", stack[0])
	}
}

func TestNative_DivideByZero(t *testing.T) {
	e := newNativeEngine(t, Config{})
	div := publish(t, e, "div", codeDivZero, coderegion.TrapSite{Offset: divSite, Kind: trap.IntegerDivisionByZero})
	add := publish(t, e, "add", codeAdd)

	for i := 0; i < 3; i++ {
		err := e.Call(context.Background(), div, nil)
		var tr *trap.Trap
		if !stderrors.As(err, &tr) {
			t.Fatalf("Call() = %v, want *trap.Trap", err)
		}
		if tr.Kind != trap.IntegerDivisionByZero || tr.PC != div.Entry+divSite {
			t.Fatalf("trap = %v", tr)
		}
		want := []trap.Frame{{PC: div.Entry + divSite, Entry: div.Entry}, {PC: landingPC(), Entry: div.Entry}}
		if len(tr.Backtrace) != 2 || tr.Backtrace[0] != want[0] || tr.Backtrace[1] != want[1] {
			t.Errorf("backtrace = %+v, want %+v", tr.Backtrace, want)
		}
	}

	// the thread keeps working after landing
	stack := []uint64{1, 2}
	if err := e.Call(context.Background(), add, stack); err != nil || stack[0] != 3 {
		t.Fatalf("add after trap = %d, %v", stack[0], err)
	}
}

func TestNative_Unreachable(t *testing.T) {
	e := newNativeEngine(t, Config{})
	fn := publish(t, e, "ud2", codeUD2, coderegion.TrapSite{Offset: 0, Kind: trap.UnreachableCodeReached})
	err := e.Call(context.Background(), fn, nil)
	if !stderrors.Is(err, trap.UnreachableCodeReached) {
		t.Fatalf("Call() = %v, want unreachable", err)
	}
}

func TestNative_NestedUnderGoFunc(t *testing.T) {
	e := newNativeEngine(t, Config{})
	div := publish(t, e, "div", codeDivZero, coderegion.TrapSite{Offset: divSite, Kind: trap.IntegerDivisionByZero})

	var inner error
	var depth int
	host := GoFunc(func(c *Caller, stack []uint64) error {
		inner = c.Call(div, nil)
		depth = c.Record().Depth()
		return nil
	})
	if err := e.Call(context.Background(), host, nil); err != nil {
		t.Fatal(err)
	}
	if !stderrors.Is(inner, trap.IntegerDivisionByZero) {
		t.Errorf("inner = %v", inner)
	}
	if depth != 1 {
		t.Errorf("depth after inner trap = %d, want 1", depth)
	}
}

func TestNative_StackOverflow(t *testing.T) {
	e := newNativeEngine(t, Config{StackSize: 64 << 10})
	fn := publish(t, e, "recurse", codeRecurse)
	err := e.Call(context.Background(), fn, nil)
	var tr *trap.Trap
	if !stderrors.As(err, &tr) || tr.Kind != trap.StackOverflow {
		t.Fatalf("Call() = %v, want stack overflow", err)
	}
	if tr.PC != fn.Entry {
		t.Errorf("pc = %#x, want %#x", tr.PC, fn.Entry)
	}
}

func TestNative_StackOverflowInFiber(t *testing.T) {
	e := newNativeEngine(t, Config{StackSize: 64 << 10})
	fn := publish(t, e, "recurse", codeRecurse)

	f, err := NewFiber(e, func(s *fiber.Suspend[int, struct{}], _ int) (int, error) {
		return 0, e.Call(context.Background(), fn, nil, InFiber(s))
	})
	if err != nil {
		t.Fatal(err)
	}
	step, err := f.Resume(0)
	if !stderrors.Is(err, trap.StackOverflow) || !step.Done {
		t.Fatalf("Resume() = %+v, %v, want stack overflow", step, err)
	}
}

func TestNative_HeapGuard(t *testing.T) {
	e := newNativeEngine(t, Config{})
	fn := publish(t, e, "load", codeLoad)

	heap, err := unix.Mmap(-1, 0, unix.Getpagesize(), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Munmap(heap)
	base := uintptr(unsafe.Pointer(&heap[0]))
	guard := wasmsandbox.Range{Start: base, End: base + uintptr(len(heap))}

	fn.VMContext = base
	err = e.Call(context.Background(), fn, nil, WithGuard(guard, trap.HeapOutOfBounds))
	var tr *trap.Trap
	if !stderrors.As(err, &tr) || tr.Kind != trap.HeapOutOfBounds {
		t.Fatalf("Call() = %v, want heap out of bounds", err)
	}
	if tr.Addr != base {
		t.Errorf("addr = %#x, want %#x", tr.Addr, base)
	}
}

func TestNative_LazyCommitHandler(t *testing.T) {
	e := newNativeEngine(t, Config{})
	fn := publish(t, e, "load", codeLoad)

	heap, err := unix.Mmap(-1, 0, unix.Getpagesize(), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Munmap(heap)
	base := uintptr(unsafe.Pointer(&heap[0]))
	r := wasmsandbox.Range{Start: base, End: base + uintptr(len(heap))}
	lazy, err := execution.NewLazyCommit(r)
	if err != nil {
		t.Fatal(err)
	}

	fn.VMContext = base
	err = e.Call(context.Background(), fn, nil,
		WithGuard(r, trap.HeapOutOfBounds),
		WithFaultHandler(lazy))
	if err != nil {
		t.Fatalf("Call() = %v, want the handler to commit the page", err)
	}
}

func interruptUntilDone(t *testing.T, h func() *interrupt.CheckHandle, done <-chan error) error {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		case <-deadline:
			t.Fatal("guest was not interrupted")
		case <-time.After(5 * time.Millisecond):
			if handle := h(); handle != nil {
				if _, err := handle.Interrupt(); err != nil {
					t.Fatal(err)
				}
				_ = handle.Check()
			}
		}
	}
}

func TestNative_Interrupt(t *testing.T) {
	e := newNativeEngine(t, Config{})
	fn := publish(t, e, "spin", codeSpin)

	handles := make(chan *interrupt.CheckHandle, 1)
	done := make(chan error, 1)
	go func() {
		done <- e.Call(context.Background(), fn, nil, WithCheckHandle(func(h *interrupt.CheckHandle) {
			handles <- h
		}))
	}()
	h := <-handles
	err := interruptUntilDone(t, func() *interrupt.CheckHandle { return h }, done)
	if !stderrors.Is(err, trap.Interrupt) {
		t.Fatalf("Call() = %v, want interrupt", err)
	}
}

func TestNative_FuelExhaustion(t *testing.T) {
	e := newNativeEngine(t, Config{})
	fn := publish(t, e, "burn", codeBurn)

	handles := make(chan *interrupt.CheckHandle, 1)
	done := make(chan error, 1)
	go func() {
		done <- e.Call(context.Background(), fn, nil,
			WithFuel(1_000_000),
			WithCheckHandle(func(h *interrupt.CheckHandle) { handles <- h }))
	}()
	h := <-handles

	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			if !stderrors.Is(err, trap.Interrupt) {
				t.Fatalf("Call() = %v, want interrupt", err)
			}
			return
		case <-deadline:
			t.Fatal("fuel exhaustion was not observed")
		case <-time.After(5 * time.Millisecond):
			_ = h.Check()
		}
	}
}

func TestNative_ContextCancel(t *testing.T) {
	e := newNativeEngine(t, Config{})
	fn := publish(t, e, "spin", codeSpin)

	ctx, cancel := context.WithCancel(context.Background())
	handles := make(chan *interrupt.CheckHandle, 1)
	done := make(chan error, 1)
	go func() {
		done <- e.Call(ctx, fn, nil, WithCheckHandle(func(h *interrupt.CheckHandle) { handles <- h }))
	}()
	h := <-handles
	cancel()

	// the first signal may arrive before the guest starts
	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			if !stderrors.Is(err, trap.Interrupt) {
				t.Fatalf("Call() = %v, want interrupt", err)
			}
			return
		case <-deadline:
			t.Fatal("guest was not interrupted")
		case <-time.After(5 * time.Millisecond):
			_ = h.Check()
		}
	}
}

func TestNative_TimeoutWithSingleProc(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))
	e := newNativeEngine(t, Config{})
	fn := publish(t, e, "spin", codeSpin)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Call(ctx, fn, nil) }()

	select {
	case err := <-done:
		if !stderrors.Is(err, trap.Interrupt) {
			t.Fatalf("Call() = %v, want interrupt", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("deadline did not interrupt guest code with GOMAXPROCS=1")
	}
}

func TestNative_GarbageCollectionWhileGuestRuns(t *testing.T) {
	e := newNativeEngine(t, Config{})
	fn := publish(t, e, "spin", codeSpin)

	handles := make(chan *interrupt.CheckHandle, 1)
	done := make(chan error, 1)
	go func() {
		done <- e.Call(context.Background(), fn, nil, WithCheckHandle(func(h *interrupt.CheckHandle) {
			handles <- h
		}))
	}()
	h := <-handles
	time.Sleep(10 * time.Millisecond)

	collected := make(chan struct{})
	go func() {
		runtime.GC()
		close(collected)
	}()
	select {
	case <-collected:
	case <-time.After(10 * time.Second):
		t.Fatal("stop-the-world waited for guest code")
	}

	err := interruptUntilDone(t, func() *interrupt.CheckHandle { return h }, done)
	if !stderrors.Is(err, trap.Interrupt) {
		t.Fatalf("Call() = %v, want interrupt", err)
	}
}
