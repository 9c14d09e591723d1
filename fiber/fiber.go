package fiber

import (
	"runtime"
	"sync/atomic"

	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/execution"
	"github.com/wippyai/wasm-sandbox/stack"
)

// State is the lifecycle state of a fiber.
type State uint32

const (
	Fresh State = iota
	Running
	Suspended
	Done
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Done:
		return "done"
	}
	return "unknown"
}

// Step is the outcome of one Resume: either a value passed to Suspend, or
// the closure's final result.
type Step[Y, T any] struct {
	Yield  Y
	Result T
	Done   bool
}

// Suspend is the fiber side of a suspension point. It is only valid inside
// the closure while the fiber runs.
type Suspend[R, Y any] struct {
	suspend func(Y) R
	mem     stack.Memory
	parent  *execution.Record
}

// Suspend hands y to the resumer and blocks until the next Resume, whose
// value it returns.
func (s *Suspend[R, Y]) Suspend(y Y) R {
	return s.suspend(y)
}

// Stack returns the stack memory the fiber owns. Native guest calls made
// from the closure run on it.
func (s *Suspend[R, Y]) Stack() stack.Memory {
	return s.mem
}

// Parent returns the execution record of the thread that issued the current
// Resume, or nil if it was not inside a guest call.
func (s *Suspend[R, Y]) Parent() *execution.Record {
	return s.parent
}

// Fiber runs a closure as a computation that can suspend and later resume.
// It exclusively owns its stack memory and releases it when done.
//
// A fiber that becomes unreachable while fresh or suspended is closed by
// the garbage collector: its closure unwinds on its own goroutine and the
// stack memory is released. Call Close to release them promptly.
type Fiber[R, Y, T any] struct {
	c *core[R, Y, T]
}

// core is the state shared with the fiber goroutine. It must not refer back
// to the Fiber handle, or the handle would never become unreachable.
type core[R, Y, T any] struct {
	mem   stack.Memory
	fn    func(*Suspend[R, Y], R) (T, error)
	sw    switcher
	susp  *Suspend[R, Y]
	slot  cell[R, Y, T]
	state atomic.Uint32
	busy  atomic.Bool
}

// New creates a fiber in the Fresh state. mem may be nil for fibers that
// never run native guest code.
func New[R, Y, T any](mem stack.Memory, fn func(s *Suspend[R, Y], first R) (T, error)) *Fiber[R, Y, T] {
	if fn == nil {
		panic(errors.Misuse(errors.PhaseFiber, "nil fiber closure"))
	}
	c := &core[R, Y, T]{mem: mem, fn: fn, sw: newGoSwitcher()}
	c.susp = &Suspend[R, Y]{suspend: c.suspend, mem: mem}
	f := &Fiber[R, Y, T]{c: c}
	runtime.AddCleanup(f, func(c *core[R, Y, T]) { go c.abandon() }, c)
	return f
}

// State returns the current lifecycle state.
func (f *Fiber[R, Y, T]) State() State {
	return f.c.State()
}

// Done reports whether the fiber finished.
func (f *Fiber[R, Y, T]) Done() bool {
	return f.c.State() == Done
}

// Resume transfers control into the fiber with v and returns when the
// closure suspends or finishes. A panic inside the closure is raised again
// here with the same value. Resuming a finished fiber or resuming from two
// goroutines at once panics.
func (f *Fiber[R, Y, T]) Resume(v R) (Step[Y, T], error) {
	defer runtime.KeepAlive(f)
	return f.c.resume(v)
}

// Close finishes the fiber. A suspended closure is unwound at its
// suspension point, running its deferred calls; a fresh one never runs.
// The stack memory is released. Close on a finished fiber does nothing.
func (f *Fiber[R, Y, T]) Close() error {
	defer runtime.KeepAlive(f)
	return f.c.close()
}

func (c *core[R, Y, T]) State() State {
	return State(c.state.Load())
}

func (c *core[R, Y, T]) resume(v R) (Step[Y, T], error) {
	c.acquire()
	defer c.busy.Store(false)

	c.susp.parent = execution.Current()
	switch c.State() {
	case Fresh:
		c.state.Store(uint32(Running))
		c.slot = cell[R, Y, T]{tag: tagResuming, resume: v}
		c.sw.start(c.run)
	case Suspended:
		c.state.Store(uint32(Running))
		c.slot = cell[R, Y, T]{tag: tagResuming, resume: v}
		c.sw.toFiber()
	case Done:
		panic(errors.Misuse(errors.PhaseFiber, "resume of a finished fiber"))
	default:
		panic(errors.Misuse(errors.PhaseFiber, "resume of a running fiber"))
	}
	return c.settle()
}

func (c *core[R, Y, T]) acquire() {
	if !c.busy.CompareAndSwap(false, true) {
		panic(errors.Misuse(errors.PhaseFiber, "fiber resumed concurrently"))
	}
}

// settle interprets the cell after the fiber handed control back.
func (c *core[R, Y, T]) settle() (Step[Y, T], error) {
	got := c.slot
	c.slot.reset(tagExecuting)
	switch got.tag {
	case tagSuspended:
		c.state.Store(uint32(Suspended))
		return Step[Y, T]{Yield: got.yield}, nil
	case tagReturned:
		c.finish()
		return Step[Y, T]{Result: got.result, Done: true}, got.err
	case tagPanicked:
		c.finish()
		panic(got.panicVal)
	case tagCancel:
		c.finish()
		return Step[Y, T]{Done: true}, errors.Closed(errors.PhaseFiber, "fiber goroutine exited")
	}
	panic(errors.Misuse(errors.PhaseFiber, "fiber handed back control without a result"))
}

func (c *core[R, Y, T]) finish() {
	c.state.Store(uint32(Done))
	c.susp.parent = nil
	if c.mem != nil {
		_ = c.mem.Close()
		c.mem = nil
	}
}

// run is the body of the fiber goroutine.
func (c *core[R, Y, T]) run() {
	completed := false
	defer func() {
		if !completed {
			if p := recover(); p != nil {
				c.slot = cell[R, Y, T]{tag: tagPanicked, panicVal: p}
			} else {
				c.slot.reset(tagCancel)
			}
		}
		c.sw.exit()
	}()

	first := c.slot.resume
	c.slot.reset(tagExecuting)
	res, err := c.fn(c.susp, first)
	completed = true
	c.slot = cell[R, Y, T]{tag: tagReturned, result: res, err: err}
}

func (c *core[R, Y, T]) suspend(y Y) R {
	if c.State() != Running || c.slot.tag != tagExecuting {
		panic(errors.Misuse(errors.PhaseFiber, "suspend outside a running fiber"))
	}
	c.slot = cell[R, Y, T]{tag: tagSuspended, yield: y}
	c.sw.toResumer()
	if c.slot.tag == tagCancel {
		runtime.Goexit()
	}
	v := c.slot.resume
	c.slot.reset(tagExecuting)
	return v
}

func (c *core[R, Y, T]) close() error {
	c.acquire()
	defer c.busy.Store(false)

	switch c.State() {
	case Done:
		return nil
	case Running:
		panic(errors.Misuse(errors.PhaseFiber, "close of a running fiber"))
	case Suspended:
		c.slot.reset(tagCancel)
		c.sw.toFiber()
		got := c.slot
		c.slot.reset(tagExecuting)
		c.finish()
		if got.tag == tagPanicked {
			panic(got.panicVal)
		}
		return nil
	}
	c.finish()
	return nil
}

// abandon closes a fiber whose handle was collected. A panic raised while
// unwinding has no resumer left to receive it and is dropped.
func (c *core[R, Y, T]) abandon() {
	defer func() { _ = recover() }()
	if c.State() != Done {
		_ = c.close()
	}
}
