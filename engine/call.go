package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/execution"
	"github.com/wippyai/wasm-sandbox/interrupt"
	"github.com/wippyai/wasm-sandbox/trap"
)

// Call runs fn on the calling goroutine with its arguments and results in
// stack. A trap in fn, or in any guest code fn calls, is returned as a
// *trap.Trap; the engine and the calling thread stay usable afterwards.
//
// Cancelling ctx interrupts the call with trap.Interrupt.
func (e *Engine) Call(ctx context.Context, fn Function, stack []uint64, opts ...CallOption) error {
	if e.closed.Load() {
		return errors.Closed(errors.PhaseCall, "engine")
	}
	if fn == nil {
		return errors.InvalidInput(errors.PhaseCall, "nil function")
	}
	o := buildOptions(opts)

	rec, err := execution.Acquire()
	if err != nil {
		return err
	}
	defer execution.Release(rec)

	if rec.Depth() == 0 {
		if o.parent != nil {
			rec.SetParent(o.parent)
		}
		if !o.hasFuel && e.cfg.DefaultFuel > 0 {
			o.fuel, o.hasFuel = e.cfg.DefaultFuel, true
		}
	}
	return e.call(ctx, rec, fn, stack, &o)
}

// call is one guest call boundary: it pushes an unwind target, runs fn and
// pops exactly what it pushed on every return path.
func (e *Engine) call(ctx context.Context, rec *execution.Record, fn Function, stack []uint64, o *callOptions) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if rec.InterruptRequested() || ctx.Err() != nil {
		return &trap.Trap{Kind: trap.Interrupt, Cause: context.Cause(ctx), Backtrace: rec.Backtrace()}
	}

	scope, err := rec.Enter(execution.Target{Entry: fn.entry(), PC: fn.landing()})
	if err != nil {
		if t, ok := err.(*trap.Trap); ok {
			t.Backtrace = rec.Backtrace()
		}
		return err
	}
	defer scope.Exit()

	c := &Caller{engine: e, rec: rec, ctx: ctx, opts: o, depth: scope.Depth()}
	if err := c.setup(); err != nil {
		return err
	}
	defer c.teardown()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		t, foreign := recoverTrap(r)
		if foreign != nil {
			panic(foreign)
		}
		e.log.Debug("software trap",
			zap.Stringer("kind", t.Kind),
			zap.Stringer("function", fn),
			zap.Int("depth", c.depth))
		err = t
	}()

	err = fn.invoke(c, stack)
	if t, ok := err.(*trap.Trap); ok && c.depth == 0 {
		e.log.Debug("guest trap",
			zap.Stringer("kind", t.Kind),
			zap.Uintptr("pc", t.PC),
			zap.Stringer("function", fn))
	}
	return err
}

// Caller is the view of a running call passed to Go functions.
// It must only be used on the goroutine running the call.
type Caller struct {
	engine *Engine
	rec    *execution.Record
	ctx    context.Context
	opts   *callOptions
	handle *interrupt.CheckHandle
	stop   func() bool
	done   chan struct{}
	depth  int
}

// setup installs the per-call fuel, guards and handlers, and arranges for
// context cancellation to interrupt the call.
func (c *Caller) setup() error {
	o := c.opts
	if o.hasFuel {
		c.rec.SetFuel(o.fuel)
	}
	for _, g := range o.guards {
		if err := c.rec.PushGuard(g); err != nil {
			return err
		}
	}
	for _, h := range o.handlers {
		if err := c.rec.PushHandler(h); err != nil {
			return err
		}
	}

	if c.ctx.Done() == nil && o.onHandle == nil {
		return nil
	}
	c.handle = interrupt.New(c.rec)
	if o.onHandle != nil {
		o.onHandle(c.handle)
	}
	if c.ctx.Done() != nil {
		h, done := c.handle, make(chan struct{})
		c.done = done
		c.stop = context.AfterFunc(c.ctx, func() {
			if err := h.Deliver(done); err != nil {
				c.engine.log.Warn("interrupt delivery failed", zap.Error(err))
			}
		})
	}
	return nil
}

func (c *Caller) teardown() {
	if c.stop != nil {
		c.stop()
		close(c.done)
	}
}

// Call runs fn as a nested call on the same thread. Traps in fn are
// returned to the caller, which may handle them or return them.
func (c *Caller) Call(fn Function, stack []uint64, opts ...CallOption) error {
	if fn == nil {
		return errors.InvalidInput(errors.PhaseCall, "nil function")
	}
	o := buildOptions(opts)
	return c.engine.call(c.ctx, c.rec, fn, stack, &o)
}

// Trap stops the current call with kind. It does not return.
func (c *Caller) Trap(kind trap.Kind) {
	c.TrapCause(kind, nil)
}

// TrapCause stops the current call with kind and records cause.
func (c *Caller) TrapCause(kind trap.Kind, cause error) {
	panic(&unwind{trap: &trap.Trap{
		Kind:      kind,
		Cause:     cause,
		Backtrace: c.rec.Backtrace(),
	}})
}

// ConsumeFuel charges n units and traps with trap.Interrupt when the fuel
// runs out or an interrupt was requested.
func (c *Caller) ConsumeFuel(n int64) {
	if !c.rec.ConsumeFuel(n) {
		c.Trap(trap.Interrupt)
	}
	c.CheckInterrupt()
}

// CheckInterrupt traps with trap.Interrupt if the call was interrupted or
// its context is done.
func (c *Caller) CheckInterrupt() {
	if c.rec.InterruptRequested() {
		c.TrapCause(trap.Interrupt, context.Cause(c.ctx))
	}
	if err := c.ctx.Err(); err != nil {
		c.TrapCause(trap.Interrupt, context.Cause(c.ctx))
	}
}

// ClearInterrupt drops an interrupt requested through a CheckHandle, so a Go
// function that handled the resulting trap can keep calling guest code.
// Until then the request is sticky: every nested call traps. A done
// context is not affected and keeps interrupting calls.
func (c *Caller) ClearInterrupt() {
	c.rec.ClearInterrupt()
}

// Fuel returns the fuel left, or execution.UnlimitedFuel.
func (c *Caller) Fuel() int64 {
	return c.rec.Fuel()
}

// Depth returns the number of calls enclosing this one on the thread.
func (c *Caller) Depth() int {
	return c.depth
}

// Record returns the execution record of the calling thread.
func (c *Caller) Record() *execution.Record {
	return c.rec
}

// Context returns the call's context.
func (c *Caller) Context() context.Context {
	return c.ctx
}

// Engine returns the engine running the call.
func (c *Caller) Engine() *Engine {
	return c.engine
}

// Handle returns the call's interrupt handle, or nil when the call can
// not be interrupted.
func (c *Caller) Handle() *interrupt.CheckHandle {
	return c.handle
}
