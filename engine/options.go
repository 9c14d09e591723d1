package engine

import (
	wasmsandbox "github.com/wippyai/wasm-sandbox"
	"github.com/wippyai/wasm-sandbox/execution"
	"github.com/wippyai/wasm-sandbox/fault"
	"github.com/wippyai/wasm-sandbox/interrupt"
	"github.com/wippyai/wasm-sandbox/stack"
	"github.com/wippyai/wasm-sandbox/trap"
)

// CallOption configures a single call.
type CallOption func(*callOptions)

type callOptions struct {
	stack    stack.Memory
	parent   *execution.Record
	onHandle func(*interrupt.CheckHandle)
	guards   []execution.Guard
	handlers []fault.Handler
	fuel     int64
	hasFuel  bool
}

func buildOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithFuel meters the call. The guest traps with trap.Interrupt once the
// fuel is spent. Nested calls without their own fuel share the caller's.
func WithFuel(n int64) CallOption {
	return func(o *callOptions) {
		o.fuel = n
		o.hasFuel = true
	}
}

// WithStack runs native code on m instead of a pooled stack. The guard
// range of m is reported as a stack overflow.
func WithStack(m stack.Memory) CallOption {
	return func(o *callOptions) {
		o.stack = m
	}
}

// WithGuard reports accesses to r as kind for the duration of the call.
func WithGuard(r wasmsandbox.Range, kind trap.Kind) CallOption {
	return func(o *callOptions) {
		o.guards = append(o.guards, execution.Guard{Range: r, Kind: kind})
	}
}

// WithFaultHandler offers faults in guest code to h before classification.
// h runs in signal context and must follow the rules of fault.Handler.
func WithFaultHandler(h fault.Handler) CallOption {
	return func(o *callOptions) {
		o.handlers = append(o.handlers, h)
	}
}

// WithCheckHandle passes the call's interrupt handle to f before guest
// code starts.
func WithCheckHandle(f func(*interrupt.CheckHandle)) CallOption {
	return func(o *callOptions) {
		o.onHandle = f
	}
}

// WithParent links the call's record to the computation that started it,
// so that backtraces continue into the parent.
func WithParent(rec *execution.Record) CallOption {
	return func(o *callOptions) {
		o.parent = rec
	}
}
