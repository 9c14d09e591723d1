package engine

import (
	"github.com/wippyai/wasm-sandbox/fiber"
)

// NewFiber creates a fiber running fn on a stack from e's pool. The stack
// returns to the pool when the fiber finishes or is closed.
func NewFiber[R, Y, T any](e *Engine, fn func(s *fiber.Suspend[R, Y], first R) (T, error)) (*fiber.Fiber[R, Y, T], error) {
	mem, err := e.NewStack()
	if err != nil {
		return nil, err
	}
	return fiber.New(mem, fn), nil
}

// InFiber runs a call on the fiber's stack and links its backtrace to the
// computation that resumed the fiber.
func InFiber[R, Y any](s *fiber.Suspend[R, Y]) CallOption {
	return func(o *callOptions) {
		o.stack = s.Stack()
		o.parent = s.Parent()
	}
}
