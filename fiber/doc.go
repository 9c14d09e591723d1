// Package fiber runs computations that can suspend mid-call and be resumed
// later with a new value.
//
// A Fiber owns a stack memory and a closure. Resume transfers control into
// the closure; inside it, Suspend hands a value back to the resumer and
// waits for the next Resume. Values cross the switch through a single slot
// that only the running side touches. A panic in the closure is raised
// again at the Resume call site.
//
// States move Fresh → Running → Suspended → Running → ... → Done. Resuming a
// Done fiber, resuming concurrently, or suspending outside the running
// closure are programmer errors and panic.
package fiber
