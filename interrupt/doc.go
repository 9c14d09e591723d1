// Package interrupt preempts guest code from another goroutine.
//
// A CheckHandle is created on the thread that runs a guest call. Check
// sends that thread the interrupt signal; the fault handler samples the
// guest's fuel register and traps with trap.Interrupt when fuel is
// exhausted. Interrupt additionally marks the call as interrupted so that
// the next check point traps regardless of fuel.
package interrupt
