// Package execution holds the per-thread record of nested guest calls.
//
// A Record keeps a LIFO stack of unwind targets (one per guest call
// boundary), the embedder fault handler chain, guard ranges, fuel and
// interrupt state, and the trap a signal handler is delivering. Records are
// bound to the kernel thread that acquired them so that a signal handler can
// find the record of the thread it interrupted without locks or allocation.
//
// Callers use Enter and a deferred Scope.Exit so the record's depth is
// restored on every exit path:
//
//	rec, err := execution.Acquire()
//	if err != nil {
//		return err
//	}
//	defer execution.Release(rec)
//	scope, err := rec.Enter(execution.Target{Entry: entry})
//	if err != nil {
//		return err
//	}
//	defer scope.Exit()
package execution
