// Package errors provides structured error types for the wasm-sandbox library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries a component path, the offending value and a cause chain.
//
// Guest faults are not reported with this package: they surface as *trap.Trap.
// These errors cover setup failures (handler installation, stack allocation,
// code publication) and API misuse detected before any state changed.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseStack, errors.KindInvalidInput).
//		Path("engine", "config", "StackSize").
//		Value(size).
//		Detail("stack size %d exceeds limit %d", size, limit).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Overlap(errors.PhaseRegister, start, end, otherStart, otherEnd)
//	err := errors.Unsupported(errors.PhaseInstall, "signal handlers on windows")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
