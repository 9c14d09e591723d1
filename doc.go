// Package wasmsandbox is the native execution core of a WebAssembly sandbox:
// it turns hardware faults raised by JIT-compiled guest code into typed
// traps and runs guest computations on fibers that can suspend and resume.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmsandbox/        Root package with the shared address Range type
//	├── trap/           Trap kinds, the Trap error and wazero error conversion
//	├── coderegion/     Registry of address ranges owned by compiled guest code
//	├── fault/          Fault context snapshot and the fault classifier
//	├── execution/      Per-thread execution record (unwind targets, handlers, fuel)
//	├── signals/        Hardware fault signal handlers and context rewriting
//	├── stack/          Guarded stack memory and stack creators
//	├── fiber/          Suspend/resume fibers over stack memory
//	├── interrupt/      Out-of-band interrupts (CheckHandle)
//	├── engine/         Call entry point, native trampolines, wazero path
//	├── errors/         Structured error types for misuse and setup failures
//	└── cmd/run/        Command line runner with an interactive TUI
//
// # Quick Start
//
// Publish compiled code and call into it:
//
//	eng, err := engine.New(engine.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	_, err = eng.Publish(codeRange, "add", []coderegion.TrapSite{
//	    {Offset: 0x10, Kind: trap.IntegerDivisionByZero},
//	})
//
//	stack := []uint64{7, 0}
//	err = eng.Call(ctx, engine.NativeFunc{Entry: codeRange.Start}, stack)
//	var t *trap.Trap
//	if errors.As(err, &t) {
//	    fmt.Println(t.Kind, t.Backtrace)
//	}
//
// # Fibers
//
// A fiber runs a closure on its own stack memory and exchanges values with
// its resumer at explicit suspension points:
//
//	f := fiber.New(mem, func(s *fiber.Suspend[int, string], first int) (bool, error) {
//	    next := s.Suspend("started")
//	    return next > first, nil
//	})
//	step, err := f.Resume(1) // step.Yield == "started"
//	step, err = f.Resume(2)  // step.Done, step.Result == true
//
// # Platform Support
//
// Native fault handling is implemented for linux/amd64 and linux/arm64. On
// other platforms Go and wazero guest functions still run with full trap
// semantics; native calls and handler installation report
// errors.KindUnsupported.
//
// # Thread Safety
//
// Engine and the code-region registry are safe for concurrent use. Code must
// be published before any thread can execute it and unpublished only after
// every thread has left it. A Fiber must be resumed by one goroutine at a
// time; concurrent resumes panic.
package wasmsandbox
