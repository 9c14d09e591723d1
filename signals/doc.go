// Package signals owns the process handlers for hardware faults and the
// interrupt signal.
//
// Install replaces the SIGSEGV, SIGBUS, SIGILL, SIGFPE, SIGTRAP and SIGXCPU
// handlers with an assembly entry point that classifies the fault against
// the attached code region registries and the execution record of the
// faulting thread. A trap in guest code is delivered by rewriting the
// interrupted machine context so that sigreturn resumes at the landing
// point of the innermost guest call. Everything else is forwarded to the
// handler that was installed before, normally the Go runtime's.
//
// The Go runtime puts its own handler back when signal.Notify, signal.Reset
// or signal.Ignore is used for one of these signals. Installed then reports
// false and native guest calls are refused until Install runs again.
// Programs that need SIGXCPU for themselves can not run native guest code.
package signals
