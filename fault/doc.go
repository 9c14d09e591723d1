// Package fault classifies hardware faults raised while guest code runs.
//
// A Context is captured from the machine state delivered with a signal and
// handed to Classify together with the thread's execution record. The result
// tells the signal handler whether to forward the fault, resume, or rewrite
// the machine context to land at the innermost guest call boundary.
//
// Everything on the classification path runs inside a signal handler and is
// therefore allocation free, lock free and marked go:nosplit.
package fault
