// Package stack allocates the native stacks guest code runs on.
//
// A Memory is a usable region with an inaccessible guard range directly
// below it, so running off the end of the stack faults instead of
// corrupting neighbouring memory. Creator is the injectable factory;
// MmapCreator maps fresh memory and Pool recycles stacks of one size.
package stack
