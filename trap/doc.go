// Package trap defines the closed set of reasons guest execution can trap
// and the Trap error handed to callers instead of a raw signal.
//
// Every Kind has a textual form that ParseKind maps back to the same Kind.
// The texts match the runtime error messages used by wazero so that
// FromError can turn interpreter failures into the same typed traps the
// native fault handler produces.
package trap
