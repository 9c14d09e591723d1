//go:build !linux

package execution

// Records are not bound to threads: no signal handler needs to find them.
func threadID() int32 {
	return 0
}
