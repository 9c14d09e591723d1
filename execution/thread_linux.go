package execution

import "golang.org/x/sys/unix"

//go:nosplit
func threadID() int32 {
	tid, _ := unix.RawSyscallNoError(unix.SYS_GETTID, 0, 0, 0)
	return int32(tid)
}
