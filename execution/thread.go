package execution

import (
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/wippyai/wasm-sandbox/errors"
)

// maxThreads bounds the number of threads that may run guest code at once.
const maxThreads = 512

type slot struct {
	tid int32
	_   int32
	rec unsafe.Pointer // *Record
}

var (
	slots [maxThreads]slot
	pool  = sync.Pool{New: func() any { return newRecord() }}
)

// Acquire returns the record of the calling thread, creating it on first
// use. The calling goroutine stays locked to its OS thread until the
// matching Release. Nested acquisitions on one thread share a record.
func Acquire() (*Record, error) {
	runtime.LockOSThread()
	tid := threadID()
	if tid != 0 {
		if rec := lookup(tid); rec != nil {
			rec.refs++
			return rec, nil
		}
	}

	rec := pool.Get().(*Record)
	rec.tid = tid
	rec.refs = 1
	if tid != 0 && !bind(tid, rec) {
		rec.reset()
		pool.Put(rec)
		runtime.UnlockOSThread()
		return nil, errors.New(errors.PhaseCall, errors.KindAllocation).
			Detail("no free execution record slot for thread %d", tid).
			Build()
	}
	return rec, nil
}

// Release undoes one Acquire. The outermost Release unbinds the record from
// the thread and recycles it.
func Release(rec *Record) {
	if rec.refs <= 0 {
		panic(errors.Misuse(errors.PhaseCall, "execution record released more times than acquired"))
	}
	rec.refs--
	if rec.refs == 0 {
		if rec.depth != 0 {
			panic(errors.Misuse(errors.PhaseCall, "execution record released with live unwind targets"))
		}
		if rec.tid != 0 {
			unbind(rec.tid, rec)
		}
		rec.reset()
		pool.Put(rec)
	}
	runtime.UnlockOSThread()
}

// Current returns the record bound to the calling thread, or nil.
// It is safe to call from a signal handler.
//
//go:nosplit
func Current() *Record {
	tid := threadID()
	if tid == 0 {
		return nil
	}
	return lookup(tid)
}

// ThreadID returns the kernel id of the calling thread, or 0 when the
// platform does not expose one.
//
//go:nosplit
func ThreadID() int32 {
	return threadID()
}

//go:nosplit
func lookup(tid int32) *Record {
	for i := uint32(0); i < maxThreads; i++ {
		s := &slots[(uint32(tid)+i)%maxThreads]
		if atomic.LoadInt32(&s.tid) == tid {
			return (*Record)(atomic.LoadPointer(&s.rec))
		}
	}
	return nil
}

func bind(tid int32, rec *Record) bool {
	for i := uint32(0); i < maxThreads; i++ {
		s := &slots[(uint32(tid)+i)%maxThreads]
		if atomic.CompareAndSwapInt32(&s.tid, 0, tid) {
			atomic.StorePointer(&s.rec, unsafe.Pointer(rec))
			return true
		}
	}
	return false
}

func unbind(tid int32, rec *Record) {
	for i := uint32(0); i < maxThreads; i++ {
		s := &slots[(uint32(tid)+i)%maxThreads]
		if atomic.LoadInt32(&s.tid) == tid && atomic.LoadPointer(&s.rec) == unsafe.Pointer(rec) {
			atomic.StorePointer(&s.rec, nil)
			atomic.StoreInt32(&s.tid, 0)
			return
		}
	}
}
