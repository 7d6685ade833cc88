//go:build linux

package shm

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Shared (non-private) futex operations: the word lives in a MAP_SHARED file
// mapping, so the kernel keys waiters by inode and offset across processes.
const (
	futexWait = 0
	futexWake = 1
)

// futexWaitOn sleeps while *addr == val. A negative timeout sleeps until woken.
func futexWaitOn(addr unsafe.Pointer, val uint32, timeout time.Duration) error {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(addr), futexWait, uintptr(val),
		uintptr(unsafe.Pointer(ts)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// futexWakeOne wakes at most one waiter sleeping on addr.
func futexWakeOne(addr unsafe.Pointer) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(addr), futexWake, 1, 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
