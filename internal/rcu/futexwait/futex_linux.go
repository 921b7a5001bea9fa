//go:build linux

package futexwait

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	futexWaitOp = 0 // FUTEX_WAIT
	futexWakeOp = 1 // FUTEX_WAKE
)

func futexWait(v *atomic.Int32, expect int32) {
	addr := (*int32)(unsafe.Pointer(v))
	for {
		_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)),
			futexWaitOp, uintptr(uint32(expect)), 0, 0, 0)
		switch errno {
		case 0, unix.EWOULDBLOCK:
			return
		case unix.EINTR:
			if atomic.LoadInt32(addr) != expect {
				return
			}
			continue
		default:
			// Unexpected errno (e.g. ENOSYS on a kernel without futex
			// support): fall back to returning immediately. The caller
			// re-checks the condition in a loop regardless, so this is
			// never a correctness problem, only a lost optimization.
			return
		}
	}
}

func futexWake(v *atomic.Int32, n int) {
	addr := (*int32)(unsafe.Pointer(v))
	if n <= 0 {
		n = 1
	}
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)),
		futexWakeOp, uintptr(n), 0, 0, 0)
}
