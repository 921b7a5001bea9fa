package percpu

import "runtime"

// currentGoroutineID returns the calling goroutine's runtime ID, used to
// pick a stable "expected CPU" shard for the lifetime of one fast-path
// call. This is the spec §4.3 sched_getcpu() fallback, adapted: Go has no
// portable CPU-affinity query, so goroutine identity plus a fixed modulus
// stands in for it.
//
// This is grounded on the teacher's internal/race/api/goid_*.go split,
// which solved the same "identify the calling unit of execution cheaply"
// problem for race detection. The teacher additionally ships an
// unsafe-pointer fast path (goid_fast.go / goid_amd64.go) that reads the
// goid field directly out of runtime.g at a hardcoded, Go-version-pinned
// byte offset. That path is deliberately not carried over here: this
// module is a general-purpose library rather than an instrumentation
// tool invoked by a pinned toolchain, so depending on an unexported and
// unstable runtime struct layout is a worse trade here than it is for the
// teacher. The portable runtime.Stack-parsing path (goid_generic.go /
// goid_fallback.go) is kept, because it is the part of the teacher's
// design that does not assume a specific Go release.
//
//go:nosplit
func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

// parseGID extracts the numeric goroutine ID from the "goroutine 123
// [running]:" prefix runtime.Stack writes. Verbatim in algorithm to the
// teacher's internal/race/api/goid_generic.go:parseGID.
func parseGID(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}
	var gid int64
	for i := len(prefix); i < len(buf); i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		gid = gid*10 + int64(c-'0')
	}
	return gid
}
