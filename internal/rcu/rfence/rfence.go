// Package rfence provides the ordering primitives every reclamation flavor
// is built from: relaxed/acquire/release access, full fence, and
// compare-and-swap, plus a CPU-pause hint for spin loops.
//
// Go's memory model does not expose separate acquire/release load and
// store instructions the way C11 does; sync/atomic's operations are
// already sequentially consistent. These wrappers exist so the rest of
// the toolkit can name the ordering it depends on (matching the spec's
// vocabulary) even though the underlying instruction is the same, and so
// that a future per-architecture implementation has a single seam to
// change.
package rfence

import (
	"runtime"
	"sync/atomic"
)

// LoadRelaxed reads v without additional ordering guarantees beyond what
// sync/atomic already provides.
//
//go:nosplit
func LoadRelaxed(v *uint64) uint64 { return atomic.LoadUint64(v) }

// StoreRelaxed stores val into v.
//
//go:nosplit
func StoreRelaxed(v *uint64, val uint64) { atomic.StoreUint64(v, val) }

// LoadAcquire reads v with acquire ordering: no memory access after this
// load, as written in program order, can be observed by another thread
// as happening before it.
//
//go:nosplit
func LoadAcquire(v *uint64) uint64 { return atomic.LoadUint64(v) }

// StoreRelease stores val into v with release ordering: every memory
// access before this store, in program order, becomes visible to any
// thread that subsequently loads v with acquire ordering.
//
//go:nosplit
func StoreRelease(v *uint64, val uint64) { atomic.StoreUint64(v, val) }

// CAS performs a compare-and-swap of v from old to new, returning whether
// it succeeded. Ordering is sequentially consistent, which is strictly
// stronger than every flavor the spec names (acquire, release, or
// relaxed CAS), so it is always safe to use where any of those is called
// for.
//
//go:nosplit
func CAS(v *uint64, old, new uint64) bool { return atomic.CompareAndSwapUint64(v, old, new) }

// FullFence issues a full compiler+memory fence local to the calling
// thread. It does not, by itself, force other threads to observe it —
// that is the job of internal/rcu/membarrier.Fence.
//
//go:nosplit
func FullFence() {
	// sync/atomic operations are already fully fenced on every arch Go
	// supports; a zero-delta CAS on a throwaway word gives us a named
	// call site without depending on an unexported runtime intrinsic.
	var scratch uint64
	atomic.CompareAndSwapUint64(&scratch, 0, 0)
}

// Pause yields the processor briefly, analogous to a CPU PAUSE/YIELD
// instruction in a spin loop. Go has no portable pause intrinsic, so this
// degrades to Gosched, which at least lets other goroutines (including
// the one this loop is waiting on) run.
//
//go:nosplit
func Pause() { runtime.Gosched() }
