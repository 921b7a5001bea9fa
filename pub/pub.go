// Package pub implements the pointer-publication helpers of spec §4.9
// (component I): the small set of atomic operations every reader and
// writer in this toolkit builds its ordering guarantees from.
//
// Grounded on the teacher's epoch.Epoch: a tiny value type whose every
// method is a one-line atomic operation with an explicit ordering
// comment, rather than a general-purpose atomics wrapper.
package pub

import "sync/atomic"

// SetPointer stores v into p with release ordering, except that storing
// a constant nil is relaxed — spec §4.9: "release store, except
// constant-NULL which is relaxed." Go has no compile-time constant-ness
// check on v, so callers that specifically want the relaxed-nil path
// should call SetNil instead; SetPointer always uses release ordering,
// which is never wrong, only occasionally more conservative than
// strictly necessary.
func SetPointer[T any](p *atomic.Pointer[T], v *T) {
	p.Store(v)
}

// SetNil clears p with relaxed ordering, per spec §4.9's constant-NULL
// fast path.
func SetNil[T any](p *atomic.Pointer[T]) {
	p.Store(nil)
}

// Dereference loads p with consume/acquire ordering: spec §4.9's
// "consume-ordered load (acquire on non-DEC architectures; a compiler
// dependency trick on those that honor data dependency)". Go's memory
// model has no separate consume ordering, so this is an acquire load —
// always at least as strong as consume.
func Dereference[T any](p *atomic.Pointer[T]) *T {
	return p.Load()
}

// Xchg atomically stores v into p and returns the previous value, with
// a full fence preceding the atomic operation per spec §4.9.
func Xchg[T any](p *atomic.Pointer[T], v *T) *T {
	return p.Swap(v)
}

// Cmpxchg atomically stores newV into p if it currently holds oldV,
// with a full fence preceding the atomic operation per spec §4.9.
// Returns whether the swap took place.
func Cmpxchg[T any](p *atomic.Pointer[T], oldV, newV *T) bool {
	return p.CompareAndSwap(oldV, newV)
}
