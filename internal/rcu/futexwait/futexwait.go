// Package futexwait implements the futex-backed wait/wake channel spec
// §6 names as an external capability: "wait on word = v, wake N". It
// backs the writer-side spin-then-sleep budget described in spec §4.5
// step 3 (rcu/percpugp's drain loop). The waiter queue of component D
// (internal/rcu/registry) does not use it; its followers block on a
// channel.
//
// Grounded on original_source/src/urcu.c's wait_gp()/cds_wfcq-adjacent
// wake loop: read the futex word, and only actually sleep if it still
// holds the "go to sleep" sentinel value by the time the syscall runs.
package futexwait

import "sync/atomic"

// Word is a futex word: synchronize()'s writer decrements it to signal
// "about to sleep", and any reader that observes a drained generation
// wakes sleepers by restoring it and calling Wake.
type Word struct {
	v atomic.Int32
}

// Load returns the current value.
func (w *Word) Load() int32 { return w.v.Load() }

// Store sets the value without waking anyone; used to reset the word
// before a new spin-then-sleep cycle begins.
func (w *Word) Store(v int32) { w.v.Store(v) }

// Wait blocks while *w == expect, using a real futex(2) FUTEX_WAIT on
// Linux (so a concurrent Wake actually wakes this goroutine's OS thread
// rather than relying on the Go scheduler alone) or a portable spin/park
// fallback elsewhere. It returns as soon as the value changes, spuriously,
// or on wake.
func (w *Word) Wait(expect int32) {
	if w.v.Load() != expect {
		return
	}
	futexWait(&w.v, expect)
}

// Wake stores newValue into the word and wakes up to n waiters blocked in
// Wait. Per spec this is "wake N"; a large n releases every waiter.
// rcu/percpugp's readers call it with n = 1 to wake the parked writer.
func (w *Word) Wake(newValue int32, n int) {
	w.v.Store(newValue)
	futexWake(&w.v, n)
}
