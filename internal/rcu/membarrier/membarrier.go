// Package membarrier implements the "master fence": a process-wide full
// fence that, once it returns, guarantees every other thread in the
// process has executed a full memory fence since the call began.
//
// The preferred implementation is Linux's expedited membarrier syscall
// (sys_membarrier); when that capability is absent (wrong OS, unsupported
// kernel, sandboxed away) it silently degrades to a local full fence —
// per spec §4.2 and §7, this is a capability-absence fallback, not an
// error, and the difference is only ever observable as throughput.
package membarrier

import (
	"sync"
	"sync/atomic"

	"github.com/kolkov/rcuhpref/internal/rcu/rfence"
)

// Bridge probes membarrier availability once and serves Fence calls
// thereafter. The zero value is not usable; call New.
type Bridge struct {
	registerOnce sync.Once
	available    atomic.Bool

	// useSignalFallback enables the legacy signal-based master barrier
	// described in spec §9 ("Signal flavor"). It is off by default: the
	// membarrier capability is preferred, and the signal path is kept
	// only as an optional, explicitly-enabled fallback for environments
	// where even a local full fence would be insufficient (none of the
	// targets this module runs on require it today).
	useSignalFallback bool
}

// New returns a Bridge that will probe membarrier support on first Fence
// call.
func New() *Bridge {
	return &Bridge{}
}

// Available reports whether the expedited-membarrier capability was
// successfully registered. Only meaningful after at least one Fence call.
func (b *Bridge) Available() bool { return b.available.Load() }

// EnableSignalFallback turns on the legacy signal-based master barrier as
// a secondary fallback below the local full fence, per spec §9. It has no
// effect once the membarrier capability is confirmed available.
func (b *Bridge) EnableSignalFallback() { b.useSignalFallback = true }

// Fence forces every thread in the process to have passed through a full
// fence since this call began, or falls back to a local full fence (and
// optionally the signal-based barrier) if the capability is unavailable.
func (b *Bridge) Fence() {
	b.registerOnce.Do(func() { b.available.Store(registerMembarrier()) })

	if b.available.Load() && fenceMembarrier() {
		return
	}

	rfence.FullFence()
	if b.useSignalFallback {
		signalFence()
	}
}
