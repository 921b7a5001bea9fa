package membarrier

import (
	"sync/atomic"

	"github.com/kolkov/rcuhpref/internal/rcu/rfence"
)

// needMB is incremented by signalFence and decremented by readers that
// observe it on their next fast-path entry. This is the module's analog
// of original_source/src/urcu.c's per-thread need_mb flag toggled by a
// pthread_kill(SIGRCU) signal handler.
//
// Go cannot deliver a signal to one specific goroutine (signals are
// per-OS-thread and goroutines migrate between threads), so the true
// "kick every registered reader's signal handler" scheme from the C
// original is not portable. This fallback keeps the same *shape* — a
// shared flag the writer raises and every reader is responsible for
// observing and clearing — at the cost of being cooperative rather than
// preemptive: a reader only picks up the flag the next time it calls
// ObserveNeedMB, not asynchronously mid-instruction. Per spec §9, this
// flavor is optional and is expected to be inferior to the membarrier
// path; it exists only so a caller that explicitly wants the legacy
// behavior (e.g. for parity testing) can ask for it.
var needMB atomic.Uint32

// signalFence is the degraded writer-side half of the legacy signal-based
// master barrier: it raises the shared flag and spins briefly waiting
// for outstanding readers to acknowledge it, mirroring smp_mb_master's
// wait loop in the C original.
func signalFence() {
	needMB.Add(1)
	// Best-effort: give cooperating readers a chance to observe and
	// clear the flag. There is no bound on how long a reader may take
	// to call ObserveNeedMB next, so this is advisory, not a guarantee —
	// consistent with the degraded nature of this fallback.
	for i := 0; i < 64 && needMB.Load() != 0; i++ {
		rfence.Pause()
	}
}

// ObserveNeedMB is called by a reader's fast path; if the flag is set it
// issues a local full fence and clears its share of the flag.
func ObserveNeedMB() {
	if needMB.Load() != 0 {
		rfence.FullFence()
		needMB.Add(^uint32(0)) // decrement
	}
}
