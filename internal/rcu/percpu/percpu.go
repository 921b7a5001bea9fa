// Package percpu implements the restartable-critical-section fast path
// (spec §4.3, component C): identify the calling "CPU" shard, and perform
// a single read-modify-store on a per-shard word that aborts rather than
// silently corrupting state if the caller's assumed shard turned out to
// be wrong.
//
// True Linux rseq(2) aborts a critical section when the OS preempts,
// migrates, or signals the thread mid-sequence. Go gives user code no
// such hook — goroutines are scheduled by the Go runtime onto OS threads
// that themselves may migrate across CPUs at any point, invisibly. This
// package therefore implements exactly the fallback path the spec already
// names for when rseq is unavailable (§4.3: "a fallback path uses
// sched_getcpu() and an atomic RMW when rseq is unavailable") as the only
// path, with the CAS itself providing the atomicity that true rseq gets
// from hardware-assisted restart: if two shards' updates race, the loser
// simply retries, which is observationally indistinguishable from an
// "abort".
package percpu

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/kolkov/rcuhpref/internal/rcu/rfence"
)

// NumShards returns the number of per-CPU shards this process uses,
// fixed at process start to GOMAXPROCS. Spec's "per-CPU" becomes
// "per-shard" since Go cannot pin a goroutine to a real CPU.
func NumShards() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	return n
}

// CurrentShard returns the shard index the calling goroutine should use
// for this fast-path call. It is stable for the duration of one call but
// carries no guarantee across calls (a goroutine may be rescheduled onto
// a different OS thread between calls), matching the spec's description
// of rseq critical sections as being revalidated on every attempt.
//
//go:nosplit
func CurrentShard() int {
	n := NumShards()
	gid := currentGoroutineID()
	if gid <= 0 {
		return 0
	}
	return int(gid % int64(n))
}

// Abort is the distinguished return value signaling that the fast path
// could not complete because the caller's expected shard no longer
// matches the current one (spec §4.3: "Aborts returning a distinguished
// code on preemption, migration, or signal").
type Abort struct{ ExpectedShard, ActualShard int }

func (a Abort) Error() string {
	return fmt.Sprintf("percpu: aborted, expected shard %d, now on %d", a.ExpectedShard, a.ActualShard)
}

// TryStoreIfZero attempts to, as a single restartable step: verify the
// current shard equals expectedShard, load *slot, and if it is zero,
// store newValue. It returns (true, nil) on a successful store, (false,
// nil) if *slot was already non-zero, or (false, Abort{...}) if the
// calling goroutine's shard no longer matches expectedShard.
//
//go:nosplit
func TryStoreIfZero(slot *uint64, newValue uint64, expectedShard int) (bool, error) {
	if cur := CurrentShard(); cur != expectedShard {
		return false, Abort{ExpectedShard: expectedShard, ActualShard: cur}
	}
	return rfence.CAS(slot, 0, newValue), nil
}

// AddV performs a per-shard increment: if the calling goroutine's shard
// matches expectedShard, atomically adds delta to *counter. Spec's
// rseq_addv.
//
//go:nosplit
func AddV(counter *uint64, delta uint64, expectedShard int) error {
	if cur := CurrentShard(); cur != expectedShard {
		return Abort{ExpectedShard: expectedShard, ActualShard: cur}
	}
	for {
		old := rfence.LoadRelaxed(counter)
		if rfence.CAS(counter, old, old+delta) {
			return nil
		}
		rfence.Pause()
	}
}

// Registration tracks one thread-local-equivalent registration into the
// per-CPU fast path, and rejects nested re-entry the way a real rseq
// registration rejects signal-handler reentrancy (spec §4.3: "nested
// -signal re-entry is detected and rejected").
type Registration struct {
	gid int64
}

var (
	processRefcount atomic.Int64
	activeGoroutines sync.Map // int64 goroutine id -> struct{}
)

// Register records a thread-local-equivalent registration for the
// calling goroutine and bumps the process-level refcount. It returns an
// error if this goroutine is already registered (nested re-entry), which
// per spec §7 is a misuse condition the caller should treat as fatal.
func Register() (*Registration, error) {
	gid := currentGoroutineID()
	if _, loaded := activeGoroutines.LoadOrStore(gid, struct{}{}); loaded {
		return nil, fmt.Errorf("percpu: goroutine %d already registered (nested re-entry)", gid)
	}
	processRefcount.Add(1)
	return &Registration{gid: gid}, nil
}

// Unregister releases r's registration and decrements the process-level
// refcount. Calling Unregister twice, or on a goroutine that never
// registered, is a misuse error per spec §7.
func (r *Registration) Unregister() error {
	if _, loaded := activeGoroutines.LoadAndDelete(r.gid); !loaded {
		return fmt.Errorf("percpu: double-unregister for goroutine %d", r.gid)
	}
	processRefcount.Add(-1)
	return nil
}

// ProcessRefcount returns the number of currently registered goroutines,
// for tests and diagnostics.
func ProcessRefcount() int64 { return processRefcount.Load() }
