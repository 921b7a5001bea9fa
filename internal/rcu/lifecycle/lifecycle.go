// Package lifecycle implements the process- and thread-constructor
// equivalents of spec §4.11 (component J): on process start, fix the
// per-CPU shard count; on first request, probe the membarrier
// capability; on each
// thread's start and end, register and unregister it with the per-CPU
// fast path.
//
// Go has no process fork() and no compiler-inserted constructor/
// destructor attributes, so "process constructor" here means the
// package init() below, run once at program start, and "thread
// constructor/destructor" means the explicit ThreadRegister/
// ThreadUnregister calls a goroutine makes around its registered
// lifetime — there is no hook Go will call automatically at goroutine
// start/exit the way pthread_key destructors fire in the C original.
//
// Grounded on the teacher's internal/race/api/race.go: a package init()
// that builds the one process-wide singleton (there: the detector; here:
// the shard count) before any instrumentation call
// can run.
package lifecycle

import (
	"sync"

	"github.com/kolkov/rcuhpref/internal/rcu/diag"
	"github.com/kolkov/rcuhpref/internal/rcu/membarrier"
	"github.com/kolkov/rcuhpref/internal/rcu/percpu"
)

var (
	bridge     = membarrier.New()
	probeOnce  sync.Once
	shardCount int
)

func init() {
	// Process-constructor equivalent: the per-CPU shard count is fixed
	// for the lifetime of the process (GOMAXPROCS at start), per spec
	// §4.11's "create per-CPU memory pools".
	shardCount = percpu.NumShards()
}

// MembarrierAvailable probes the membarrier capability on its first call
// and reports the result thereafter, per spec §4.11's "query the
// membarrier capability". The probe is deferred to first call, rather
// than done in init(), because probing issues a real syscall and
// packages that never call a flavor's Synchronize should not pay for it
// at program start.
func MembarrierAvailable() bool {
	probeOnce.Do(func() { bridge.Fence() })
	return bridge.Available()
}

// NumShards returns the per-CPU shard count fixed at process start.
func NumShards() int { return shardCount }

// ThreadRegister is the thread-constructor equivalent of spec §4.11: a
// goroutine that intends to use the per-CPU fast path (directly, or
// indirectly via a flavor's ReadLock) registers once at the start of its
// registered lifetime. Double-registration is the "misuse" condition
// named in spec §7 ("policy: assert and abort"), so this aborts the
// process rather than returning an error a caller might ignore.
func ThreadRegister() *percpu.Registration {
	r, err := percpu.Register()
	diag.Assert(err == nil, "ThreadRegister: %v", err)
	return r
}

// ThreadUnregister is the thread-destructor equivalent: call it once,
// paired with a prior successful ThreadRegister, when a goroutine is
// done using the per-CPU fast path.
func ThreadUnregister(r *percpu.Registration) error {
	return r.Unregister()
}

// Resetter is implemented by every flavor's Domain type (rcu/percpugp,
// rcu/qsbr, hpref), each of which knows how to empty its own registry
// and reset its own counters for a freshly forked child.
type Resetter interface {
	ResetAfterFork()
}

// ResetAfterFork is the supplemental fork-child hook of spec §4.11: Go
// has no fork() of its own, so this exists for embedders that spawn a
// child via syscall.ForkExec (or an equivalent that duplicates the
// address space, e.g. a custom cgo wrapper around fork(2)) and need the
// child copy of each domain to start as if freshly created, discarding
// any reader state inherited from the parent at fork time. The parent's
// domains are never touched by this call; it is the child process's
// responsibility to call it on its own copies before resuming RCU use.
func ResetAfterFork(domains ...Resetter) {
	for _, d := range domains {
		d.ResetAfterFork()
	}
}
