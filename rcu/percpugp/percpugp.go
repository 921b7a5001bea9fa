// Package percpugp implements the per-CPU-counter flavor of the
// grace-period engine (spec §4.5, component E/per-CPU): readers increment
// a per-shard lock counter on the current grace-period phase and a
// matching unlock counter on exit; synchronize() flips the phase and
// drains both phases in turn so that every critical section that began
// before the call is guaranteed to have ended before it returns.
//
// Grounded on original_source/src/urcu.c (wait_for_readers/synchronize_srcu
// and wake_up_gp) for the drain and wake algorithm, and on the teacher's
// vectorclock.VectorClock iteration style for the summation loop.
package percpugp

import (
	"sync"

	"github.com/kolkov/rcuhpref/internal/rcu/diag"
	"github.com/kolkov/rcuhpref/internal/rcu/futexwait"
	"github.com/kolkov/rcuhpref/internal/rcu/gpcounter"
	"github.com/kolkov/rcuhpref/internal/rcu/membarrier"
	"github.com/kolkov/rcuhpref/internal/rcu/percpu"
	"github.com/kolkov/rcuhpref/internal/rcu/registry"
	"github.com/kolkov/rcuhpref/internal/rcu/rfence"
)

// activeAttempts bounds the spin phase of the drain loop before a writer
// backs off to the futex, mirroring RCU_QS_ACTIVE_ATTEMPTS in the C
// original.
const activeAttempts = 200

// shardCounters holds one phase's {lock,unlock} pair. Spec §3 also names
// a separate {rseq_lock,rseq_unlock} pair for the non-rseq fallback path;
// since percpu.AddV is this port's only increment path (there is no
// separate non-rseq instruction sequence in Go), that pair collapses into
// this one without changing the drain formula.
type shardCounters struct {
	lock, unlock uint64
}

// Reader is a registered reader descriptor. Per-CPU flavor critical
// sections do not need it for correctness (the shard counters alone are
// sufficient) but it exists so destroy_domain can enforce spec §3's
// "destroy requires empty registry".
type Reader struct {
	entry *registry.Entry[*Reader]
}

// Token is returned by ReadLock and must be passed to ReadUnlock. An
// explicit token sidesteps Go's lack of stable per-goroutine storage
// while still supporting arbitrary nesting (spec §6): each ReadLock call
// produces its own independent token, unlockable in any order.
type Token struct {
	shard int
	phase uint32
}

// Domain is one independent per-CPU-flavor RCU instance (spec §3).
type Domain struct {
	phase    gpcounter.Phase
	counters [2][]shardCounters // counters[phase][shard]
	gpMu     sync.Mutex
	readers  registry.Registry[*Reader]
	waiters  registry.WaiterQueue
	futex    futexwait.Word
	mb       *membarrier.Bridge

	asyncOnce sync.Once
	asyncCh   chan func()
}

// NewDomain creates a domain ready for readers and writers.
func NewDomain() *Domain {
	n := percpu.NumShards()
	return &Domain{
		counters: [2][]shardCounters{make([]shardCounters, n), make([]shardCounters, n)},
		mb:       membarrier.New(),
	}
}

// RegisterThread adds the caller to the domain's reader registry.
func (d *Domain) RegisterThread() *Reader {
	r := &Reader{}
	r.entry = d.readers.Insert(r)
	return r
}

// UnregisterThread removes r from the registry.
func (d *Domain) UnregisterThread(r *Reader) {
	d.readers.Remove(r.entry)
}

// Destroy reports whether the registry is empty, per spec §3 ("destroy
// requires empty registry"); the caller is responsible for aborting if
// it is not.
func (d *Domain) Destroy() bool { return d.readers.Empty() }

// MustDestroy asserts the registry is empty and aborts the process
// otherwise, per spec §7's misuse policy for "destroy with non-empty
// registry": assert and abort, never a recoverable error.
func (d *Domain) MustDestroy() {
	diag.Assert(d.Destroy(), "destroy called on percpugp domain with %d registered reader(s)", d.readers.Len())
}

// ResetAfterFork reinitializes d for use in a freshly forked child
// process, per spec §4.11: the parent's reader goroutines do not exist
// in the child, so the registry is emptied rather than drained, every
// shard counter is zeroed, and the futex word is cleared. Call this
// only from the child side of a fork; the parent domain this was copied
// from is unaffected.
func (d *Domain) ResetAfterFork() {
	d.readers.Reset()
	d.waiters.Reset()
	for phase := range d.counters {
		for i := range d.counters[phase] {
			d.counters[phase][i] = shardCounters{}
		}
	}
	d.phase = gpcounter.Phase{}
	d.futex.Store(0)
}

// ReadLock enters a critical section and returns a token to pass to
// ReadUnlock. Spec §4.5: "load the current phase bit p... increment
// count[p].lock on the current CPU via rseq-addv; then issue a slave
// fence."
//
//go:nosplit
func (d *Domain) ReadLock() Token {
	shard := percpu.CurrentShard()
	phase := d.phase.Load()
	for {
		if err := percpu.AddV(&d.counters[phase][shard].lock, 1, shard); err == nil {
			break
		}
		// Abort: the goroutine's shard changed between CurrentShard()
		// and AddV's re-check. Recompute both and retry; phase is
		// re-read too since a synchronize() may have flipped it in
		// the meantime and the retry should use the freshest value.
		shard = percpu.CurrentShard()
		phase = d.phase.Load()
	}
	rfence.FullFence() // slave fence: cheap, reader-side half of the pair.
	return Token{shard: shard, phase: phase}
}

// ReadUnlock exits the critical section identified by tok. Spec §4.5:
// "issue a slave fence, then increment count[p].unlock on the current
// CPU. Phase used at unlock equals the phase saved at lock entry."
//
//go:nosplit
func (d *Domain) ReadUnlock(tok Token) {
	rfence.FullFence() // slave fence, ordered before the unlock increment.
	for {
		// The counter array is indexed by the shard recorded at lock
		// time, not whatever shard this goroutine is on now, so a
		// migrated goroutine retries against that same shard rather
		// than recomputing one; AddV's abort only fires when
		// CurrentShard() != tok.shard.
		if err := percpu.AddV(&d.counters[tok.phase][tok.shard].unlock, 1, tok.shard); err == nil {
			break
		}
	}
	d.wakeIfWriterWaiting()
}

// wakeIfWriterWaiting mirrors the C original's wake_up_gp: if the futex
// word shows a writer parked (sentinel -1), reset it and wake one
// waiter.
func (d *Domain) wakeIfWriterWaiting() {
	if d.futex.Load() == -1 {
		d.futex.Wake(0, 1)
	}
}

// Synchronize blocks until every reader critical section that began
// strictly before this call has ended (spec §4.5, Property P2/P3).
func (d *Domain) Synchronize() {
	ticket := d.waiters.Join()
	if !ticket.IsLeader() {
		ticket.Wait()
		return
	}

	d.gpMu.Lock()
	d.mb.Fence()

	// Drain the phase readers are not currently entering first.
	prev := d.phase.Load() ^ 1
	d.drain(prev)

	// Full fence, then flip the phase (release store per I1): any
	// reader starting after this point observes the new phase.
	d.mb.Fence()
	old := d.phase.Flip()

	// Drain the phase that was current until the flip.
	d.drain(old)

	d.mb.Fence()
	d.gpMu.Unlock()

	d.waiters.Complete()
}

// drain waits until Σ(lock[phase]) - Σ(unlock[phase]) == 0 across every
// shard, reading unlocks before locks so a migrated reader can never show
// an unlock without its earlier lock having already been counted.
func (d *Domain) drain(phase uint32) {
	counters := d.counters[phase]
	attempts := 0
	for {
		if d.sum(counters) == 0 {
			if d.futex.Load() == -1 {
				d.mb.Fence()
				d.futex.Store(0)
			}
			return
		}

		attempts++
		if attempts < activeAttempts {
			rfence.Pause()
			continue
		}

		// Publish the "about to sleep" sentinel, fence so a reader's
		// wakeIfWriterWaiting check is guaranteed to observe it, then
		// re-check once more before actually parking: a reader may
		// have unlocked in the window between our last sum and now.
		d.futex.Store(-1)
		d.mb.Fence()
		if d.sum(counters) == 0 {
			d.futex.Store(0)
			return
		}
		d.futex.Wait(-1)
		attempts = 0
	}
}

// SynchronizeAsync registers cb to run once a grace period that starts
// no earlier than this call has completed, without blocking the caller.
// This is a supplemental feature (spec §5 permits "asynchronous
// variants"; not the out-of-scope call-rcu batching executor of spec
// §1, which coalesces many callbacks behind one worker-pool grace
// period across an entire process) — here, one worker goroutine per
// domain processes queued callbacks strictly in submission order, each
// behind its own Synchronize call.
func (d *Domain) SynchronizeAsync(cb func()) {
	d.asyncOnce.Do(func() {
		d.asyncCh = make(chan func(), 64)
		go d.asyncWorker()
	})
	d.asyncCh <- cb
}

func (d *Domain) asyncWorker() {
	for cb := range d.asyncCh {
		d.Synchronize()
		cb()
	}
}

func (d *Domain) sum(counters []shardCounters) int64 {
	var sum int64
	for i := range counters {
		unlock := rfence.LoadRelaxed(&counters[i].unlock)
		lock := rfence.LoadRelaxed(&counters[i].lock)
		sum += int64(lock) - int64(unlock)
	}
	return sum
}
