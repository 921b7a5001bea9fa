// Package qsbr implements the quiescent-state-based flavor of the
// grace-period engine (spec §4.6, component E/QSBR): readers do not pay
// on every critical-section entry/exit; instead they periodically
// announce a quiescent state, and a writer's synchronize() waits until
// every registered reader has announced one since the call began.
//
// Grounded on the teacher's goroutine.RaceContext/epoch.Epoch pair: a
// per-thread counter cached for O(1) comparison against a shared
// reference value, with the same "compare without dereferencing shared
// state on the hot path" shape this package's Reader.ctr read gets.
package qsbr

import (
	"sync"
	"sync/atomic"

	"github.com/kolkov/rcuhpref/internal/rcu/diag"
	"github.com/kolkov/rcuhpref/internal/rcu/membarrier"
	"github.com/kolkov/rcuhpref/internal/rcu/registry"
	"github.com/kolkov/rcuhpref/internal/rcu/rfence"
)

// activeAttempts bounds the spin phase of each synchronize() pass over
// the input list before yielding, mirroring percpugp's drain budget.
const activeAttempts = 200

// state classifies a reader against the domain's current counter value,
// per spec §4.6.
type state int

const (
	stateInactive state = iota
	stateActiveCurrent
	stateActiveOld
)

// Reader is a QSBR-registered thread. Zero ctr means offline; otherwise
// ctr holds the domain counter value this reader last observed, either
// by going online or by announcing a quiescent state.
type Reader struct {
	ctr   atomic.Uint64
	entry *registry.Entry[*Reader]
}

// ReadOngoing reports whether this reader is currently online, per spec
// §6's read_ongoing (QSBR: "true iff ... online").
func (r *Reader) ReadOngoing() bool { return r.ctr.Load() != 0 }

// Domain is one independent QSBR-flavor RCU instance.
type Domain struct {
	counter atomic.Uint64 // starts at 1; 0 is reserved for "offline"
	readers registry.Registry[*Reader]
	waiters registry.WaiterQueue
	mb      *membarrier.Bridge

	asyncOnce sync.Once
	asyncCh   chan func()
}

// NewDomain creates a domain with its counter at the online baseline.
func NewDomain() *Domain {
	d := &Domain{mb: membarrier.New()}
	d.counter.Store(1)
	return d
}

// RegisterThread adds a new, initially-online reader to the domain.
func (d *Domain) RegisterThread() *Reader {
	r := &Reader{}
	r.ctr.Store(d.counter.Load())
	r.entry = d.readers.Insert(r)
	return r
}

// UnregisterThread removes r from the registry. r's gp back-link has no
// direct analogue in this port since Reader carries no domain pointer;
// the caller must not reuse r afterward.
func (d *Domain) UnregisterThread(r *Reader) {
	d.readers.Remove(r.entry)
}

// Destroy reports whether the registry is empty.
func (d *Domain) Destroy() bool { return d.readers.Empty() }

// MustDestroy asserts the registry is empty and aborts the process
// otherwise, per spec §7's misuse policy for "destroy with non-empty
// registry".
func (d *Domain) MustDestroy() {
	diag.Assert(d.Destroy(), "destroy called on qsbr domain with %d registered reader(s)", d.readers.Len())
}

// ResetAfterFork reinitializes d for use in a freshly forked child
// process, per spec §4.11: the registry is emptied (the parent's reader
// goroutines do not exist in the child) and the counter restarts at the
// online baseline.
func (d *Domain) ResetAfterFork() {
	d.readers.Reset()
	d.waiters.Reset()
	d.counter.Store(1)
}

// ThreadOffline marks r quiescent until ThreadOnline is called again.
// Spec §4.6: "thread_offline() stores 0".
func (r *Reader) ThreadOffline() { r.ctr.Store(0) }

// ThreadOnline marks r active as of the domain's current counter value.
// Spec §4.6: "thread_online() copies the domain counter".
func (r *Reader) ThreadOnline(d *Domain) { r.ctr.Store(d.counter.Load()) }

// QuiescentState announces that r is momentarily not inside any
// critical section, by re-stamping its counter with the domain's
// current value. Call this between logical units of work on the
// read side; it is the QSBR equivalent of a read_unlock/read_lock pair.
func (r *Reader) QuiescentState(d *Domain) {
	r.ctr.Store(d.counter.Load())
}

func classify(readerCtr, domainCounter uint64) state {
	switch {
	case readerCtr == 0:
		return stateInactive
	case readerCtr == domainCounter:
		return stateActiveCurrent
	default:
		return stateActiveOld
	}
}

// Synchronize blocks until every registered reader has passed through a
// quiescent state since the call began. self, if non-nil, must be the
// calling goroutine's own registered Reader on this domain; it is taken
// offline for the duration of the call so a writer that is also a
// reader never waits on itself, then restored to online afterward, per
// spec §4.6 ("writers calling synchronize() while registered as readers
// must temporarily go offline").
func (d *Domain) Synchronize(self *Reader) {
	if self != nil {
		self.ThreadOffline()
		defer self.ThreadOnline(d)
	}

	ticket := d.waiters.Join()
	if !ticket.IsLeader() {
		ticket.Wait()
		return
	}

	d.mb.Fence()
	d.counter.Add(1)
	target := d.counter.Load()
	d.mb.Fence()

	input := d.readers.Snapshot()
	attempts := 0
	for len(input) > 0 {
		next := input[:0]
		for _, r := range input {
			switch classify(r.ctr.Load(), target) {
			case stateInactive, stateActiveCurrent:
				// moved to the quiescent list: simply dropped, since
				// this port doesn't need the quiescent list's contents
				// for anything beyond "no longer blocking".
			default:
				next = append(next, r)
			}
		}
		input = next
		if len(input) == 0 {
			break
		}

		attempts++
		if attempts < activeAttempts {
			rfence.Pause()
			continue
		}
		attempts = 0
		rfence.Pause()
	}

	d.mb.Fence()
	d.waiters.Complete()
}

// SynchronizeAsync registers cb to run once a grace period that starts
// no earlier than this call has completed, without blocking the caller.
// Supplemental per spec §5 ("implementers may offer asynchronous
// variants"); see percpugp.Domain.SynchronizeAsync for the shared
// rationale. The worker goroutine is never itself a registered reader,
// so it always calls Synchronize(nil).
func (d *Domain) SynchronizeAsync(cb func()) {
	d.asyncOnce.Do(func() {
		d.asyncCh = make(chan func(), 64)
		go d.asyncWorker()
	})
	d.asyncCh <- cb
}

func (d *Domain) asyncWorker() {
	for cb := range d.asyncCh {
		d.Synchronize(nil)
		cb()
	}
}
