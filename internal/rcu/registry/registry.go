// Package registry implements the process-global reader registry and the
// writer waiter queue of spec §3/§4.4 (component D): a mutex-protected,
// insertion-ordered collection of reader descriptors, nested inside the
// domain's grace-period critical section, plus a FIFO that coalesces
// concurrent synchronize() callers behind a single leader.
//
// Grounded on the teacher's internal/race/api/race.go: a sync.Map-style
// "live descriptors" registry (there: goroutine ID -> RaceContext; here:
// reader descriptor -> domain) paired with a mutex-guarded recycled-slot
// pool (there: freeTIDs/tidPoolMu; here: the waiter FIFO).
package registry

import (
	"container/list"
	"sync"
)

// Registry is a mutex-protected, insertion-ordered collection of reader
// descriptors of type T. Nest it inside the domain's grace-period mutex
// by always acquiring the grace-period lock before calling Snapshot.
type Registry[T any] struct {
	mu sync.Mutex
	l  list.List
}

// Entry is the handle returned by Insert; pass it to Remove to unlink.
type Entry[T any] struct {
	elem *list.Element
}

// Insert adds v to the end of the registry and returns a handle for
// later removal.
func (r *Registry[T]) Insert(v T) *Entry[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.l.PushBack(v)
	return &Entry[T]{elem: e}
}

// Remove unlinks the entry. Safe to call at most once per Entry.
func (r *Registry[T]) Remove(e *Entry[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.l.Remove(e.elem)
}

// Lock acquires the registry mutex. Callers performing a multi-step
// traversal (e.g. the grace-period drain loop, which must observe a
// stable snapshot while readers register/unregister) hold this for the
// duration, mirroring spec §3's "registry mutex... nested inside the
// grace-period mutex".
func (r *Registry[T]) Lock() { r.mu.Lock() }

// Unlock releases the registry mutex.
func (r *Registry[T]) Unlock() { r.mu.Unlock() }

// Snapshot returns a copy of every currently registered value, in
// insertion order. Callers that need a stable view across several steps
// should call Lock first and Unlock after they are done with the result,
// since registration can still mutate the underlying list concurrently
// from other goroutines' Insert/Remove calls.
func (r *Registry[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry[T]) snapshotLocked() []T {
	out := make([]T, 0, r.l.Len())
	for e := r.l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(T))
	}
	return out
}

// SnapshotLocked is identical to Snapshot but assumes the caller already
// holds the lock via Lock().
func (r *Registry[T]) SnapshotLocked() []T { return r.snapshotLocked() }

// Len returns the current registry size.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.l.Len()
}

// Empty reports whether the registry has no entries, used by
// destroy_domain per spec §3 ("destroy, which asserts empty registry").
func (r *Registry[T]) Empty() bool { return r.Len() == 0 }

// Reset empties the registry in place, for use by a domain's
// ResetAfterFork (spec §4.11): a freshly forked child inherits none of
// the parent's reader goroutines, so their entries are simply dropped
// rather than unregistered one at a time.
func (r *Registry[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.l.Init()
}
