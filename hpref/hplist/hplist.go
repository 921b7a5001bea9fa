// Package hplist implements the hazard-pointer protected doubly-linked
// list of spec §4.8 (component H): a list variant that preserves reader
// next-pointer reachability across deletions under hazard-pointer
// protection, by hiding an element from the reader-visible chain before
// it is ever unlinked from the writer-visible one.
//
// Grounded on the teacher's shadowmem/shadow_cas.go CASBasedShadow: a
// lock-free structure built entirely from atomic.Pointer loads and
// compare-and-swap retry loops, with collisions (here: concurrent
// deletions of neighboring elements) handled by retrying rather than
// locking.
package hplist

import (
	"sync/atomic"

	"github.com/kolkov/rcuhpref/hpref"
)

// Element is one node of the list. It carries two independent
// successor/predecessor pairs, per spec §4.8: a reader head, walked by
// lock-free traversals, and a writer head, walked only by the single
// writer performing insertions and deletions.
type Element struct {
	Value any

	node *hpref.Node // protects this element's existence for readers

	readerNext atomic.Pointer[Element]
	readerPrev atomic.Pointer[Element]

	writerNext *Element
	writerPrev *Element

	hidden atomic.Bool
}

// List is a hazard-pointer protected doubly-linked list. All mutating
// operations (Insert*, Remove) must be called from a single writer at a
// time — the writer-side fields are not synchronized among themselves,
// only made safely observable to concurrent lock-free readers. Readers
// call Next/Prev under hpref Domain protection.
type List struct {
	hp   *hpref.Domain
	head atomic.Pointer[Element] // reader-visible head
	tail *Element                // writer-visible tail, for O(1) append
}

// NewList creates an empty list backed by its own hpref domain.
func NewList() *List {
	return &List{hp: hpref.NewDomain()}
}

// Domain returns the hpref domain backing this list's hazard pointers,
// so callers can pair Remove with an explicit Synchronize before
// reusing or freeing an Element's Value.
func (l *List) Domain() *hpref.Domain { return l.hp }

// PushBack appends a new element at the writer-visible tail and
// publishes it to readers with release ordering.
func (l *List) PushBack(v any) *Element {
	e := &Element{Value: v}
	e.node = hpref.NewNode(func(*hpref.Node) {})

	if l.tail == nil {
		l.head.Store(e)
		l.tail = e
		return e
	}

	prev := l.tail
	e.writerPrev = prev
	e.readerPrev.Store(prev)
	prev.writerNext = e
	// Release-publish: any reader that reaches prev via readerNext must
	// see a fully initialized e.
	prev.readerNext.Store(e)
	l.tail = e
	return e
}

// Next returns the reader-visible successor of e, or nil at the end of
// the list. Safe to call concurrently with Remove.
func (e *Element) Next() *Element { return e.readerNext.Load() }

// Prev returns the reader-visible predecessor of e, or nil at the head.
func (e *Element) Prev() *Element { return e.readerPrev.Load() }

// Front returns the reader-visible head, or nil if the list is empty.
func (l *List) Front() *Element { return l.head.Load() }

// Remove unlinks e in two phases, per spec §4.8:
//
//  1. Hide from readers: walk backward over already-hidden elements
//     (via the writer chain) until a still-visible predecessor is
//     found, and repoint every traversed hidden element's reader-next
//     past e. This guarantees that a reader who already captured a
//     hazard pointer to one of those hidden neighbors still reaches a
//     visible successor, never a dangling one.
//  2. Remove from the writer list — only safe once the caller has
//     separately waited out any hazard pointer to e via
//     l.Domain().Synchronize(e.Node()) or SynchronizePut.
//
// Remove performs phase 1 and the writer-list unlink; it does not wait
// for hazard pointers to drain, since the caller may want to batch
// several removals before paying for one synchronize.
func (l *List) Remove(e *Element) {
	e.hidden.Store(true)

	// Phase 1: hide e from the reader chain.
	pred := e.writerPrev
	for pred != nil && pred.hidden.Load() {
		pred = pred.writerPrev
	}
	next := e.readerNext.Load()
	if pred == nil {
		l.head.Store(next)
	} else {
		pred.readerNext.Store(next)
	}
	if next != nil {
		next.readerPrev.Store(pred)
	}

	// Phase 2: unlink from the writer-only chain.
	if e.writerPrev != nil {
		e.writerPrev.writerNext = e.writerNext
	}
	if e.writerNext != nil {
		e.writerNext.writerPrev = e.writerPrev
	}
	if l.tail == e {
		l.tail = e.writerPrev
	}
}

// Node returns e's hpref node handle, for use with
// List.Domain().Synchronize or SynchronizePut after Remove.
func (e *Element) Node() *hpref.Node { return e.node }
