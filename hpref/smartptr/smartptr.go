// Package smartptr implements the higher-level reference-to-object
// facade of spec §4.10 (component G), layered directly on hpref:
// Copy, Clear, and HPDereferenceCopy. A Ptr is a stable, owned
// reference — safe to read and pass around without further
// synchronization — obtained either by wrapping a freshly initialized
// node or by hazard-pointer-protected dereference of a pointer slot
// that may be concurrently cleared by a writer.
//
// Grounded on the teacher's syncshadow.SyncVar: a small struct that
// wraps shared state behind a handful of narrowly-scoped accessor
// methods rather than exposing the underlying fields directly.
package smartptr

import (
	"sync/atomic"

	"github.com/kolkov/rcuhpref/hpref"
)

// Ptr is a stable owning reference to a hazard-pointer/refcount
// protected node.
type Ptr struct {
	ref *hpref.Node
}

// Init wraps node — already carrying its owner's initial reference,
// per hpref.NewNode — as the first smart pointer to it.
func Init(node *hpref.Node) *Ptr {
	return &Ptr{ref: node}
}

// Copy takes an additional owning reference to an already-stable smart
// pointer (spec: "Use on a stable sptr"). The result is an independent
// Ptr that must itself be Cleared.
func Copy(sptr *Ptr) *Ptr {
	hpref.Copy(sptr.ref)
	return &Ptr{ref: sptr.ref}
}

// Clear drops sptr's owning reference, running the node's release
// callback if it was the last one.
func Clear(sptr *Ptr) {
	hpref.Clear(sptr.ref)
}

// Node returns the underlying protected node, for callers that need to
// pass it to a lower-level hpref operation (e.g. Domain.SynchronizePut).
func (p *Ptr) Node() *hpref.Node { return p.ref }

// Domain pairs a smart-pointer facade with the hpref.Domain that backs
// its hazard-pointer dereferences.
type Domain struct {
	hp *hpref.Domain
}

// NewDomain creates a smart-pointer domain backed by a fresh hpref
// domain.
func NewDomain() *Domain {
	return &Domain{hp: hpref.NewDomain()}
}

// HPDereferenceCopy dereferences slot — which a writer may concurrently
// clear or replace — under hazard-pointer protection, then promotes the
// result to an owning refcount before returning it as a stable Ptr.
// Spec: "Use HP internally to deref sptr_p... Use smartptr Copy
// internally." Returns nil if slot currently holds nothing.
func (d *Domain) HPDereferenceCopy(slot *atomic.Pointer[hpref.Node]) *Ptr {
	ctx, ok := d.hp.Get(slot)
	if !ok {
		return nil
	}
	d.hp.PromoteToRef(&ctx)
	return &Ptr{ref: ctx.Node()}
}
