// Package hpref implements the hazard-pointer-plus-refcount engine (spec
// §4.7, component F): readers publish the pointer they are about to
// dereference into a per-CPU hazard slot; writers that unpublish a
// pointer scan every slot and wait until none still advertises it. A
// reference-count fallback promotes long-lived references and absorbs
// slot exhaustion.
//
// Grounded on original_source/include/urcu/hpref.h and hpref.c for the
// protocol (slot occupancy via restartable CAS, emergency-slot
// promotion, membarrier-paired re-check), and on the teacher's
// shadowmem.VarState for the adaptive-representation shape: a small
// number of inline slots with a promotion escape hatch, instead of one
// scheme sized for the worst case.
package hpref

import "sync/atomic"

// Node is a hazard-pointer/refcount protected object header, analogous
// to struct hpref_node in the C original. Embed it (or hold one
// alongside the protected payload) in any type that readers will
// dereference through a Domain.
type Node struct {
	refcount atomic.Int64
	release  func(*Node)
}

// NewNode creates a node with an initial reference count of 1, owned by
// the caller, per spec §3 ("a node is initialized (refcount=1)").
// release is invoked exactly once, when the refcount drops to zero.
// Hazard-pointer slots hold no count: release runs at zero whether or
// not a slot still advertises the node. Domain.SynchronizePut waits for
// the slots to clear before it drops the owner's reference.
func NewNode(release func(*Node)) *Node {
	n := &Node{release: release}
	n.refcount.Store(1)
	return n
}

// get increments the refcount. Used internally by Copy and by
// PromoteToRef.
func (n *Node) get() {
	n.refcount.Add(1)
}

// put decrements the refcount and runs the release callback exactly
// once, when it reaches zero. It does not look at hazard slots; callers
// such as SynchronizePut wait for those before the final put.
func (n *Node) put() {
	if n.refcount.Add(-1) == 0 {
		n.release(n)
	}
}

// RefCount returns the current reference count, for tests and
// diagnostics only.
func (n *Node) RefCount() int64 { return n.refcount.Load() }
