package hpref

import (
	"sync/atomic"

	"github.com/kolkov/rcuhpref/internal/rcu/percpu"
)

// slotsPerCPU matches spec §3's "fixed width (e.g., 64)". Index
// emergencyIndex is reserved for the refcount fallback; every other
// index is an ordinary hazard slot.
const slotsPerCPU = 64

const emergencyIndex = slotsPerCPU - 1

// depthStride is the granularity scan_depth grows/shrinks by, spec
// §4.7's "multiple of the depth stride (e.g., 8)".
const depthStride = 8

// slotState is the tagged-pointer payload of one slot: the advertised
// node together with the global period bit in effect when it was
// published. Go cannot pack a pointer and a tag bit into one
// word-sized CAS target without losing GC visibility of the pointer
// (storing it as a bare uintptr would let the collector reclaim the
// node out from under the tag), so this port stores {node, tag}
// together behind a single atomic.Pointer indirection instead: the CAS
// target is the *slotState pointer, which keeps both fields consistent
// and keeps node alive exactly as long as some slot references it.
type slotState struct {
	node *Node
	tag  uint32
}

// Slot is one hazard-pointer slot. A nil *slotState (or a *slotState
// with node == nil) means the slot is empty. claimed is the per-CPU
// restartable-sequence ownership gate (spec I5): a scanner must win it
// through percpu.TryStoreIfZero before publishing into v. Occupancy, as
// seen by a scanner or waiter, is still determined by v alone — claimed
// only arbitrates which goroutine gets to write it.
type Slot struct {
	v       atomic.Pointer[slotState]
	claimed uint64
}

// tryOccupy attempts the restartable CAS-like sequence of spec I5: claim
// the slot through the per-CPU fast path (percpu.TryStoreIfZero, tied to
// expectedShard exactly as the fast path requires), then, once claimed,
// publish node tagged with the current period. It returns (false, nil)
// if the slot was already claimed by the time of the attempt (the
// caller should move on to the next slot or the emergency slot), or
// (false, err) if the calling goroutine had migrated off expectedShard
// mid-attempt — the caller should treat that the same as percpugp's
// ReadLock treats an Abort: recompute the shard and restart.
func (s *Slot) tryOccupy(node *Node, tag uint32, expectedShard int) (bool, error) {
	ok, err := percpu.TryStoreIfZero(&s.claimed, 1, expectedShard)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	s.v.Store(&slotState{node: node, tag: tag})
	return true, nil
}

// clear release-stores NULL into the slot, per spec §4.7 ("release-store
// NULL into the slot"), and frees the claim gate for a future occupant.
func (s *Slot) clear() {
	s.v.Store(nil)
	atomic.StoreUint64(&s.claimed, 0)
}

// load reads the current occupant, or (nil, 0) if empty.
func (s *Slot) load() (*Node, uint32) {
	cur := s.v.Load()
	if cur == nil {
		return nil, 0
	}
	return cur.node, cur.tag
}

// cpuSlots is one CPU's hazard-slot array plus its scan-depth hint.
// scan_depth is kept as its own field rather than literally overlaid on
// slot 0's storage (the C original's cache-line-economizing union trick
// has no behavioral effect in a garbage-collected host and would only
// obscure the type).
type cpuSlots struct {
	slots       [slotsPerCPU]Slot
	scanDepth   atomic.Uint32 // count of leading ordinary slots (indices 0..scanDepth-1) that may be occupied
	roundRobin  atomic.Uint32 // position hint for spreading new publications
}

func newCPUSlots() *cpuSlots {
	c := &cpuSlots{}
	c.scanDepth.Store(depthStride)
	return c
}

// growScanDepth raises scanDepth to the smallest multiple of
// depthStride that covers idx, via a monotonic CAS loop (spec I6/§4.7
// step 6).
func (c *cpuSlots) growScanDepth(idx int) {
	want := uint32(((idx / depthStride) + 1) * depthStride)
	if want > emergencyIndex {
		want = emergencyIndex
	}
	for {
		cur := c.scanDepth.Load()
		if cur >= want {
			return
		}
		if c.scanDepth.CompareAndSwap(cur, want) {
			return
		}
	}
}

// shrinkScanDepth attempts to lower scanDepth to newDepth via exchange,
// per spec §4.7's hysteresis shrink. The caller is responsible for
// re-scanning the removed range afterward and restoring scanDepth if a
// slot became occupied in the meantime.
func (c *cpuSlots) shrinkScanDepth(newDepth uint32) (prev uint32, ok bool) {
	for {
		cur := c.scanDepth.Load()
		if cur <= newDepth {
			return cur, false
		}
		if c.scanDepth.CompareAndSwap(cur, newDepth) {
			return cur, true
		}
	}
}

func (c *cpuSlots) nextHint() uint32 {
	for {
		cur := c.roundRobin.Load()
		next := cur + 1
		if next >= emergencyIndex {
			next = 0
		}
		if c.roundRobin.CompareAndSwap(cur, next) {
			return cur
		}
	}
}
