package hpref

import (
	"sync"
	"sync/atomic"

	"github.com/kolkov/rcuhpref/internal/rcu/gpcounter"
	"github.com/kolkov/rcuhpref/internal/rcu/membarrier"
	"github.com/kolkov/rcuhpref/internal/rcu/percpu"
	"github.com/kolkov/rcuhpref/internal/rcu/rfence"
)

// CtxType distinguishes a hazard-pointer-protected context from one
// that has fallen back to (or been promoted to) a plain reference
// count.
type CtxType int

const (
	// TypeHP means ctx.slot holds the live hazard pointer.
	TypeHP CtxType = iota
	// TypeRef means the reference was obtained or promoted to a
	// refcount; ctx.slot is unused.
	TypeRef
)

// Ctx is the reader-held context returned by Get, per spec §3's
// "Reader context = {slot_pointer, node_pointer, type}".
type Ctx struct {
	slot *Slot
	node *Node
	typ  CtxType
	cpu  int
}

// Node returns the protected object this context references.
func (c *Ctx) Node() *Node { return c.node }

// Type reports whether this context is hazard-pointer- or
// refcount-backed.
func (c *Ctx) Type() CtxType { return c.typ }

// Domain is one independent HPREF instance: its own per-CPU slot
// arrays and its own global period bit.
type Domain struct {
	cpus   []*cpuSlots
	period gpcounter.Phase
	mu     sync.Mutex // sync-lock, held only during a broad Synchronize
	mb     *membarrier.Bridge
}

// NewDomain creates a domain with one slot array per shard (spec's
// per-CPU pool, see internal/rcu/percpu's shard-for-CPU mapping).
func NewDomain() *Domain {
	n := percpu.NumShards()
	d := &Domain{cpus: make([]*cpuSlots, n), mb: membarrier.New()}
	for i := range d.cpus {
		d.cpus[i] = newCPUSlots()
	}
	return d
}

// ResetAfterFork reinitializes d for use in a freshly forked child
// process, per spec §4.11: every CPU's slot array is recreated empty
// (no reader in the child holds a hazard pointer the parent took) and
// the period bit restarts at 0.
func (d *Domain) ResetAfterFork() {
	for i := range d.cpus {
		d.cpus[i] = newCPUSlots()
	}
	d.period = gpcounter.Phase{}
}

// Get attempts to obtain a hazard-pointer (or refcount-fallback)
// reference to whatever node ptr currently references, per spec §4.7.
// It returns (ctx, false) if ptr held NULL — "return miss".
func (d *Domain) Get(ptr *atomic.Pointer[Node]) (Ctx, bool) {
	cpu := percpu.CurrentShard()
	cs := d.cpus[cpu]

	for {
		node := ptr.Load()
		if node == nil {
			return Ctx{}, false
		}
		tag := d.period.Load()

		slot, idx, occupiedEmergency, err := d.occupySlot(cs, node, tag, cpu)
		if err != nil {
			// The calling goroutine migrated to a different shard
			// mid-attempt (percpu.Abort); recompute the shard and
			// restart against its slot array, the same retry-on-abort
			// treatment percpugp's ReadLock gives this error.
			cpu = percpu.CurrentShard()
			cs = d.cpus[cpu]
			continue
		}

		// Master-paired fence: compiler barrier + membarrier on the
		// writer side pairs with this reader-side full fence, spec
		// §4.7 step 5.
		rfence.FullFence()

		node2 := ptr.Load()
		if node2 != node {
			slot.clear()
			if node2 == nil {
				return Ctx{}, false
			}
			continue
		}

		ctx := Ctx{slot: slot, node: node, typ: TypeHP, cpu: cpu}
		if occupiedEmergency {
			d.PromoteToRef(&ctx)
			return ctx, true
		}
		cs.growScanDepth(idx)
		return ctx, true
	}
}

// occupySlot walks the CPU's scannable slots looking for a free one. It
// first tries within the current scan_depth, then, per spec §4.7 step
// 6, keeps trying slots beyond scan_depth up to (but not including) the
// emergency slot — growing scan_depth to cover whichever one succeeds —
// before finally falling back to the emergency slot (spinning until it
// frees up) if every scannable slot, including those beyond scan_depth,
// was occupied. It returns the slot that now holds node, the index used
// (meaningless for the emergency slot), and whether the emergency slot
// was used. A non-nil error means the caller's goroutine migrated off
// expectedShard mid-scan (percpu.Abort); the caller should recompute its
// shard and restart rather than trust any of the other return values.
func (d *Domain) occupySlot(cs *cpuSlots, node *Node, tag uint32, expectedShard int) (*Slot, int, bool, error) {
	start := int(cs.nextHint())
	depth := int(cs.scanDepth.Load())
	if depth > emergencyIndex {
		depth = emergencyIndex
	}
	for i := 0; i < depth; i++ {
		idx := (start + i) % depth
		ok, err := cs.slots[idx].tryOccupy(node, tag, expectedShard)
		if err != nil {
			return nil, 0, false, err
		}
		if ok {
			return &cs.slots[idx], idx, false, nil
		}
	}

	for idx := depth; idx < emergencyIndex; idx++ {
		ok, err := cs.slots[idx].tryOccupy(node, tag, expectedShard)
		if err != nil {
			return nil, 0, false, err
		}
		if ok {
			return &cs.slots[idx], idx, false, nil
		}
	}

	emergency := &cs.slots[emergencyIndex]
	for {
		ok, err := emergency.tryOccupy(node, tag, expectedShard)
		if err != nil {
			return nil, 0, false, err
		}
		if ok {
			return emergency, emergencyIndex, true, nil
		}
		rfence.Pause()
	}
}

// PromoteToRef promotes ctx from a hazard pointer to a plain reference
// count, per spec §4.7. Idempotent when ctx is already TypeRef.
func (d *Domain) PromoteToRef(ctx *Ctx) {
	if ctx.typ == TypeRef {
		return
	}
	ctx.node.get()
	ctx.slot.clear()
	ctx.slot = nil
	ctx.typ = TypeRef
}

// Put releases ctx: clears the hazard slot, or decrements the refcount
// and runs the release callback on the last drop.
func (d *Domain) Put(ctx *Ctx) {
	if ctx.typ == TypeRef {
		ctx.node.put()
	} else {
		ctx.slot.clear()
	}
	ctx.node = nil
}

// Copy takes an additional owning reference to a node the caller
// already stably holds (spec §4.10's smart-pointer Copy is built
// directly on this).
func Copy(n *Node) *Node {
	n.get()
	return n
}

// Clear drops the caller's owning reference to n, running the release
// callback if it was the last one.
func Clear(n *Node) {
	n.put()
}

// Synchronize waits until no hazard slot across any CPU still
// advertises target, per spec §4.7's "targeted" mode (target != nil).
// It does not touch the global period bit: only the matching pointer
// can block progress.
func (d *Domain) Synchronize(target *Node) {
	d.mb.Fence()
	for _, cs := range d.cpus {
		depth := int(cs.scanDepth.Load())
		if depth > emergencyIndex {
			depth = emergencyIndex
		}
		for i := 0; i <= depth; i++ { // include the emergency slot
			idx := i
			if i == depth {
				idx = emergencyIndex
			}
			d.waitSlotClearOf(&cs.slots[idx], target)
		}
	}
	d.maybeShrink()
}

func (d *Domain) waitSlotClearOf(s *Slot, target *Node) {
	for {
		node, _ := s.load()
		if node != target {
			return
		}
		rfence.Pause()
	}
}

// SynchronizeBroad runs the two-phase tag scan of spec §4.7's "range or
// broad" mode: used when there is no single target pointer to wait on
// (e.g. before reclaiming an entire range, or when length exceeds one
// node). Two phases prevent a steady stream of readers from re-tagging
// freed slots with the same period and starving the writer.
func (d *Domain) SynchronizeBroad() {
	d.mu.Lock()
	defer d.mu.Unlock()

	waitPeriod := d.period.Load() ^ 1
	d.scanForPeriod(waitPeriod)
	d.period.Flip()
	d.scanForPeriod(waitPeriod ^ 1)
	d.mb.Fence()
	d.maybeShrink()
}

// scanForPeriod busy-waits on every slot tagged with wantTag until it
// changes — NULL or a different tag both satisfy the wait, per spec
// §4.7 step (c).
func (d *Domain) scanForPeriod(wantTag uint32) {
	for _, cs := range d.cpus {
		depth := int(cs.scanDepth.Load())
		if depth > emergencyIndex {
			depth = emergencyIndex
		}
		for i := 0; i <= depth; i++ {
			idx := i
			if i == depth {
				idx = emergencyIndex
			}
			s := &cs.slots[idx]
			for {
				node, tag := s.load()
				if node == nil || tag != wantTag {
					break
				}
				rfence.Pause()
			}
		}
	}
}

// maybeShrink attempts the hysteresis shrink of spec §4.7's last
// paragraph: if the highest occupied index observed during the scan sat
// well below scanDepth, try to lower it, then re-scan the removed range
// and restore scanDepth if something became occupied in the meantime.
func (d *Domain) maybeShrink() {
	for _, cs := range d.cpus {
		cur := cs.scanDepth.Load()
		if cur <= depthStride {
			continue
		}
		highest := cs.highestOccupied()
		candidate := uint32(((highest / depthStride) + 1) * depthStride)
		if candidate >= cur {
			continue
		}
		prev, shrunk := cs.shrinkScanDepth(candidate)
		if !shrunk {
			continue
		}
		// Re-scan the removed range [candidate, prev).
		restored := false
		for i := candidate; i < prev; i++ {
			if node, _ := cs.slots[i].load(); node != nil {
				restored = true
				break
			}
		}
		if restored {
			cs.growScanDepth(int(prev) - 1)
		}
	}
}

func (cs *cpuSlots) highestOccupied() int {
	highest := 0
	depth := int(cs.scanDepth.Load())
	if depth > emergencyIndex {
		depth = emergencyIndex
	}
	for i := 0; i < depth; i++ {
		if node, _ := cs.slots[i].load(); node != nil {
			highest = i
		}
	}
	return highest
}

// SynchronizePut waits for every hazard pointer to node to clear, then
// drops one reference (the caller's own), per spec §4.7's
// hpref_synchronize_put.
func (d *Domain) SynchronizePut(node *Node) {
	if node == nil {
		return
	}
	d.Synchronize(node)
	node.put()
}
