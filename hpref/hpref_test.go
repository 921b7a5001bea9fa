package hpref

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kolkov/rcuhpref/internal/rcu/percpu"
)

func TestGetMissOnNilPointer(t *testing.T) {
	d := NewDomain()
	var ptr atomic.Pointer[Node]
	_, ok := d.Get(&ptr)
	if ok {
		t.Fatal("Get on a nil pointer should report a miss")
	}
}

func TestGetHitAndPutReleasesSlot(t *testing.T) {
	d := NewDomain()
	var released bool
	n := NewNode(func(*Node) { released = true })
	var ptr atomic.Pointer[Node]
	ptr.Store(n)

	ctx, ok := d.Get(&ptr)
	if !ok {
		t.Fatal("expected a hit")
	}
	if ctx.Type() != TypeHP {
		t.Fatalf("expected TypeHP, got %v", ctx.Type())
	}
	d.Put(&ctx)

	// The owner's initial reference (refcount=1) is untouched by a
	// plain HP get/put cycle.
	if released {
		t.Fatal("release should not run while the owner still holds its reference")
	}
	Clear(n)
	if !released {
		t.Fatal("release should run once the owner's reference is dropped")
	}
}

func TestPromoteToRefIncrementsRefcount(t *testing.T) {
	d := NewDomain()
	n := NewNode(func(*Node) {})
	var ptr atomic.Pointer[Node]
	ptr.Store(n)

	ctx, ok := d.Get(&ptr)
	if !ok {
		t.Fatal("expected a hit")
	}
	d.PromoteToRef(&ctx)
	if ctx.Type() != TypeRef {
		t.Fatal("expected TypeRef after promotion")
	}
	if got := n.RefCount(); got != 2 {
		t.Fatalf("expected refcount 2 after promotion, got %d", got)
	}
	d.Put(&ctx)
	if got := n.RefCount(); got != 1 {
		t.Fatalf("expected refcount back to 1 after Put, got %d", got)
	}
}

func TestSynchronizeWaitsForSlotClear(t *testing.T) {
	d := NewDomain()
	n := NewNode(func(*Node) {})
	var ptr atomic.Pointer[Node]
	ptr.Store(n)

	ctx, ok := d.Get(&ptr)
	if !ok {
		t.Fatal("expected a hit")
	}
	ptr.Store(nil) // unpublish

	done := make(chan struct{})
	go func() {
		d.Synchronize(n)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Synchronize returned while a hazard pointer was still held")
	case <-time.After(50 * time.Millisecond):
	}

	d.Put(&ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Synchronize did not return after the hazard pointer was released")
	}
}

func TestSynchronizeBroadDrainsAllSlots(t *testing.T) {
	d := NewDomain()
	n := NewNode(func(*Node) {})
	var ptr atomic.Pointer[Node]
	ptr.Store(n)

	ctx, ok := d.Get(&ptr)
	if !ok {
		t.Fatal("expected a hit")
	}
	ptr.Store(nil)

	done := make(chan struct{})
	go func() {
		d.SynchronizeBroad()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("SynchronizeBroad returned while a hazard pointer was still held")
	case <-time.After(50 * time.Millisecond):
	}

	d.Put(&ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SynchronizeBroad did not return after the hazard pointer was released")
	}
}

func TestManySlotsFallBackToEmergency(t *testing.T) {
	d := NewDomain()
	cpu := percpu.CurrentShard()
	cs := d.cpus[cpu]

	var nodes []*Node
	var ctxs []Ctx
	var ptrs []*atomic.Pointer[Node]

	// One more context than there are ordinary (non-emergency) slots, so
	// the last Get finds every ordinary slot occupied.
	ordinary := len(cs.slots) - 1
	for i := 0; i < ordinary+1; i++ {
		n := NewNode(func(*Node) {})
		nodes = append(nodes, n)
		p := &atomic.Pointer[Node]{}
		p.Store(n)
		ptrs = append(ptrs, p)
	}

	for _, p := range ptrs {
		ctx, ok := d.Get(p)
		if !ok {
			t.Fatal("expected a hit")
		}
		ctxs = append(ctxs, ctx)
	}

	sawRef := false
	for _, c := range ctxs {
		if c.Type() == TypeRef {
			sawRef = true
		}
	}
	if !sawRef {
		t.Fatal("expected at least one context to fall back to refcount once slots filled up")
	}

	for i := range ctxs {
		d.Put(&ctxs[i])
	}
	for _, n := range nodes {
		Clear(n)
	}
}

func TestOccupySlotGrowsScanDepthPastInitialStride(t *testing.T) {
	d := NewDomain()
	cpu := percpu.CurrentShard()
	cs := d.cpus[cpu]

	initial := cs.scanDepth.Load()

	var nodes []*Node
	var ctxs []Ctx
	var ptrs []*atomic.Pointer[Node]

	// One more than the initial stride guarantees at least one slot
	// beyond the starting scan_depth gets occupied, which must grow
	// scan_depth to cover it rather than silently falling back to the
	// emergency slot early.
	for i := 0; i < int(initial)+1; i++ {
		n := NewNode(func(*Node) {})
		nodes = append(nodes, n)
		p := &atomic.Pointer[Node]{}
		p.Store(n)
		ptrs = append(ptrs, p)
	}

	for _, p := range ptrs {
		ctx, ok := d.Get(p)
		if !ok {
			t.Fatal("expected a hit")
		}
		ctxs = append(ctxs, ctx)
	}

	if got := cs.scanDepth.Load(); got <= initial {
		t.Fatalf("expected scanDepth to grow past its initial value %d, got %d", initial, got)
	}

	for i := range ctxs {
		d.Put(&ctxs[i])
	}
	for _, n := range nodes {
		Clear(n)
	}
}

func TestSynchronizePutDropsOwnerReference(t *testing.T) {
	d := NewDomain()
	var released bool
	n := NewNode(func(*Node) { released = true })
	var ptr atomic.Pointer[Node]
	ptr.Store(n)
	ptr.Store(nil)

	d.SynchronizePut(n)
	if !released {
		t.Fatal("SynchronizePut should drop the owner's reference and run release")
	}
}

func TestConcurrentGetPutAndSynchronize(t *testing.T) {
	d := NewDomain()
	n := NewNode(func(*Node) {})
	var ptr atomic.Pointer[Node]
	ptr.Store(n)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if ctx, ok := d.Get(&ptr); ok {
					d.Put(&ctx)
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		d.SynchronizeBroad()
	}
	close(stop)
	wg.Wait()
	Clear(n)
}
