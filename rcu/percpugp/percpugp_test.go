package percpugp

import (
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"
)

func TestReadLockUnlockRoundTrip(t *testing.T) {
	d := NewDomain()
	r := d.RegisterThread()
	defer d.UnregisterThread(r)

	tok := d.ReadLock()
	d.ReadUnlock(tok)
}

func TestSynchronizeReturnsWithNoReaders(t *testing.T) {
	d := NewDomain()
	done := make(chan struct{})
	go func() {
		d.Synchronize()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Synchronize did not return with no readers active")
	}
}

func TestSynchronizeWaitsForActiveReader(t *testing.T) {
	d := NewDomain()
	r := d.RegisterThread()
	defer d.UnregisterThread(r)

	tok := d.ReadLock()

	gpDone := make(chan struct{})
	go func() {
		d.Synchronize()
		close(gpDone)
	}()

	select {
	case <-gpDone:
		t.Fatal("Synchronize returned while a reader was still active")
	case <-time.After(50 * time.Millisecond):
	}

	d.ReadUnlock(tok)

	select {
	case <-gpDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Synchronize did not return after the reader unlocked")
	}
}

func TestDestroyRequiresEmptyRegistry(t *testing.T) {
	d := NewDomain()
	if !d.Destroy() {
		t.Fatal("fresh domain should report empty registry")
	}
	r := d.RegisterThread()
	if d.Destroy() {
		t.Fatal("domain with a registered reader should not report empty")
	}
	d.UnregisterThread(r)
	if !d.Destroy() {
		t.Fatal("domain should report empty again after unregister")
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	d := NewDomain()
	const readers = 16
	const iterations = 200

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := d.RegisterThread()
			defer d.UnregisterThread(r)
			for {
				select {
				case <-stop:
					return
				default:
				}
				tok := d.ReadLock()
				tok2 := d.ReadLock() // nested
				d.ReadUnlock(tok2)
				d.ReadUnlock(tok)
			}
		}()
	}

	for i := 0; i < iterations; i++ {
		d.Synchronize()
	}
	close(stop)
	wg.Wait()
}

func TestSynchronizeAsyncRunsCallbackAfterGracePeriod(t *testing.T) {
	d := NewDomain()
	r := d.RegisterThread()
	tok := d.ReadLock()

	done := make(chan struct{})
	d.SynchronizeAsync(func() { close(done) })

	select {
	case <-done:
		t.Fatal("callback ran before the active reader unlocked")
	case <-time.After(50 * time.Millisecond):
	}

	d.ReadUnlock(tok)
	d.UnregisterThread(r)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback did not run after the grace period completed")
	}
}

func TestSynchronizeAsyncRunsMultipleCallbacksInOrder(t *testing.T) {
	d := NewDomain()
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		d.SynchronizeAsync(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()
	for i, v := range order {
		if v != i {
			t.Fatalf("expected callbacks to run in submission order, got %v", order)
		}
	}
}

// TestMustDestroyAbortsOnNonEmptyRegistry runs the misuse path in a
// subprocess, the standard idiom for testing an os.Exit path (see
// internal/rcu/diag's own tests).
func TestMustDestroyAbortsOnNonEmptyRegistry(t *testing.T) {
	if os.Getenv("RCUHPREF_PERCPUGP_DESTROY_NONEMPTY") == "1" {
		d := NewDomain()
		d.RegisterThread()
		d.MustDestroy()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMustDestroyAbortsOnNonEmptyRegistry")
	cmd.Env = append(os.Environ(), "RCUHPREF_PERCPUGP_DESTROY_NONEMPTY=1")
	err := cmd.Run()
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatalf("expected subprocess to exit with error, got %v", err)
	}
	if exitErr.ExitCode() != 2 {
		t.Fatalf("got exit code %d, want 2", exitErr.ExitCode())
	}
}

func TestConcurrentSynchronizeCallersCoalesce(t *testing.T) {
	d := NewDomain()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Synchronize()
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent Synchronize callers did not all return")
	}
}
