package futexwait

import (
	"testing"
	"time"
)

func TestWakeUnblocksWait(t *testing.T) {
	var w Word
	w.Store(0)

	done := make(chan struct{})
	go func() {
		w.Wait(0)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	w.Wake(1, 1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Wake")
	}
}

func TestWaitReturnsImmediatelyOnMismatch(t *testing.T) {
	var w Word
	w.Store(5)
	done := make(chan struct{})
	go func() {
		w.Wait(0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait should have returned immediately, value already mismatched")
	}
}
