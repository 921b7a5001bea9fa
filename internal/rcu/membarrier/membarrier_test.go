package membarrier

import "testing"

func TestFenceNeverPanics(t *testing.T) {
	b := New()
	b.Fence()
	b.Fence()
}

func TestFenceWithSignalFallback(t *testing.T) {
	b := New()
	b.EnableSignalFallback()
	b.Fence()
}

func TestObserveNeedMBClearsFlag(t *testing.T) {
	signalFence()
	ObserveNeedMB()
}
