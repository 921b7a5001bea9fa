package percpu

import "testing"

func TestTryStoreIfZeroStoresOnce(t *testing.T) {
	var slot uint64
	shard := CurrentShard()

	ok, err := TryStoreIfZero(&slot, 7, shard)
	if err != nil {
		t.Fatalf("unexpected abort: %v", err)
	}
	if !ok || slot != 7 {
		t.Fatalf("got ok=%v slot=%d, want ok=true slot=7", ok, slot)
	}

	ok, err = TryStoreIfZero(&slot, 9, shard)
	if err != nil {
		t.Fatalf("unexpected abort: %v", err)
	}
	if ok {
		t.Fatal("expected second store to fail, slot already non-zero")
	}
}

func TestTryStoreIfZeroAbortsOnShardMismatch(t *testing.T) {
	var slot uint64
	wrong := CurrentShard() + 1000000
	_, err := TryStoreIfZero(&slot, 1, wrong)
	if _, ok := err.(Abort); !ok {
		t.Fatalf("expected Abort error, got %v", err)
	}
}

func TestAddVAccumulates(t *testing.T) {
	var counter uint64
	shard := CurrentShard()
	for i := 0; i < 10; i++ {
		if err := AddV(&counter, 1, shard); err != nil {
			t.Fatalf("AddV: %v", err)
		}
	}
	if counter != 10 {
		t.Fatalf("got %d, want 10", counter)
	}
}

func TestRegisterRejectsNestedReentry(t *testing.T) {
	r, err := Register()
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer r.Unregister()

	if _, err := Register(); err == nil {
		t.Fatal("expected nested Register to fail")
	}
}

func TestUnregisterRejectsDouble(t *testing.T) {
	r, err := Register()
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Unregister(); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := r.Unregister(); err == nil {
		t.Fatal("expected double Unregister to fail")
	}
}
