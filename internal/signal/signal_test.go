package signal

import (
	"testing"
	"time"
)

func TestRaiseInvokesNotifyWithPostNOTValue(t *testing.T) {
	pool := NewPool()
	sigs := pool.Init(0, []string{"A"})
	a := sigs[0]

	var got uint32
	calls := 0
	a.RegisterNotify(func(v uint32, param any) {
		got = v
		calls++
	}, nil)

	a.Raise(1)
	if calls != 1 || got != 1 {
		t.Fatalf("calls=%d got=%d, want 1/1", calls, got)
	}

	a.SetFlags(a.Flags() | NOT)
	a.Raise(0)
	if got != 1 {
		t.Fatalf("NOT-flagged raise(0) delivered %d, want 1 (logical, not bitwise, negation)", got)
	}
	a.Raise(7)
	if got != 0 {
		t.Fatalf("NOT-flagged raise(7) delivered %d, want 0", got)
	}
}

func TestStoredValueUpdatesAfterCallbacks(t *testing.T) {
	pool := NewPool()
	sigs := pool.Init(0, []string{"A"})
	a := sigs[0]

	var observedDuringCallback uint32
	a.RegisterNotify(func(v uint32, param any) {
		observedDuringCallback = a.Value()
	}, nil)

	a.Raise(1)
	if observedDuringCallback != 0 {
		t.Fatalf("callback observed %d, want the pre-raise value 0", observedDuringCallback)
	}
	if a.Value() != 1 {
		t.Fatalf("Value() after raise = %d, want 1", a.Value())
	}
}

func TestFilteredSuppressesRepeatedValueExceptFirstRaise(t *testing.T) {
	pool := NewPool()
	sigs := pool.Init(0, []string{"A"})
	a := sigs[0]
	a.SetFlags(a.Flags() | FILTERED)

	calls := 0
	a.RegisterNotify(func(v uint32, param any) { calls++ }, nil)

	a.Raise(0) // first raise: stored value is already 0, but INIT not yet cleared
	if calls != 1 {
		t.Fatalf("first raise with value==stored should still propagate, calls=%d", calls)
	}

	a.Raise(0) // repeat of the same value after INIT: suppressed
	if calls != 1 {
		t.Fatalf("repeated identical value should be suppressed, calls=%d", calls)
	}

	a.Raise(5)
	if calls != 2 {
		t.Fatalf("changed value should propagate, calls=%d", calls)
	}
}

func TestConnectChainsAndDedups(t *testing.T) {
	pool := NewPool()
	sigs := pool.Init(0, []string{"A", "B"})
	a, b := sigs[0], sigs[1]

	a.Connect(b)
	a.Connect(b) // duplicate, must be a no-op

	calls := 0
	b.RegisterNotify(func(v uint32, param any) { calls++ }, nil)

	a.Raise(3)
	if calls != 1 {
		t.Fatalf("B's notify fired %d times via chain, want 1 (dedup failed)", calls)
	}
	if b.Value() != 3 {
		t.Fatalf("B.Value() = %d after chained raise, want 3", b.Value())
	}
}

func TestReEntrantChainDoesNotRecurseForever(t *testing.T) {
	pool := NewPool()
	sigs := pool.Init(0, []string{"A", "B"})
	a, b := sigs[0], sigs[1]

	a.Connect(b)
	b.Connect(a) // cycle

	calls := 0
	b.RegisterNotify(func(v uint32, param any) { calls++ }, nil)

	done := make(chan struct{})
	go func() {
		a.Raise(1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("raise did not return — signal cycle recursed")
	}

	if calls != 1 {
		t.Fatalf("B's notify fired %d times in a signal cycle, want exactly 1", calls)
	}
}

func TestFreeDetachesFromPool(t *testing.T) {
	pool := NewPool()
	sigs := pool.Init(0, []string{"A"})
	a := sigs[0]

	a.Free()

	if _, ok := pool.ByName("A"); ok {
		t.Fatalf("freed signal still resolvable by name")
	}
	if _, ok := pool.ByIndex(0); ok {
		t.Fatalf("freed signal still resolvable by index")
	}
}

func TestAllocLikeAppendsAtEndOfPool(t *testing.T) {
	pool := NewPool()
	pool.Init(0, []string{"A", "B"})

	heap := pool.AllocLike("vcd.A")
	if heap.Index() != 2 {
		t.Fatalf("AllocLike index = %d, want 2", heap.Index())
	}
	if got, ok := pool.ByName("vcd.A"); !ok || got != heap {
		t.Fatalf("AllocLike signal not resolvable by name afterward")
	}
}

func TestPoolSignalsOrderedByIndex(t *testing.T) {
	pool := NewPool()
	pool.Init(0, []string{"A", "B", "C"})

	got := pool.Signals()
	if len(got) != 3 {
		t.Fatalf("Signals() returned %d entries, want 3", len(got))
	}
	for i, s := range got {
		if s.Index() != i {
			t.Fatalf("Signals()[%d].Index() = %d, want %d", i, s.Index(), i)
		}
	}
}
