package pool

import "testing"

func TestAcquireReleaseInvariant(t *testing.T) {
	p := New[int]("test", 3)

	if !p.Peek() {
		t.Fatal("expected availability on a fresh pool")
	}

	var acquired []int32
	for i := 0; i < 3; i++ {
		idx, ok := p.Acquire()
		if !ok {
			t.Fatalf("acquire %d: expected success", i)
		}
		acquired = append(acquired, idx)
	}

	if p.Peek() {
		t.Fatal("expected exhaustion after acquiring full capacity")
	}
	if _, ok := p.Acquire(); ok {
		t.Fatal("expected acquire to fail when exhausted")
	}
	if got, want := p.Free()+p.InUse(), p.Capacity(); got != want {
		t.Fatalf("free(%d)+inUse(%d) = %d, want capacity %d", p.Free(), p.InUse(), got, want)
	}

	for _, idx := range acquired {
		p.Release(idx)
	}

	if got, want := p.Free(), p.Capacity(); got != want {
		t.Fatalf("Free() = %d after releasing all, want %d", got, want)
	}
	if got := p.InUse(); got != 0 {
		t.Fatalf("InUse() = %d after releasing all, want 0", got)
	}
}

func TestAcquireReturnsZeroedElement(t *testing.T) {
	p := New[struct{ N int }]("test", 1)

	idx, ok := p.Acquire()
	if !ok {
		t.Fatal("expected acquire to succeed")
	}
	p.Get(idx).N = 42
	p.Release(idx)

	idx2, ok := p.Acquire()
	if !ok {
		t.Fatal("expected re-acquire to succeed")
	}
	if p.Get(idx2).N != 0 {
		t.Fatalf("reacquired element not zeroed: N=%d", p.Get(idx2).N)
	}
}

func TestCapacityClampedToAtLeastOne(t *testing.T) {
	p := New[int]("test", 0)
	if p.Capacity() != 1 {
		t.Fatalf("Capacity() = %d, want 1", p.Capacity())
	}
}
