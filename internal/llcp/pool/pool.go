// Package pool implements the fixed-capacity free-list allocators of §4.1:
// one pool each for procedure contexts, TX control-PDU buffers, and
// notification buffers. Exhaustion is recoverable, never fatal — callers
// must Peek before committing to a state transition that depends on
// obtaining an element (§4.1).
package pool

// noFree is the free-list terminator, analogous to a null next-index in
// the source's intrusive free list (§9).
const noFree int32 = -1

// Pool is a fixed-capacity allocator over a pre-sized array of T. It never
// grows: all capacity is reserved up front, matching the "no dynamic
// allocation" discipline of the embedded original (§1). Acquire/Release
// are O(1) and allocation-free after construction.
//
// Pool is not safe for concurrent use without external synchronization;
// §5 requires the embedding to serialize pool calls across connections
// when more than one connection shares a pool.
type Pool[T any] struct {
	name string

	items []T
	// next holds, for each slot, the index of the next free slot in the
	// free list, or noFree for the list's tail. In-use slots have
	// meaningless (stale) next values.
	next []int32

	freeHead int32
	freeLen  int
	capacity int
}

// New creates a Pool of the given name and capacity, with all slots
// initially free.
func New[T any](name string, capacity int) *Pool[T] {
	if capacity < 1 {
		capacity = 1
	}

	p := &Pool[T]{
		name:     name,
		items:    make([]T, capacity),
		next:     make([]int32, capacity),
		capacity: capacity,
	}

	for i := 0; i < capacity; i++ {
		if i == capacity-1 {
			p.next[i] = noFree
		} else {
			p.next[i] = int32(i + 1)
		}
	}
	p.freeHead = 0
	p.freeLen = capacity

	return p
}

// Name returns the pool's name, used in logging and metrics labels.
func (p *Pool[T]) Name() string {
	return p.name
}

// Capacity returns the pool's fixed capacity.
func (p *Pool[T]) Capacity() int {
	return p.capacity
}

// Free returns the number of currently unallocated slots.
func (p *Pool[T]) Free() int {
	return p.freeLen
}

// InUse returns the number of currently allocated slots.
// Invariant: InUse() + Free() == Capacity() always holds (§3 invariant 5).
func (p *Pool[T]) InUse() int {
	return p.capacity - p.freeLen
}

// Peek reports whether Acquire would currently succeed, without acquiring
// anything. Callers must check this before committing to a state
// transition that depends on obtaining an element (§4.1).
func (p *Pool[T]) Peek() bool {
	return p.freeLen > 0
}

// Acquire removes one slot from the free list and returns its index and
// true, or (0, false) if the pool is exhausted. Exhaustion is not an
// error (§4.1) — it is a first-class, recoverable condition the caller
// must handle (park, or report resource-exhausted).
func (p *Pool[T]) Acquire() (int32, bool) {
	if p.freeLen == 0 {
		return 0, false
	}

	idx := p.freeHead
	p.freeHead = p.next[idx]
	p.freeLen--

	var zero T
	p.items[idx] = zero

	return idx, true
}

// Release returns idx to the free list. Releasing an index twice, or one
// never acquired, corrupts the free list — callers are responsible for
// acquire/release discipline (§3 invariant 2: a context is owned by
// exactly one of pool, queue, or active slot at a time).
func (p *Pool[T]) Release(idx int32) {
	p.next[idx] = p.freeHead
	p.freeHead = idx
	p.freeLen++
}

// Get returns a pointer to the element at idx for in-place mutation.
func (p *Pool[T]) Get(idx int32) *T {
	return &p.items[idx]
}
