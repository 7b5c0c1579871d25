package pool

import (
	"fmt"
	"math"
	"sort"
)

const (
	DefaultCapacity       = 32
	DefaultMaxBlockLength = 1000000
)

// Handle encodes a 32-bit slot index in the lower bits and a 32-bit
// generation in the upper bits. The generation is bumped every time the slot
// is handed out again, so handles kept past Erase are detected as stale.
type Handle uint64

func newHandle(index uint32, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index))
}

func (h Handle) Index() uint32      { return uint32(h) }
func (h Handle) Generation() uint32 { return uint32(h >> 32) }
func (h Handle) IsZero() bool       { return h == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.Index(), h.Generation())
}

const noSlot = math.MaxUint32

type slot[T any] struct {
	value T
	gen   uint32
	live  bool
	// next free slot while the slot sits on the free list
	next uint32
}

// node is one fixed-capacity block of slots. Its slice is never reallocated,
// so element pointers stay valid for the element's lifetime.
type node[T any] struct {
	slots []slot[T]
	start uint32
}

// Pool is a slab allocator for values of type T. Storage is a chain of nodes
// whose capacity doubles on every growth (capped at maxBlockLength); freed
// slots are threaded into a free list that is always consumed before the
// chain grows.
//
// Pool is not safe for concurrent use.
type Pool[T any] struct {
	nodes       []*node[T]
	cur         int
	countInNode int
	firstFree   uint32
	maxBlock    int
	elements    []Handle
}

// New creates a pool whose first node holds initialCapacity elements.
// Both arguments must be at least 1.
func New[T any](initialCapacity, maxBlockLength int) *Pool[T] {
	if initialCapacity < 1 {
		panic("pool: initial capacity must be at least 1")
	}
	if maxBlockLength < 1 {
		panic("pool: max block length must be at least 1")
	}
	p := &Pool[T]{
		firstFree: noSlot,
		maxBlock:  maxBlockLength,
		elements:  make([]Handle, 0, initialCapacity),
	}
	p.nodes = append(p.nodes, &node[T]{slots: make([]slot[T], initialCapacity)})
	return p
}

// Create allocates a zeroed element and registers it as live. Allocation
// never fails; exhausting the 32-bit index space panics.
func (p *Pool[T]) Create() (Handle, *T) {
	idx := p.allocate()
	s := p.slotAt(idx)
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.live = true
	s.next = noSlot
	h := newHandle(idx, s.gen)
	p.elements = append(p.elements, h)
	return h, &s.value
}

func (p *Pool[T]) allocate() uint32 {
	if p.firstFree != noSlot {
		idx := p.firstFree
		p.firstFree = p.slotAt(idx).next
		return idx
	}
	n := p.nodes[p.cur]
	if p.countInNode >= len(n.slots) {
		if p.cur+1 < len(p.nodes) {
			// reuse a node retained by Clear
			p.cur++
		} else {
			p.grow()
		}
		p.countInNode = 0
		n = p.nodes[p.cur]
	}
	idx := n.start + uint32(p.countInNode)
	p.countInNode++
	return idx
}

func (p *Pool[T]) grow() {
	last := p.nodes[len(p.nodes)-1]
	size := len(last.slots)
	if size >= p.maxBlock {
		size = p.maxBlock
	} else {
		size *= 2
		if size < len(last.slots) {
			panic("pool: node size overflow")
		}
		if size > p.maxBlock {
			size = p.maxBlock
		}
	}
	start := uint64(last.start) + uint64(len(last.slots))
	if start+uint64(size) > noSlot {
		panic("pool: capacity exceeds handle index space")
	}
	p.nodes = append(p.nodes, &node[T]{slots: make([]slot[T], size), start: uint32(start)})
	p.cur = len(p.nodes) - 1
}

func (p *Pool[T]) slotAt(idx uint32) *slot[T] {
	i := sort.Search(len(p.nodes), func(i int) bool {
		return p.nodes[i].start > idx
	}) - 1
	n := p.nodes[i]
	return &n.slots[idx-n.start]
}

func (p *Pool[T]) resolve(h Handle) (*slot[T], bool) {
	if h.IsZero() {
		return nil, false
	}
	last := p.nodes[len(p.nodes)-1]
	if uint64(h.Index()) >= uint64(last.start)+uint64(len(last.slots)) {
		return nil, false
	}
	s := p.slotAt(h.Index())
	if !s.live || s.gen != h.Generation() {
		return nil, false
	}
	return s, true
}

// Get returns the element for h, or false when h is stale or unknown.
func (p *Pool[T]) Get(h Handle) (*T, bool) {
	s, ok := p.resolve(h)
	if !ok {
		return nil, false
	}
	return &s.value, true
}

func (p *Pool[T]) Alive(h Handle) bool {
	_, ok := p.resolve(h)
	return ok
}

// Erase zeroes the element, pushes its slot on the free list and drops it
// from the live index. The relative order of the remaining elements is kept.
func (p *Pool[T]) Erase(h Handle) bool {
	s, ok := p.resolve(h)
	if !ok {
		return false
	}
	var zero T
	s.value = zero
	s.live = false
	s.next = p.firstFree
	p.firstFree = h.Index()
	// newest first: teardown erases from the back
	for i := len(p.elements) - 1; i >= 0; i-- {
		if p.elements[i] == h {
			p.elements = append(p.elements[:i], p.elements[i+1:]...)
			break
		}
	}
	return true
}

// Last returns the most recently created live element.
func (p *Pool[T]) Last() (Handle, bool) {
	if len(p.elements) == 0 {
		return 0, false
	}
	return p.elements[len(p.elements)-1], true
}

// Elements returns a snapshot of live handles in insertion order.
func (p *Pool[T]) Elements() []Handle {
	out := make([]Handle, len(p.elements))
	copy(out, p.elements)
	return out
}

// Each calls fn for every element live at the time of the call. Elements
// erased by fn before they are reached are skipped.
func (p *Pool[T]) Each(fn func(Handle, *T)) {
	for _, h := range p.Elements() {
		if v, ok := p.Get(h); ok {
			fn(h, v)
		}
	}
}

func (p *Pool[T]) Len() int {
	return len(p.elements)
}

// Clear invalidates every live element and rewinds allocation to the first
// node. Node memory is kept and reused by later allocations.
func (p *Pool[T]) Clear() {
	var zero T
	for _, h := range p.elements {
		s := p.slotAt(h.Index())
		s.value = zero
		s.live = false
	}
	p.elements = p.elements[:0]
	p.firstFree = noSlot
	p.cur = 0
	p.countInNode = 0
}

// Capacity is the total number of slots across all nodes.
func (p *Pool[T]) Capacity() int {
	total := 0
	for _, n := range p.nodes {
		total += len(n.slots)
	}
	return total
}

func (p *Pool[T]) NodeCapacities() []int {
	out := make([]int, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = len(n.slots)
	}
	return out
}
