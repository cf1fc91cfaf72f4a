package bvh

import "sync/atomic"

// DefaultInitialCapacity is the number of node slots allocated by a new tree.
const DefaultInitialCapacity = 512

// arena is a growable pool of nodes addressed by slot. Nodes live in fixed-size
// chunks that are never moved or reallocated, so a slot stays addressable while
// the arena grows. The chunk directory is published atomically for readers.
//
// Allocation, release and slot states must be guarded by the owner.
type arena[K comparable, P any] struct {
	chunkSize int
	directory atomic.Pointer[[][]Node[K, P]]
	states    []slotState
	versions  []uint32
	free      []Slot
}

func newArena[K comparable, P any](initialCapacity int) *arena[K, P] {
	if initialCapacity <= 0 {
		initialCapacity = DefaultInitialCapacity
	}

	a := &arena[K, P]{
		chunkSize: initialCapacity,
	}
	empty := [][]Node[K, P]{}
	a.directory.Store(&empty)
	a.grow()
	return a
}

func (a *arena[K, P]) node(s Slot) *Node[K, P] {
	dir := *a.directory.Load()
	return &dir[int(s)/a.chunkSize][int(s)%a.chunkSize]
}

func (a *arena[K, P]) capacity() int {
	return len(*a.directory.Load()) * a.chunkSize
}

func (a *arena[K, P]) contains(s Slot) bool {
	return s >= 0 && int(s) < a.capacity()
}

func (a *arena[K, P]) handle(s Slot) Handle {
	return Handle{Slot: s, Version: a.versions[s]}
}

// owns reports whether the handle refers to the current occupant of its slot.
func (a *arena[K, P]) owns(h Handle) bool {
	return a.contains(h.Slot) && a.versions[h.Slot] == h.Version
}

// allocate pops a slot from the free stack, doubling the capacity first when
// the stack is empty.
func (a *arena[K, P]) allocate(state slotState) Slot {
	if len(a.free) == 0 {
		a.grow()
	}

	s := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.states[s] = state
	return s
}

// release pushes the slot back onto the free stack and invalidates the
// handles issued for it. It does not check whether the slot was in use.
func (a *arena[K, P]) release(s Slot) {
	a.states[s] = slotFree
	a.versions[s]++
	a.free = append(a.free, s)
}

func (a *arena[K, P]) grow() {
	old := *a.directory.Load()

	added := len(old)
	if added == 0 {
		added = 1
	}

	dir := make([][]Node[K, P], len(old), len(old)+added)
	copy(dir, old)

	begin := len(old) * a.chunkSize
	for i := 0; i < added; i++ {
		chunk := make([]Node[K, P], a.chunkSize)
		for j := range chunk {
			chunk[j].reset(Slot(begin + i*a.chunkSize + j))
		}
		dir = append(dir, chunk)
	}

	end := len(dir) * a.chunkSize
	a.states = append(a.states, make([]slotState, end-begin)...)
	a.versions = append(a.versions, make([]uint32, end-begin)...)

	// Pushed in reverse so the lowest new slot is popped first.
	for i := end - 1; i >= begin; i-- {
		a.free = append(a.free, Slot(i))
	}

	a.directory.Store(&dir)
}
