// Package bvh implements a dynamic bounding volume hierarchy of axis-aligned
// boxes with buffered mutations and parallel frustum queries.
//
// Insert, remove and relayout requests may be issued from any goroutine. They
// are buffered and applied by Update, which is meant to be called once per
// frame from a single goroutine. Update waits for in-flight query traversals to
// finish before it mutates the tree, and queries dispatched while an update is
// running wait for it to complete.
package bvh

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/occlusion/geom"
	"github.com/aukilabs/occlusion/jobs"
)

// Option configures a tree.
type Option func(*options)

type options struct {
	initialCapacity int
	scheduler       jobs.Scheduler
	rebalance       bool
	validate        bool
	static          bool
}

// WithInitialCapacity sets the number of node slots allocated up front. It is
// also the size of the arena chunks.
func WithInitialCapacity(n int) Option {
	return func(o *options) {
		o.initialCapacity = n
	}
}

// WithScheduler sets the scheduler that runs query branches. Defaults to
// jobs.Inline.
func WithScheduler(s jobs.Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithRebalance enables rotations of the nodes refitted during an update.
func WithRebalance(v bool) Option {
	return func(o *options) {
		o.rebalance = v
	}
}

// WithValidation makes Update check the tree invariants after each call and
// panic on violation.
func WithValidation(v bool) Option {
	return func(o *options) {
		o.validate = v
	}
}

// WithStatic disables dirty tracking. MarkDirty on a static tree returns an
// error.
func WithStatic(v bool) Option {
	return func(o *options) {
		o.static = v
	}
}

type insertRequest[K comparable, P any] struct {
	slot    Slot
	key     K
	bounds  geom.AABB
	payload P
}

type dirtyRequest struct {
	handle Handle
	bounds geom.AABB
}

// Tree is a dynamic bounding volume hierarchy. The zero value is not usable,
// use New.
type Tree[K comparable, P any] struct {
	name string
	opts options

	// Held for writing by Update and Build, for reading by query traversals.
	phase      sync.RWMutex
	generation atomic.Uint64

	slotMutex sync.Mutex
	arena     *arena[K, P]

	root    Slot
	leaves  int
	touched map[Slot]struct{}

	insertMutex sync.Mutex
	inserts     []insertRequest[K, P]

	removeMutex sync.Mutex
	removes     []Slot

	dirtyMutex sync.Mutex
	dirty      []dirtyRequest
}

// New creates an empty tree. The name is used in logs and metrics.
func New[K comparable, P any](name string, opts ...Option) *Tree[K, P] {
	o := options{
		initialCapacity: DefaultInitialCapacity,
		scheduler:       jobs.Inline{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	t := &Tree[K, P]{
		name:    name,
		opts:    o,
		arena:   newArena[K, P](o.initialCapacity),
		root:    None,
		touched: make(map[Slot]struct{}),
	}
	instrumentArenaCapacity(name, t.arena.capacity())
	return t
}

func (t *Tree[K, P]) Name() string {
	return t.name
}

// RequestInsert reserves a slot for the object and buffers its insertion. The
// object becomes visible to queries after the next Update.
func (t *Tree[K, P]) RequestInsert(key K, bounds geom.AABB, payload P) (Handle, error) {
	if !bounds.IsValid() {
		return Handle{Slot: None}, errors.New("invalid bounds").
			WithType(ErrTypeInvalidBounds).
			WithTag("tree", t.name).
			WithTag("bounds", bounds.String())
	}

	t.slotMutex.Lock()
	s := t.arena.allocate(slotPendingInsert)
	h := t.arena.handle(s)
	capacity := t.arena.capacity()
	t.slotMutex.Unlock()

	t.insertMutex.Lock()
	t.inserts = append(t.inserts, insertRequest[K, P]{
		slot:    s,
		key:     key,
		bounds:  bounds,
		payload: payload,
	})
	pending := len(t.inserts)
	t.insertMutex.Unlock()

	instrumentArenaCapacity(t.name, capacity)
	instrumentPendingOps(t.name, opInsert, pending)
	return h, nil
}

// handleState returns the state of the slot a handle refers to. Handles whose
// slot was freed since they were issued are reported as free.
func (t *Tree[K, P]) handleState(h Handle) slotState {
	if !t.arena.owns(h) {
		return slotFree
	}
	return t.arena.states[h.Slot]
}

// RequestRemove buffers the removal of the object with the given handle.
// Removing an object whose insertion is still pending cancels the insertion.
func (t *Tree[K, P]) RequestRemove(h Handle) error {
	s := h.Slot

	t.slotMutex.Lock()
	state := t.handleState(h)

	switch state {
	case slotPendingInsert:
		t.arena.states[s] = slotCanceled
		t.slotMutex.Unlock()
		return nil

	case slotLinked:
		t.arena.states[s] = slotPendingRemove
		t.slotMutex.Unlock()

	default:
		t.slotMutex.Unlock()
		return errors.New("object not found").
			WithType(ErrTypeSlotNotFound).
			WithTag("tree", t.name).
			WithTag("slot", s).
			WithTag("version", h.Version).
			WithTag("state", state.String())
	}

	t.removeMutex.Lock()
	t.removes = append(t.removes, s)
	pending := len(t.removes)
	t.removeMutex.Unlock()

	instrumentPendingOps(t.name, opRemove, pending)
	return nil
}

// MarkDirty records new bounds for the object with the given handle. The leaf
// is relaid out with the new bounds during the next Update and keeps its slot.
// Marks on objects pending removal are dropped by the update.
func (t *Tree[K, P]) MarkDirty(h Handle, bounds geom.AABB) error {
	s := h.Slot

	if t.opts.static {
		return errors.New("static tree objects cannot move").
			WithType(ErrTypeStaticTree).
			WithTag("tree", t.name).
			WithTag("slot", s)
	}

	if !bounds.IsValid() {
		return errors.New("invalid bounds").
			WithType(ErrTypeInvalidBounds).
			WithTag("tree", t.name).
			WithTag("slot", s).
			WithTag("bounds", bounds.String())
	}

	t.slotMutex.Lock()
	state := t.handleState(h)
	t.slotMutex.Unlock()

	switch state {
	case slotPendingInsert, slotLinked, slotPendingRemove:
	default:
		return errors.New("object not found").
			WithType(ErrTypeSlotNotFound).
			WithTag("tree", t.name).
			WithTag("slot", s).
			WithTag("version", h.Version).
			WithTag("state", state.String())
	}

	t.dirtyMutex.Lock()
	t.dirty = append(t.dirty, dirtyRequest{handle: h, bounds: bounds})
	pending := len(t.dirty)
	t.dirtyMutex.Unlock()

	instrumentPendingOps(t.name, opRelayout, pending)
	return nil
}

// Update applies the buffered removals, insertions and relayouts, in that
// order and each in request order. It waits for in-flight query traversals to
// finish before touching the tree.
func (t *Tree[K, P]) Update() {
	t.phase.Lock()
	defer t.phase.Unlock()

	start := time.Now()

	t.removeMutex.Lock()
	removes := t.removes
	t.removes = nil
	t.removeMutex.Unlock()

	t.insertMutex.Lock()
	inserts := t.inserts
	t.inserts = nil
	t.insertMutex.Unlock()

	t.dirtyMutex.Lock()
	dirty := t.dirty
	t.dirty = nil
	t.dirtyMutex.Unlock()

	for _, s := range removes {
		t.applyRemove(s)
	}

	for _, r := range inserts {
		t.applyInsert(r)
	}

	relaid := 0
	for _, d := range dirty {
		if t.applyRelayout(d) {
			relaid++
		}
	}

	rotations := 0
	if t.opts.rebalance {
		rotations = t.applyRebalance()
	}
	clear(t.touched)

	generation := t.generation.Add(1)

	if t.opts.validate {
		if err := t.validate(); err != nil {
			logs.WithTag("tree", t.name).
				WithTag("generation", generation).
				Error(err)
			panic(err)
		}
	}

	duration := time.Since(start)
	instrumentUpdate(t.name, duration, t.leaves)
	instrumentPendingOps(t.name, opInsert, 0)
	instrumentPendingOps(t.name, opRemove, 0)
	instrumentPendingOps(t.name, opRelayout, 0)

	if len(removes) != 0 || len(inserts) != 0 || len(dirty) != 0 {
		logs.WithTag("tree", t.name).
			WithTag("generation", generation).
			WithTag("removed", len(removes)).
			WithTag("inserted", len(inserts)).
			WithTag("relaid", relaid).
			WithTag("rotations", rotations).
			WithTag("objects", t.leaves).
			WithTag("duration", duration).
			Debug("tree updated")
	}
}

// Generation returns the number of updates applied to the tree.
func (t *Tree[K, P]) Generation() uint64 {
	return t.generation.Load()
}

// Len returns the number of objects linked into the tree.
func (t *Tree[K, P]) Len() int {
	t.phase.RLock()
	defer t.phase.RUnlock()

	return t.leaves
}

// Root returns the slot of the root node, or None when the tree is empty.
func (t *Tree[K, P]) Root() Slot {
	t.phase.RLock()
	defer t.phase.RUnlock()

	return t.root
}

// Node returns a copy of the node in the given slot. It returns false when the
// slot is not linked into the tree.
func (t *Tree[K, P]) Node(s Slot) (Node[K, P], bool) {
	t.phase.RLock()
	defer t.phase.RUnlock()

	t.slotMutex.Lock()
	ok := t.arena.contains(s) && t.arena.states[s].reachable()
	t.slotMutex.Unlock()

	if !ok {
		return Node[K, P]{}, false
	}
	return *t.arena.node(s), true
}

// Stats describes the shape of a tree.
type Stats struct {
	Leaves   int
	Internal int
	Depth    int
	Capacity int
	Free     int
}

func (t *Tree[K, P]) Stats() Stats {
	t.phase.RLock()
	defer t.phase.RUnlock()

	t.slotMutex.Lock()
	stats := Stats{
		Capacity: t.arena.capacity(),
		Free:     len(t.arena.free),
	}
	t.slotMutex.Unlock()

	if t.root == None {
		return stats
	}

	type entry struct {
		slot  Slot
		depth int
	}
	stack := []entry{{slot: t.root, depth: 1}}

	for len(stack) != 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if e.depth > stats.Depth {
			stats.Depth = e.depth
		}

		n := t.arena.node(e.slot)
		if n.HasObject {
			stats.Leaves++
			continue
		}

		stats.Internal++
		stack = append(stack,
			entry{slot: n.Left, depth: e.depth + 1},
			entry{slot: n.Right, depth: e.depth + 1},
		)
	}
	return stats
}

func (t *Tree[K, P]) allocateInternal() Slot {
	t.slotMutex.Lock()
	defer t.slotMutex.Unlock()

	return t.arena.allocate(slotInternal)
}

func (t *Tree[K, P]) release(s Slot) {
	t.arena.node(s).reset(s)

	t.slotMutex.Lock()
	defer t.slotMutex.Unlock()

	t.arena.release(s)
}

// Handle returns the handle of the object currently stored in the given slot.
// It returns false when the slot holds no object.
func (t *Tree[K, P]) Handle(s Slot) (Handle, bool) {
	t.slotMutex.Lock()
	defer t.slotMutex.Unlock()

	if !t.arena.contains(s) {
		return Handle{Slot: None}, false
	}

	switch t.arena.states[s] {
	case slotPendingInsert, slotLinked, slotPendingRemove:
		return t.arena.handle(s), true
	default:
		return Handle{Slot: None}, false
	}
}

func (t *Tree[K, P]) state(s Slot) slotState {
	t.slotMutex.Lock()
	defer t.slotMutex.Unlock()

	return t.arena.states[s]
}

func (t *Tree[K, P]) setState(s Slot, state slotState) {
	t.slotMutex.Lock()
	defer t.slotMutex.Unlock()

	t.arena.states[s] = state
}

func (t *Tree[K, P]) touch(s Slot) {
	if t.opts.rebalance {
		t.touched[s] = struct{}{}
	}
}

// Walk visits the nodes linked into the tree depth first, parents before
// children. It stops when fn returns false. The tree must not be updated from
// fn.
func (t *Tree[K, P]) Walk(fn func(Node[K, P]) bool) {
	t.phase.RLock()
	defer t.phase.RUnlock()

	if t.root == None {
		return
	}

	stack := []Slot{t.root}
	for len(stack) != 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.arena.node(s)
		if !fn(*n) {
			return
		}
		if !n.HasObject {
			stack = append(stack, n.Right, n.Left)
		}
	}
}
