package bvh

import (
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/occlusion/geom"
)

// Build links all the given items at once into an empty tree and returns their
// handles, in item order. The tree is built top-down by splitting the items at
// the median of their centers along the longest axis, which gives a tighter
// tree than inserting items one by one.
//
// Build is meant for objects that do not move, such as static scenery. It
// fails when the tree has objects or pending requests.
func (t *Tree[K, P]) Build(items []Item[K, P]) ([]Handle, error) {
	for i, item := range items {
		if !item.Bounds.IsValid() {
			return nil, errors.New("invalid bounds").
				WithType(ErrTypeInvalidBounds).
				WithTag("tree", t.name).
				WithTag("item", i).
				WithTag("bounds", item.Bounds.String())
		}
	}

	t.phase.Lock()
	defer t.phase.Unlock()

	if !t.isEmpty() {
		return nil, errors.New("tree is not empty").
			WithType(ErrTypeTreeNotEmpty).
			WithTag("tree", t.name).
			WithTag("objects", t.leaves)
	}

	if len(items) == 0 {
		return nil, nil
	}

	slots := make([]Slot, len(items))
	handles := make([]Handle, len(items))
	for i, item := range items {
		t.slotMutex.Lock()
		s := t.arena.allocate(slotLinked)
		handles[i] = t.arena.handle(s)
		t.slotMutex.Unlock()

		*t.arena.node(s) = Node[K, P]{
			Bounds:    item.Bounds,
			Key:       item.Key,
			Payload:   item.Payload,
			HasObject: true,
			Parent:    None,
			Left:      None,
			Right:     None,
			Index:     s,
		}
		slots[i] = s
	}

	order := make([]Slot, len(slots))
	copy(order, slots)

	t.root = t.buildRange(order)
	t.arena.node(t.root).Parent = None
	t.leaves = len(items)
	generation := t.generation.Add(1)

	if t.opts.validate {
		if err := t.validate(); err != nil {
			logs.WithTag("tree", t.name).
				WithTag("generation", generation).
				Error(err)
			panic(err)
		}
	}

	t.slotMutex.Lock()
	capacity := t.arena.capacity()
	t.slotMutex.Unlock()

	instrumentArenaCapacity(t.name, capacity)
	instrumentUpdate(t.name, 0, t.leaves)

	logs.WithTag("tree", t.name).
		WithTag("generation", generation).
		WithTag("objects", len(items)).
		Info("tree built")
	return handles, nil
}

func (t *Tree[K, P]) buildRange(slots []Slot) Slot {
	if len(slots) == 1 {
		return slots[0]
	}

	centers := t.arena.node(slots[0]).Bounds.Center()
	centerBounds := geom.AABB{Min: centers, Max: centers}
	for _, s := range slots[1:] {
		c := t.arena.node(s).Bounds.Center()
		centerBounds = geom.Union(centerBounds, geom.AABB{Min: c, Max: c})
	}

	axis := centerBounds.LongestAxis()
	sort.SliceStable(slots, func(i, j int) bool {
		a := geom.Axis(t.arena.node(slots[i]).Bounds.Center(), axis)
		b := geom.Axis(t.arena.node(slots[j]).Bounds.Center(), axis)
		return a < b
	})

	mid := len(slots) / 2
	left := t.buildRange(slots[:mid])
	right := t.buildRange(slots[mid:])

	ps := t.allocateInternal()
	parent := t.arena.node(ps)
	*parent = Node[K, P]{
		Bounds: geom.Union(t.arena.node(left).Bounds, t.arena.node(right).Bounds),
		Parent: None,
		Left:   left,
		Right:  right,
		Index:  ps,
	}
	t.arena.node(left).Parent = ps
	t.arena.node(right).Parent = ps
	return ps
}

func (t *Tree[K, P]) isEmpty() bool {
	if t.root != None {
		return false
	}

	t.insertMutex.Lock()
	pendingInserts := len(t.inserts)
	t.insertMutex.Unlock()

	t.removeMutex.Lock()
	pendingRemoves := len(t.removes)
	t.removeMutex.Unlock()

	return pendingInserts == 0 && pendingRemoves == 0
}
