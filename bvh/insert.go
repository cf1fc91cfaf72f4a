package bvh

import "github.com/aukilabs/occlusion/geom"

func (t *Tree[K, P]) applyInsert(r insertRequest[K, P]) {
	if t.state(r.slot) == slotCanceled {
		t.release(r.slot)
		return
	}

	n := t.arena.node(r.slot)
	*n = Node[K, P]{
		Bounds:    r.bounds,
		Key:       r.key,
		Payload:   r.payload,
		HasObject: true,
		Parent:    None,
		Left:      None,
		Right:     None,
		Index:     r.slot,
	}

	t.link(r.slot)
	t.setState(r.slot, slotLinked)
	t.leaves++
}

// link splices the leaf in slot s into the tree. The leaf bounds must be set.
//
// The insertion point is found by walking down from the root and picking, at
// each internal node, the child whose bounds grows the least in surface area
// when the leaf is added. Ties go left.
func (t *Tree[K, P]) link(s Slot) {
	leaf := t.arena.node(s)
	leaf.Parent = None

	if t.root == None {
		t.root = s
		return
	}

	target := t.root
	for {
		n := t.arena.node(target)
		if n.HasObject {
			break
		}

		leftArea := geom.Union(t.arena.node(n.Left).Bounds, leaf.Bounds).SurfaceArea()
		rightArea := geom.Union(t.arena.node(n.Right).Bounds, leaf.Bounds).SurfaceArea()

		if leftArea <= rightArea {
			target = n.Left
		} else {
			target = n.Right
		}
	}

	sibling := t.arena.node(target)
	grandParent := sibling.Parent

	ps := t.allocateInternal()
	parent := t.arena.node(ps)
	*parent = Node[K, P]{
		Bounds: geom.Union(sibling.Bounds, leaf.Bounds),
		Parent: grandParent,
		Left:   s,
		Right:  target,
		Index:  ps,
	}

	sibling.Parent = ps
	leaf.Parent = ps

	if grandParent == None {
		t.root = ps
	} else {
		g := t.arena.node(grandParent)
		if g.Left == target {
			g.Left = ps
		} else {
			g.Right = ps
		}
	}

	t.touch(ps)
	t.refit(grandParent)
}

// refit recomputes the bounds of s and of all its ancestors from their
// children.
func (t *Tree[K, P]) refit(s Slot) {
	for s != None {
		n := t.arena.node(s)
		n.Bounds = geom.Union(t.arena.node(n.Left).Bounds, t.arena.node(n.Right).Bounds)
		t.touch(s)
		s = n.Parent
	}
}
