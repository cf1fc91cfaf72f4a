package bvh

import "github.com/aukilabs/occlusion/geom"

// applyRebalance tries one rotation on each internal node refitted during the
// update. A rotation swaps a child with a grandchild on the other side when
// that shrinks the surface area of the other side. Ancestor bounds do not
// change since the set of leaves under the rotated node stays the same.
func (t *Tree[K, P]) applyRebalance() int {
	rotations := 0

	for s := range t.touched {
		if t.state(s) != slotInternal {
			continue
		}
		if t.rotate(s) {
			rotations++
		}
	}
	return rotations
}

func (t *Tree[K, P]) rotate(s Slot) bool {
	n := t.arena.node(s)
	left := t.arena.node(n.Left)
	right := t.arena.node(n.Right)

	type rotation struct {
		child      Slot // child of s moved down
		grandChild Slot // grandchild of s moved up
		gain       float64
	}
	best := rotation{child: None, grandChild: None}

	consider := func(child *Node[K, P], other *Node[K, P]) {
		if other.HasObject {
			return
		}

		area := other.Bounds.SurfaceArea()
		a := t.arena.node(other.Left)
		b := t.arena.node(other.Right)

		// Swapping child with a leaves other holding {child, b}.
		if gain := area - geom.Union(child.Bounds, b.Bounds).SurfaceArea(); gain > best.gain {
			best = rotation{child: child.Index, grandChild: a.Index, gain: gain}
		}
		if gain := area - geom.Union(child.Bounds, a.Bounds).SurfaceArea(); gain > best.gain {
			best = rotation{child: child.Index, grandChild: b.Index, gain: gain}
		}
	}

	consider(left, right)
	consider(right, left)

	if best.child == None {
		return false
	}

	child := t.arena.node(best.child)
	grandChild := t.arena.node(best.grandChild)
	os := grandChild.Parent
	other := t.arena.node(os)

	if n.Left == best.child {
		n.Left = best.grandChild
	} else {
		n.Right = best.grandChild
	}
	grandChild.Parent = s

	if other.Left == best.grandChild {
		other.Left = best.child
	} else {
		other.Right = best.child
	}
	child.Parent = os

	other.Bounds = geom.Union(t.arena.node(other.Left).Bounds, t.arena.node(other.Right).Bounds)
	return true
}
