package bvh

func (t *Tree[K, P]) applyRemove(s Slot) {
	if t.state(s) != slotPendingRemove {
		return
	}

	t.unlink(s)
	t.release(s)
	t.leaves--
}

func (t *Tree[K, P]) applyRelayout(d dirtyRequest) bool {
	t.slotMutex.Lock()
	state := t.handleState(d.handle)
	t.slotMutex.Unlock()

	if state != slotLinked {
		return false
	}

	s := d.handle.Slot
	t.unlink(s)
	t.arena.node(s).Bounds = d.bounds
	t.link(s)
	return true
}

// unlink detaches the leaf in slot s from the tree. The parent of the leaf is
// released and the sibling takes its place. The leaf slot itself is kept.
func (t *Tree[K, P]) unlink(s Slot) {
	if s == t.root {
		t.root = None
		return
	}

	n := t.arena.node(s)
	ps := n.Parent
	parent := t.arena.node(ps)

	siblingSlot := parent.Left
	if siblingSlot == s {
		siblingSlot = parent.Right
	}
	sibling := t.arena.node(siblingSlot)
	grandParent := parent.Parent

	if grandParent == None {
		t.root = siblingSlot
		sibling.Parent = None
	} else {
		g := t.arena.node(grandParent)
		if g.Left == ps {
			g.Left = siblingSlot
		} else {
			g.Right = siblingSlot
		}
		sibling.Parent = grandParent

		t.refit(grandParent)
	}

	n.Parent = None
	delete(t.touched, ps)
	t.release(ps)
}
