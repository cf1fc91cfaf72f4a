package bvh

import (
	"fmt"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Validate checks the tree invariants:
//   - every internal node has exactly two children and no object, every leaf
//     has an object and no children,
//   - every internal node bounds contains the bounds of its children,
//   - every slot is either reachable from the root, on the free stack or
//     reserved by a pending insertion, and never more than one of them.
func (t *Tree[K, P]) Validate() error {
	t.phase.Lock()
	defer t.phase.Unlock()

	return t.validate()
}

func (t *Tree[K, P]) validate() error {
	t.slotMutex.Lock()
	capacity := t.arena.capacity()
	states := make([]slotState, len(t.arena.states))
	copy(states, t.arena.states)
	versions := len(t.arena.versions)
	free := make([]Slot, len(t.arena.free))
	copy(free, t.arena.free)
	t.slotMutex.Unlock()

	if len(states) != capacity || versions != capacity {
		return t.violation("slot tables do not match the arena capacity",
			"states", len(states),
			"versions", versions,
			"capacity", capacity,
		)
	}

	reachable := make([]bool, capacity)
	leaves := 0

	if t.root != None {
		if !t.arena.contains(t.root) {
			return t.violation("root is out of the arena", "slot", t.root)
		}
		if p := t.arena.node(t.root).Parent; p != None {
			return t.violation("root has a parent", "slot", t.root, "parent", p)
		}

		stack := []Slot{t.root}
		for len(stack) != 0 {
			s := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if reachable[s] {
				return t.violation("node is reachable more than once", "slot", s)
			}
			reachable[s] = true

			n := t.arena.node(s)
			if n.Index != s {
				return t.violation("node index does not match its slot", "slot", s, "index", n.Index)
			}

			if n.HasObject {
				if n.Left != None || n.Right != None {
					return t.violation("leaf has children", "slot", s)
				}
				if states[s] != slotLinked && states[s] != slotPendingRemove {
					return t.violation("leaf is not in a linked state",
						"slot", s,
						"state", states[s].String(),
					)
				}
				leaves++
				continue
			}

			if states[s] != slotInternal {
				return t.violation("internal node is not in the internal state",
					"slot", s,
					"state", states[s].String(),
				)
			}

			for _, c := range []Slot{n.Left, n.Right} {
				if !t.arena.contains(c) {
					return t.violation("internal node is missing a child", "slot", s, "child", c)
				}

				child := t.arena.node(c)
				if child.Parent != s {
					return t.violation("child does not point back to its parent",
						"slot", c,
						"parent", s,
						"child_parent", child.Parent,
					)
				}
				if !n.Bounds.Contains(child.Bounds) {
					return t.violation("node bounds do not contain its child bounds",
						"slot", s,
						"child", c,
						"bounds", n.Bounds.String(),
						"child_bounds", child.Bounds.String(),
					)
				}
				stack = append(stack, c)
			}
		}
	}

	if leaves != t.leaves {
		return t.violation("leaf count mismatch", "reachable", leaves, "counted", t.leaves)
	}

	onFreeStack := make([]bool, capacity)
	for _, s := range free {
		if s < 0 || int(s) >= capacity {
			return t.violation("free slot is out of the arena", "slot", s)
		}
		if onFreeStack[s] {
			return t.violation("slot is on the free stack more than once", "slot", s)
		}
		if reachable[s] {
			return t.violation("slot is both reachable and free", "slot", s)
		}
		onFreeStack[s] = true
	}

	for i := 0; i < capacity; i++ {
		s := Slot(i)
		pending := states[s] == slotPendingInsert || states[s] == slotCanceled

		if !reachable[s] && !onFreeStack[s] && !pending {
			return t.violation("slot is leaked", "slot", s, "state", states[s].String())
		}
		if pending && (reachable[s] || onFreeStack[s]) {
			return t.violation("pending slot is in use", "slot", s)
		}
		if onFreeStack[s] && states[s] != slotFree {
			return t.violation("free slot is not in the free state",
				"slot", s,
				"state", states[s].String(),
			)
		}
		if states[s].reachable() && !reachable[s] {
			return t.violation("linked slot is not reachable",
				"slot", s,
				"state", states[s].String(),
			)
		}
	}

	return nil
}

// violation returns an invariant error tagged with the given key value pairs.
func (t *Tree[K, P]) violation(msg string, keyvals ...any) error {
	err := errors.New(msg).
		WithType(ErrTypeInvariantViolated).
		WithTag("tree", t.name)

	for i := 0; i+1 < len(keyvals); i += 2 {
		err = err.WithTag(fmt.Sprint(keyvals[i]), keyvals[i+1])
	}
	return err
}
