package bvh

import "github.com/aukilabs/occlusion/geom"

// Slot is the index of a node in the tree arena.
type Slot int32

// None is the slot used when a node reference is absent.
const None Slot = -1

// Handle identifies an object stored in a tree. The version is bumped each
// time the slot is freed, so a handle kept after its object was removed does
// not match the next object stored in the same slot.
type Handle struct {
	Slot    Slot
	Version uint32
}

// Node is a tree node. Leaves carry a key and a payload, internal nodes have
// exactly two children.
type Node[K comparable, P any] struct {
	Bounds    geom.AABB
	Key       K
	Payload   P
	HasObject bool

	Parent Slot
	Left   Slot
	Right  Slot

	// The slot the node lives in.
	Index Slot
}

func (n *Node[K, P]) IsLeaf() bool {
	return n.HasObject
}

func (n *Node[K, P]) reset(s Slot) {
	*n = Node[K, P]{
		Parent: None,
		Left:   None,
		Right:  None,
		Index:  s,
	}
}

// Result is an object found by a query.
type Result[K comparable, P any] struct {
	Key     K
	Payload P
}

// Item is an object given to Build.
type Item[K comparable, P any] struct {
	Key     K
	Bounds  geom.AABB
	Payload P
}

type slotState uint8

const (
	slotFree slotState = iota
	slotPendingInsert
	slotCanceled
	slotLinked
	slotPendingRemove
	slotInternal
)

func (s slotState) String() string {
	switch s {
	case slotFree:
		return "free"
	case slotPendingInsert:
		return "pending_insert"
	case slotCanceled:
		return "canceled"
	case slotLinked:
		return "linked"
	case slotPendingRemove:
		return "pending_remove"
	case slotInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// reachable reports whether a slot in this state is part of the tree shape.
func (s slotState) reachable() bool {
	return s == slotLinked || s == slotPendingRemove || s == slotInternal
}
