package bvh

const (
	ErrTypeSlotNotFound      = "slot_not_found"
	ErrTypeInvalidBounds     = "invalid_bounds"
	ErrTypeTreeNotEmpty      = "tree_not_empty"
	ErrTypeInvariantViolated = "invariant_violated"
	ErrTypeStaticTree        = "static_tree"
)
