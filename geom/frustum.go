package geom

// Frustum is a view volume that can be tested against boxes.
//
// Implementations must be safe for concurrent use since a single frustum is
// shared by every branch of a parallel query.
type Frustum interface {
	// Covers reports whether any part of the box is inside the view volume.
	Covers(b AABB) bool
}

// FrustumFunc adapts a function to the Frustum interface.
type FrustumFunc func(b AABB) bool

func (f FrustumFunc) Covers(b AABB) bool {
	return f(b)
}

// BoxFrustum is an axis-aligned view volume, such as an orthographic camera or
// a region of interest.
type BoxFrustum AABB

func (f BoxFrustum) Covers(b AABB) bool {
	return AABB(f).Intersects(b)
}

// Everything is a frustum that covers all boxes.
var Everything Frustum = FrustumFunc(func(AABB) bool { return true })

// Nothing is a frustum that never covers a box.
var Nothing Frustum = FrustumFunc(func(AABB) bool { return false })
