package geom

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min r3.Vector
	Max r3.Vector
}

// NewAABB creates a box from its center and half-extents.
func NewAABB(center r3.Vector, halfExtents r3.Vector) AABB {
	return AABB{
		Min: center.Sub(halfExtents),
		Max: center.Add(halfExtents),
	}
}

// Box creates a box from its min and max corner components.
func Box(minX, minY, minZ, maxX, maxY, maxZ float64) AABB {
	return AABB{
		Min: Vec(minX, minY, minZ),
		Max: Vec(maxX, maxY, maxZ),
	}
}

// Union returns the smallest box that contains both a and b.
func Union(a AABB, b AABB) AABB {
	return AABB{
		Min: MinVector(a.Min, b.Min),
		Max: MaxVector(a.Max, b.Max),
	}
}

func (b AABB) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extents returns the half-extents of the box.
func (b AABB) Extents() r3.Vector {
	return b.Max.Sub(b.Min).Mul(0.5)
}

func (b AABB) Size() r3.Vector {
	return b.Max.Sub(b.Min)
}

// SurfaceArea is the area of the six faces of the box.
func (b AABB) SurfaceArea() float64 {
	e := b.Size()
	return 2 * (e.X*e.Y + e.X*e.Z + e.Y*e.Z)
}

// LongestAxis returns 0, 1 or 2 for x, y or z.
func (b AABB) LongestAxis() int {
	e := b.Size()
	switch {
	case e.X >= e.Y && e.X >= e.Z:
		return 0
	case e.Y >= e.Z:
		return 1
	default:
		return 2
	}
}

// Contains reports whether o lies fully within b. Touching faces count as
// contained.
func (b AABB) Contains(o AABB) bool {
	return b.Min.X <= o.Min.X && b.Min.Y <= o.Min.Y && b.Min.Z <= o.Min.Z &&
		b.Max.X >= o.Max.X && b.Max.Y >= o.Max.Y && b.Max.Z >= o.Max.Z
}

// Intersects reports whether b and o overlap. Touching faces count as an
// intersection.
func (b AABB) Intersects(o AABB) bool {
	if b.Min.X > o.Max.X || b.Max.X < o.Min.X {
		return false
	}
	if b.Min.Y > o.Max.Y || b.Max.Y < o.Min.Y {
		return false
	}
	if b.Min.Z > o.Max.Z || b.Max.Z < o.Min.Z {
		return false
	}

	// overlap on all axes -> must overlap
	return true
}

// IsValid reports whether every component is a finite number and min <= max.
func (b AABB) IsValid() bool {
	for _, v := range []float64{b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}

func (b AABB) EqualWithEpsilon(o AABB, epsilon float64) bool {
	return VectorEqualWithEpsilon(b.Min, o.Min, epsilon) &&
		VectorEqualWithEpsilon(b.Max, o.Max, epsilon)
}

func (b AABB) Translate(v r3.Vector) AABB {
	return AABB{Min: b.Min.Add(v), Max: b.Max.Add(v)}
}

func (b AABB) String() string {
	return fmt.Sprintf("[%g,%g,%g]-[%g,%g,%g]", b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
}
