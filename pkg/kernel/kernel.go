// Package kernel defines the solid modeling interface used to turn plant
// components into renderable triangle meshes. The sdfx subpackage is the
// only backend.
package kernel

import "errors"

// ErrInvalidDimension is returned by primitives given a non-positive size.
var ErrInvalidDimension = errors.New("kernel: dimension must be positive")

// Solid is an opaque handle to a kernel solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel builds solids and tessellates them. Every primitive is centered on
// the origin; cylindrical primitives run along Y.
type Kernel interface {
	// Primitives
	Box(x, y, z float64) (Solid, error)
	Cylinder(height, radius float64) (Solid, error)
	Tube(height, radius, inner float64) (Solid, error)
	Sphere(radius float64) (Solid, error)

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees, applied X then Y then Z
	Scale(s Solid, x, y, z float64) Solid

	// Mesh output
	ToMesh(s Solid) (*Mesh, error)
}

// UnionAll folds solids into one with k.Union, skipping nil entries. It
// returns nil when nothing is left.
func UnionAll(k Kernel, solids ...Solid) Solid {
	var out Solid
	for _, s := range solids {
		switch {
		case s == nil:
		case out == nil:
			out = s
		default:
			out = k.Union(out, s)
		}
	}
	return out
}
