// Package sdfx implements kernel.Kernel with the github.com/deadsy/sdfx
// signed distance field library.
package sdfx

import (
	"fmt"
	"math"

	"github.com/chazu/plantview/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

var _ kernel.Kernel = (*SdfxKernel)(nil)

// DefaultMeshCells is the marching cubes resolution along the longest axis.
const DefaultMeshCells = 200

type sdfxSolid struct {
	s sdf.SDF3
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct {
	cells int
}

// Option configures an SdfxKernel.
type Option func(*SdfxKernel)

// WithMeshCells sets the marching cubes resolution. Values below 8 are
// raised to 8.
func WithMeshCells(n int) Option {
	return func(k *SdfxKernel) { k.cells = max(n, 8) }
}

// New returns a new SdfxKernel.
func New(opts ...Option) *SdfxKernel {
	k := &SdfxKernel{cells: DefaultMeshCells}
	for _, o := range opts {
		o(k)
	}
	return k
}

// MeshCells returns the marching cubes resolution.
func (k *SdfxKernel) MeshCells() int {
	return k.cells
}

func unwrap(s kernel.Solid) sdf.SDF3 {
	return s.(*sdfxSolid).s
}

func wrap(s sdf.SDF3) kernel.Solid {
	return &sdfxSolid{s: s}
}

func positive(op string, dims ...float64) error {
	for _, d := range dims {
		if !(d > 0) {
			return fmt.Errorf("sdfx: %s %v: %w", op, dims, kernel.ErrInvalidDimension)
		}
	}
	return nil
}

// upright turns a Z-aligned sdfx cylinder to run along Y.
var upright = sdf.RotateX(-math.Pi / 2)

// Box creates a box centered on the origin.
func (k *SdfxKernel) Box(x, y, z float64) (kernel.Solid, error) {
	if err := positive("box", x, y, z); err != nil {
		return nil, err
	}
	s, err := sdf.Box3D(v3.Vec{X: x, Y: y, Z: z}, 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx: box: %w", err)
	}
	return wrap(s), nil
}

// Cylinder creates a solid cylinder along Y centered on the origin.
func (k *SdfxKernel) Cylinder(height, radius float64) (kernel.Solid, error) {
	if err := positive("cylinder", height, radius); err != nil {
		return nil, err
	}
	s, err := sdf.Cylinder3D(height, radius, 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx: cylinder: %w", err)
	}
	return wrap(sdf.Transform3D(s, upright)), nil
}

// Tube creates a cylinder along Y with a coaxial bore of radius inner. An
// inner radius of zero yields a solid cylinder.
func (k *SdfxKernel) Tube(height, radius, inner float64) (kernel.Solid, error) {
	outer, err := k.Cylinder(height, radius)
	if err != nil || inner <= 0 {
		return outer, err
	}
	if inner >= radius {
		return nil, fmt.Errorf("sdfx: tube bore %g not inside radius %g: %w", inner, radius, kernel.ErrInvalidDimension)
	}
	// The bore overshoots both caps so they open cleanly.
	bore, err := k.Cylinder(height*1.1, inner)
	if err != nil {
		return nil, err
	}
	return k.Difference(outer, bore), nil
}

// Sphere creates a sphere centered on the origin.
func (k *SdfxKernel) Sphere(radius float64) (kernel.Solid, error) {
	if err := positive("sphere", radius); err != nil {
		return nil, err
	}
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		return nil, fmt.Errorf("sdfx: sphere: %w", err)
	}
	return wrap(s), nil
}

// Union returns the union of two solids.
func (k *SdfxKernel) Union(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Union3D(unwrap(a), unwrap(b)))
}

// Difference returns the difference a - b.
func (k *SdfxKernel) Difference(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Difference3D(unwrap(a), unwrap(b)))
}

// Intersection returns the intersection of two solids.
func (k *SdfxKernel) Intersection(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Intersect3D(unwrap(a), unwrap(b)))
}

// Translate moves a solid by (x, y, z).
func (k *SdfxKernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	return wrap(sdf.Transform3D(unwrap(s), sdf.Translate3d(v3.Vec{X: x, Y: y, Z: z})))
}

// Rotate rotates a solid by Euler angles (degrees) around X, then Y, then Z.
func (k *SdfxKernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	rad := math.Pi / 180.0
	m := sdf.RotateZ(z * rad).Mul(sdf.RotateY(y * rad)).Mul(sdf.RotateX(x * rad))
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// Scale stretches a solid along each axis about the origin.
func (k *SdfxKernel) Scale(s kernel.Solid, x, y, z float64) kernel.Solid {
	if x == 1 && y == 1 && z == 1 {
		return s
	}
	return wrap(sdf.Transform3D(unwrap(s), sdf.Scale3d(v3.Vec{X: x, Y: y, Z: z})))
}

// ToMesh converts a solid to a triangle mesh using marching cubes. Each
// triangle gets its own three vertices carrying the face normal.
func (k *SdfxKernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	if s == nil {
		return nil, fmt.Errorf("sdfx: to mesh: nil solid")
	}
	triangles := render.ToTriangles(unwrap(s), render.NewMarchingCubesUniform(k.cells))

	n := len(triangles) * 3
	m := &kernel.Mesh{
		Vertices: make([]float32, 0, n*3),
		Normals:  make([]float32, 0, n*3),
		Indices:  make([]uint32, 0, n),
	}
	for i, tri := range triangles {
		nv := tri.Normal()
		for j := 0; j < 3; j++ {
			v := tri[j]
			m.Vertices = append(m.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
			m.Normals = append(m.Normals, float32(nv.X), float32(nv.Y), float32(nv.Z))
			m.Indices = append(m.Indices, uint32(i*3+j))
		}
	}
	return m, nil
}
