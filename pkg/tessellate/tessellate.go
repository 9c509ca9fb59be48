// Package tessellate turns scene components into triangle meshes with a
// geometry kernel. One mesh is produced per drawable component.
package tessellate

import (
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"github.com/chazu/plantview/pkg/component"
	"github.com/chazu/plantview/pkg/graph"
	"github.com/chazu/plantview/pkg/kernel"
	"github.com/chazu/plantview/pkg/transform"
)

var _ component.MeshBuilder = (*Builder)(nil)

// Builder builds world-space solids for controllers. It is the MeshBuilder
// handed to a scene so every view refresh carries fresh triangles.
type Builder struct {
	k   kernel.Kernel
	log *log.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger used for skipped components.
func WithLogger(l *log.Logger) Option {
	return func(b *Builder) { b.log = l }
}

// New returns a Builder over k.
func New(k kernel.Kernel, opts ...Option) *Builder {
	b := &Builder{k: k, log: log.Default()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build tessellates c. A component with nothing to draw, such as a junction
// without connections or an empty union, yields a nil mesh.
func (b *Builder) Build(c *component.Controller) (*kernel.Mesh, error) {
	solid, err := b.Solid(c)
	if err != nil || solid == nil {
		return nil, err
	}
	mesh, err := b.k.ToMesh(solid)
	if err != nil {
		return nil, fmt.Errorf("tessellate: ToMesh failed for %s: %w", c, err)
	}
	mesh.PartName = PartName(c)
	return mesh, nil
}

// PartName is the component's name, or its short id when unnamed.
func PartName(c *component.Controller) string {
	if n := c.Name(); n != "" {
		return n
	}
	return c.ID().Short()
}

// Solid returns c's world-space solid, or nil when it has nothing to draw.
func (b *Builder) Solid(c *component.Controller) (kernel.Solid, error) {
	return b.solid(c, make(map[graph.ID]bool))
}

func (b *Builder) solid(c *component.Controller, seen map[graph.ID]bool) (kernel.Solid, error) {
	if seen[c.ID()] {
		return nil, nil
	}
	seen[c.ID()] = true

	var (
		local kernel.Solid
		err   error
	)
	switch d := c.Data().(type) {
	case component.Pipe:
		local, err = b.k.Tube(d.Length, d.Radius, d.InnerRadius)
	case component.HeatExchanger:
		local, err = b.k.Box(d.Width, d.Height, d.Depth)
	case component.Reactor:
		local, err = b.k.Cylinder(d.Height, d.Radius)
	case component.Junction:
		// Junctions sit where their pipes meet; their own transform is unused.
		p := c.Placement()
		if p.Ends == 0 {
			return nil, nil
		}
		s, err := b.k.Sphere(p.EnvelopeRadius())
		if err != nil {
			return nil, fmt.Errorf("tessellate: %s: %w", c, err)
		}
		return b.k.Translate(s, p.Center.X, p.Center.Y, p.Center.Z), nil
	case component.Shape:
		if d.Type == component.ShapeUnion {
			return b.union(c, seen)
		}
		local, err = b.shape(d)
	default:
		return nil, fmt.Errorf("tessellate: %s has unsupported data type %T", c, c.Data())
	}
	if err != nil {
		return nil, fmt.Errorf("tessellate: %s: %w", c, err)
	}
	return b.place(local, c.Transformation()), nil
}

func (b *Builder) shape(d component.Shape) (kernel.Solid, error) {
	switch d.Type {
	case component.ShapeBox:
		return b.k.Box(d.Dimensions.X, d.Dimensions.Y, d.Dimensions.Z)
	case component.ShapeSphere:
		return b.k.Sphere(d.Dimensions.X)
	case component.ShapeCylinder:
		return b.k.Cylinder(d.Dimensions.Y, d.Dimensions.X)
	}
	return nil, fmt.Errorf("unknown shape type %q", d.Type)
}

// union combines the children's world solids. Children that fail to build
// are logged and left out.
func (b *Builder) union(c *component.Controller, seen map[graph.ID]bool) (kernel.Solid, error) {
	var parts []kernel.Solid
	for _, child := range c.Children() {
		s, err := b.solid(child, seen)
		if err != nil {
			b.log.Warn("union member skipped", "union", c, "member", child, "err", err)
			continue
		}
		parts = append(parts, s)
	}
	return kernel.UnionAll(b.k, parts...), nil
}

// place applies t to a local solid: scale, then rotate, then translate.
func (b *Builder) place(s kernel.Solid, t transform.Transform) kernel.Solid {
	sc := t.Scale.MulScalar(t.Size)
	s = b.k.Scale(s, sc.X, sc.Y, sc.Z)
	if r := t.Rotation; r.X != 0 || r.Y != 0 || r.Z != 0 {
		deg := 180 / math.Pi
		s = b.k.Rotate(s, r.X*deg, r.Y*deg, r.Z*deg)
	}
	if v := t.Translation; v.X != 0 || v.Y != 0 || v.Z != 0 {
		s = b.k.Translate(s, v.X, v.Y, v.Z)
	}
	return s
}

// Tessellate produces one mesh per drawable component of the scene. It walks
// every root and its containment subtree; a union is drawn as one merged
// mesh and its members are not drawn again. The scene is not mutated.
func Tessellate(s *component.Scene, k kernel.Kernel, opts ...Option) ([]*kernel.Mesh, error) {
	if s == nil {
		return nil, nil
	}
	b := New(k, opts...)
	var meshes []*kernel.Mesh
	seen := make(map[graph.ID]bool)
	var walk func(c *component.Controller) error
	walk = func(c *component.Controller) error {
		if seen[c.ID()] {
			return nil
		}
		seen[c.ID()] = true
		mesh, err := b.Build(c)
		if err != nil {
			return err
		}
		if mesh != nil {
			meshes = append(meshes, mesh)
		}
		if d, ok := c.Data().(component.Shape); ok && d.Type == component.ShapeUnion {
			return nil
		}
		for _, child := range c.Children() {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range s.Roots() {
		if err := walk(root); err != nil {
			return nil, fmt.Errorf("tessellate: error walking root %s: %w", root.ID().Short(), err)
		}
	}
	return meshes, nil
}
