// Package geometry derives world-space footprints from component transforms.
//
// A pipe is a cylinder along its local Y axis, centered on the origin, with
// circular end caps at Y = +length/2 (upper) and Y = -length/2 (lower). The
// footprint of a cap is the axis-aligned box around its transformed boundary
// samples. Junctions are placed at the centroid of the cap footprints they
// connect.
package geometry

import (
	"math"

	"github.com/chazu/plantview/pkg/transform"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// MinCapSamples is the number of points used when fewer are requested: the
// four axis-aligned extremes of the cap circle.
const MinCapSamples = 4

// End selects one end cap of a pipe.
type End int

const (
	Upper End = iota // local +Y
	Lower            // local -Y
)

func (e End) String() string {
	if e == Lower {
		return "lower"
	}
	return "upper"
}

// Cylinder describes the local-space shape of a pipe.
type Cylinder struct {
	Radius float64 // outer radius
	Length float64 // along local Y
}

// CapPoints returns samples on the boundary of a circle of the given radius
// in the plane Y = y. The first four are always (r,y,0), (0,y,r), (-r,y,0),
// (0,y,-r); larger counts add evenly spaced points between them.
func CapPoints(radius, y float64, samples int) []v3.Vec {
	if samples < MinCapSamples {
		samples = MinCapSamples
	}
	pts := []v3.Vec{
		{X: radius, Y: y, Z: 0},
		{X: 0, Y: y, Z: radius},
		{X: -radius, Y: y, Z: 0},
		{X: 0, Y: y, Z: -radius},
	}
	extra := samples - MinCapSamples
	for i := 0; i < extra; i++ {
		a := 2 * math.Pi * (float64(i) + 0.5) / float64(extra)
		pts = append(pts, v3.Vec{X: radius * math.Cos(a), Y: y, Z: radius * math.Sin(a)})
	}
	return pts
}

// Bounds returns the axis-aligned box around pts after mapping them with m.
// An empty point set yields a zero box at the origin.
func Bounds(pts []v3.Vec, m sdf.M44) sdf.Box3 {
	if len(pts) == 0 {
		return sdf.Box3{}
	}
	first := m.MulPosition(pts[0])
	box := sdf.Box3{Min: first, Max: first}
	for _, p := range pts[1:] {
		box = include(box, m.MulPosition(p))
	}
	return box
}

// CapExtrema returns the world-space footprint of one end of c under t.
func CapExtrema(c Cylinder, t transform.Transform, end End, samples int) sdf.Box3 {
	y := c.Length / 2
	if end == Lower {
		y = -y
	}
	return Bounds(CapPoints(c.Radius, y, samples), t.Matrix())
}

// UpperExtrema is CapExtrema for the +Y end with the minimal sample set.
func UpperExtrema(c Cylinder, t transform.Transform) sdf.Box3 {
	return CapExtrema(c, t, Upper, MinCapSamples)
}

// LowerExtrema is CapExtrema for the -Y end with the minimal sample set.
func LowerExtrema(c Cylinder, t transform.Transform) sdf.Box3 {
	return CapExtrema(c, t, Lower, MinCapSamples)
}

// Extrema returns the footprint of the whole pipe: both caps together.
func Extrema(c Cylinder, t transform.Transform, samples int) sdf.Box3 {
	return Union(CapExtrema(c, t, Upper, samples), CapExtrema(c, t, Lower, samples))
}

// Center returns the midpoint of a box.
func Center(b sdf.Box3) v3.Vec {
	return b.Min.Add(b.Max).MulScalar(0.5)
}

// Union returns the smallest box holding every input. No inputs yields a
// zero box at the origin.
func Union(boxes ...sdf.Box3) sdf.Box3 {
	if len(boxes) == 0 {
		return sdf.Box3{}
	}
	out := boxes[0]
	for _, b := range boxes[1:] {
		out = include(include(out, b.Min), b.Max)
	}
	return out
}

func include(b sdf.Box3, p v3.Vec) sdf.Box3 {
	return sdf.Box3{
		Min: v3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)},
		Max: v3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)},
	}
}
