package geometry

import (
	"github.com/chazu/plantview/pkg/transform"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// PipeEnd is one connection at a junction: a pipe's shape, its transform,
// and the end that faces the junction.
type PipeEnd struct {
	Cylinder  Cylinder
	Transform transform.Transform
	End       End
}

// Footprint returns the world-space box of the facing end cap.
func (p PipeEnd) Footprint(samples int) sdf.Box3 {
	return CapExtrema(p.Cylinder, p.Transform, p.End, samples)
}

// Placement is a junction's derived position and extent.
type Placement struct {
	Center   v3.Vec
	Envelope sdf.Box3 // union of the connected footprints
	Ends     int      // number of connected ends
}

// Centroid returns the unweighted mean of the footprint centers. With no
// footprints the result is the origin.
func Centroid(footprints []sdf.Box3) v3.Vec {
	if len(footprints) == 0 {
		return v3.Vec{}
	}
	var sum v3.Vec
	for _, f := range footprints {
		sum = sum.Add(Center(f))
	}
	return sum.MulScalar(1 / float64(len(footprints)))
}

// PlaceJunction derives a junction's placement from its connected pipe ends.
func PlaceJunction(ends []PipeEnd, samples int) Placement {
	if len(ends) == 0 {
		return Placement{}
	}
	footprints := make([]sdf.Box3, len(ends))
	for i, e := range ends {
		footprints[i] = e.Footprint(samples)
	}
	return Placement{
		Center:   Centroid(footprints),
		Envelope: Union(footprints...),
		Ends:     len(ends),
	}
}

// EnvelopeRadius is half the largest extent of the envelope: the radius of a
// sphere at the center that covers every connected footprint's width.
func (p Placement) EnvelopeRadius() float64 {
	size := p.Envelope.Max.Sub(p.Envelope.Min)
	r := size.X
	if size.Y > r {
		r = size.Y
	}
	if size.Z > r {
		r = size.Z
	}
	return r / 2
}
