// Package transform defines the affine transform carried by every scene
// entity. A Transform is a plain value: copying it copies the whole state.
package transform

import (
	"fmt"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Transform places a component in world space.
//
// Rotation holds Euler angles in radians about X, Y and Z. Size is a uniform
// multiplier applied before the per-axis Scale. Skew is carried and compared
// but is not part of Matrix; see Matrix.
type Transform struct {
	Translation v3.Vec  `json:"translation"`
	Rotation    v3.Vec  `json:"rotation"`
	Scale       v3.Vec  `json:"scale"`
	Skew        v3.Vec  `json:"skew"`
	Size        float64 `json:"size"`
}

// New returns the identity transform: unit scale and size, everything else zero.
func New() Transform {
	return Transform{
		Scale: v3.Vec{X: 1, Y: 1, Z: 1},
		Size:  1,
	}
}

// Equal reports component-wise equality.
func (t Transform) Equal(o Transform) bool {
	return t.Translation == o.Translation &&
		t.Rotation == o.Rotation &&
		t.Scale == o.Scale &&
		t.Skew == o.Skew &&
		t.Size == o.Size
}

// IsIdentity reports whether t equals New().
func (t Transform) IsIdentity() bool {
	return t.Equal(New())
}

// Matrix returns the local-to-world matrix. Points are scaled by Size, then
// by Scale, rotated about X, then Y, then Z, and finally translated.
//
// sdf.M44 only exposes translate, scale and axis rotations, so Skew has no
// matrix form here and is ignored.
func (t Transform) Matrix() sdf.M44 {
	s := t.Scale.MulScalar(t.Size)
	return sdf.Translate3d(t.Translation).
		Mul(sdf.RotateZ(t.Rotation.Z)).
		Mul(sdf.RotateY(t.Rotation.Y)).
		Mul(sdf.RotateX(t.Rotation.X)).
		Mul(sdf.Scale3d(s))
}

// Apply maps a local-space point into world space.
func (t Transform) Apply(p v3.Vec) v3.Vec {
	return t.Matrix().MulPosition(p)
}

func (t Transform) String() string {
	return fmt.Sprintf("T(%.3g %.3g %.3g) R(%.3g %.3g %.3g) S(%.3g %.3g %.3g) x%.3g",
		t.Translation.X, t.Translation.Y, t.Translation.Z,
		t.Rotation.X, t.Rotation.Y, t.Rotation.Z,
		t.Scale.X, t.Scale.Y, t.Scale.Z, t.Size)
}
