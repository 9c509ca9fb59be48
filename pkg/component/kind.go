package component

import (
	"encoding/json"
	"fmt"

	"github.com/chazu/plantview/pkg/geometry"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Kind identifies the component type behind a Controller.
type Kind int

const (
	KindShape Kind = iota
	KindPipe
	KindJunction
	KindHeatExchanger
	KindReactor
)

var kindNames = map[Kind]string{
	KindShape:         "shape",
	KindPipe:          "pipe",
	KindJunction:      "junction",
	KindHeatExchanger: "heat-exchanger",
	KindReactor:       "reactor",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("component: unknown kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Data is the kind-specific payload of a component. Implementations are plain
// comparable values, so copying a Data copies all of it.
type Data interface {
	Kind() Kind
}

// Pipe is a hollow cylinder along its local Y axis. Flow enters at the lower
// (-Y) end and leaves at the upper (+Y) end.
type Pipe struct {
	Radius      float64 `json:"radius"`
	InnerRadius float64 `json:"inner_radius"`
	Length      float64 `json:"length"`
}

func (Pipe) Kind() Kind { return KindPipe }

// Cylinder returns the pipe's outer shape for extrema computations.
func (p Pipe) Cylinder() geometry.Cylinder {
	return geometry.Cylinder{Radius: p.Radius, Length: p.Length}
}

// Junction joins pipe ends. It has no dimensions of its own; its placement is
// derived from the pipes it connects.
type Junction struct{}

func (Junction) Kind() Kind { return KindJunction }

// HeatExchanger is a box-shaped unit centered on its origin.
type HeatExchanger struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Depth  float64 `json:"depth"`
}

func (HeatExchanger) Kind() Kind { return KindHeatExchanger }

// Reactor is a vertical cylindrical vessel centered on its origin.
type Reactor struct {
	Radius float64 `json:"radius"`
	Height float64 `json:"height"`
}

func (Reactor) Kind() Kind { return KindReactor }

// ShapeType selects the primitive a Shape draws.
type ShapeType string

const (
	ShapeBox      ShapeType = "box"
	ShapeSphere   ShapeType = "sphere"
	ShapeCylinder ShapeType = "cylinder"
	ShapeUnion    ShapeType = "union" // combines its children
)

// Shape is a generic CSG node. Dimensions is the full box size for a box;
// for a sphere X is the radius; for a cylinder X is the radius and Y the
// height along local Y. A union ignores Dimensions.
type Shape struct {
	Type       ShapeType `json:"type"`
	Dimensions v3.Vec    `json:"dimensions"`
}

func (Shape) Kind() Kind { return KindShape }

// decodeData unmarshals the payload stored for kind.
func decodeData(kind Kind, raw json.RawMessage) (Data, error) {
	var (
		d   Data
		err error
	)
	switch kind {
	case KindPipe:
		var p Pipe
		err = unmarshalOptional(raw, &p)
		d = p
	case KindJunction:
		d = Junction{}
	case KindHeatExchanger:
		var h HeatExchanger
		err = unmarshalOptional(raw, &h)
		d = h
	case KindReactor:
		var r Reactor
		err = unmarshalOptional(raw, &r)
		d = r
	case KindShape:
		var s Shape
		err = unmarshalOptional(raw, &s)
		d = s
	default:
		return nil, fmt.Errorf("component: unknown kind %d", int(kind))
	}
	if err != nil {
		return nil, fmt.Errorf("component: decode %s: %w", kind, err)
	}
	return d, nil
}

func unmarshalOptional(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
