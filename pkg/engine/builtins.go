package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/plantview/pkg/component"
	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpEntity is a reference to a scene controller.
type sexpEntity struct {
	c *component.Controller
}

func (e *sexpEntity) SexpString(ps *zygo.PrintState) string {
	if n := e.c.Name(); n != "" {
		return fmt.Sprintf("(%s %q)", e.c.Kind(), n)
	}
	return fmt.Sprintf("(%s %s)", e.c.Kind(), e.c.ID().Short())
}
func (e *sexpEntity) Type() *zygo.RegisteredType { return nil }

type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments. A
// keyword in last position is recorded with a null value.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		switch {
		case !ok:
			result.positional = append(result.positional, args[i])
		case i+1 < len(args):
			result.kw[name] = args[i+1]
			i++
		default:
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// float reads an optional numeric keyword into dst.
func (a kwArgs) float(key string, dst *float64) error {
	v, ok := a.kw[key]
	if !ok {
		return nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

// floats reads several numeric keywords, stopping at the first error.
func (a kwArgs) floats(pairs map[string]*float64) error {
	for key, dst := range pairs {
		if err := a.float(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// require reports the first key missing from the keyword arguments.
func (a kwArgs) require(keys ...string) error {
	for _, k := range keys {
		if _, ok := a.kw[k]; !ok {
			return fmt.Errorf(":%s is required", k)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// toText renders a property value: strings and keywords as-is, numbers in
// their shortest form.
func toText(s zygo.Sexp) (string, error) {
	switch v := s.(type) {
	case *zygo.SexpStr:
		return strings.TrimPrefix(v.S, kwPrefix), nil
	case *zygo.SexpInt:
		return strconv.FormatInt(v.Val, 10), nil
	case *zygo.SexpFloat:
		return strconv.FormatFloat(v.Val, 'g', -1, 64), nil
	case *zygo.SexpBool:
		return strconv.FormatBool(v.Val), nil
	}
	return "", fmt.Errorf("expected string, number or bool, got %T (%s)", s, s.SexpString(nil))
}

func toEntity(s zygo.Sexp) (*component.Controller, error) {
	if e, ok := s.(*sexpEntity); ok {
		return e.c, nil
	}
	return nil, fmt.Errorf("expected entity reference, got %T (%s)", s, s.SexpString(nil))
}

func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

func toEntities(s zygo.Sexp) ([]*component.Controller, error) {
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, err
	}
	out := make([]*component.Controller, 0, len(items))
	for i, item := range items {
		c, err := toEntity(item)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Scene construction
// ---------------------------------------------------------------------------

// builder creates scene entities on behalf of the DSL and enforces unique
// names.
type builder struct {
	scene *component.Scene
}

func newBuilder(s *component.Scene) *builder {
	return &builder{scene: s}
}

// create adds an entity, naming it from the :name keyword when present.
func (b *builder) create(d component.Data, pa kwArgs) (zygo.Sexp, error) {
	var name string
	if v, ok := pa.kw["name"]; ok {
		n, err := toString(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("name: %w", err)
		}
		if b.scene.Lookup(n) != nil {
			return zygo.SexpNull, fmt.Errorf("duplicate name %q", n)
		}
		name = n
	}
	c := b.scene.Create(d)
	if name != "" {
		c.SetName(name)
	}
	return &sexpEntity{c: c}, nil
}

// wrapErr prefixes a builtin's errors with its DSL name.
func wrapErr(builtin string, f zygo.ZlispUserFunction) zygo.ZlispUserFunction {
	return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		out, err := f(env, name, args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", builtin, err)
		}
		return out, nil
	}
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the DSL builtins into env. Each builtin mutates
// the builder's scene. Source must go through preprocessSource first so
// that :keyword tokens are recognizable and hyphenated names resolve.
func registerBuiltins(env *zygo.Zlisp, b *builder) {
	add := func(dsl string, f zygo.ZlispUserFunction) {
		env.AddFunction(strings.ReplaceAll(dsl, "-", "_"), wrapErr(dsl, f))
	}

	// (vec3 1 2 3)
	add("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("requires exactly 3 arguments, got %d", len(args))
		}
		var xyz [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%c: %w", "xyz"[i], err)
			}
			xyz[i] = f
		}
		return &sexpVec3{vec: v3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}}, nil
	})

	// (pipe :radius 5 :inner-radius 4 :length 100 :name "feed")
	add("pipe", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if err := pa.require("radius", "length"); err != nil {
			return zygo.SexpNull, err
		}
		var p component.Pipe
		if err := pa.floats(map[string]*float64{
			"radius": &p.Radius, "inner-radius": &p.InnerRadius, "length": &p.Length,
		}); err != nil {
			return zygo.SexpNull, err
		}
		return b.create(p, pa)
	})

	// (junction :name "tee" :inputs (list a b) :outputs (list c))
	add("junction", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		ends := map[string][]*component.Controller{}
		for _, key := range []string{"inputs", "outputs"} {
			if v, ok := pa.kw[key]; ok {
				es, err := toEntities(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: %w", key, err)
				}
				ends[key] = es
			}
		}
		ref, err := b.create(component.Junction{}, pa)
		if err != nil {
			return zygo.SexpNull, err
		}
		j := ref.(*sexpEntity).c
		for _, p := range ends["inputs"] {
			j.AddEntityByCategory(p, component.CategoryInput)
		}
		for _, p := range ends["outputs"] {
			j.AddEntityByCategory(p, component.CategoryOutput)
		}
		return ref, nil
	})

	// (heat-exchanger :width 40 :height 20 :depth 20)
	add("heat-exchanger", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if err := pa.require("width", "height", "depth"); err != nil {
			return zygo.SexpNull, err
		}
		var h component.HeatExchanger
		if err := pa.floats(map[string]*float64{
			"width": &h.Width, "height": &h.Height, "depth": &h.Depth,
		}); err != nil {
			return zygo.SexpNull, err
		}
		return b.create(h, pa)
	})

	// (reactor :radius 30 :height 80)
	add("reactor", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if err := pa.require("radius", "height"); err != nil {
			return zygo.SexpNull, err
		}
		var r component.Reactor
		if err := pa.floats(map[string]*float64{"radius": &r.Radius, "height": &r.Height}); err != nil {
			return zygo.SexpNull, err
		}
		return b.create(r, pa)
	})

	// (shape :box :size (vec3 1 2 3))
	// (shape :sphere :radius 2)
	// (shape :cylinder :radius 1 :height 4)
	// (shape :union :members (list a b))
	add("shape", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) == 0 {
			return zygo.SexpNull, fmt.Errorf("requires a type keyword")
		}
		typ, ok := isKW(args[0])
		if !ok {
			return zygo.SexpNull, fmt.Errorf("first argument must be :box, :sphere, :cylinder or :union")
		}
		pa := parseArgs(args[1:])
		sh := component.Shape{Type: component.ShapeType(typ)}
		var members []*component.Controller
		var err error
		switch sh.Type {
		case component.ShapeBox:
			if err = pa.require("size"); err == nil {
				sh.Dimensions, err = toVec3(pa.kw["size"])
			}
		case component.ShapeSphere:
			if err = pa.require("radius"); err == nil {
				err = pa.float("radius", &sh.Dimensions.X)
			}
		case component.ShapeCylinder:
			if err = pa.require("radius", "height"); err == nil {
				err = pa.floats(map[string]*float64{"radius": &sh.Dimensions.X, "height": &sh.Dimensions.Y})
			}
		case component.ShapeUnion:
			if v, ok := pa.kw["members"]; ok {
				members, err = toEntities(v)
			}
		default:
			err = fmt.Errorf("unknown shape type %q", typ)
		}
		if err != nil {
			return zygo.SexpNull, err
		}
		ref, err := b.create(sh, pa)
		if err != nil {
			return zygo.SexpNull, err
		}
		u := ref.(*sexpEntity).c
		for _, m := range members {
			u.AddEntityByCategory(m, component.CategoryChildren)
		}
		return ref, nil
	})

	// (place ref :at (vec3 0 0 10) :rotate (vec3 0 90 0) :scale (vec3 1 2 1) :size 2)
	// Rotation is given in degrees.
	add("place", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("requires an entity reference as first argument")
		}
		c, err := toEntity(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, err
		}
		t := c.Transformation()
		vecs := map[string]*v3.Vec{"at": &t.Translation, "rotate": &t.Rotation, "scale": &t.Scale}
		for key, dst := range vecs {
			v, ok := pa.kw[key]
			if !ok {
				continue
			}
			vec, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", key, err)
			}
			if key == "rotate" {
				vec = vec.MulScalar(math.Pi / 180)
			}
			*dst = vec
		}
		if err := pa.float("size", &t.Size); err != nil {
			return zygo.SexpNull, err
		}
		c.SetTransformation(t)
		return pa.positional[0], nil
	})

	// (prop ref "material" "316L")
	add("prop", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("requires an entity, a key and a value, got %d arguments", len(args))
		}
		c, err := toEntity(args[0])
		if err != nil {
			return zygo.SexpNull, err
		}
		key, err := toKeywordString(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("key: %w", err)
		}
		val, err := toText(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("value: %w", err)
		}
		c.SetProperty(key, val)
		return args[0], nil
	})

	// (connect upstream downstream)
	// Flow runs from the first entity into the second. A pipe downstream is
	// recorded as the upstream entity's output; anything else records the
	// upstream entity as its input. The mirror side follows either way.
	add("connect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("requires two entities, got %d arguments", len(args))
		}
		from, err := toEntity(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("from: %w", err)
		}
		to, err := toEntity(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("to: %w", err)
		}
		if from == to {
			return zygo.SexpNull, fmt.Errorf("cannot connect %s to itself", from)
		}
		if to.Kind() == component.KindPipe {
			from.AddEntityByCategory(to, component.CategoryOutput)
		} else {
			to.AddEntityByCategory(from, component.CategoryInput)
		}
		return args[1], nil
	})

	// (add parent child :category "Children")
	add("add", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 2 {
			return zygo.SexpNull, fmt.Errorf("requires a parent and a child, got %d", len(pa.positional))
		}
		parent, err := toEntity(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("parent: %w", err)
		}
		child, err := toEntity(pa.positional[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("child: %w", err)
		}
		category := component.CategoryChildren
		if v, ok := pa.kw["category"]; ok {
			if category, err = toKeywordString(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("category: %w", err)
			}
		}
		parent.AddEntityByCategory(child, category)
		return pa.positional[0], nil
	})

	// (clone ref :name "copy")
	add("clone", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("requires one entity reference")
		}
		src, err := toEntity(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, err
		}
		var newName string
		if v, ok := pa.kw["name"]; ok {
			if newName, err = toString(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("name: %w", err)
			}
			if b.scene.Lookup(newName) != nil {
				return zygo.SexpNull, fmt.Errorf("duplicate name %q", newName)
			}
		}
		c := src.Clone()
		if c == nil {
			return zygo.SexpNull, fmt.Errorf("%s cannot be cloned", src)
		}
		c.SetName(newName)
		return &sexpEntity{c: c}, nil
	})

	// (entity "feed")
	add("entity", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("requires a name argument")
		}
		n, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("name: %w", err)
		}
		c := b.scene.Lookup(n)
		if c == nil {
			return zygo.SexpNull, fmt.Errorf("no entity named %q", n)
		}
		return &sexpEntity{c: c}, nil
	})
}
