package component

import (
	"fmt"

	"github.com/chazu/plantview/pkg/graph"
)

// Severity says whether a finding is a broken invariant or advisory.
type Severity int

const (
	SeverityError   Severity = iota // invariant broken
	SeverityWarning                 // informational
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ValidationError describes one finding about one entity.
type ValidationError struct {
	ID       graph.ID
	Message  string
	Severity Severity
}

func (e ValidationError) Error() string {
	if e.ID.IsZero() {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] entity %s: %s", e.Severity, e.ID.Short(), e.Message)
}

// Validate checks the scene's graph and kind data. It never mutates the
// scene. An empty result means the scene is consistent.
func (s *Scene) Validate() []ValidationError {
	var errs []ValidationError
	for _, c := range s.All() {
		errs = append(errs, s.validateLinks(c)...)
		errs = append(errs, validateData(c)...)
	}
	errs = append(errs, s.validateCycles()...)
	return errs
}

// Errors filters findings down to SeverityError.
func Errors(findings []ValidationError) []ValidationError {
	var out []ValidationError
	for _, f := range findings {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}
	return out
}

func (s *Scene) validateLinks(c *Controller) []ValidationError {
	var errs []ValidationError
	kind := c.Kind()
	for _, cat := range c.mesh.Categories() {
		ids := c.mesh.EntitiesByCategory(cat)
		if IsSingle(kind, cat) && len(ids) > 1 {
			errs = append(errs, ValidationError{
				ID:       c.id,
				Message:  fmt.Sprintf("category %q holds %d entities, at most one allowed", cat, len(ids)),
				Severity: SeverityError,
			})
		}
		m, mirrored := mirrors[cat]
		for _, id := range ids {
			e := s.Get(id)
			if e == nil {
				errs = append(errs, ValidationError{
					ID:       c.id,
					Message:  fmt.Sprintf("category %q references unknown entity %s", cat, id.Short()),
					Severity: SeverityError,
				})
				continue
			}
			if !mirrored {
				continue
			}
			if _, declared := ruleFor(e.Kind(), m); declared && !e.mesh.Contains(c.id, m) {
				errs = append(errs, ValidationError{
					ID:       c.id,
					Message:  fmt.Sprintf("%s link to %s is not mirrored under %q", cat, e, m),
					Severity: SeverityWarning,
				})
			}
		}
	}
	return errs
}

func validateData(c *Controller) []ValidationError {
	var problems []string
	switch d := c.Data().(type) {
	case Pipe:
		if d.Radius <= 0 {
			problems = append(problems, fmt.Sprintf("pipe radius must be positive, got %g", d.Radius))
		}
		if d.Length <= 0 {
			problems = append(problems, fmt.Sprintf("pipe length must be positive, got %g", d.Length))
		}
		if d.InnerRadius < 0 || (d.Radius > 0 && d.InnerRadius >= d.Radius) {
			problems = append(problems, fmt.Sprintf("pipe inner radius %g must be in [0, %g)", d.InnerRadius, d.Radius))
		}
	case HeatExchanger:
		if d.Width <= 0 || d.Height <= 0 || d.Depth <= 0 {
			problems = append(problems, fmt.Sprintf("heat exchanger dimensions must be positive, got %gx%gx%g", d.Width, d.Height, d.Depth))
		}
	case Reactor:
		if d.Radius <= 0 || d.Height <= 0 {
			problems = append(problems, fmt.Sprintf("reactor radius and height must be positive, got %g, %g", d.Radius, d.Height))
		}
	case Shape:
		switch d.Type {
		case ShapeBox:
			if d.Dimensions.X <= 0 || d.Dimensions.Y <= 0 || d.Dimensions.Z <= 0 {
				problems = append(problems, "box dimensions must be positive")
			}
		case ShapeSphere:
			if d.Dimensions.X <= 0 {
				problems = append(problems, "sphere radius must be positive")
			}
		case ShapeCylinder:
			if d.Dimensions.X <= 0 || d.Dimensions.Y <= 0 {
				problems = append(problems, "cylinder radius and height must be positive")
			}
		case ShapeUnion:
		default:
			problems = append(problems, fmt.Sprintf("unknown shape type %q", d.Type))
		}
	}
	errs := make([]ValidationError, 0, len(problems))
	for _, p := range problems {
		errs = append(errs, ValidationError{ID: c.id, Message: p, Severity: SeverityError})
	}
	return errs
}

// validateCycles reports entities that are their own ancestor through the
// Parent chain.
func (s *Scene) validateCycles() []ValidationError {
	var errs []ValidationError
	for _, c := range s.All() {
		seen := map[graph.ID]bool{c.id: true}
		for p := c.Parent(); p != nil; p = p.Parent() {
			if p.id == c.id {
				errs = append(errs, ValidationError{
					ID:       c.id,
					Message:  "entity is its own ancestor",
					Severity: SeverityError,
				})
				break
			}
			if seen[p.id] {
				break
			}
			seen[p.id] = true
		}
	}
	return errs
}
