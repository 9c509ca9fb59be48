package component

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/plantview/pkg/geometry"
	"github.com/chazu/plantview/pkg/graph"
	"github.com/chazu/plantview/pkg/kernel"
	"github.com/chazu/plantview/pkg/notify"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// View holds the renderable form of one component. The payload returned by
// Representation is opaque to this package's callers; render backends type
// assert it.
type View interface {
	// Refresh recomputes the representation from m. On error the previous
	// representation is left untouched.
	Refresh(m *graph.Mesh) error
	Representation() any
	// SetWireframe stores a rendering hint and announces Wireframe.
	SetWireframe(on bool)
	Wireframe() bool
	Queue() *notify.Queue
	// Clone returns an unbound copy with its own Queue.
	Clone() View
}

// Binder is implemented by views that read their controller's kind data or
// graph neighbours during Refresh.
type Binder interface {
	Bind(c *Controller)
}

// MeshBuilder turns a controller into triangles. A nil mesh with a nil
// error means the controller has nothing to draw.
type MeshBuilder interface {
	Build(c *Controller) (*kernel.Mesh, error)
}

// Representation is the payload of a BasicView.
type Representation struct {
	Bounds     sdf.Box3            // world-space box
	Center     v3.Vec              // center of Bounds, or the junction center
	Placement  *geometry.Placement // junctions only
	Mesh       *kernel.Mesh        // nil without a MeshBuilder
	Generation uint64              // bumped on every successful refresh
}

// BasicView is the default View: bounds and placement from the geometry
// package, triangles from an optional MeshBuilder.
type BasicView struct {
	queue   *notify.Queue
	opts    []notify.Option
	builder MeshBuilder

	mu        sync.RWMutex
	owner     *Controller
	rep       Representation
	wireframe bool
}

var (
	_ View   = (*BasicView)(nil)
	_ Binder = (*BasicView)(nil)
)

var errUnbound = errors.New("component: view is not bound to a controller")

// NewBasicView returns an unbound view. builder may be nil.
func NewBasicView(builder MeshBuilder, opts ...notify.Option) *BasicView {
	v := &BasicView{builder: builder, opts: opts}
	v.queue = notify.New(append(opts[:len(opts):len(opts)], notify.WithOwner(v))...)
	return v
}

func (v *BasicView) Bind(c *Controller) {
	v.mu.Lock()
	v.owner = c
	v.mu.Unlock()
}

func (v *BasicView) Refresh(m *graph.Mesh) error {
	v.mu.RLock()
	owner := v.owner
	v.mu.RUnlock()
	if owner == nil {
		return errUnbound
	}

	var next Representation
	if owner.Kind() == KindJunction {
		p := owner.Placement()
		next.Placement = &p
		next.Center = p.Center
		next.Bounds = p.Envelope
	} else {
		next.Bounds = owner.boundsUnder(m.Transformation())
		next.Center = geometry.Center(next.Bounds)
	}
	if v.builder != nil {
		mesh, err := v.builder.Build(owner)
		if err != nil {
			return fmt.Errorf("component: build mesh for %s %s: %w", owner.Kind(), owner.ID().Short(), err)
		}
		next.Mesh = mesh
	}

	v.mu.Lock()
	next.Generation = v.rep.Generation + 1
	v.rep = next
	v.mu.Unlock()
	m.Synched()
	return nil
}

// Representation returns a Representation value.
func (v *BasicView) Representation() any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.rep
}

func (v *BasicView) SetWireframe(on bool) {
	v.mu.Lock()
	changed := v.wireframe != on
	v.wireframe = on
	v.mu.Unlock()
	if changed {
		v.queue.Notify(notify.Wireframe)
	}
}

func (v *BasicView) Wireframe() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.wireframe
}

func (v *BasicView) Queue() *notify.Queue {
	return v.queue
}

// Clone copies the representation and hint. The copy shares the builder and
// queue options.
func (v *BasicView) Clone() View {
	v.mu.RLock()
	defer v.mu.RUnlock()
	c := &BasicView{builder: v.builder, opts: v.opts, rep: v.rep, wireframe: v.wireframe}
	c.queue = notify.New(append(v.opts[:len(v.opts):len(v.opts)], notify.WithOwner(c))...)
	return c
}
