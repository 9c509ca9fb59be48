// Package component binds graph meshes to views through controllers and
// keeps a scene of them consistent.
//
// A Scene is the arena: it owns every Controller and resolves the IDs stored
// in mesh categories. Controllers enforce the category rules of their kind:
// single-occupant categories such as Parent evict the previous occupant, and
// two-sided categories (Parent/Children, Input/Output) are kept mirrored on
// both ends of a link.
//
// Change flow: mesh mutation -> mesh Queue -> Controller.Update -> view
// refresh -> controller Queue -> listeners, including the parent controller's
// Queue through the queue parent chain.
package component

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/chazu/plantview/pkg/geometry"
	"github.com/chazu/plantview/pkg/graph"
	"github.com/chazu/plantview/pkg/notify"
)

// NameProperty is the property Scene.Lookup matches against.
const NameProperty = "name"

// Option configures a Scene.
type Option func(*Scene)

// WithLogger sets the logger used by the scene and its controllers.
func WithLogger(l *log.Logger) Option {
	return func(s *Scene) {
		if l != nil {
			s.log = l
		}
	}
}

// Synchronous makes every queue in the scene deliver on the goroutine that
// triggered the delivery.
func Synchronous() Option {
	return func(s *Scene) { s.sync = true }
}

// WithCapSamples sets how many boundary points are sampled per pipe cap.
// Values below geometry.MinCapSamples are raised to it.
func WithCapSamples(n int) Option {
	return func(s *Scene) {
		if n < geometry.MinCapSamples {
			n = geometry.MinCapSamples
		}
		s.samples = n
	}
}

// WithMeshBuilder gives every default view a triangle builder.
func WithMeshBuilder(b MeshBuilder) Option {
	return func(s *Scene) { s.builder = b }
}

// Scene owns a set of controllers keyed by ID.
type Scene struct {
	log     *log.Logger
	sync    bool
	samples int
	builder MeshBuilder

	mu    sync.RWMutex
	byID  map[graph.ID]*Controller
	order []graph.ID
}

// NewScene returns an empty scene.
func NewScene(opts ...Option) *Scene {
	s := &Scene{
		log:     log.Default(),
		samples: geometry.MinCapSamples,
		byID:    make(map[graph.ID]*Controller),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// queueOptions returns the options every queue created for the scene uses.
func (s *Scene) queueOptions() []notify.Option {
	opts := []notify.Option{notify.WithLogger(s.log)}
	if s.sync {
		opts = append(opts, notify.Synchronous())
	}
	return opts
}

// CapSamples returns the per-cap sample count used for extrema.
func (s *Scene) CapSamples() int {
	return s.samples
}

// Create adds a controller for d with a fresh ID and a BasicView.
func (s *Scene) Create(d Data) *Controller {
	return s.CreateWithView(d, nil)
}

// CreateWithView adds a controller for d that renders through view. A nil
// view gets a BasicView.
func (s *Scene) CreateWithView(d Data, view View) *Controller {
	return s.create(graph.NewID(), d, view)
}

func (s *Scene) create(id graph.ID, d Data, view View) *Controller {
	return s.adopt(graph.New(id, s.queueOptions()...), d, view)
}

// adopt wraps an existing mesh in a new controller and registers it.
func (s *Scene) adopt(m *graph.Mesh, d Data, view View) *Controller {
	if d == nil {
		d = Shape{Type: ShapeUnion}
	}
	if view == nil {
		view = NewBasicView(s.builder, s.queueOptions()...)
	}
	c := newController(s, m, d, view)
	s.mu.Lock()
	s.byID[c.id] = c
	s.order = append(s.order, c.id)
	s.mu.Unlock()
	return c
}

// Get returns the controller with id, or nil.
func (s *Scene) Get(id graph.ID) *Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// resolve maps ids to controllers, skipping ids not in the scene.
func (s *Scene) resolve(ids []graph.ID) []*Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Controller, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Lookup returns the first controller, in creation order, whose name
// property equals name. An empty name matches nothing.
func (s *Scene) Lookup(name string) *Controller {
	if name == "" {
		return nil
	}
	for _, c := range s.All() {
		if v, ok := c.Property(NameProperty); ok && v == name {
			return c
		}
	}
	return nil
}

// All returns every controller in creation order.
func (s *Scene) All() []*Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Controller, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Roots returns the controllers with no parent, in creation order.
func (s *Scene) Roots() []*Controller {
	var out []*Controller
	for _, c := range s.All() {
		if c.Parent() == nil {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of controllers.
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Scene) remove(id graph.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, x := range s.order {
		if x == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

// Wait blocks until no queue in the scene has a delivery scheduled or
// running. Deliveries may trigger further deliveries on other queues, so it
// keeps sweeping until one full pass finds every queue idle.
func (s *Scene) Wait() {
	for {
		idle := true
		for _, c := range s.All() {
			for _, q := range c.queues() {
				if !q.Idle() {
					idle = false
					q.Wait()
				}
			}
		}
		if idle {
			return
		}
	}
}

// Refresh refreshes every view and returns the first error. Views that fail
// keep their previous representation.
func (s *Scene) Refresh() error {
	var first error
	for _, c := range s.All() {
		if err := c.Refresh(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
