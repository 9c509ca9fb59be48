package component

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/chazu/plantview/pkg/geometry"
	"github.com/chazu/plantview/pkg/graph"
	"github.com/chazu/plantview/pkg/notify"
	"github.com/chazu/plantview/pkg/transform"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Controller is the public face of one component. It owns a mesh and a view,
// listens to both, and republishes mesh changes on its own Queue.
type Controller struct {
	id    graph.ID
	scene *Scene
	mesh  *graph.Mesh
	view  View
	queue *notify.Queue
	log   *log.Logger

	mu       sync.RWMutex
	data     Data
	disposed bool

	refreshMu sync.Mutex
}

var _ notify.Listener = (*Controller)(nil)

func newController(s *Scene, m *graph.Mesh, d Data, v View) *Controller {
	c := &Controller{
		id:    m.ID(),
		scene: s,
		mesh:  m,
		view:  v,
		data:  d,
		log:   s.log,
	}
	c.queue = notify.New(append(s.queueOptions(), notify.WithOwner(c))...)
	if b, ok := v.(Binder); ok {
		b.Bind(c)
	}
	m.Queue().Register(c)
	v.Queue().Register(c)
	return c
}

func (c *Controller) ID() graph.ID         { return c.id }
func (c *Controller) Scene() *Scene        { return c.scene }
func (c *Controller) Mesh() *graph.Mesh    { return c.mesh }
func (c *Controller) View() View           { return c.view }
func (c *Controller) Queue() *notify.Queue { return c.queue }

// Kind is shorthand for Data().Kind().
func (c *Controller) Kind() Kind {
	return c.Data().Kind()
}

// Representation returns the view's payload.
func (c *Controller) Representation() any {
	return c.view.Representation()
}

// Moved reports whether the transform changed since the view last refreshed.
func (c *Controller) Moved() bool {
	return c.mesh.Moved()
}

// Name returns the name property, or "".
func (c *Controller) Name() string {
	v, _ := c.Property(NameProperty)
	return v
}

func (c *Controller) SetName(name string) {
	c.SetProperty(NameProperty, name)
}

func (c *Controller) queues() []*notify.Queue {
	return []*notify.Queue{c.mesh.Queue(), c.view.Queue(), c.queue}
}

func (c *Controller) String() string {
	if name := c.Name(); name != "" {
		return fmt.Sprintf("%s %q (%s)", c.Kind(), name, c.id.Short())
	}
	return fmt.Sprintf("%s %s", c.Kind(), c.id.Short())
}

// Data returns the kind-specific payload.
func (c *Controller) Data() Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

// SetData replaces the payload. A nil value or one of another kind is
// ignored; the kind of a controller never changes.
func (c *Controller) SetData(d Data) {
	if d == nil || !c.live("SetData") {
		return
	}
	c.mu.Lock()
	if d.Kind() != c.data.Kind() {
		c.mu.Unlock()
		c.log.Debug("ignoring data of another kind", "id", c.id.Short(), "have", c.data.Kind(), "got", d.Kind())
		return
	}
	c.data = d
	c.mu.Unlock()
	c.mesh.Queue().Notify(notify.Property)
}

// Disposed reports whether Dispose was called.
func (c *Controller) Disposed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.disposed
}

// live reports whether c still accepts mutations, logging the dropped call
// otherwise.
func (c *Controller) live(op string) bool {
	if c.Disposed() {
		c.log.Debug("ignoring call on disposed component", "op", op, "id", c.id.Short())
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func (c *Controller) SetProperty(key, value string) {
	if !c.live("SetProperty") {
		return
	}
	c.mesh.SetProperty(key, value)
}

func (c *Controller) Property(key string) (string, bool) {
	return c.mesh.Property(key)
}

func (c *Controller) Properties() map[string]string {
	return c.mesh.Properties()
}

// ---------------------------------------------------------------------------
// Graph
// ---------------------------------------------------------------------------

// AddEntity links e under the default category.
func (c *Controller) AddEntity(e *Controller) {
	c.AddEntityByCategory(e, CategoryDefault)
}

// AddEntityByCategory links e under category, applying c's rule for it. A
// single-occupant category detaches its previous occupant first. Two-sided
// categories are recorded on e as well when e's kind declares the mirror.
// Nil, self, disposed and foreign-scene entities are ignored.
func (c *Controller) AddEntityByCategory(e *Controller, category string) {
	if e == nil || e == c || e.scene != c.scene {
		return
	}
	if !c.live("AddEntityByCategory") || !e.live("AddEntityByCategory") {
		return
	}
	if category == "" {
		category = CategoryDefault
	}
	if c.wouldCycle(category, e) {
		c.log.Debug("link would form a parent cycle, ignored", "entity", c, "category", category, "other", e)
		return
	}
	c.link(category, e)
}

// wouldCycle reports whether linking e under category would make an entity
// its own ancestor.
func (c *Controller) wouldCycle(category string, e *Controller) bool {
	switch {
	case category == CategoryParent:
		return e.hasAncestor(c)
	case category == CategoryChildren, IsContainment(c.Kind(), category):
		// e may record c as its parent through the mirror even when c's
		// kind does not declare the category.
		return c.hasAncestor(e)
	}
	return false
}

func (c *Controller) hasAncestor(a *Controller) bool {
	seen := map[graph.ID]bool{c.id: true}
	for p := c.Parent(); p != nil && !seen[p.id]; p = p.Parent() {
		if p == a {
			return true
		}
		seen[p.id] = true
	}
	return false
}

// SetParent makes p the single parent of c. A nil p detaches c.
func (c *Controller) SetParent(p *Controller) {
	if p != nil {
		c.AddEntityByCategory(p, CategoryParent)
		return
	}
	if !c.live("SetParent") {
		return
	}
	q := c.mesh.Queue()
	q.Enqueue()
	defer q.FlushQueue()
	for _, id := range c.mesh.EntitiesByCategory(CategoryParent) {
		c.unlink(CategoryParent, id)
	}
}

// RemoveEntity removes e from every category of c, and c from the mirror
// categories of e.
func (c *Controller) RemoveEntity(e *Controller) {
	if e == nil || !c.live("RemoveEntity") {
		return
	}
	cats := c.mesh.CategoriesOf(e.id)
	if len(cats) == 0 {
		return
	}
	q := c.mesh.Queue()
	q.Enqueue()
	defer q.FlushQueue()
	for _, cat := range cats {
		c.unlink(cat, e.id)
	}
}

// RemoveEntityByCategory removes e from one category of c.
func (c *Controller) RemoveEntityByCategory(e *Controller, category string) {
	if e == nil || !c.live("RemoveEntityByCategory") {
		return
	}
	if category == "" {
		category = CategoryDefault
	}
	c.unlink(category, e.id)
}

func (c *Controller) link(category string, e *Controller) {
	r, _ := ruleFor(c.Kind(), category)
	held := c.mesh.EntitiesByCategory(category)
	if r.single && len(held) == 1 && held[0] == e.id {
		return
	}
	if r.containment && containsID(held, e.id) {
		return
	}

	q := c.mesh.Queue()
	q.Enqueue()
	defer q.FlushQueue()

	if r.single {
		for _, old := range held {
			c.unlink(category, old)
		}
	}
	c.mesh.AddEntityByCategory(e.id, category)
	c.onLinked(category, e)

	if m, ok := mirrors[category]; ok {
		if _, declared := ruleFor(e.Kind(), m); declared && !e.mesh.Contains(c.id, m) {
			e.link(m, c)
		}
	}
}

func (c *Controller) unlink(category string, id graph.ID) {
	if !c.mesh.RemoveEntityByCategory(id, category) {
		return
	}
	e := c.scene.Get(id)
	if e == nil {
		return
	}
	c.onUnlinked(category, e)
	if m, ok := mirrors[category]; ok && e.mesh.Contains(c.id, m) {
		e.mesh.RemoveEntityByCategory(c.id, m)
		e.onUnlinked(m, c)
	}
}

// onLinked wires queues after e was added to category: a child's queue
// chains to its parent's, and a junction listens to the pipes it joins.
func (c *Controller) onLinked(category string, e *Controller) {
	switch {
	case category == CategoryParent:
		c.queue.SetParent(e.queue)
	case c.Kind() == KindJunction && isFlow(category):
		e.queue.Register(c)
	}
}

func (c *Controller) onUnlinked(category string, e *Controller) {
	switch {
	case category == CategoryParent:
		if c.queue.Parent() == e.queue {
			c.queue.SetParent(nil)
		}
	case c.Kind() == KindJunction && isFlow(category):
		if !c.mesh.Contains(e.id, CategoryInput) && !c.mesh.Contains(e.id, CategoryOutput) {
			e.queue.Unregister(c)
		}
	}
}

func isFlow(category string) bool {
	return category == CategoryInput || category == CategoryOutput
}

func containsID(ids []graph.ID, id graph.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// Entities returns every linked controller once.
func (c *Controller) Entities() []*Controller {
	return c.scene.resolve(c.mesh.Entities())
}

// EntitiesByCategory returns the controllers linked under category, in link
// order. Unknown categories give an empty slice.
func (c *Controller) EntitiesByCategory(category string) []*Controller {
	return c.scene.resolve(c.mesh.EntitiesByCategory(category))
}

// Parent returns the parent controller, or nil.
func (c *Controller) Parent() *Controller {
	ps := c.EntitiesByCategory(CategoryParent)
	if len(ps) == 0 {
		return nil
	}
	return ps[0]
}

func (c *Controller) Children() []*Controller { return c.EntitiesByCategory(CategoryChildren) }
func (c *Controller) Inputs() []*Controller   { return c.EntitiesByCategory(CategoryInput) }
func (c *Controller) Outputs() []*Controller  { return c.EntitiesByCategory(CategoryOutput) }

// ---------------------------------------------------------------------------
// Transform
// ---------------------------------------------------------------------------

func (c *Controller) Transformation() transform.Transform {
	return c.mesh.Transformation()
}

func (c *Controller) PreviousTransformation() transform.Transform {
	return c.mesh.PreviousTransformation()
}

func (c *Controller) SetTransformation(t transform.Transform) {
	if !c.live("SetTransformation") {
		return
	}
	c.mesh.SetTransformation(t)
}

func (c *Controller) modify(op string, f func(*transform.Transform)) {
	if !c.live(op) {
		return
	}
	t := c.mesh.Transformation()
	f(&t)
	c.mesh.SetTransformation(t)
}

func (c *Controller) Translation() v3.Vec { return c.Transformation().Translation }
func (c *Controller) Rotation() v3.Vec    { return c.Transformation().Rotation }
func (c *Controller) Scale() v3.Vec       { return c.Transformation().Scale }
func (c *Controller) Skew() v3.Vec        { return c.Transformation().Skew }
func (c *Controller) Size() float64       { return c.Transformation().Size }

func (c *Controller) SetTranslation(v v3.Vec) {
	c.modify("SetTranslation", func(t *transform.Transform) { t.Translation = v })
}

// SetRotation sets Euler angles in radians.
func (c *Controller) SetRotation(v v3.Vec) {
	c.modify("SetRotation", func(t *transform.Transform) { t.Rotation = v })
}

func (c *Controller) SetScale(v v3.Vec) {
	c.modify("SetScale", func(t *transform.Transform) { t.Scale = v })
}

func (c *Controller) SetSkew(v v3.Vec) {
	c.modify("SetSkew", func(t *transform.Transform) { t.Skew = v })
}

func (c *Controller) SetSize(s float64) {
	c.modify("SetSize", func(t *transform.Transform) { t.Size = s })
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

func (c *Controller) SetWireframe(on bool) {
	if !c.live("SetWireframe") {
		return
	}
	c.view.SetWireframe(on)
}

func (c *Controller) Wireframe() bool {
	return c.view.Wireframe()
}

// Refresh recomputes the view now and reports a failure from the mesh
// builder. The previous representation survives a failure.
func (c *Controller) Refresh() error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.view.Refresh(c.mesh)
}

func (c *Controller) refreshView() {
	if err := c.Refresh(); err != nil {
		c.log.Warn("view refresh failed", "id", c.id.Short(), "kind", c.Kind(), "err", err)
	}
}

// Subscriptions: everything from the own mesh, rendering changes from the
// own view, and moves or resizes from any other queue (a junction's pipes).
func (c *Controller) Subscriptions(source *notify.Queue) notify.Kind {
	switch source {
	case c.mesh.Queue():
		return notify.All
	case c.view.Queue():
		return notify.Transformation | notify.Wireframe
	}
	return notify.Transformation | notify.Property
}

func (c *Controller) Update(source *notify.Queue, kinds notify.Kind) {
	if c.Disposed() {
		return
	}
	switch source {
	case c.mesh.Queue():
		c.refreshView()
		c.queue.Notify(kinds)
	case c.view.Queue():
		c.refreshTree(kinds, make(map[graph.ID]bool))
	default:
		c.refreshView()
		c.queue.Notify(notify.Transformation)
	}
}

// refreshTree refreshes c and everything under Children while c's queue is
// held, so each controller announces kinds once.
func (c *Controller) refreshTree(kinds notify.Kind, seen map[graph.ID]bool) {
	if seen[c.id] {
		return
	}
	seen[c.id] = true
	c.queue.Enqueue()
	defer c.queue.FlushQueue()
	c.refreshView()
	for _, child := range c.Children() {
		child.refreshTree(kinds, seen)
	}
	c.queue.Notify(kinds)
}

// ---------------------------------------------------------------------------
// Geometry
// ---------------------------------------------------------------------------

// Placement centers c on the pipe ends linked under Input (their upper ends)
// and Output (their lower ends). Non-pipe entities are skipped.
func (c *Controller) Placement() geometry.Placement {
	var ends []geometry.PipeEnd
	collect := func(category string, end geometry.End) {
		for _, e := range c.EntitiesByCategory(category) {
			if p, ok := e.Data().(Pipe); ok {
				ends = append(ends, geometry.PipeEnd{Cylinder: p.Cylinder(), Transform: e.Transformation(), End: end})
			}
		}
	}
	collect(CategoryInput, geometry.Upper)
	collect(CategoryOutput, geometry.Lower)
	return geometry.PlaceJunction(ends, c.scene.samples)
}

// UpperExtrema returns the world box of a pipe's +Y cap. ok is false for
// other kinds.
func (c *Controller) UpperExtrema() (box sdf.Box3, ok bool) {
	return c.capExtrema(geometry.Upper)
}

// LowerExtrema returns the world box of a pipe's -Y cap.
func (c *Controller) LowerExtrema() (box sdf.Box3, ok bool) {
	return c.capExtrema(geometry.Lower)
}

func (c *Controller) capExtrema(end geometry.End) (sdf.Box3, bool) {
	p, ok := c.Data().(Pipe)
	if !ok {
		return sdf.Box3{}, false
	}
	return geometry.CapExtrema(p.Cylinder(), c.Transformation(), end, c.scene.samples), true
}

// Bounds returns the world-space box of c.
func (c *Controller) Bounds() sdf.Box3 {
	return c.boundsUnder(c.Transformation())
}

func (c *Controller) boundsUnder(t transform.Transform) sdf.Box3 {
	return c.bounds(t, make(map[graph.ID]bool))
}

func (c *Controller) bounds(t transform.Transform, seen map[graph.ID]bool) sdf.Box3 {
	seen[c.id] = true
	samples := c.scene.samples
	switch d := c.Data().(type) {
	case Pipe:
		return geometry.Extrema(d.Cylinder(), t, samples)
	case Junction:
		return c.Placement().Envelope
	case HeatExchanger:
		return boxBounds(v3.Vec{X: d.Width, Y: d.Height, Z: d.Depth}, t)
	case Reactor:
		return geometry.Extrema(geometry.Cylinder{Radius: d.Radius, Length: d.Height}, t, samples)
	case Shape:
		switch d.Type {
		case ShapeBox:
			return boxBounds(d.Dimensions, t)
		case ShapeSphere:
			r := 2 * d.Dimensions.X
			return boxBounds(v3.Vec{X: r, Y: r, Z: r}, t)
		case ShapeCylinder:
			return geometry.Extrema(geometry.Cylinder{Radius: d.Dimensions.X, Length: d.Dimensions.Y}, t, samples)
		case ShapeUnion:
			var boxes []sdf.Box3
			for _, child := range c.Children() {
				if !seen[child.id] {
					boxes = append(boxes, child.bounds(child.Transformation(), seen))
				}
			}
			return geometry.Union(boxes...)
		}
	}
	return sdf.Box3{}
}

// boxBounds is the world box of a local box of the given size centered on
// the origin.
func boxBounds(size v3.Vec, t transform.Transform) sdf.Box3 {
	h := size.MulScalar(0.5)
	corners := make([]v3.Vec, 0, 8)
	for _, x := range []float64{-h.X, h.X} {
		for _, y := range []float64{-h.Y, h.Y} {
			for _, z := range []float64{-h.Z, h.Z} {
				corners = append(corners, v3.Vec{X: x, Y: y, Z: z})
			}
		}
	}
	return geometry.Bounds(corners, t.Matrix())
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Clone returns a copy of c under a new ID in the same scene. Containment
// categories get recursively cloned children; other categories keep pointing
// at the same entities without being mirrored back. Disposed controllers
// return nil.
func (c *Controller) Clone() *Controller {
	if !c.live("Clone") {
		return nil
	}
	return c.cloneTree(make(map[graph.ID]bool))
}

func (c *Controller) cloneTree(seen map[graph.ID]bool) *Controller {
	seen[c.id] = true
	s := c.scene
	m := c.mesh.Clone(graph.NewID(), s.queueOptions()...)
	n := s.adopt(m, c.Data(), c.view.Clone())
	kind := n.Kind()
	for _, cat := range m.Categories() {
		linked := s.resolve(m.EntitiesByCategory(cat))
		if IsContainment(kind, cat) {
			m.ClearCategory(cat)
			for _, child := range linked {
				if !seen[child.id] {
					n.link(cat, child.cloneTree(seen))
				}
			}
			continue
		}
		for _, e := range linked {
			n.onLinked(cat, e)
		}
	}
	n.refreshView()
	return n
}

// Copy replaces c's data, properties and transform with src's. Links are
// left alone.
func (c *Controller) Copy(src *Controller) {
	if src == nil || src == c || !c.live("Copy") {
		return
	}
	q := c.mesh.Queue()
	q.Enqueue()
	defer q.FlushQueue()
	c.SetData(src.Data())
	c.mesh.CopyState(src.mesh)
}

// Equals reports whether o has the same kind data, properties, transform and
// links as c. Containment children are compared recursively and may differ
// in identity; every other link must name the same entity, except links
// that point into the two compared trees.
func (c *Controller) Equals(o *Controller) bool {
	if o == nil {
		return false
	}
	if c == o {
		return true
	}
	return c.equalsMapped(o, map[graph.ID]graph.ID{o.id: c.id}, make(map[graph.ID]bool))
}

// equalsMapped compares c to o, translating o-side IDs through ids.
func (c *Controller) equalsMapped(o *Controller, ids map[graph.ID]graph.ID, seen map[graph.ID]bool) bool {
	if seen[c.id] {
		return true
	}
	seen[c.id] = true
	if c.Data() != o.Data() || !c.mesh.EqualState(o.mesh) {
		return false
	}
	cats := c.mesh.Categories()
	ocats := o.mesh.Categories()
	if len(cats) != len(ocats) {
		return false
	}
	for i := range cats {
		if cats[i] != ocats[i] {
			return false
		}
	}

	kind := c.Kind()
	type pair struct{ a, b *Controller }
	var owned []pair
	for _, cat := range cats {
		if !IsContainment(kind, cat) {
			continue
		}
		a, b := c.EntitiesByCategory(cat), o.EntitiesByCategory(cat)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			ids[b[i].id] = a[i].id
			owned = append(owned, pair{a[i], b[i]})
		}
	}
	for _, cat := range cats {
		if IsContainment(kind, cat) {
			continue
		}
		a, b := c.mesh.EntitiesByCategory(cat), o.mesh.EntitiesByCategory(cat)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			want := b[i]
			if mapped, ok := ids[want]; ok {
				want = mapped
			}
			if a[i] != want {
				return false
			}
		}
	}
	for _, p := range owned {
		if !p.a.equalsMapped(p.b, ids, seen) {
			return false
		}
	}
	return true
}

// Dispose unlinks c from every neighbour, removes it from the scene and
// turns later mutators into no-ops. Calling it twice is harmless.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.mu.Unlock()

	q := c.mesh.Queue()
	q.Enqueue()
	for _, cat := range c.mesh.Categories() {
		for _, id := range c.mesh.EntitiesByCategory(cat) {
			c.unlink(cat, id)
		}
	}
	q.FlushQueue()

	c.mesh.Queue().Unregister(c)
	c.view.Queue().Unregister(c)
	c.queue.SetParent(nil)
	c.scene.remove(c.id)
}
