package component

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/chazu/plantview/pkg/graph"
	"github.com/chazu/plantview/pkg/kernel"
	"github.com/chazu/plantview/pkg/notify"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

const tol = 1e-6

func near(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func nearVec(a, b v3.Vec, eps float64) bool {
	return near(a.X, b.X, eps) && near(a.Y, b.Y, eps) && near(a.Z, b.Z, eps)
}

// recorder collects what a controller announces on its own queue.
type recorder struct {
	mu    sync.Mutex
	kinds []notify.Kind
}

func (r *recorder) Subscriptions(*notify.Queue) notify.Kind { return notify.All }

func (r *recorder) Update(_ *notify.Queue, k notify.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, k)
}

func (r *recorder) get() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Kind(nil), r.kinds...)
}

func watch(c *Controller) *recorder {
	r := &recorder{}
	c.Queue().Register(r)
	return r
}

func newPipe(s *Scene) *Controller {
	return s.Create(Pipe{Radius: 5, InnerRadius: 4, Length: 100})
}

func TestSingleParentInvariant(t *testing.T) {
	s := NewScene(Synchronous())
	child := s.Create(Shape{Type: ShapeBox, Dimensions: v3.Vec{X: 1, Y: 1, Z: 1}})
	parents := []*Controller{
		s.Create(Shape{Type: ShapeUnion}),
		s.Create(Shape{Type: ShapeUnion}),
		s.Create(Reactor{Radius: 10, Height: 20}),
	}

	steps := []struct {
		name string
		do   func()
		want *Controller
	}{
		{"set first", func() { child.SetParent(parents[0]) }, parents[0]},
		{"category add second", func() { child.AddEntityByCategory(parents[1], CategoryParent) }, parents[1]},
		{"adopt from third", func() { parents[2].AddEntityByCategory(child, CategoryChildren) }, parents[2]},
		{"same again", func() { child.SetParent(parents[2]) }, parents[2]},
		{"back to first", func() { parents[0].AddEntityByCategory(child, CategoryChildren) }, parents[0]},
	}
	for _, st := range steps {
		st.do()
		got := child.EntitiesByCategory(CategoryParent)
		if len(got) != 1 || got[0] != st.want {
			t.Fatalf("%s: Parent = %v, want [%v]", st.name, got, st.want)
		}
		for _, p := range parents {
			has := p.Mesh().Contains(child.ID(), CategoryChildren)
			if has != (p == st.want) {
				t.Errorf("%s: %v lists child = %v, want %v", st.name, p, has, p == st.want)
			}
		}
		if child.Queue().Parent() != st.want.Queue() {
			t.Errorf("%s: child queue parent not chained to new parent", st.name)
		}
	}

	child.SetParent(nil)
	if child.Parent() != nil {
		t.Error("SetParent(nil) kept a parent")
	}
	if parents[0].Mesh().Contains(child.ID(), CategoryChildren) {
		t.Error("detached parent still lists child")
	}
	if child.Queue().Parent() != nil {
		t.Error("detached child still chained to a parent queue")
	}
}

func TestEvictionNotifiesBothParents(t *testing.T) {
	s := NewScene(Synchronous())
	child := s.Create(Shape{Type: ShapeSphere, Dimensions: v3.Vec{X: 1}})
	oldP := s.Create(Shape{Type: ShapeUnion})
	newP := s.Create(Shape{Type: ShapeUnion})
	child.SetParent(oldP)

	oldLog, newLog := watch(oldP), watch(newP)
	child.SetParent(newP)

	for name, r := range map[string]*recorder{"old": oldLog, "new": newLog} {
		got := r.get()
		if len(got) == 0 || !got[0].Has(notify.Child) {
			t.Errorf("%s parent notifications = %v, want a child event", name, got)
		}
	}
}

func TestFlowLinksAreMirrored(t *testing.T) {
	s := NewScene(Synchronous())
	j1 := s.Create(Junction{})
	j2 := s.Create(Junction{})
	p := newPipe(s)

	j1.AddEntityByCategory(p, CategoryInput)
	if got := p.Outputs(); len(got) != 1 || got[0] != j1 {
		t.Fatalf("pipe Output = %v, want [j1]", got)
	}

	// A pipe flows into one place only: moving it evicts j1.
	j2.AddEntityByCategory(p, CategoryInput)
	if got := p.Outputs(); len(got) != 1 || got[0] != j2 {
		t.Fatalf("pipe Output = %v, want [j2]", got)
	}
	if len(j1.Inputs()) != 0 {
		t.Errorf("j1 Input = %v, want empty after eviction", j1.Inputs())
	}

	j2.RemoveEntity(p)
	if len(p.Outputs()) != 0 || len(j2.Inputs()) != 0 {
		t.Errorf("RemoveEntity left links: pipe out %v, j2 in %v", p.Outputs(), j2.Inputs())
	}
}

func TestInvalidInputIsIgnored(t *testing.T) {
	s := NewScene(Synchronous())
	c := s.Create(Junction{})
	r := watch(c)
	other := NewScene(Synchronous()).Create(Junction{})

	c.AddEntity(nil)
	c.AddEntity(c)
	c.AddEntity(other)
	c.RemoveEntity(nil)
	c.SetProperty("", "x")
	c.SetData(nil)
	c.SetData(Pipe{Radius: 1, Length: 1})

	if got := c.Entities(); len(got) != 0 {
		t.Errorf("Entities() = %v, want none", got)
	}
	if c.Kind() != KindJunction {
		t.Errorf("Kind() = %v, want junction", c.Kind())
	}
	if got := r.get(); len(got) != 0 {
		t.Errorf("notifications = %v, want none", got)
	}
	if got := c.EntitiesByCategory("Nope"); got == nil || len(got) != 0 {
		t.Errorf("unknown category = %#v, want empty non-nil", got)
	}
}

func TestDefaultCategoryKeepsDuplicates(t *testing.T) {
	s := NewScene(Synchronous())
	a, b := s.Create(Junction{}), s.Create(Junction{})
	a.AddEntity(b)
	a.AddEntity(b)
	if got := a.EntitiesByCategory(CategoryDefault); len(got) != 2 {
		t.Errorf("Default = %v, want b twice", got)
	}
	if got := a.Entities(); len(got) != 1 {
		t.Errorf("Entities() = %v, want b once", got)
	}
	if got := b.Entities(); len(got) != 0 {
		t.Errorf("Default is one-sided, b.Entities() = %v", got)
	}
}

func TestSettersNotifyOnce(t *testing.T) {
	s := NewScene(Synchronous())
	c := newPipe(s)

	setters := []struct {
		name string
		set  func()
		ok   func() bool
	}{
		{"translation", func() { c.SetTranslation(v3.Vec{X: 1}) }, func() bool { return c.Translation().X == 1 }},
		{"rotation", func() { c.SetRotation(v3.Vec{Y: 2}) }, func() bool { return c.Rotation().Y == 2 }},
		{"scale", func() { c.SetScale(v3.Vec{X: 1, Y: 2, Z: 1}) }, func() bool { return c.Scale().Y == 2 }},
		{"skew", func() { c.SetSkew(v3.Vec{Z: 0.5}) }, func() bool { return c.Skew().Z == 0.5 }},
		{"size", func() { c.SetSize(3) }, func() bool { return c.Size() == 3 }},
	}
	for _, tt := range setters {
		t.Run(tt.name, func(t *testing.T) {
			r := watch(c)
			defer c.Queue().Unregister(r)
			tt.set()
			if !tt.ok() {
				t.Error("getter does not reflect setter")
			}
			got := r.get()
			if len(got) != 1 || got[0] != notify.Transformation {
				t.Errorf("notifications = %v, want [transformation]", got)
			}
		})
	}
}

func TestPipeExtrema(t *testing.T) {
	s := NewScene(Synchronous())
	p := newPipe(s)

	up, ok := p.UpperExtrema()
	if !ok {
		t.Fatal("UpperExtrema() not available on a pipe")
	}
	if !near(up.Min.Y, 50, tol) || !near(up.Max.Y, 50, tol) {
		t.Errorf("upper Y = [%v, %v], want 50", up.Min.Y, up.Max.Y)
	}
	if up.Min.X < -5-tol || up.Max.X > 5+tol || up.Min.Z < -5-tol || up.Max.Z > 5+tol {
		t.Errorf("upper X/Z = %v, want within [-5, 5]", up)
	}

	p.SetRotation(v3.Vec{X: math.Pi / 2})
	up, _ = p.UpperExtrema()
	if !near(up.Min.Z, 50, tol) || !near(up.Max.Z, 50, tol) {
		t.Errorf("rotated upper Z = [%v, %v], want 50", up.Min.Z, up.Max.Z)
	}
	if up.Min.X < -5-tol || up.Max.X > 5+tol || up.Min.Y < -5-tol || up.Max.Y > 5+tol {
		t.Errorf("rotated upper X/Y = %v, want within [-5, 5]", up)
	}

	if _, ok := s.Create(Junction{}).UpperExtrema(); ok {
		t.Error("UpperExtrema() reported ok for a junction")
	}
}

func TestJunctionCentering(t *testing.T) {
	s := NewScene(Synchronous())
	j := s.Create(Junction{})
	p := newPipe(s)

	center := func() v3.Vec {
		rep := j.Representation().(Representation)
		if rep.Placement == nil {
			t.Fatal("junction representation has no placement")
		}
		return rep.Center
	}

	if got := j.Placement().Center; got != (v3.Vec{}) {
		t.Errorf("empty junction center = %v, want origin", got)
	}

	j.AddEntityByCategory(p, CategoryInput)
	if got := center(); !nearVec(got, v3.Vec{Y: 50}, 1) {
		t.Errorf("one input center = %v, want (0,50,0)", got)
	}

	j.AddEntityByCategory(p, CategoryOutput)
	if got := center(); !nearVec(got, v3.Vec{}, 1) {
		t.Errorf("input+output center = %v, want origin", got)
	}

	// Moving a connected pipe re-centers the junction through its queue.
	p.SetTranslation(v3.Vec{X: 20})
	if got := center(); !nearVec(got, v3.Vec{X: 20}, 1) {
		t.Errorf("after pipe move center = %v, want (20,0,0)", got)
	}

	j.RemoveEntity(p)
	if got := center(); !nearVec(got, v3.Vec{}, tol) {
		t.Errorf("after removal center = %v, want origin", got)
	}
	if p.Queue().IsRegistered(j) {
		t.Error("junction still listens to a disconnected pipe")
	}
}

func TestJunctionCenteringAsync(t *testing.T) {
	s := NewScene()
	j := s.Create(Junction{})
	p := newPipe(s)
	j.AddEntityByCategory(p, CategoryInput)
	p.SetTranslation(v3.Vec{Z: 10})
	s.Wait()

	rep := j.Representation().(Representation)
	if !nearVec(rep.Center, v3.Vec{Y: 50, Z: 10}, tol) {
		t.Errorf("center = %v, want (0,50,10)", rep.Center)
	}
}

func buildTree(s *Scene) *Controller {
	root := s.Create(Reactor{Radius: 30, Height: 80})
	root.SetName("core")
	inner := s.Create(Shape{Type: ShapeUnion})
	root.AddEntityByCategory(inner, CategoryChildren)
	for i := 0; i < 2; i++ {
		leaf := s.Create(Shape{Type: ShapeBox, Dimensions: v3.Vec{X: 1, Y: 2, Z: 3}})
		leaf.SetTranslation(v3.Vec{X: float64(i)})
		leaf.SetParent(inner)
	}
	j := s.Create(Junction{})
	p := newPipe(s)
	j.AddEntityByCategory(p, CategoryInput)
	root.AddEntityByCategory(p, CategoryOutput)
	return root
}

func TestCloneEquals(t *testing.T) {
	s := NewScene(Synchronous())
	root := buildTree(s)

	c := root.Clone()
	if c == nil || c.ID() == root.ID() {
		t.Fatal("Clone() returned the original or nil")
	}
	if !c.Equals(root) || !root.Equals(c) {
		t.Fatal("clone not Equal to the original")
	}
	if c.Queue() == root.Queue() || c.Mesh() == root.Mesh() || c.View() == root.View() {
		t.Error("clone shares queue, mesh or view")
	}

	oc, cc := root.Children()[0], c.Children()[0]
	if oc == cc {
		t.Fatal("containment child was not cloned")
	}
	if cc.Parent() != c {
		t.Errorf("cloned child parent = %v, want the clone", cc.Parent())
	}
	if len(cc.Children()) != 2 || cc.Children()[0] == oc.Children()[0] {
		t.Error("grandchildren were not cloned")
	}
	if got := c.Outputs(); len(got) != 1 || got[0] != root.Outputs()[0] {
		t.Error("associative link was not re-referenced")
	}

	cc.Children()[1].SetSize(9)
	if c.Equals(root) {
		t.Error("Equals ignored a grandchild change")
	}
}

func TestCopy(t *testing.T) {
	s := NewScene(Synchronous())
	src := newPipe(s)
	src.SetName("feed")
	src.SetTranslation(v3.Vec{Y: 3})
	dst := s.Create(Pipe{Radius: 1, Length: 1})
	j := s.Create(Junction{})
	j.AddEntityByCategory(dst, CategoryInput)

	dst.Copy(src)
	if dst.Data() != src.Data() || dst.Name() != "feed" || !dst.Transformation().Equal(src.Transformation()) {
		t.Errorf("Copy did not copy state: %v", dst)
	}
	if len(dst.Outputs()) != 1 {
		t.Error("Copy dropped links")
	}
}

func TestDispose(t *testing.T) {
	s := NewScene(Synchronous())
	parent := s.Create(Shape{Type: ShapeUnion})
	j := s.Create(Junction{})
	p := newPipe(s)
	p.SetParent(parent)
	j.AddEntityByCategory(p, CategoryOutput)

	p.Dispose()
	p.Dispose()

	if !p.Disposed() {
		t.Fatal("Disposed() = false")
	}
	if s.Get(p.ID()) != nil {
		t.Error("disposed controller still in scene")
	}
	if len(parent.Children()) != 0 || len(j.Outputs()) != 0 {
		t.Error("neighbours still link the disposed controller")
	}
	if p.Queue().IsRegistered(j) {
		t.Error("junction still listens to the disposed pipe")
	}

	p.SetProperty("k", "v")
	p.SetTranslation(v3.Vec{X: 1})
	j.AddEntityByCategory(p, CategoryInput)
	if _, ok := p.Property("k"); ok || p.Translation().X != 0 {
		t.Error("mutators changed a disposed controller")
	}
	if len(j.Inputs()) != 0 {
		t.Error("a disposed controller was linked")
	}
	if p.Clone() != nil {
		t.Error("Clone() of a disposed controller returned a value")
	}
}

func TestMeshEventsAreForwarded(t *testing.T) {
	s := NewScene(Synchronous())
	c := newPipe(s)
	r := watch(c)

	c.SetProperty("material", "steel")
	c.SetData(Pipe{Radius: 6, Length: 100})

	got := r.get()
	if len(got) != 2 || got[0] != notify.Property || got[1] != notify.Property {
		t.Errorf("forwarded = %v, want [property property]", got)
	}
	if b := c.Bounds(); !near(b.Max.X, 6, tol) {
		t.Errorf("Bounds() max X = %v, want 6 after resize", b.Max.X)
	}
}

func TestViewEventRefreshesChildren(t *testing.T) {
	s := NewScene(Synchronous())
	root := buildTree(s)
	inner := root.Children()[0]
	leaves := inner.Children()

	gen := func(c *Controller) uint64 { return c.Representation().(Representation).Generation }
	before := map[graph.ID]uint64{}
	logs := map[graph.ID]*recorder{}
	for _, c := range append([]*Controller{root, inner}, leaves...) {
		before[c.ID()] = gen(c)
		logs[c.ID()] = watch(c)
	}

	root.SetWireframe(true)
	if !root.Wireframe() {
		t.Fatal("Wireframe() = false")
	}
	for id, r := range logs {
		c := s.Get(id)
		if gen(c) <= before[id] {
			t.Errorf("%v was not refreshed", c)
		}
		if got := r.get(); len(got) != 1 || got[0] != notify.Wireframe {
			t.Errorf("%v notifications = %v, want one wireframe", c, got)
		}
	}
}

type failingBuilder struct {
	fail bool
}

func (b *failingBuilder) Build(c *Controller) (*kernel.Mesh, error) {
	if b.fail {
		return nil, errors.New("backend unavailable")
	}
	return &kernel.Mesh{PartName: c.Name(), Vertices: []float32{0, 0, 0}}, nil
}

func TestRefreshFailureKeepsRepresentation(t *testing.T) {
	b := &failingBuilder{}
	s := NewScene(Synchronous(), WithMeshBuilder(b))
	c := newPipe(s)
	if err := c.Refresh(); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}
	good := c.Representation().(Representation)
	if good.Mesh == nil {
		t.Fatal("no mesh after a successful refresh")
	}

	b.fail = true
	c.SetTranslation(v3.Vec{X: 100})
	if err := c.Refresh(); err == nil {
		t.Fatal("Refresh() = nil, want the builder error")
	}
	got := c.Representation().(Representation)
	if got.Generation != good.Generation || got.Bounds != good.Bounds || got.Mesh != good.Mesh {
		t.Errorf("representation changed after a failed refresh: %+v", got)
	}
	if !c.Moved() {
		t.Error("Moved() = false although the move was never rendered")
	}
}
