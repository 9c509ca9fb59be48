package graph

import (
	"sync"
	"testing"

	"github.com/chazu/plantview/pkg/notify"
	"github.com/chazu/plantview/pkg/transform"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// kindLog records the kinds a mesh announces.
type kindLog struct {
	mu    sync.Mutex
	kinds []notify.Kind
}

func (l *kindLog) Subscriptions(*notify.Queue) notify.Kind { return notify.All }

func (l *kindLog) Update(_ *notify.Queue, k notify.Kind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kinds = append(l.kinds, k)
}

func (l *kindLog) get() []notify.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]notify.Kind(nil), l.kinds...)
}

func newWatched() (*Mesh, *kindLog) {
	m := New(NewID(), notify.Synchronous())
	l := &kindLog{}
	m.Queue().Register(l)
	return m, l
}

func TestProperties(t *testing.T) {
	m, l := newWatched()
	m.SetProperty("name", "primary-loop")

	v, ok := m.Property("name")
	if !ok || v != "primary-loop" {
		t.Errorf("Property(name) = %q, %v; want primary-loop, true", v, ok)
	}
	if _, ok := m.Property("missing"); ok {
		t.Error("Property(missing) reported present")
	}
	m.SetProperty("", "ignored")
	if len(m.Properties()) != 1 {
		t.Errorf("Properties() = %v, want one entry", m.Properties())
	}

	got := l.get()
	if len(got) != 1 || got[0] != notify.Property {
		t.Errorf("notifications = %v, want [property]", got)
	}

	props := m.Properties()
	props["name"] = "mutated"
	if v, _ := m.Property("name"); v != "primary-loop" {
		t.Error("Properties() returned the internal map")
	}
}

func TestAddEntityByCategory(t *testing.T) {
	m, l := newWatched()
	a, b := NewID(), NewID()

	m.AddEntity(a)
	m.AddEntityByCategory(b, "Input")
	m.AddEntityByCategory(b, "Input")
	m.AddEntityByCategory(a, "")
	m.AddEntityByCategory(ZeroID, "Input")

	if got := m.EntitiesByCategory(DefaultCategory); len(got) != 2 || got[0] != a {
		t.Errorf("Default = %v, want [a a]", got)
	}
	if got := m.EntitiesByCategory("Input"); len(got) != 2 {
		t.Errorf("Input = %v, want duplicates kept", got)
	}
	if got := m.Entities(); len(got) != 2 {
		t.Errorf("Entities() = %v, want 2 unique ids", got)
	}
	if got := m.EntitiesByCategory("Nope"); got == nil || len(got) != 0 {
		t.Errorf("unknown category = %#v, want empty non-nil", got)
	}
	if n := len(l.get()); n != 4 {
		t.Errorf("got %d child notifications, want 4", n)
	}
}

func TestRemoveEntity(t *testing.T) {
	m, l := newWatched()
	a, b := NewID(), NewID()
	m.AddEntityByCategory(a, "Input")
	m.AddEntityByCategory(a, "Output")
	m.AddEntityByCategory(b, "Output")
	before := len(l.get())

	if !m.RemoveEntity(a) {
		t.Fatal("RemoveEntity(a) = false")
	}
	if m.Contains(a, "Input") || m.Contains(a, "Output") {
		t.Error("a still present after RemoveEntity")
	}
	if got := m.Categories(); len(got) != 1 || got[0] != "Output" {
		t.Errorf("Categories() = %v, want [Output]", got)
	}
	if m.RemoveEntity(NewID()) {
		t.Error("RemoveEntity(unknown) = true")
	}
	if got := len(l.get()) - before; got != 1 {
		t.Errorf("removal notifications = %d, want 1", got)
	}
}

func TestRemoveEntityByCategory(t *testing.T) {
	m, _ := newWatched()
	a := NewID()
	m.AddEntityByCategory(a, "Parent")
	m.AddEntityByCategory(a, "Input")
	if !m.RemoveEntityByCategory(a, "Parent") {
		t.Fatal("RemoveEntityByCategory = false")
	}
	if got := m.CategoriesOf(a); len(got) != 1 || got[0] != "Input" {
		t.Errorf("CategoriesOf(a) = %v, want [Input]", got)
	}
}

func TestTransformation(t *testing.T) {
	m, l := newWatched()
	start := m.Transformation()
	if !start.IsIdentity() {
		t.Fatalf("initial transform = %v, want identity", start)
	}
	if !m.PreviousTransformation().Equal(start) {
		t.Error("previous transform should equal the starting one")
	}

	moved := transform.New()
	moved.Translation = v3.Vec{X: 1, Y: 2, Z: 3}
	m.SetTransformation(moved)
	if !m.Transformation().Equal(moved) {
		t.Errorf("Transformation() = %v, want %v", m.Transformation(), moved)
	}
	if !m.PreviousTransformation().Equal(start) {
		t.Error("previous transform changed before Synched")
	}
	if !m.Moved() {
		t.Error("Moved() = false after SetTransformation")
	}
	m.Synched()
	if !m.PreviousTransformation().Equal(moved) {
		t.Error("Synched did not capture the current transform")
	}
	if m.Moved() {
		t.Error("Moved() = true after Synched")
	}
	got := l.get()
	if len(got) != 1 || got[0] != notify.Transformation {
		t.Errorf("notifications = %v, want [transformation]", got)
	}
}

func TestCloneAndEqual(t *testing.T) {
	m, _ := newWatched()
	m.SetProperty("radius", "5")
	m.AddEntityByCategory(NewID(), "Parent")
	tr := transform.New()
	tr.Rotation.X = 1
	m.SetTransformation(tr)

	c := m.Clone(NewID())
	if c.ID() == m.ID() {
		t.Fatal("clone kept the original id")
	}
	if c.Queue() == m.Queue() {
		t.Fatal("clone shares the original queue")
	}
	if !c.Equal(m) || !m.Equal(c) {
		t.Fatal("clone not Equal to original")
	}

	c.SetProperty("radius", "6")
	if c.Equal(m) {
		t.Error("Equal ignored a property change")
	}
	if v, _ := m.Property("radius"); v != "5" {
		t.Error("clone shares the property map")
	}
}

func TestCopy(t *testing.T) {
	src, _ := newWatched()
	src.SetProperty("k", "v")
	src.AddEntity(NewID())

	dst, l := newWatched()
	dst.Copy(src)
	if !dst.Equal(src) {
		t.Fatal("Copy did not make meshes equal")
	}
	if dst.ID() == src.ID() {
		t.Error("Copy replaced the id")
	}
	got := l.get()
	if len(got) != 1 || !got[0].Has(notify.Property|notify.Child|notify.Transformation) {
		t.Errorf("notifications = %v, want one combined", got)
	}
	dst.Copy(nil)
	dst.Copy(dst)
}

func TestIDRoundTrip(t *testing.T) {
	id := NewID()
	parsed, err := ParseID(id.String())
	if err != nil {
		t.Fatalf("ParseID: %v", err)
	}
	if parsed != id {
		t.Errorf("ParseID(String()) = %v, want %v", parsed, id)
	}
	if len(id.Short()) != 8 {
		t.Errorf("Short() = %q, want 8 chars", id.Short())
	}
	if !ZeroID.IsZero() || id.IsZero() {
		t.Error("IsZero mismatch")
	}
	if _, err := ParseID("not-an-id"); err == nil {
		t.Error("ParseID accepted garbage")
	}
}

func TestCopyStateKeepsCategories(t *testing.T) {
	src, _ := newWatched()
	src.SetProperty("k", "v")
	moved := transform.New()
	moved.Size = 3
	src.SetTransformation(moved)

	dst, l := newWatched()
	child := NewID()
	dst.AddEntityByCategory(child, "Children")
	dst.SetProperty("stale", "x")
	before := len(l.get())

	dst.CopyState(src)
	if !dst.EqualState(src) {
		t.Fatal("CopyState did not copy properties and transform")
	}
	if _, ok := dst.Property("stale"); ok {
		t.Error("CopyState kept a property src does not have")
	}
	if !dst.Contains(child, "Children") {
		t.Error("CopyState dropped a category")
	}
	if got := l.get()[before:]; len(got) != 1 || got[0] != notify.Property|notify.Transformation {
		t.Errorf("notifications = %v, want [property|transformation]", got)
	}
}
