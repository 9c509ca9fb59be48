package component

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/chazu/plantview/pkg/graph"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

func TestSceneLookupRootsAll(t *testing.T) {
	s := NewScene(Synchronous())
	root := buildTree(s)

	if got := s.Lookup("core"); got != root {
		t.Errorf("Lookup(core) = %v, want root", got)
	}
	if got := s.Lookup("missing"); got != nil {
		t.Errorf("Lookup(missing) = %v, want nil", got)
	}
	if s.Len() != 6 || len(s.All()) != 6 {
		t.Errorf("Len() = %d, want 6", s.Len())
	}
	// root, the junction and the pipe have no parent.
	if got := s.Roots(); len(got) != 3 || got[0] != root {
		t.Errorf("Roots() = %v, want 3 starting with root", got)
	}
	if s.Get(graph.NewID()) != nil {
		t.Error("Get(unknown) returned a controller")
	}
}

func TestCapSamplesClamp(t *testing.T) {
	if got := NewScene(WithCapSamples(1)).CapSamples(); got != 4 {
		t.Errorf("CapSamples() = %d, want 4", got)
	}
	if got := NewScene(WithCapSamples(32)).CapSamples(); got != 32 {
		t.Errorf("CapSamples() = %d, want 32", got)
	}
}

func TestKindText(t *testing.T) {
	for k := range kindNames {
		b, err := k.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", k, err)
		}
		var back Kind
		if err := back.UnmarshalText(b); err != nil || back != k {
			t.Errorf("UnmarshalText(%s) = %v, %v; want %v", b, back, err, k)
		}
	}
	if _, err := ParseKind("boiler"); err == nil {
		t.Error("ParseKind accepted an unknown kind")
	}
}

func TestExportImport(t *testing.T) {
	s := NewScene(Synchronous())
	root := buildTree(s)
	root.Children()[0].SetWireframe(true)
	p := s.All()[5]
	p.SetRotation(v3.Vec{X: 1})

	snap, err := s.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	back, err := Import(decoded, Synchronous())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if back.Len() != s.Len() {
		t.Fatalf("imported %d entities, want %d", back.Len(), s.Len())
	}
	for i, orig := range s.All() {
		got := back.All()[i]
		if got.ID() != orig.ID() {
			t.Fatalf("entity %d id = %v, want %v", i, got.ID(), orig.ID())
		}
		if got.Data() != orig.Data() {
			t.Errorf("%v data = %#v, want %#v", orig, got.Data(), orig.Data())
		}
		if !got.Mesh().Equal(orig.Mesh()) {
			t.Errorf("%v mesh differs after import", orig)
		}
		if got.Wireframe() != orig.Wireframe() {
			t.Errorf("%v wireframe = %v, want %v", orig, got.Wireframe(), orig.Wireframe())
		}
	}
	if errs := back.Validate(); len(errs) != 0 {
		t.Errorf("imported scene invalid: %v", errs)
	}

	// Queue wiring is restored with the links.
	bj, bp := back.All()[4], back.All()[5]
	if !bp.Queue().IsRegistered(bj) {
		t.Error("imported junction does not listen to its pipe")
	}
	inner := back.Get(root.Children()[0].ID())
	if inner.Queue().Parent() != back.Get(root.ID()).Queue() {
		t.Error("imported child queue is not chained to its parent")
	}
}

func TestImportRejectsBadInput(t *testing.T) {
	id := graph.NewID()
	tests := []struct {
		name string
		snap Snapshot
		want string
	}{
		{"zero id", Snapshot{Entities: []EntitySnapshot{{Kind: KindJunction}}}, "zero id"},
		{"duplicate", Snapshot{Entities: []EntitySnapshot{{ID: id, Kind: KindJunction}, {ID: id, Kind: KindJunction}}}, "duplicate"},
		{"bad data", Snapshot{Entities: []EntitySnapshot{{ID: id, Kind: KindPipe, Data: json.RawMessage(`{"radius":"x"}`)}}}, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(tt.snap, Synchronous())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Import() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	s := NewScene(Synchronous())
	good := buildTree(s)
	if errs := s.Validate(); len(errs) != 0 {
		t.Fatalf("valid scene reported %v", errs)
	}

	bad := s.Create(Pipe{Radius: 5, InnerRadius: 5, Length: 0})
	s.Create(HeatExchanger{Width: 1, Height: 0, Depth: 1})
	s.Create(Shape{Type: "torus"})

	// Raw mesh edits bypass the category rules.
	bad.Mesh().AddEntityByCategory(good.ID(), CategoryParent)
	bad.Mesh().AddEntityByCategory(graph.NewID(), CategoryParent)

	errs := s.Validate()
	wantErrors := []string{
		"pipe length must be positive",
		"inner radius",
		"heat exchanger dimensions",
		"unknown shape type",
		"at most one allowed",
		"unknown entity",
	}
	for _, want := range wantErrors {
		found := false
		for _, e := range Errors(errs) {
			if strings.Contains(e.Message, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("no error containing %q in %v", want, errs)
		}
	}

	warned := false
	for _, e := range errs {
		if e.Severity == SeverityWarning && e.ID == bad.ID() && strings.Contains(e.Message, "not mirrored") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("one-sided parent link not reported as a warning: %v", errs)
	}
}

func TestParentCycleIsRefused(t *testing.T) {
	s := NewScene(Synchronous())
	a := s.Create(Shape{Type: ShapeUnion})
	b := s.Create(Shape{Type: ShapeUnion})
	c := s.Create(Shape{Type: ShapeUnion})
	b.SetParent(a)
	c.SetParent(b)

	a.SetParent(c)
	if a.Parent() != nil {
		t.Errorf("a.Parent() = %v, want nil", a.Parent())
	}
	c.AddEntityByCategory(a, CategoryChildren)
	if len(c.Children()) != 0 {
		t.Errorf("c.Children() = %v, want none", c.Children())
	}
}

func TestParentCycleThroughUndeclaredChildren(t *testing.T) {
	s := NewScene(Synchronous())
	p := s.Create(Pipe{Radius: 1, Length: 4})
	sh := s.Create(Shape{Type: ShapeBox, Dimensions: v3.Vec{X: 1, Y: 1, Z: 1}})
	p.SetParent(sh)

	// Pipes do not declare Children, but the mirror would make sh a child of p.
	p.AddEntityByCategory(sh, CategoryChildren)
	if got := sh.Parent(); got != nil {
		t.Errorf("sh.Parent() = %v, want nil", got)
	}
	if sh.Queue().Parent() == p.Queue() {
		t.Error("shape queue chained under its own child")
	}
	sh.SetWireframe(true)
	if p.Queue().Depth() != 0 || sh.Queue().Depth() != 0 {
		t.Errorf("depths = %d, %d, want 0", p.Queue().Depth(), sh.Queue().Depth())
	}
}

func TestImportCycleTerminates(t *testing.T) {
	s := NewScene(Synchronous())
	a := s.Create(Shape{Type: ShapeUnion})
	b := s.Create(Shape{Type: ShapeUnion})
	a.Mesh().AddEntityByCategory(b.ID(), CategoryParent)
	b.Mesh().AddEntityByCategory(a.ID(), CategoryParent)
	a.Mesh().AddEntityByCategory(b.ID(), CategoryChildren)
	b.Mesh().AddEntityByCategory(a.ID(), CategoryChildren)

	snap, err := s.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	back, err := Import(snap, Synchronous())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	ba, bb := back.Get(a.ID()), back.Get(b.ID())
	if ba.Queue().Parent() == bb.Queue() && bb.Queue().Parent() == ba.Queue() {
		t.Fatal("imported queues chained into a loop")
	}
	ba.SetWireframe(true)
	bb.SetTranslation(v3.Vec{X: 1})
	if len(Errors(back.Validate())) == 0 {
		t.Error("imported cycle not reported by Validate")
	}
}

func TestValidateCycle(t *testing.T) {
	s := NewScene(Synchronous())
	a := s.Create(Shape{Type: ShapeUnion})
	b := s.Create(Shape{Type: ShapeUnion})
	// Raw mesh edits bypass the cycle guard.
	a.Mesh().AddEntityByCategory(b.ID(), CategoryParent)
	b.Mesh().AddEntityByCategory(a.ID(), CategoryParent)
	a.Mesh().AddEntityByCategory(b.ID(), CategoryChildren)
	b.Mesh().AddEntityByCategory(a.ID(), CategoryChildren)

	found := 0
	for _, e := range s.Validate() {
		if strings.Contains(e.Message, "own ancestor") {
			found++
		}
	}
	if found != 2 {
		t.Errorf("cycle findings = %d, want 2", found)
	}
	// Bounds of a union cycle terminate.
	_ = a.Bounds()
}
