package component

import (
	"encoding/json"
	"fmt"

	"github.com/chazu/plantview/pkg/graph"
	"github.com/chazu/plantview/pkg/transform"
)

// Snapshot is the serializable state of a scene: every entity's kind data,
// properties, category links by ID, and transform.
type Snapshot struct {
	Entities []EntitySnapshot `json:"entities"`
}

// EntitySnapshot is one entity in a Snapshot.
type EntitySnapshot struct {
	ID         graph.ID              `json:"id"`
	Kind       Kind                  `json:"kind"`
	Data       json.RawMessage       `json:"data,omitempty"`
	Properties map[string]string     `json:"properties,omitempty"`
	Categories map[string][]graph.ID `json:"categories,omitempty"`
	Transform  transform.Transform   `json:"transform"`
	Wireframe  bool                  `json:"wireframe,omitempty"`
}

// Export captures the scene in creation order.
func (s *Scene) Export() (Snapshot, error) {
	all := s.All()
	snap := Snapshot{Entities: make([]EntitySnapshot, 0, len(all))}
	for _, c := range all {
		raw, err := json.Marshal(c.Data())
		if err != nil {
			return Snapshot{}, fmt.Errorf("component: encode %s: %w", c, err)
		}
		es := EntitySnapshot{
			ID:         c.id,
			Kind:       c.Kind(),
			Data:       raw,
			Properties: c.Properties(),
			Transform:  c.Transformation(),
			Wireframe:  c.Wireframe(),
		}
		if cats := c.mesh.Categories(); len(cats) > 0 {
			es.Categories = make(map[string][]graph.ID, len(cats))
			for _, cat := range cats {
				es.Categories[cat] = c.mesh.EntitiesByCategory(cat)
			}
		}
		snap.Entities = append(snap.Entities, es)
	}
	return snap, nil
}

// Import builds a new scene from snap. Links are restored exactly as
// recorded, without applying category rules, so a snapshot of a consistent
// scene yields a consistent scene. Run Validate to check foreign input.
func Import(snap Snapshot, opts ...Option) (*Scene, error) {
	s := NewScene(opts...)
	for _, es := range snap.Entities {
		if es.ID.IsZero() {
			return nil, fmt.Errorf("component: import: entity with zero id")
		}
		if s.Get(es.ID) != nil {
			return nil, fmt.Errorf("component: import: duplicate id %s", es.ID)
		}
		d, err := decodeData(es.Kind, es.Data)
		if err != nil {
			return nil, fmt.Errorf("component: import %s: %w", es.ID.Short(), err)
		}
		c := s.create(es.ID, d, nil)
		for k, v := range es.Properties {
			c.mesh.SetProperty(k, v)
		}
		c.mesh.SetTransformation(es.Transform)
		c.view.SetWireframe(es.Wireframe)
	}
	for _, es := range snap.Entities {
		c := s.Get(es.ID)
		for cat, ids := range es.Categories {
			for _, id := range ids {
				c.mesh.AddEntityByCategory(id, cat)
			}
		}
	}
	for _, c := range s.All() {
		for _, cat := range c.mesh.Categories() {
			for _, e := range c.EntitiesByCategory(cat) {
				c.onLinked(cat, e)
			}
		}
	}
	s.Wait()
	if err := s.Refresh(); err != nil {
		s.log.Warn("imported scene has views that failed to refresh", "err", err)
	}
	return s, nil
}
