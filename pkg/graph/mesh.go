// Package graph defines the entity graph node ("mesh") that holds a scene
// component's data: a string property bag, a categorized multimap of related
// entity IDs, and a transform. Every mutation is announced on the node's
// notify.Queue.
//
// A Mesh knows nothing about what its categories mean. Rules such as the
// single-parent invariant are enforced one level up, by the controller.
package graph

import (
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/chazu/plantview/pkg/notify"
	"github.com/chazu/plantview/pkg/transform"
)

// DefaultCategory is used when no category name is given.
const DefaultCategory = "Default"

// Mesh is the data model of one scene component.
type Mesh struct {
	id    ID
	queue *notify.Queue

	mu         sync.RWMutex
	properties map[string]string
	categories map[string][]ID
	current    transform.Transform
	previous   transform.Transform
}

// New creates an empty Mesh with an identity transform. opts configure its
// Queue; the Mesh is always recorded as the queue owner.
func New(id ID, opts ...notify.Option) *Mesh {
	m := &Mesh{
		id:         id,
		properties: make(map[string]string),
		categories: make(map[string][]ID),
		current:    transform.New(),
		previous:   transform.New(),
	}
	m.queue = notify.New(append(opts, notify.WithOwner(m))...)
	return m
}

// ID returns the mesh identity.
func (m *Mesh) ID() ID {
	return m.id
}

// Queue returns the queue that announces this mesh's changes.
func (m *Mesh) Queue() *notify.Queue {
	return m.queue
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

// SetProperty stores value under key. An empty key is ignored.
func (m *Mesh) SetProperty(key, value string) {
	if key == "" {
		return
	}
	m.mu.Lock()
	m.properties[key] = value
	m.mu.Unlock()
	m.queue.Notify(notify.Property)
}

// Property returns the value stored under key.
func (m *Mesh) Property(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.properties[key]
	return v, ok
}

// Properties returns a copy of the property bag.
func (m *Mesh) Properties() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.properties)
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

// AddEntity appends id to the default category.
func (m *Mesh) AddEntity(id ID) {
	m.AddEntityByCategory(id, DefaultCategory)
}

// AddEntityByCategory appends id to the named category. Duplicates are kept.
// A zero id is ignored; an empty category means DefaultCategory.
func (m *Mesh) AddEntityByCategory(id ID, category string) {
	if id.IsZero() {
		return
	}
	if category == "" {
		category = DefaultCategory
	}
	m.mu.Lock()
	m.categories[category] = append(m.categories[category], id)
	m.mu.Unlock()
	m.queue.Notify(notify.Child)
}

// RemoveEntity removes every occurrence of id from every category and
// reports whether anything was removed.
func (m *Mesh) RemoveEntity(id ID) bool {
	m.mu.Lock()
	removed := false
	for cat := range m.categories {
		if m.removeLocked(id, cat) {
			removed = true
		}
	}
	m.mu.Unlock()
	if removed {
		m.queue.Notify(notify.Child)
	}
	return removed
}

// RemoveEntityByCategory removes every occurrence of id from one category.
func (m *Mesh) RemoveEntityByCategory(id ID, category string) bool {
	if category == "" {
		category = DefaultCategory
	}
	m.mu.Lock()
	removed := m.removeLocked(id, category)
	m.mu.Unlock()
	if removed {
		m.queue.Notify(notify.Child)
	}
	return removed
}

// ClearCategory empties a category and reports whether it held anything.
func (m *Mesh) ClearCategory(category string) bool {
	m.mu.Lock()
	had := len(m.categories[category]) > 0
	delete(m.categories, category)
	m.mu.Unlock()
	if had {
		m.queue.Notify(notify.Child)
	}
	return had
}

func (m *Mesh) removeLocked(id ID, category string) bool {
	ids, ok := m.categories[category]
	if !ok {
		return false
	}
	kept := slices.DeleteFunc(slices.Clone(ids), func(x ID) bool { return x == id })
	if len(kept) == len(ids) {
		return false
	}
	if len(kept) == 0 {
		delete(m.categories, category)
	} else {
		m.categories[category] = kept
	}
	return true
}

// Entities returns the union of all categories, each ID once, in category
// name order and then insertion order.
func (m *Mesh) Entities() []ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[ID]bool)
	out := []ID{}
	for _, cat := range m.sortedCategoriesLocked() {
		for _, id := range m.categories[cat] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// EntitiesByCategory returns a copy of one category. Unknown categories
// yield an empty, non-nil slice.
func (m *Mesh) EntitiesByCategory(category string) []ID {
	if category == "" {
		category = DefaultCategory
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ID{}, m.categories[category]...)
}

// Categories returns the names of the non-empty categories, sorted.
func (m *Mesh) Categories() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedCategoriesLocked()
}

// CategoriesOf returns the sorted names of the categories holding id.
func (m *Mesh) CategoriesOf(id ID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, cat := range m.sortedCategoriesLocked() {
		if slices.Contains(m.categories[cat], id) {
			out = append(out, cat)
		}
	}
	return out
}

// Contains reports whether id appears in the category.
func (m *Mesh) Contains(id ID, category string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.categories[category], id)
}

func (m *Mesh) sortedCategoriesLocked() []string {
	names := make([]string, 0, len(m.categories))
	for cat := range m.categories {
		names = append(names, cat)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Transform
// ---------------------------------------------------------------------------

// SetTransformation replaces the transform wholesale.
func (m *Mesh) SetTransformation(t transform.Transform) {
	m.mu.Lock()
	m.current = t
	m.mu.Unlock()
	m.queue.Notify(notify.Transformation)
}

// Transformation returns the current transform.
func (m *Mesh) Transformation() transform.Transform {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// PreviousTransformation returns the transform captured by the last Synched
// call, or the starting transform if Synched was never called.
func (m *Mesh) PreviousTransformation() transform.Transform {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.previous
}

// Synched records the current transform as the baseline returned by
// PreviousTransformation.
func (m *Mesh) Synched() {
	m.mu.Lock()
	m.previous = m.current
	m.mu.Unlock()
}

// Moved reports whether the transform changed since the last Synched.
func (m *Mesh) Moved() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.current.Equal(m.previous)
}

// ---------------------------------------------------------------------------
// Copying
// ---------------------------------------------------------------------------

// Clone returns a copy of m under a new id with its own Queue. Categories are
// copied as ID lists; the caller decides which of them to re-point.
func (m *Mesh) Clone(id ID, opts ...notify.Option) *Mesh {
	c := New(id, opts...)
	m.mu.RLock()
	c.properties = maps.Clone(m.properties)
	for cat, ids := range m.categories {
		c.categories[cat] = slices.Clone(ids)
	}
	c.current = m.current
	c.previous = m.previous
	m.mu.RUnlock()
	return c
}

// Copy replaces m's state with src's. The id and Queue of m are kept.
func (m *Mesh) Copy(src *Mesh) {
	if src == nil || src == m {
		return
	}
	src.mu.RLock()
	props := maps.Clone(src.properties)
	cats := make(map[string][]ID, len(src.categories))
	for cat, ids := range src.categories {
		cats[cat] = slices.Clone(ids)
	}
	cur, prev := src.current, src.previous
	src.mu.RUnlock()

	m.mu.Lock()
	m.properties = props
	m.categories = cats
	m.current = cur
	m.previous = prev
	m.mu.Unlock()
	m.queue.Notify(notify.Property | notify.Child | notify.Transformation)
}

// CopyState replaces m's properties and transforms with src's, leaving the
// categories alone.
func (m *Mesh) CopyState(src *Mesh) {
	if src == nil || src == m {
		return
	}
	s := src.state()
	src.mu.RLock()
	prev := src.previous
	src.mu.RUnlock()

	m.mu.Lock()
	m.properties = s.properties
	m.current = s.current
	m.previous = prev
	m.mu.Unlock()
	m.queue.Notify(notify.Property | notify.Transformation)
}

// Equal compares properties, transform and categories, ignoring identity.
func (m *Mesh) Equal(o *Mesh) bool {
	if o == nil {
		return false
	}
	if m == o {
		return true
	}
	a, b := m.state(), o.state()
	return a.equalState(b) && maps.EqualFunc(a.categories, b.categories, func(x, y []ID) bool {
		return slices.Equal(x, y)
	})
}

// EqualState is Equal without the category comparison.
func (m *Mesh) EqualState(o *Mesh) bool {
	if o == nil {
		return false
	}
	return m == o || m.state().equalState(o.state())
}

// snapshot is an unlocked copy of a mesh's contents.
type snapshot struct {
	properties map[string]string
	categories map[string][]ID
	current    transform.Transform
}

func (s snapshot) equalState(o snapshot) bool {
	return maps.Equal(s.properties, o.properties) && s.current.Equal(o.current)
}

func (m *Mesh) state() snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cats := make(map[string][]ID, len(m.categories))
	for cat, ids := range m.categories {
		cats[cat] = slices.Clone(ids)
	}
	return snapshot{
		properties: maps.Clone(m.properties),
		categories: cats,
		current:    m.current,
	}
}
