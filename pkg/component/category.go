package component

import "github.com/chazu/plantview/pkg/graph"

// Well-known category names.
const (
	CategoryDefault  = graph.DefaultCategory
	CategoryParent   = "Parent"
	CategoryChildren = "Children"
	CategoryInput    = "Input"
	CategoryOutput   = "Output"
)

// mirrors pairs each two-sided category with the category the other end
// records the link under.
var mirrors = map[string]string{
	CategoryParent:   CategoryChildren,
	CategoryChildren: CategoryParent,
	CategoryInput:    CategoryOutput,
	CategoryOutput:   CategoryInput,
}

// rule describes how one kind treats one category.
type rule struct {
	single      bool // at most one occupant; a new link evicts the old one
	containment bool // owned: cloned recursively, unique occupants
}

var rules = map[Kind]map[string]rule{
	KindShape: {
		CategoryParent:   {single: true},
		CategoryChildren: {containment: true},
	},
	KindPipe: {
		CategoryParent: {single: true},
		CategoryInput:  {single: true},
		CategoryOutput: {single: true},
	},
	KindJunction: {
		CategoryParent: {single: true},
		CategoryInput:  {},
		CategoryOutput: {},
	},
	KindHeatExchanger: {
		CategoryParent:   {single: true},
		CategoryChildren: {containment: true},
		CategoryInput:    {},
		CategoryOutput:   {},
	},
	KindReactor: {
		CategoryParent:   {single: true},
		CategoryChildren: {containment: true},
		CategoryInput:    {},
		CategoryOutput:   {},
	},
}

// ruleFor returns the rule kind applies to category and whether the kind
// declares it. Undeclared categories are plain associative lists.
func ruleFor(kind Kind, category string) (rule, bool) {
	r, ok := rules[kind][category]
	return r, ok
}

// IsContainment reports whether kind owns the entities it holds in category.
func IsContainment(kind Kind, category string) bool {
	r, _ := ruleFor(kind, category)
	return r.containment
}

// IsSingle reports whether kind allows at most one entity in category.
func IsSingle(kind Kind, category string) bool {
	r, _ := ruleFor(kind, category)
	return r.single
}

// Mirror returns the category the far end of a link in category uses.
func Mirror(category string) (string, bool) {
	m, ok := mirrors[category]
	return m, ok
}
