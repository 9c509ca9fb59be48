package notify

import "strings"

// Kind is a bit set of change kinds. A single named constant is one kind;
// any OR of them is a set.
type Kind uint8

const (
	Property       Kind = 1 << iota // key/value property changed
	Child                           // category membership changed
	Selection                       // selection state changed
	Wireframe                       // rendering mode changed
	Transformation                  // transform changed
	All                             // wildcard, never delivered to a listener

	// None is the empty set.
	None Kind = 0

	concrete = Property | Child | Selection | Wireframe | Transformation
)

// Has reports whether every kind in o is present in k.
func (k Kind) Has(o Kind) bool {
	return o != None && k&o == o
}

// Any reports whether k and o share a kind.
func (k Kind) Any(o Kind) bool {
	return k&o != None
}

// expand replaces the All wildcard with every concrete kind.
func (k Kind) expand() Kind {
	if k&All != 0 {
		return concrete
	}
	return k & concrete
}

// Match returns the subset of sent that a listener wanting k receives. All on
// either side matches every concrete kind; the All bit itself is never part
// of the result.
func (k Kind) Match(sent Kind) Kind {
	return k.expand() & sent.expand()
}

func (k Kind) String() string {
	if k == None {
		return "none"
	}
	var parts []string
	names := []struct {
		k    Kind
		name string
	}{
		{Property, "property"},
		{Child, "child"},
		{Selection, "selection"},
		{Wireframe, "wireframe"},
		{Transformation, "transformation"},
		{All, "all"},
	}
	for _, n := range names {
		if k&n.k != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
