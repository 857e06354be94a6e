package query

import "github.com/roach88/nexus/internal/doc"

// Predicate is a filter condition. Only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Equals holds when some value at Path equals Value.
type Equals struct {
	Path  string
	Value doc.Value
}

func (Equals) predicateNode() {}

// NotEquals holds when no value at Path equals Value.
type NotEquals struct {
	Path  string
	Value doc.Value
}

func (NotEquals) predicateNode() {}

// And holds when every predicate holds. An empty And is true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or holds when any predicate holds. An empty Or is false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// Reserved metadata paths.
const (
	PathDeprecated = "nxv:deprecated"
	PathPublished  = "nxv:published"
	PathRev        = "nxv:rev"
)

// IsMeta reports whether path addresses resource metadata rather than payload.
func IsMeta(path string) bool {
	switch path {
	case PathDeprecated, PathPublished, PathRev:
		return true
	}
	return false
}
