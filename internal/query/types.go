package query

import (
	"github.com/spf13/cast"
)

// Query describes one operation on one entity.
//
// Example (invoices of 2024 starting with FV, newest first):
//
//	Query{
//	  Entity: "invoice",
//	  Where: And{Children: []Where{
//	    Leaf{Field: "code", Lookup: "startswith", Value: "FV"},
//	    Leaf{Field: "period", Value: "code:2024"},
//	  }},
//	  OrderBy: []Order{{Field: "issued", Descending: true}},
//	  Limit:   20,
//	}
type Query struct {
	Entity string

	// Fields is the projection of logical field names. Empty means all
	// declared fields.
	Fields []string

	// Where is the filter tree; nil means no filter.
	Where Where

	// OrderBy lists explicit sort keys in priority order.
	OrderBy []Order

	// Natural orders by the primary key when OrderBy is empty.
	// NaturalDescending reverses it.
	Natural           bool
	NaturalDescending bool

	// Offset and Limit page the result. A zero Limit means no limit.
	Offset int
	Limit  int

	// Empty marks a query known to match nothing; it compiles to an
	// empty plan without any I/O.
	Empty bool

	// Shapes the remote API cannot express. See CheckQuery.
	Joins      []string
	Distinct   bool
	Extra      map[string]any
	Having     Where
	Aggregates []Aggregate
}

// Where is a node of an abstract filter tree.
//
// This is a sealed interface - only types in this package implement it.
type Where interface {
	whereNode()
}

// Leaf is one lookup on a logical field, such as total__gt=100.
// An empty Lookup means exact.
type Leaf struct {
	Field   string
	Lookup  string
	Value   any
	Negated bool
}

func (Leaf) whereNode() {}

// And requires all children to match.
type And struct {
	Children []Where
	Negated  bool
}

func (And) whereNode() {}

// Or requires any child to match.
type Or struct {
	Children []Where
	Negated  bool
}

func (Or) whereNode() {}

// Not negates w. Leaves and groups carry the flag themselves.
func Not(w Where) Where {
	switch n := w.(type) {
	case Leaf:
		n.Negated = !n.Negated
		return n
	case And:
		n.Negated = !n.Negated
		return n
	case Or:
		n.Negated = !n.Negated
		return n
	case *Leaf:
		return Not(*n)
	case *And:
		return Not(*n)
	case *Or:
		return Not(*n)
	}
	return w
}

// Order is one sort key on a logical field.
type Order struct {
	Field      string
	Descending bool
}

// Aggregate is an aggregate expression. Only COUNT is supported.
type Aggregate struct {
	Func  string
	Field string // "*" or a logical field name
}

// AggregateCount is the only supported aggregate function.
const AggregateCount = "count"

// IsExistsProbe reports whether extra is exactly the exists probe
// sentinel {a: 1}.
func IsExistsProbe(extra map[string]any) bool {
	if len(extra) != 1 {
		return false
	}
	v, ok := extra["a"]
	if !ok {
		return false
	}
	n, err := cast.ToIntE(v)
	return err == nil && n == 1
}

// ExistsProbe is the extra fragment of exists queries.
func ExistsProbe() map[string]any {
	return map[string]any{"a": 1}
}
