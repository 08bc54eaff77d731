package filter

import (
	"fmt"
	"strings"

	"github.com/roach88/flexiql/internal/dberr"
)

// ContradictionColumn is the column a Contradiction is rendered against.
// Every FlexiBee evidence has a non-null "id".
const ContradictionColumn = "id"

// Node is a filter expression.
//
// This is a sealed interface - only types in this package implement it.
type Node interface {
	filterNode()
}

// Elementary is a single comparison: Column Op Value.
type Elementary struct {
	Column  string
	Op      Operator
	Value   any // wire form; nil renders as null
	Negated bool
}

func (Elementary) filterNode() {}

// And is a conjunction of its children.
type And struct {
	Children []Node
}

func (And) filterNode() {}

// Or is a disjunction of its children.
type Or struct {
	Children []Node
}

func (Or) filterNode() {}

// Not negates its child. The child is never rewritten.
type Not struct {
	Child Node
}

func (Not) filterNode() {}

// Contradiction matches no rows, or every row when Negated.
// It stands in for a membership test against an empty set.
type Contradiction struct {
	Negated bool
}

func (Contradiction) filterNode() {}

// NewElementary builds an Elementary node, rejecting unknown operators.
func NewElementary(column string, op Operator, value any, negated bool) (Elementary, error) {
	if !op.Valid() {
		return Elementary{}, dberr.UnsupportedLookup(string(op))
	}
	return Elementary{Column: column, Op: op, Value: value, Negated: negated}, nil
}

// Conjunction combines nodes with AND. Nil nodes are skipped; zero
// remaining nodes yield nil (no filter) and one yields that node.
func Conjunction(nodes ...Node) Node {
	children := compact(nodes)
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return And{Children: children}
}

// Disjunction combines nodes with OR under the same collapse rules as
// Conjunction.
func Disjunction(nodes ...Node) Node {
	children := compact(nodes)
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return Or{Children: children}
}

func compact(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Render returns the FlexiBee filter syntax for n. A nil node renders as
// the empty string.
func Render(n Node) string {
	var b strings.Builder
	render(&b, n)
	return b.String()
}

func render(b *strings.Builder, n Node) {
	switch node := n.(type) {
	case nil:
	case Elementary:
		renderElementary(b, node)
	case *Elementary:
		renderElementary(b, *node)
	case And:
		renderGroup(b, node.Children, " and ")
	case *And:
		renderGroup(b, node.Children, " and ")
	case Or:
		renderGroup(b, node.Children, " or ")
	case *Or:
		renderGroup(b, node.Children, " or ")
	case Not:
		renderNot(b, node.Child)
	case *Not:
		renderNot(b, node.Child)
	case Contradiction:
		renderContradiction(b, node)
	case *Contradiction:
		renderContradiction(b, *node)
	default:
		panic(fmt.Sprintf("filter: unknown node type %T", n))
	}
}

func renderElementary(b *strings.Builder, e Elementary) {
	if e.Negated {
		b.WriteString("not (")
	}
	b.WriteString(e.Column)
	b.WriteByte(' ')
	b.WriteString(string(e.Op))
	b.WriteByte(' ')
	if e.Value == nil {
		b.WriteString("null")
	} else {
		fmt.Fprint(b, e.Value)
	}
	if e.Negated {
		b.WriteByte(')')
	}
}

func renderGroup(b *strings.Builder, children []Node, sep string) {
	for i, c := range children {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteByte('(')
		render(b, c)
		b.WriteByte(')')
	}
}

func renderNot(b *strings.Builder, child Node) {
	b.WriteString("not (")
	render(b, child)
	b.WriteByte(')')
}

func renderContradiction(b *strings.Builder, c Contradiction) {
	b.WriteString(ContradictionColumn)
	if c.Negated {
		b.WriteString(" is not null")
	} else {
		b.WriteString(" is null")
	}
}
