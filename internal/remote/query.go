// Package remote defines the Remote Query built by the compiler and the
// Transport contract the executor issues it through.
package remote

import (
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/roach88/flexiql/internal/filter"
	"github.com/roach88/flexiql/internal/scope"
)

// DefaultPrimaryKey is the wire column of FlexiBee object ids.
const DefaultPrimaryKey = "id"

// AccountingPeriodColumn is the filter column that selects an accounting
// period for evidences that are split by period.
const AccountingPeriodColumn = "ucetniObdobi"

// Row is one object as decoded from the wire, keyed by wire column.
// Foreign keys come with a sibling "<column>@ref" entry.
type Row map[string]any

// Payload is an outgoing object keyed by wire column with wire values.
type Payload map[string]any

// Ordering is one sort key.
type Ordering struct {
	Column    string
	Ascending bool
}

// String renders the ordering as a FlexiBee order parameter, "col@A" or "col@D".
func (o Ordering) String() string {
	if o.Ascending {
		return o.Column + "@A"
	}
	return o.Column + "@D"
}

// Via addresses a table whose rows are written through a relation of a
// parent evidence.
type Via struct {
	// Table is the parent evidence.
	Table string

	// Relation is the relation name on the parent.
	Relation string

	// FKColumn is the column of the child referencing the parent.
	FKColumn string
}

// Query is one remote request under construction. It is mutated by the
// compiler and then handed to a Transport exactly once.
type Query struct {
	Table      string
	PrimaryKey string
	Columns    []string
	Relations  []string
	Filters    []filter.Node
	Orderings  []Ordering
	Scope      scope.Scope
	Via        *Via

	UseAccountingPeriod bool
}

// New returns a query for table in the given scope.
func New(table string, sc scope.Scope, columns ...string) *Query {
	return &Query{
		Table:      table,
		PrimaryKey: DefaultPrimaryKey,
		Columns:    columns,
		Scope:      sc,
	}
}

// Derive returns a fresh query against another table in the same scope.
func (q *Query) Derive(table string, columns ...string) *Query {
	return New(table, q.Scope, columns...)
}

// AddFilter appends a filter; all filters are ANDed. Nil is ignored.
func (q *Query) AddFilter(n filter.Node) {
	if n == nil {
		return
	}
	q.Filters = append(q.Filters, n)
}

// AddOrdering appends a sort key.
func (q *Query) AddOrdering(column string, ascending bool) {
	q.Orderings = append(q.Orderings, Ordering{Column: column, Ascending: ascending})
}

// AddRelation requests a relation to be expanded in fetched rows.
func (q *Query) AddRelation(name string) {
	q.Relations = append(q.Relations, name)
}

// FilterString renders every filter wrapped in parentheses and joined by
// "and". It is empty when there is no filter.
func (q *Query) FilterString() string {
	parts := make([]string, 0, len(q.Filters))
	for _, f := range q.Filters {
		parts = append(parts, "("+filter.Render(f)+")")
	}
	return strings.Join(parts, " and ")
}

// OrderStrings returns the orderings in call order.
func (q *Query) OrderStrings() []string {
	out := make([]string, len(q.Orderings))
	for i, o := range q.Orderings {
		out[i] = o.String()
	}
	return out
}

// IsSingleObject reports whether the query addresses exactly one object
// through a sole "pk = value" filter, and returns that value.
func (q *Query) IsSingleObject() (any, bool) {
	if len(q.Filters) != 1 {
		return nil, false
	}
	e, ok := elementary(q.Filters[0])
	if !ok || e.Negated || e.Op != filter.OpEqual || e.Column != q.pk() {
		return nil, false
	}
	return e.Value, true
}

// AccountingPeriod returns the value of a top level "ucetniObdobi = X"
// filter, without quotes, when the table is split by accounting period.
func (q *Query) AccountingPeriod() (string, bool) {
	if !q.UseAccountingPeriod {
		return "", false
	}
	for _, f := range q.Filters {
		e, ok := elementary(f)
		if ok && !e.Negated && e.Op == filter.OpEqual && e.Column == AccountingPeriodColumn {
			return strings.Trim(cast.ToString(e.Value), "'"), true
		}
	}
	return "", false
}

func (q *Query) pk() string {
	if q.PrimaryKey == "" {
		return DefaultPrimaryKey
	}
	return q.PrimaryKey
}

func elementary(n filter.Node) (filter.Elementary, bool) {
	switch e := n.(type) {
	case filter.Elementary:
		return e, true
	case *filter.Elementary:
		return *e, true
	}
	return filter.Elementary{}, false
}

// ParseID converts a wire id ("12", 12, 12.0) into an int64.
func ParseID(v any) (int64, bool) {
	switch id := v.(type) {
	case nil:
		return 0, false
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		return n, err == nil
	}
	n, err := cast.ToInt64E(v)
	return n, err == nil
}
